package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"getmechai/gateway/middleware"
	"getmechai/ledger"
	"getmechai/storage"
)

const (
	creatorHex    = "0x1111111111111111111111111111111111111111"
	subscriberHex = "0x2222222222222222222222222222222222222222"
	sampleCID     = "QmPK1s3pNYLi9ERiq3BDxKa4XosgWwFRQUydHUtz4YgpqB"
)

// canned ledger state served through the gateway's reader source.

type testReader struct {
	creators map[common.Address]*ledger.CreatorRecord
	posts    map[uint64]*ledger.PostRecord
	subs     map[string]*ledger.SubscriptionRecord
}

func newTestReader() *testReader {
	return &testReader{
		creators: make(map[common.Address]*ledger.CreatorRecord),
		posts:    make(map[uint64]*ledger.PostRecord),
		subs:     make(map[string]*ledger.SubscriptionRecord),
	}
}

func (r *testReader) Creator(_ context.Context, addr common.Address) (*ledger.CreatorRecord, error) {
	if rec, ok := r.creators[addr]; ok {
		return rec, nil
	}
	return &ledger.CreatorRecord{Wallet: addr, SubscriptionPrice: big.NewInt(0)}, nil
}

func (r *testReader) Post(_ context.Context, id uint64) (*ledger.PostRecord, error) {
	if rec, ok := r.posts[id]; ok {
		return rec, nil
	}
	return &ledger.PostRecord{ID: id, Contributions: big.NewInt(0)}, nil
}

func (r *testReader) Subscription(_ context.Context, subscriber, creator common.Address) (*ledger.SubscriptionRecord, error) {
	if rec, ok := r.subs[subscriber.Hex()+creator.Hex()]; ok {
		return rec, nil
	}
	return &ledger.SubscriptionRecord{AutoPayBalance: big.NewInt(0)}, nil
}

func (r *testReader) Earnings(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (r *testReader) IsSubscribed(_ context.Context, subscriber, creator common.Address) (bool, error) {
	rec, ok := r.subs[subscriber.Hex()+creator.Hex()]
	return ok && rec.Expiry > time.Now().Unix(), nil
}

type testWriter struct {
	err error
}

func (w *testWriter) tx() (*types.Transaction, error) {
	if w.err != nil {
		return nil, w.err
	}
	return types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1)}), nil
}

func (w *testWriter) RegisterCreator(context.Context, string, *big.Int) (*types.Transaction, error) {
	return w.tx()
}

func (w *testWriter) AddPost(context.Context, string, bool) (*types.Transaction, error) {
	return w.tx()
}

func (w *testWriter) Contribute(context.Context, uint64, *big.Int) (*types.Transaction, error) {
	return w.tx()
}

func (w *testWriter) Subscribe(context.Context, common.Address, *big.Int) (*types.Transaction, error) {
	return w.tx()
}

func (w *testWriter) DepositAutoPay(context.Context, common.Address, *big.Int) (*types.Transaction, error) {
	return w.tx()
}

func (w *testWriter) RenewSubscription(context.Context, common.Address) (*types.Transaction, error) {
	return w.tx()
}

func (w *testWriter) WithdrawEarnings(context.Context) (*types.Transaction, error) {
	return w.tx()
}

type testClient struct {
	reader      *testReader
	writer      *testWriter
	writeErr    error
	notDeployed bool
	resets      int
}

func (c *testClient) ReadAccessor(context.Context) (ledger.Reader, error) {
	return c.reader, nil
}

func (c *testClient) WriteAccessor(context.Context) (ledger.Writer, error) {
	if c.writeErr != nil {
		return nil, c.writeErr
	}
	return c.writer, nil
}

func (c *testClient) NotDeployed() bool { return c.notDeployed }
func (c *testClient) Reset()            { c.resets++ }

func newTestServer(t *testing.T, client *testClient) *Server {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	discovery := ledger.NewDiscovery(client, nil, ledger.WithScanLimit(10))
	return NewServer(Config{
		Client:    client,
		Discovery: discovery,
		Views:     ledger.NewAssembler(client, discovery, nil),
		Gate:      ledger.NewGate(client, nil),
		Store:     store,
		Limits: Limits{
			Read:     middleware.Limit{Requests: 100, Window: time.Minute},
			Mutation: middleware.Limit{Requests: 100, Window: time.Minute},
			Upload:   middleware.Limit{Requests: 100, Window: time.Minute},
		},
	})
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestListPostsIncludesLedgerStatus(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}}
	addr := common.HexToAddress(creatorHex)
	client.reader.posts[3] = &ledger.PostRecord{ID: 3, Creator: addr, ContentHash: sampleCID, IsFree: true, Contributions: big.NewInt(0)}
	handler := newTestServer(t, client).Router()

	rec := doJSON(t, handler, http.MethodGet, "/v1/posts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp postsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Posts, 1)
	require.Equal(t, "ok", resp.LedgerStatus)
}

func TestListPostsFlagsMissingContract(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}, notDeployed: true}
	handler := newTestServer(t, client).Router()

	rec := doJSON(t, handler, http.MethodGet, "/v1/posts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp postsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Posts)
	require.Equal(t, "not_deployed", resp.LedgerStatus)
}

func TestCreatorProfileRejectsBadAddress(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}}
	handler := newTestServer(t, client).Router()

	rec := doJSON(t, handler, http.MethodGet, "/v1/creators/nope", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "error")
}

func TestAccessEndpoint(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}}
	addr := common.HexToAddress(creatorHex)
	client.reader.posts[5] = &ledger.PostRecord{ID: 5, Creator: addr, ContentHash: sampleCID, IsFree: true, Contributions: big.NewInt(0)}
	handler := newTestServer(t, client).Router()

	rec := doJSON(t, handler, http.MethodGet,
		"/v1/access?post=5&subscriber="+subscriberHex+"&creator="+creatorHex, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp accessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Allowed)

	rec = doJSON(t, handler, http.MethodGet,
		"/v1/access?post=notanumber&subscriber="+subscriberHex+"&creator="+creatorHex, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterCreator(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}}
	handler := newTestServer(t, client).Router()

	body := map[string]interface{}{
		"walletAddress":     creatorHex,
		"name":              "alice",
		"subscriptionPrice": "1000",
		"bio":               "painter",
	}
	rec := doJSON(t, handler, http.MethodPost, "/v1/creators", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), "txHash")

	// Same wallet again conflicts.
	rec = doJSON(t, handler, http.MethodPost, "/v1/creators", body)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterCreatorValidation(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}}
	handler := newTestServer(t, client).Router()

	cases := []map[string]interface{}{
		{"walletAddress": "bogus", "name": "alice", "subscriptionPrice": "1"},
		{"walletAddress": creatorHex, "name": "a", "subscriptionPrice": "1"},
		{"walletAddress": creatorHex, "name": "alice", "subscriptionPrice": "1.5"},
		{"walletAddress": creatorHex, "name": "alice", "subscriptionPrice": "1", "bio": strings.Repeat("x", 501)},
	}
	for i, body := range cases {
		rec := doJSON(t, handler, http.MethodPost, "/v1/creators", body)
		require.Equalf(t, http.StatusBadRequest, rec.Code, "case %d body %s", i, rec.Body.String())
	}
}

func TestRegisterCreatorWithoutWallet(t *testing.T) {
	client := &testClient{reader: newTestReader(), writeErr: ledger.ErrNoWallet}
	handler := newTestServer(t, client).Router()

	rec := doJSON(t, handler, http.MethodPost, "/v1/creators", map[string]interface{}{
		"walletAddress": creatorHex, "name": "alice", "subscriptionPrice": "1",
	})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreatePostRequiresKnownCreator(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}}
	handler := newTestServer(t, client).Router()

	rec := doJSON(t, handler, http.MethodPost, "/v1/posts", map[string]interface{}{
		"postId": 1, "creatorAddress": creatorHex, "contentHash": sampleCID, "isFree": true,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePostRejectsBadContentHash(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}}
	handler := newTestServer(t, client).Router()

	rec := doJSON(t, handler, http.MethodPost, "/v1/posts", map[string]interface{}{
		"postId": 1, "creatorAddress": creatorHex, "contentHash": "not-a-cid", "isFree": true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContributeSubmitsTransaction(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}}
	handler := newTestServer(t, client).Router()

	rec := doJSON(t, handler, http.MethodPost, "/v1/contributions", map[string]interface{}{
		"postId": 3, "fromAddress": subscriberHex, "amountWei": "500",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp txResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp.TxHash, "0x"))
}

func TestContributeRejectedByNode(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{err: errors.New("contribute rejected: Post does not exist")}}
	handler := newTestServer(t, client).Router()

	rec := doJSON(t, handler, http.MethodPost, "/v1/contributions", map[string]interface{}{
		"postId": 99, "fromAddress": subscriberHex, "amountWei": "500",
	})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "Post does not exist")
}

func TestLedgerResetEndpoint(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}}
	handler := newTestServer(t, client).Router()

	rec := doJSON(t, handler, http.MethodPost, "/v1/ledger/reset", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 1, client.resets)
}

func TestMutationRateLimitIndependentOfReads(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}}
	store, err := storage.Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	discovery := ledger.NewDiscovery(client, nil, ledger.WithScanLimit(5))
	srv := NewServer(Config{
		Client:    client,
		Discovery: discovery,
		Views:     ledger.NewAssembler(client, discovery, nil),
		Gate:      ledger.NewGate(client, nil),
		Store:     store,
		Limits: Limits{
			Read:     middleware.Limit{Requests: 1, Window: time.Minute},
			Mutation: middleware.Limit{Requests: 5, Window: time.Minute},
			Upload:   middleware.Limit{Requests: 1, Window: time.Minute},
		},
	})
	handler := srv.Router()

	require.Equal(t, http.StatusOK, doJSON(t, handler, http.MethodGet, "/v1/posts", nil).Code)
	throttled := doJSON(t, handler, http.MethodGet, "/v1/posts", nil)
	require.Equal(t, http.StatusTooManyRequests, throttled.Code)
	require.Equal(t, "0", throttled.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, throttled.Header().Get("X-RateLimit-Reset"))

	// The mutation budget is untouched by exhausted reads.
	rec := doJSON(t, handler, http.MethodPost, "/v1/ledger/reset", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUpdateCreatorProfile(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}}
	handler := newTestServer(t, client).Router()

	rec := doJSON(t, handler, http.MethodPost, "/v1/creators", map[string]interface{}{
		"walletAddress": creatorHex, "name": "alice", "subscriptionPrice": "1000",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodPut, "/v1/creators/"+creatorHex, map[string]interface{}{
		"bio": "sculptor now",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "sculptor now")

	rec = doJSON(t, handler, http.MethodPut, "/v1/creators/"+subscriberHex, map[string]interface{}{
		"bio": "nobody",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPostsJoinsMirrorCaptions(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}}
	addr := common.HexToAddress(creatorHex)
	client.reader.posts[4] = &ledger.PostRecord{ID: 4, Creator: addr, ContentHash: sampleCID, IsFree: true, Contributions: big.NewInt(0)}
	client.reader.creators[addr] = &ledger.CreatorRecord{Wallet: addr, Name: "alice", IsRegistered: true}
	srv := newTestServer(t, client)
	handler := srv.Router()

	require.NoError(t, srv.store.CreatePost(context.Background(), &storage.Post{
		PostID: 4, CreatorAddress: creatorHex, ContentHash: sampleCID, Caption: "first drop", IsFree: true,
	}))

	rec := doJSON(t, handler, http.MethodGet, "/v1/posts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp postsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Posts, 1)
	require.Equal(t, "first drop", resp.Posts[0].Caption)
}

func TestUploadWithoutPinner(t *testing.T) {
	client := &testClient{reader: newTestReader(), writer: &testWriter{}}
	handler := newTestServer(t, client).Router()

	rec := doJSON(t, handler, http.MethodPost, "/v1/uploads", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
