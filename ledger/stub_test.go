package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// fakeReader serves canned point lookups. Missing entries come back as empty
// records, matching how the contract answers for untouched slots.
type fakeReader struct {
	mu sync.Mutex

	creators   map[common.Address]*CreatorRecord
	posts      map[uint64]*PostRecord
	subs       map[string]*SubscriptionRecord
	earnings   map[common.Address]*big.Int
	subscribed map[string]bool

	creatorErr error
	postErr    map[uint64]error
	subErr     error
	isSubErr   error

	postCalls  int
	isSubCalls int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		creators:   make(map[common.Address]*CreatorRecord),
		posts:      make(map[uint64]*PostRecord),
		subs:       make(map[string]*SubscriptionRecord),
		earnings:   make(map[common.Address]*big.Int),
		subscribed: make(map[string]bool),
		postErr:    make(map[uint64]error),
	}
}

func pairKey(subscriber, creator common.Address) string {
	return subscriber.Hex() + "/" + creator.Hex()
}

func (f *fakeReader) addPost(id uint64, creator common.Address, hash string, free bool, contributions int64) {
	f.posts[id] = &PostRecord{
		ID:            id,
		Creator:       creator,
		ContentHash:   hash,
		IsFree:        free,
		Contributions: big.NewInt(contributions),
	}
}

func (f *fakeReader) Creator(_ context.Context, addr common.Address) (*CreatorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.creatorErr != nil {
		return nil, f.creatorErr
	}
	if rec, ok := f.creators[addr]; ok {
		return rec, nil
	}
	return &CreatorRecord{Wallet: addr, SubscriptionPrice: big.NewInt(0)}, nil
}

func (f *fakeReader) Post(_ context.Context, id uint64) (*PostRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postCalls++
	if err, ok := f.postErr[id]; ok {
		return nil, err
	}
	if rec, ok := f.posts[id]; ok {
		return rec, nil
	}
	return &PostRecord{ID: id, Contributions: big.NewInt(0)}, nil
}

func (f *fakeReader) Subscription(_ context.Context, subscriber, creator common.Address) (*SubscriptionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	if rec, ok := f.subs[pairKey(subscriber, creator)]; ok {
		return rec, nil
	}
	return &SubscriptionRecord{AutoPayBalance: big.NewInt(0)}, nil
}

func (f *fakeReader) Earnings(_ context.Context, addr common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.earnings[addr]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeReader) IsSubscribed(_ context.Context, subscriber, creator common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isSubCalls++
	if f.isSubErr != nil {
		return false, f.isSubErr
	}
	return f.subscribed[pairKey(subscriber, creator)], nil
}

// staticSource hands out one fixed reader, or a fixed error when the ledger
// should look unavailable.
type staticSource struct {
	reader Reader
	err    error
}

func (s *staticSource) ReadAccessor(context.Context) (Reader, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.reader, nil
}

var errLedgerDown = errors.New("ledger unavailable")
