package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"getmechai/ledger"
	"getmechai/pinning"
	"getmechai/storage"
)

const subscriptionPeriod = 30 * 24 * time.Hour

type postItem struct {
	ledger.PostView
	Caption string `json:"caption,omitempty"`
}

type postsResponse struct {
	Posts        []postItem `json:"posts"`
	LedgerStatus string     `json:"ledgerStatus"`
}

// withCaptions joins ledger post views against the mirror for captions, which
// never travel on-chain. A missing mirror row leaves the caption empty.
func (s *Server) withCaptions(ctx context.Context, creator string, views []ledger.PostView) []postItem {
	captions := make(map[uint64]string)
	if rows, err := s.store.ListPosts(ctx, creator, 100); err == nil {
		for _, row := range rows {
			captions[row.PostID] = row.Caption
		}
	}
	items := make([]postItem, 0, len(views))
	for _, v := range views {
		items = append(items, postItem{PostView: v, Caption: captions[v.ID]})
	}
	return items
}

type profileResponse struct {
	ledger.ProfileView
	Bio          string `json:"bio,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
	LedgerStatus string `json:"ledgerStatus"`
}

type statsResponse struct {
	ledger.StatsView
	LedgerStatus string `json:"ledgerStatus"`
}

type subscriptionResponse struct {
	ledger.SubscriptionView
	LastTxHash   string `json:"lastTxHash,omitempty"`
	LedgerStatus string `json:"ledgerStatus"`
}

type accessResponse struct {
	Allowed bool `json:"allowed"`
}

type txResponse struct {
	TxHash string `json:"txHash"`
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	views := s.discovery.ListAllPosts(r.Context())
	s.writeJSON(w, http.StatusOK, postsResponse{
		Posts:        s.withCaptions(r.Context(), "", views),
		LedgerStatus: s.ledgerStatus(),
	})
}

func (s *Server) handleListCreators(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}
	creators, err := s.store.ListCreators(r.Context(), q.Get("search"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"creators": creators})
}

func (s *Server) handleCreatorProfile(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	view := s.views.CreatorProfile(r.Context(), addr)
	resp := profileResponse{ProfileView: view, LedgerStatus: s.ledgerStatus()}
	if row, err := s.store.GetCreator(r.Context(), addr.Hex()); err == nil {
		resp.Bio = row.Bio
		resp.ProfileImage = row.ProfileImage
		if resp.Name == "" {
			resp.Name = row.Name
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreatorPosts(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	views := s.discovery.ListPostsByCreator(r.Context(), addr)
	s.writeJSON(w, http.StatusOK, postsResponse{
		Posts:        s.withCaptions(r.Context(), addr.Hex(), views),
		LedgerStatus: s.ledgerStatus(),
	})
}

func (s *Server) handleCreatorStats(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	view := s.views.CreatorStats(r.Context(), addr)
	s.writeJSON(w, http.StatusOK, statsResponse{StatsView: view, LedgerStatus: s.ledgerStatus()})
}

func (s *Server) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	subscriber, err := ledger.ParseAddress(chi.URLParam(r, "subscriber"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	creator, err := ledger.ParseAddress(chi.URLParam(r, "creator"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	view := s.views.SubscriptionStatus(r.Context(), subscriber, creator)
	resp := subscriptionResponse{SubscriptionView: view, LedgerStatus: s.ledgerStatus()}
	if row, err := s.store.GetSubscription(r.Context(), subscriber.Hex(), creator.Hex()); err == nil {
		resp.LastTxHash = row.TxHash
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	postID, err := strconv.ParseUint(q.Get("post"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid post id %q", q.Get("post")))
		return
	}
	subscriber, err := ledger.ParseAddress(q.Get("subscriber"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	creator, err := ledger.ParseAddress(q.Get("creator"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	allowed := s.gate.CanAccess(r.Context(), postID, subscriber, creator)
	s.writeJSON(w, http.StatusOK, accessResponse{Allowed: allowed})
}

type registerCreatorRequest struct {
	WalletAddress     string `json:"walletAddress"`
	Name              string `json:"name"`
	SubscriptionPrice string `json:"subscriptionPrice"`
	Bio               string `json:"bio"`
	ProfileImage      string `json:"profileImage"`
}

func (s *Server) handleRegisterCreator(w http.ResponseWriter, r *http.Request) {
	var req registerCreatorRequest
	if err := s.readBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, err := ledger.ParseAddress(req.WalletAddress)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validateName(req.Name); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validateBio(req.Bio); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := parseAmount(req.SubscriptionPrice, false)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("subscriptionPrice: %w", err))
		return
	}
	if _, err := s.store.GetCreator(r.Context(), addr.Hex()); err == nil {
		s.writeError(w, http.StatusConflict, fmt.Errorf("creator %s already registered", addr.Hex()))
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.fail(w, err)
		return
	}
	tx, err := s.ledgerWrite(r.Context(), func(ctx context.Context, wa ledger.Writer) (string, error) {
		t, err := wa.RegisterCreator(ctx, req.Name, price)
		if err != nil {
			return "", err
		}
		return t.Hash().Hex(), nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	row := &storage.Creator{
		WalletAddress:     addr.Hex(),
		Name:              req.Name,
		Bio:               req.Bio,
		SubscriptionPrice: price.String(),
		ProfileImage:      req.ProfileImage,
	}
	if err := s.store.CreateCreator(r.Context(), row); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"creator": row, "txHash": tx})
}

type updateCreatorRequest struct {
	Name         *string `json:"name"`
	Bio          *string `json:"bio"`
	ProfileImage *string `json:"profileImage"`
}

// handleUpdateCreator edits mirror-only profile fields. The on-chain record is
// untouched; display name changes affect search and feeds only.
func (s *Server) handleUpdateCreator(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req updateCreatorRequest
	if err := s.readBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	row, err := s.store.GetCreator(r.Context(), addr.Hex())
	if err != nil {
		s.fail(w, err)
		return
	}
	if req.Name != nil {
		if err := validateName(*req.Name); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		row.Name = *req.Name
	}
	if req.Bio != nil {
		if err := validateBio(*req.Bio); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		row.Bio = *req.Bio
	}
	if req.ProfileImage != nil {
		row.ProfileImage = *req.ProfileImage
	}
	if err := s.store.UpdateCreator(r.Context(), row); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"creator": row})
}

type createPostRequest struct {
	PostID         uint64 `json:"postId"`
	CreatorAddress string `json:"creatorAddress"`
	ContentHash    string `json:"contentHash"`
	Caption        string `json:"caption"`
	IsFree         bool   `json:"isFree"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := s.readBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	addr, err := ledger.ParseAddress(req.CreatorAddress)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	cid := pinning.NormalizeCID(req.ContentHash)
	if !pinning.ValidCID(cid) {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid content hash %q", req.ContentHash))
		return
	}
	if err := validateCaption(req.Caption); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.store.GetCreator(r.Context(), addr.Hex()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Errorf("creator %s not registered", addr.Hex()))
			return
		}
		s.fail(w, err)
		return
	}
	tx, err := s.ledgerWrite(r.Context(), func(ctx context.Context, wa ledger.Writer) (string, error) {
		t, err := wa.AddPost(ctx, cid, req.IsFree)
		if err != nil {
			return "", err
		}
		return t.Hash().Hex(), nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	row := &storage.Post{
		PostID:         req.PostID,
		CreatorAddress: addr.Hex(),
		ContentHash:    cid,
		Caption:        req.Caption,
		IsFree:         req.IsFree,
	}
	if err := s.store.CreatePost(r.Context(), row); err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"post": row, "txHash": tx})
}

type contributeRequest struct {
	PostID      uint64 `json:"postId"`
	FromAddress string `json:"fromAddress"`
	AmountWei   string `json:"amountWei"`
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req contributeRequest
	if err := s.readBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	from, err := ledger.ParseAddress(req.FromAddress)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.AmountWei, true)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("amountWei: %w", err))
		return
	}
	tx, err := s.ledgerWrite(r.Context(), func(ctx context.Context, wa ledger.Writer) (string, error) {
		t, err := wa.Contribute(ctx, req.PostID, amount)
		if err != nil {
			return "", err
		}
		return t.Hash().Hex(), nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	row := &storage.Contribution{
		PostID:      req.PostID,
		FromAddress: from.Hex(),
		AmountWei:   amount.String(),
		TxHash:      tx,
	}
	if err := s.store.CreateContribution(r.Context(), row); err != nil {
		s.logger.Warn("mirror contribution insert failed", "err", err)
	}
	s.writeJSON(w, http.StatusCreated, txResponse{TxHash: tx})
}

type subscribeRequest struct {
	SubscriberAddress string `json:"subscriberAddress"`
	CreatorAddress    string `json:"creatorAddress"`
	AmountWei         string `json:"amountWei"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := s.readBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	subscriber, err := ledger.ParseAddress(req.SubscriberAddress)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	creator, err := ledger.ParseAddress(req.CreatorAddress)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.AmountWei, true)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("amountWei: %w", err))
		return
	}
	tx, err := s.ledgerWrite(r.Context(), func(ctx context.Context, wa ledger.Writer) (string, error) {
		t, err := wa.Subscribe(ctx, creator, amount)
		if err != nil {
			return "", err
		}
		return t.Hash().Hex(), nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	expiry := s.nowFn().Add(subscriptionPeriod)
	if err := s.store.UpsertSubscription(r.Context(), &storage.Subscription{
		SubscriberAddress: subscriber.Hex(),
		CreatorAddress:    creator.Hex(),
		ExpiresAt:         expiry,
		TxHash:            tx,
	}); err != nil {
		s.logger.Warn("mirror subscription upsert failed", "err", err)
	}
	s.writeJSON(w, http.StatusCreated, txResponse{TxHash: tx})
}

type creatorAmountRequest struct {
	CreatorAddress string `json:"creatorAddress"`
	AmountWei      string `json:"amountWei"`
}

func (s *Server) handleDepositAutoPay(w http.ResponseWriter, r *http.Request) {
	var req creatorAmountRequest
	if err := s.readBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	creator, err := ledger.ParseAddress(req.CreatorAddress)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.AmountWei, true)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("amountWei: %w", err))
		return
	}
	s.submitTx(w, r, func(ctx context.Context, wa ledger.Writer) (string, error) {
		t, err := wa.DepositAutoPay(ctx, creator, amount)
		if err != nil {
			return "", err
		}
		return t.Hash().Hex(), nil
	})
}

func (s *Server) handleRenewSubscription(w http.ResponseWriter, r *http.Request) {
	var req creatorAmountRequest
	if err := s.readBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	creator, err := ledger.ParseAddress(req.CreatorAddress)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.submitTx(w, r, func(ctx context.Context, wa ledger.Writer) (string, error) {
		t, err := wa.RenewSubscription(ctx, creator)
		if err != nil {
			return "", err
		}
		return t.Hash().Hex(), nil
	})
}

func (s *Server) handleWithdrawEarnings(w http.ResponseWriter, r *http.Request) {
	s.submitTx(w, r, func(ctx context.Context, wa ledger.Writer) (string, error) {
		t, err := wa.WithdrawEarnings(ctx)
		if err != nil {
			return "", err
		}
		return t.Hash().Hex(), nil
	})
}

func (s *Server) handleLedgerReset(w http.ResponseWriter, _ *http.Request) {
	s.client.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.pinner == nil || !s.pinner.Configured() {
		s.writeError(w, http.StatusServiceUnavailable, pinning.ErrNotConfigured)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, pinning.MaxBlobSize+maxRequestBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("multipart field %q required: %w", "file", err))
		return
	}
	defer file.Close()
	meta := pinning.Metadata{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	result, err := s.pinner.Store(r.Context(), file, meta)
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

type txFunc func(ctx context.Context, wa ledger.Writer) (string, error)

// ledgerWrite obtains a fresh write accessor and submits. A missing operator
// wallet stays ErrNoWallet; anything the node rejects comes back wrapped so
// the caller maps it to an upstream failure.
func (s *Server) ledgerWrite(ctx context.Context, fn txFunc) (string, error) {
	wa, err := s.client.WriteAccessor(ctx)
	if err != nil {
		return "", err
	}
	hash, err := fn(ctx, wa)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrUnreachable, err)
	}
	return hash, nil
}

func (s *Server) submitTx(w http.ResponseWriter, r *http.Request, fn txFunc) {
	hash, err := s.ledgerWrite(r.Context(), fn)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, txResponse{TxHash: hash})
}
