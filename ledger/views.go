package ledger

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const secondsPerDay = 86400

// Assembler composes point lookups and discovery into application views.
// Every operation fails open: any underlying read failure yields the
// well-formed default for that view, never an error, so dashboards render
// against a partially broken ledger.
type Assembler struct {
	source    ReaderSource
	discovery *Discovery
	logger    *slog.Logger
	nowFn     func() time.Time
}

// NewAssembler wires view assembly over a reader source and post discovery.
func NewAssembler(source ReaderSource, discovery *Discovery, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		source:    source,
		discovery: discovery,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// SetNowFunc overrides the time source for deterministic testing.
func (a *Assembler) SetNowFunc(now func() time.Time) {
	if now == nil {
		a.nowFn = time.Now
		return
	}
	a.nowFn = now
}

func unregisteredProfile(addr common.Address) ProfileView {
	return ProfileView{
		Address:           addr.Hex(),
		SubscriptionPrice: "0",
		PostIDs:           []uint64{},
		IsRegistered:      false,
		Earnings:          "0",
	}
}

// CreatorProfile reads the creator record and earnings in parallel. An
// unregistered address is a common, non-exceptional state and gets the
// canonical default view.
func (a *Assembler) CreatorProfile(ctx context.Context, addr common.Address) ProfileView {
	reader, err := a.source.ReadAccessor(ctx)
	if err != nil {
		a.logger.Warn("creator profile degraded to default", "creator", addr.Hex(), "err", err)
		return unregisteredProfile(addr)
	}
	var (
		wg          sync.WaitGroup
		rec         *CreatorRecord
		recErr      error
		earnings    *big.Int
		earningsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rec, recErr = reader.Creator(ctx, addr)
	}()
	go func() {
		defer wg.Done()
		earnings, earningsErr = reader.Earnings(ctx, addr)
	}()
	wg.Wait()
	if recErr != nil || rec == nil || !rec.IsRegistered {
		if recErr != nil {
			a.logger.Warn("creator profile degraded to default", "creator", addr.Hex(), "err", recErr)
		}
		return unregisteredProfile(addr)
	}
	if earningsErr != nil {
		earnings = big.NewInt(0)
	}
	postIDs := rec.PostIDs
	if postIDs == nil {
		postIDs = []uint64{}
	}
	return ProfileView{
		Address:           rec.Wallet.Hex(),
		Name:              rec.Name,
		SubscriptionPrice: weiString(rec.SubscriptionPrice),
		PostIDs:           postIDs,
		IsRegistered:      true,
		Earnings:          weiString(earnings),
	}
}

// CreatorStats aggregates the creator dashboard numbers. TotalSupporters is
// pinned at zero: the contract exposes no per-supporter index to derive it
// from.
func (a *Assembler) CreatorStats(ctx context.Context, addr common.Address) StatsView {
	profile := a.CreatorProfile(ctx, addr)
	posts := a.discovery.ListPostsByCreator(ctx, addr)
	return StatsView{
		TotalTips:       profile.Earnings,
		TotalSupporters: 0,
		TotalPosts:      len(posts),
	}
}

// SubscriptionStatus reads the (subscriber, creator) record and derives the
// active flag from the expiry at call time. Stale stored flags are never
// trusted.
func (a *Assembler) SubscriptionStatus(ctx context.Context, subscriber, creator common.Address) SubscriptionView {
	view := SubscriptionView{AutoPayBalance: "0"}
	reader, err := a.source.ReadAccessor(ctx)
	if err != nil {
		a.logger.Warn("subscription view degraded to default", "err", err)
		return view
	}
	rec, err := reader.Subscription(ctx, subscriber, creator)
	if err != nil || rec == nil {
		if err != nil {
			a.logger.Warn("subscription view degraded to default", "err", err)
		}
		return view
	}
	now := a.nowFn().Unix()
	view.Expiry = rec.Expiry
	view.AutoPayBalance = weiString(rec.AutoPayBalance)
	if rec.Expiry > now {
		view.IsActive = true
		remaining := rec.Expiry - now
		view.DaysRemaining = int((remaining + secondsPerDay - 1) / secondsPerDay)
	}
	return view
}
