package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CreatorRecord mirrors the on-chain creator entry. PostIDs may be empty even
// when the creator has published posts; older contract deployments do not
// expose the owned-ID list through the getter.
type CreatorRecord struct {
	Wallet            common.Address
	Name              string
	SubscriptionPrice *big.Int
	IsRegistered      bool
	PostIDs           []uint64
}

// PostRecord mirrors an on-chain post slot. A slot exists iff Creator is not
// the zero address.
type PostRecord struct {
	ID            uint64
	Creator       common.Address
	ContentHash   string
	IsFree        bool
	Contributions *big.Int
}

// Exists reports whether the slot holds a real post.
func (p *PostRecord) Exists() bool {
	return p != nil && p.Creator != (common.Address{})
}

// SubscriptionRecord mirrors the on-chain (subscriber, creator) entry. The
// active flag is derived at read time from Expiry, never stored.
type SubscriptionRecord struct {
	Expiry         int64
	AutoPayBalance *big.Int
}

// Reader is the point-lookup surface of the ledger contract. It carries no
// enumeration primitive; collection views are reconstructed above it.
type Reader interface {
	Creator(ctx context.Context, addr common.Address) (*CreatorRecord, error)
	Post(ctx context.Context, id uint64) (*PostRecord, error)
	Subscription(ctx context.Context, subscriber, creator common.Address) (*SubscriptionRecord, error)
	Earnings(ctx context.Context, addr common.Address) (*big.Int, error)
	IsSubscribed(ctx context.Context, subscriber, creator common.Address) (bool, error)
}

// Writer is the signed transaction surface of the ledger contract. Amounts
// are in wei throughout; display conversion is a UI concern.
type Writer interface {
	RegisterCreator(ctx context.Context, name string, price *big.Int) (*types.Transaction, error)
	AddPost(ctx context.Context, contentHash string, isFree bool) (*types.Transaction, error)
	Contribute(ctx context.Context, postID uint64, amount *big.Int) (*types.Transaction, error)
	Subscribe(ctx context.Context, creator common.Address, amount *big.Int) (*types.Transaction, error)
	DepositAutoPay(ctx context.Context, creator common.Address, amount *big.Int) (*types.Transaction, error)
	RenewSubscription(ctx context.Context, creator common.Address) (*types.Transaction, error)
	WithdrawEarnings(ctx context.Context) (*types.Transaction, error)
}

// ReaderSource hands out a verified read accessor. Every view operation asks
// for a fresh reader so a cache reset takes effect immediately.
type ReaderSource interface {
	ReadAccessor(ctx context.Context) (Reader, error)
}

// PostView is the application-level shape of a post, assembled from one or
// more point lookups.
type PostView struct {
	ID            uint64 `json:"id"`
	Creator       string `json:"creator"`
	CreatorName   string `json:"creatorName"`
	ContentHash   string `json:"contentHash"`
	ContentURL    string `json:"contentUrl"`
	IsFree        bool   `json:"isFree"`
	Contributions string `json:"contributions"`
}

// ProfileView is the assembled creator profile. An unregistered address gets
// the canonical default rather than an error.
type ProfileView struct {
	Address           string   `json:"address"`
	Name              string   `json:"name"`
	SubscriptionPrice string   `json:"subscriptionPrice"`
	PostIDs           []uint64 `json:"postIds"`
	IsRegistered      bool     `json:"isRegistered"`
	Earnings          string   `json:"earnings"`
}

// StatsView aggregates a creator's dashboard numbers. TotalSupporters has no
// data source in the contract interface and stays zero until an indexing
// collaborator exists.
type StatsView struct {
	TotalTips       string `json:"totalTips"`
	TotalSupporters int    `json:"totalSupporters"`
	TotalPosts      int    `json:"totalPosts"`
}

// SubscriptionView is the derived subscription status for one
// (subscriber, creator) pair.
type SubscriptionView struct {
	Expiry         int64  `json:"expiry"`
	AutoPayBalance string `json:"autoPayBalance"`
	IsActive       bool   `json:"isActive"`
	DaysRemaining  int    `json:"daysRemaining"`
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
