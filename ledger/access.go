package ledger

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
)

// Gate answers whether a principal may view a content item. Unlike the view
// assembler it fails closed: a read failure on the paid path denies access,
// since a false positive leaks paid content while a false negative only
// delays a view.
type Gate struct {
	source ReaderSource
	logger *slog.Logger
}

// NewGate wires the access gate over a reader source.
func NewGate(source ReaderSource, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{source: source, logger: logger}
}

// CanAccess reports whether subscriber may view the post. Free posts are
// visible unconditionally; the subscription primitive is not consulted for
// them. Paid posts require an active subscription to the creator.
func (g *Gate) CanAccess(ctx context.Context, postID uint64, subscriber, creator common.Address) bool {
	reader, err := g.source.ReadAccessor(ctx)
	if err != nil {
		return false
	}
	post, err := reader.Post(ctx, postID)
	if err != nil || !post.Exists() {
		return false
	}
	if post.IsFree {
		return true
	}
	subscribed, err := reader.IsSubscribed(ctx, subscriber, creator)
	if err != nil {
		g.logger.Warn("subscription check failed, denying access", "post", postID, "err", err)
		return false
	}
	return subscribed
}
