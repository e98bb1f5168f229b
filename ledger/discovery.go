package ledger

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"getmechai/observability"
	"getmechai/pinning"
)

const (
	// The contract has no enumeration primitive, so collection views probe
	// sequential IDs up to this bound. O(scan limit) point lookups per call;
	// placeholder until an indexing collaborator exists.
	defaultScanLimit   = 99
	defaultScanWorkers = 8
)

// Discovery reconstructs post collections from point lookups by sequential
// identifier. All operations are read-only and idempotent; on total ledger
// unavailability they return empty results instead of errors so callers can
// render an empty state.
type Discovery struct {
	source  ReaderSource
	logger  *slog.Logger
	limit   uint64
	workers int
}

// DiscoveryOption customises a Discovery.
type DiscoveryOption func(*Discovery)

// WithScanLimit overrides the upper bound of the sequential-ID scan.
func WithScanLimit(limit uint64) DiscoveryOption {
	return func(d *Discovery) {
		if limit > 0 {
			d.limit = limit
		}
	}
}

// WithScanWorkers overrides the number of concurrent point lookups.
func WithScanWorkers(workers int) DiscoveryOption {
	return func(d *Discovery) {
		if workers > 0 {
			d.workers = workers
		}
	}
}

// NewDiscovery wires post discovery over a reader source.
func NewDiscovery(source ReaderSource, logger *slog.Logger, opts ...DiscoveryOption) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Discovery{
		source:  source,
		logger:  logger,
		limit:   defaultScanLimit,
		workers: defaultScanWorkers,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ListAllPosts returns every existing post, newest identifier first.
func (d *Discovery) ListAllPosts(ctx context.Context) []PostView {
	start := time.Now()
	defer func() { observability.Ledger().ObserveScan(time.Since(start)) }()

	reader, err := d.source.ReadAccessor(ctx)
	if err != nil {
		d.logger.Warn("post discovery degraded to empty result", "err", err)
		return []PostView{}
	}
	records := d.lookup(ctx, reader, d.scanIDs(), nil)
	return d.assemble(ctx, reader, records)
}

// ListPostsByCreator returns the creator's posts, newest identifier first.
// The creator's owned-ID list is preferred when the contract returns one;
// otherwise discovery falls back to the sequential scan.
func (d *Discovery) ListPostsByCreator(ctx context.Context, creator common.Address) []PostView {
	start := time.Now()
	defer func() { observability.Ledger().ObserveScan(time.Since(start)) }()

	reader, err := d.source.ReadAccessor(ctx)
	if err != nil {
		d.logger.Warn("post discovery degraded to empty result", "err", err)
		return []PostView{}
	}
	match := func(rec *PostRecord) bool { return rec.Creator == creator }
	rec, err := reader.Creator(ctx, creator)
	switch {
	case err != nil:
		// Creator record unreadable; the scan can still find the posts.
	case !rec.IsRegistered:
		return []PostView{}
	case len(rec.PostIDs) > 0:
		records := d.lookup(ctx, reader, rec.PostIDs, match)
		return d.assemble(ctx, reader, records)
	}
	records := d.lookup(ctx, reader, d.scanIDs(), match)
	return d.assemble(ctx, reader, records)
}

func (d *Discovery) scanIDs() []uint64 {
	ids := make([]uint64, 0, d.limit)
	for id := uint64(1); id <= d.limit; id++ {
		ids = append(ids, id)
	}
	return ids
}

// lookup resolves ids concurrently. A failed or empty slot is skipped; one
// bad identifier never aborts the whole pass. Cancelling ctx stops feeding
// new identifiers and returns what has been collected.
func (d *Discovery) lookup(ctx context.Context, reader Reader, ids []uint64, match func(*PostRecord) bool) []*PostRecord {
	feed := make(chan uint64)
	var (
		mu      sync.Mutex
		records []*PostRecord
		wg      sync.WaitGroup
	)
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range feed {
				rec, err := reader.Post(ctx, id)
				if err != nil || !rec.Exists() {
					continue
				}
				if match != nil && !match(rec) {
					continue
				}
				mu.Lock()
				records = append(records, rec)
				mu.Unlock()
			}
		}()
	}
	for _, id := range ids {
		select {
		case <-ctx.Done():
			d.logger.Warn("post scan cancelled", "err", ctx.Err())
			goto done
		case feed <- id:
		}
	}
done:
	close(feed)
	wg.Wait()
	return records
}

// assemble orders records newest-first and resolves creator display names,
// memoized per pass.
func (d *Discovery) assemble(ctx context.Context, reader Reader, records []*PostRecord) []PostView {
	sort.Slice(records, func(i, j int) bool { return records[i].ID > records[j].ID })
	names := make(map[common.Address]string)
	views := make([]PostView, 0, len(records))
	for _, rec := range records {
		name, seen := names[rec.Creator]
		if !seen {
			if cr, err := reader.Creator(ctx, rec.Creator); err == nil {
				name = cr.Name
			}
			names[rec.Creator] = name
		}
		views = append(views, PostView{
			ID:            rec.ID,
			Creator:       rec.Creator.Hex(),
			CreatorName:   name,
			ContentHash:   rec.ContentHash,
			ContentURL:    pinning.GatewayURL(rec.ContentHash),
			IsFree:        rec.IsFree,
			Contributions: weiString(rec.Contributions),
		})
	}
	return views
}
