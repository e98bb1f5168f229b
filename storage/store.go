package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrDuplicate signals a uniqueness-constraint violation; the HTTP
	// boundary maps it to 409.
	ErrDuplicate = errors.New("storage: duplicate record")
	// ErrNotFound signals an absent entity; the HTTP boundary maps it to 404.
	ErrNotFound = errors.New("storage: record not found")
)

// Store is the relational mirror used for fast reads and search. It never
// holds canonical state; every row can be rebuilt from the ledger.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the SQLite mirror at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mirror database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate mirror database: %w", err)
	}
	return &Store{db: db}, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	default:
		return err
	}
}

// CreateCreator inserts a new mirror row. Wallet addresses are unique.
func (s *Store) CreateCreator(ctx context.Context, creator *Creator) error {
	if creator.ID == uuid.Nil {
		creator.ID = uuid.New()
	}
	creator.WalletAddress = strings.ToLower(creator.WalletAddress)
	return translate(s.db.WithContext(ctx).Create(creator).Error)
}

// GetCreator looks up a creator by wallet address.
func (s *Store) GetCreator(ctx context.Context, walletAddress string) (*Creator, error) {
	var creator Creator
	err := s.db.WithContext(ctx).
		Where("wallet_address = ?", strings.ToLower(walletAddress)).
		First(&creator).Error
	if err != nil {
		return nil, translate(err)
	}
	return &creator, nil
}

// UpdateCreator applies profile changes to an existing row.
func (s *Store) UpdateCreator(ctx context.Context, creator *Creator) error {
	creator.WalletAddress = strings.ToLower(creator.WalletAddress)
	result := s.db.WithContext(ctx).
		Model(&Creator{}).
		Where("wallet_address = ?", creator.WalletAddress).
		Updates(map[string]interface{}{
			"name":               creator.Name,
			"bio":                creator.Bio,
			"subscription_price": creator.SubscriptionPrice,
			"profile_image":      creator.ProfileImage,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCreators returns creators, optionally filtered by a name substring.
func (s *Store) ListCreators(ctx context.Context, search string, limit int) ([]Creator, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if trimmed := strings.TrimSpace(search); trimmed != "" {
		query = query.Where("name LIKE ?", "%"+trimmed+"%")
	}
	var creators []Creator
	if err := query.Find(&creators).Error; err != nil {
		return nil, translate(err)
	}
	return creators, nil
}

// CreatePost inserts a new mirror row. On-chain post IDs are unique.
func (s *Store) CreatePost(ctx context.Context, post *Post) error {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}
	post.CreatorAddress = strings.ToLower(post.CreatorAddress)
	return translate(s.db.WithContext(ctx).Create(post).Error)
}

// ListPosts returns mirrored posts, optionally filtered by creator.
func (s *Store) ListPosts(ctx context.Context, creatorAddress string, limit int) ([]Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Order("post_id DESC").Limit(limit)
	if trimmed := strings.TrimSpace(creatorAddress); trimmed != "" {
		query = query.Where("creator_address = ?", strings.ToLower(trimmed))
	}
	var posts []Post
	if err := query.Find(&posts).Error; err != nil {
		return nil, translate(err)
	}
	return posts, nil
}

// CreateContribution records a routed tip.
func (s *Store) CreateContribution(ctx context.Context, contribution *Contribution) error {
	if contribution.ID == uuid.Nil {
		contribution.ID = uuid.New()
	}
	contribution.FromAddress = strings.ToLower(contribution.FromAddress)
	return translate(s.db.WithContext(ctx).Create(contribution).Error)
}

// UpsertSubscription records the latest known expiry for a pair.
func (s *Store) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	sub.SubscriberAddress = strings.ToLower(sub.SubscriberAddress)
	sub.CreatorAddress = strings.ToLower(sub.CreatorAddress)
	var existing Subscription
	err := s.db.WithContext(ctx).
		Where("subscriber_address = ? AND creator_address = ?", sub.SubscriberAddress, sub.CreatorAddress).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if sub.ID == uuid.Nil {
			sub.ID = uuid.New()
		}
		return translate(s.db.WithContext(ctx).Create(sub).Error)
	case err != nil:
		return translate(err)
	default:
		return translate(s.db.WithContext(ctx).
			Model(&existing).
			Updates(map[string]interface{}{
				"expires_at": sub.ExpiresAt,
				"tx_hash":    sub.TxHash,
				"updated_at": time.Now(),
			}).Error)
	}
}

// GetSubscription looks up the mirrored pair state.
func (s *Store) GetSubscription(ctx context.Context, subscriberAddress, creatorAddress string) (*Subscription, error) {
	var sub Subscription
	err := s.db.WithContext(ctx).
		Where("subscriber_address = ? AND creator_address = ?",
			strings.ToLower(subscriberAddress), strings.ToLower(creatorAddress)).
		First(&sub).Error
	if err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}
