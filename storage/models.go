package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Creator mirrors an on-chain registration for fast reads and search. The
// ledger stays canonical; rows here are a rebuildable cache.
type Creator struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	WalletAddress     string    `gorm:"uniqueIndex;size:42" json:"walletAddress"`
	Name              string    `gorm:"size:50;index" json:"name"`
	Bio               string    `gorm:"size:500" json:"bio"`
	SubscriptionPrice string    `gorm:"size:78" json:"subscriptionPrice"`
	ProfileImage      string    `gorm:"size:256" json:"profileImage"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Post mirrors an on-chain post slot.
type Post struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PostID         uint64    `gorm:"uniqueIndex" json:"postId"`
	CreatorAddress string    `gorm:"index;size:42" json:"creatorAddress"`
	ContentHash    string    `gorm:"size:128" json:"contentHash"`
	Caption        string    `gorm:"size:1000" json:"caption"`
	IsFree         bool      `json:"isFree"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Contribution records a tip submitted through this gateway.
type Contribution struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PostID      uint64    `gorm:"index" json:"postId"`
	FromAddress string    `gorm:"index;size:42" json:"fromAddress"`
	AmountWei   string    `gorm:"size:78" json:"amountWei"`
	TxHash      string    `gorm:"size:66" json:"txHash"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Subscription mirrors the latest known state of one (subscriber, creator)
// pair. The active flag is always derived from the ledger expiry at read
// time, never from this row.
type Subscription struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SubscriberAddress string    `gorm:"size:42;index;uniqueIndex:idx_sub_pair" json:"subscriberAddress"`
	CreatorAddress    string    `gorm:"size:42;index;uniqueIndex:idx_sub_pair" json:"creatorAddress"`
	ExpiresAt         time.Time `json:"expiresAt"`
	TxHash            string    `gorm:"size:66" json:"txHash"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// AutoMigrate creates or updates the mirror schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Creator{}, &Post{}, &Contribution{}, &Subscription{})
}
