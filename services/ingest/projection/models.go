package projection

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transfer directions for persistence.
const (
	DirectionOutbound = "out"
	DirectionInbound  = "in"
)

// Stake event kinds for persistence.
const (
	KindStaked     = "staked"
	KindUnstaked   = "unstaked"
	KindFlushed    = "flushed"
	KindRewardPaid = "reward"
)

// Transfer is the queryable record of a settled or requested transfer.
type Transfer struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"`
	Direction          string    `gorm:"size:8;index"`
	Nonce              uint64    `gorm:"index:idx_transfer_origin"`
	SourceChainID      uint64    `gorm:"index:idx_transfer_origin"`
	DestinationChainID uint64
	TokenKey           string `gorm:"size:66;index"`
	FromAddress        string `gorm:"size:42"`
	ToAddress          string `gorm:"size:42"`
	Amount             string `gorm:"size:80"`
	CreatedAt          time.Time
}

// Token mirrors the registry classification for dashboards and lookups.
type Token struct {
	TokenKey  string `gorm:"size:66;primaryKey"`
	Address   string `gorm:"size:42"`
	Managed   bool
	Enabled   bool
	Supported bool
	Name      string `gorm:"size:64"`
	Symbol    string `gorm:"size:16;index"`
	Decimals  uint8
	UpdatedAt time.Time
}

// StakeEvent records stake pool activity per user and epoch.
type StakeEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind      string    `gorm:"size:16;index"`
	Staker    string    `gorm:"size:42;index"`
	Amount    string    `gorm:"size:80"`
	EpochID   uint64
	CreatedAt time.Time
}

// AutoMigrate creates or updates the projection schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Transfer{}, &Token{}, &StakeEvent{})
}
