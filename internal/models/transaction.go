package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type TransactionType string

const (
	TxCredit     TransactionType = "credit"
	TxDebit      TransactionType = "debit"
	TxRedemption TransactionType = "redemption"
	TxBonus      TransactionType = "bonus"
	TxPenalty    TransactionType = "penalty"
	TxWithdrawal TransactionType = "withdrawal"
)

// Sign is +1 for types that add credits and -1 for types that remove them.
func (t TransactionType) Sign() int64 {
	switch t {
	case TxCredit, TxBonus:
		return 1
	case TxDebit, TxRedemption, TxPenalty, TxWithdrawal:
		return -1
	}
	return 0
}

func (t TransactionType) Valid() bool {
	return t.Sign() != 0
}

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

// Transaction is one append-only credit ledger entry. Amount is signed and
// BalanceAfter is the owner's balance once this entry applied. The
// auto-increment ID orders entries with equal CreatedAt.
type Transaction struct {
	ID              uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          uuid.UUID         `gorm:"type:uuid;not null;index:idx_transactions_user_created,priority:1" json:"user_id"`
	Type            TransactionType   `gorm:"size:20;not null;index" json:"type"`
	Amount          int64             `gorm:"not null" json:"amount"`
	BalanceAfter    int64             `gorm:"not null" json:"balance_after"`
	Description     string            `gorm:"size:500" json:"description"`
	RelatedPickupID *uuid.UUID        `gorm:"type:uuid;index" json:"related_pickup_id,omitempty"`
	PayoutReference *string           `gorm:"size:100;index" json:"-"`
	Status          TransactionStatus `gorm:"size:20;not null;default:'completed';index" json:"status"`
	Metadata        datatypes.JSON    `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt       time.Time         `gorm:"index:idx_transactions_user_created,priority:2" json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`

	User          *User   `gorm:"foreignKey:UserID" json:"user,omitempty"`
	RelatedPickup *Pickup `gorm:"foreignKey:RelatedPickupID" json:"related_pickup,omitempty"`
}

func (Transaction) TableName() string {
	return "transactions"
}
