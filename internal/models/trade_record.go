package models

import (
	"time"

	"gorm.io/gorm"
)

// TradeStatus is the lifecycle state of a trade record.
type TradeStatus string

const (
	StatusPending  TradeStatus = "pending"
	StatusExecuted TradeStatus = "executed"
	StatusRejected TradeStatus = "rejected"
	StatusFailed   TradeStatus = "failed"
)

// Terminal reports whether the status is final. Terminal records are
// never transitioned again.
func (s TradeStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusRejected || s == StatusFailed
}

// TradeRecord represents one attempted or completed trade.
// Only Status, ExecutedAt and BrokerOrderID are ever mutated after
// creation; records are never deleted.
type TradeRecord struct {
	gorm.Model
	Symbol        string      `json:"symbol" gorm:"index;not null"`
	Action        string      `json:"action" gorm:"not null"` // "buy" or "sell"
	Quantity      float64     `json:"quantity"`
	Price         float64     `json:"price"`
	TotalAmount   float64     `json:"total_amount"`
	Strategy      string      `json:"strategy"`
	Confidence    float64     `json:"confidence"`
	Reason        string      `json:"reason"`
	BrokerOrderID string      `json:"broker_order_id,omitempty"`
	Status        TradeStatus `json:"status" gorm:"default:pending"`
	ExecutedAt    *time.Time  `json:"executed_at,omitempty"`
}
