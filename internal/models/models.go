package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CheckoutState string

const (
	StateCollectingBilling    CheckoutState = "collecting_billing"
	StateAwaitingPaymentToken CheckoutState = "awaiting_payment_token"
	StateSubmittingPending    CheckoutState = "submitting_pending_order"
	StateWaitingForProcessor  CheckoutState = "waiting_for_processor_callback"
	StateFinalizing           CheckoutState = "finalizing"
	StateCompleted            CheckoutState = "completed"
	StateCanceled             CheckoutState = "canceled"
	StateFailed               CheckoutState = "failed"
	StateAbandoned            CheckoutState = "abandoned"
)

func (s CheckoutState) Valid() bool {
	switch s {
	case StateCollectingBilling, StateAwaitingPaymentToken, StateSubmittingPending,
		StateWaitingForProcessor, StateFinalizing, StateCompleted, StateCanceled,
		StateFailed, StateAbandoned:
		return true
	}
	return false
}

// Order statuses understood by the backend order endpoint.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCanceled  = "canceled"
)

type BillingForm struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type BasketSnapshot struct {
	Owner     string    `gorm:"primaryKey;size:64"  json:"owner"`
	Payload   string    `gorm:"type:text;not null"  json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BasketSnapshot) TableName() string {
	return "basket_snapshots"
}

type CheckoutSession struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"              json:"id"`
	Owner         string          `gorm:"index;size:64;not null"            json:"owner"`
	State         CheckoutState   `gorm:"index;size:40;not null"            json:"state"`
	PaymentRef    string          `gorm:"size:32"                           json:"payment_ref,omitempty"`
	ProcessorUUID string          `gorm:"size:64"                           json:"processor_uuid,omitempty"`
	Billing       BillingForm     `gorm:"embedded;embeddedPrefix:billing_"  json:"billing"`
	Basket        string          `gorm:"type:text"                         json:"-"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2)"                json:"total"`
	FinalStatus   string          `gorm:"size:20"                           json:"final_status,omitempty"`
	LastError     string          `gorm:"type:text"                         json:"last_error,omitempty"`
	WaitDeadline  *time.Time      `gorm:"index"                             json:"wait_deadline,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (s *CheckoutSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (CheckoutSession) TableName() string {
	return "checkout_sessions"
}
