package orders

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("orders: order not found")
	ErrEmptyOrder        = errors.New("orders: order has no items")
	ErrInvalidQuantity   = errors.New("orders: quantity must be positive")
	ErrInvalidPayment    = errors.New("orders: unknown payment mode")
	ErrAlreadyCancelled  = errors.New("orders: already cancelled")
	ErrInvalidTransition = errors.New("orders: invalid status transition")
	ErrConflict          = errors.New("orders: concurrent update")
	ErrAlreadyPaid       = errors.New("orders: already paid")
)

// Line is a snapshot of a catalog item taken at checkout. It is never
// re-read from the live catalog.
type Line struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	Variant    string `json:"variant"`
	PriceCents int    `json:"price_cents"`
	Qty        int    `json:"qty"`
}

func (l Line) Amount() int { return l.PriceCents * l.Qty }

type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

type Order struct {
	ID               string        `json:"id"`
	CustomerID       string        `json:"customer_id"`
	StallID          string        `json:"stall_id,omitempty"`
	Lines            []Line        `json:"lines"`
	SubtotalCents    int           `json:"subtotal_cents"`
	ShippingCents    int           `json:"shipping_cents"`
	TotalCents       int           `json:"total_cents"`
	Currency         string        `json:"currency"`
	Status           Status        `json:"status"`
	PaymentMode      PaymentMode   `json:"payment_mode"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentIntent    string        `json:"payment_intent,omitempty"`
	PaymentReference string        `json:"payment_reference,omitempty"`
	PaymentDeadline  *time.Time    `json:"payment_deadline,omitempty"`
	SlotID           string        `json:"slot_id,omitempty"`
	Contact          Contact       `json:"contact"`
	Address          Address       `json:"address"`
	CancelReason     string        `json:"cancel_reason,omitempty"`
	Version          int           `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type LineInput struct {
	ItemID string `json:"item_id"`
	Qty    int    `json:"qty"`
}

// CheckoutRequest is what a customer submits. An empty StallID buys from
// the shop catalog.
type CheckoutRequest struct {
	StallID     string      `json:"stall_id,omitempty"`
	Items       []LineInput `json:"items"`
	PaymentMode PaymentMode `json:"payment_mode"`
	SlotID      string      `json:"slot_id,omitempty"`
	Contact     Contact     `json:"contact"`
	Address     Address     `json:"address"`
}

func (r CheckoutRequest) Validate() error {
	if len(r.Items) == 0 {
		return ErrEmptyOrder
	}
	for _, it := range r.Items {
		if it.ItemID == "" || it.Qty <= 0 {
			return ErrInvalidQuantity
		}
	}
	if !r.PaymentMode.Valid() {
		return ErrInvalidPayment
	}
	return nil
}
