package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingStatus is the lifecycle state of a Booking. Values are closed;
// anything else is rejected at the store boundary.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingRefunded  BookingStatus = "refunded"
)

// ParseBookingStatus maps a stored string onto the closed enum.
func ParseBookingStatus(s string) (BookingStatus, error) {
	switch BookingStatus(s) {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingRefunded:
		return BookingStatus(s), nil
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}

// PaymentStatus is the state of the local shadow of a gateway authorization.
// succeeded and failed are terminal.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// ParsePaymentStatus maps a stored string onto the closed enum.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch PaymentStatus(s) {
	case PaymentPending, PaymentSucceeded, PaymentFailed:
		return PaymentStatus(s), nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// Terminal reports whether no further notification may change this status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentSucceeded || s == PaymentFailed
}

// Session is an offerable catalog item. Owned by catalog management; the
// core only reads it.
type Session struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	TherapyType string          `json:"therapy_type"`
	Description string          `json:"description"`
	Duration    int             `json:"duration"`
	Price       decimal.Decimal `json:"price"`
	Available   bool            `json:"available"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Booking is a user's claim on a Session. AmountPaid is a snapshot of the
// session price at booking time and is never recomputed.
type Booking struct {
	ID          uuid.UUID       `json:"id"`
	SessionID   int64           `json:"session_id"`
	UserName    string          `json:"user_name"`
	UserEmail   string          `json:"user_email"`
	UserPhone   string          `json:"user_phone,omitempty"`
	PaymentRef  string          `json:"payment_ref"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	Status      BookingStatus   `json:"status"`
	BookedAt    time.Time       `json:"booked_at"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PaymentRecord is the local shadow of one gateway authorization, joined 1:1
// to its Booking by PaymentRef.
type PaymentRecord struct {
	ID          uuid.UUID     `json:"id"`
	BookingID   uuid.UUID     `json:"booking_id"`
	PaymentRef  string        `json:"payment_ref"`
	AmountCents int64         `json:"amount_cents"`
	Currency    string        `json:"currency"`
	Status      PaymentStatus `json:"status"`
	ChargeRef   *string       `json:"charge_ref,omitempty"`
	Method      *string       `json:"method,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NotificationKind is the declared event kind of a verified gateway
// notification.
type NotificationKind string

const (
	NotificationSucceeded NotificationKind = "payment_succeeded"
	NotificationFailed    NotificationKind = "payment_failed"
	NotificationUnknown   NotificationKind = "unknown"
)

// Notification is a gateway notification that already passed the signature
// check. PaymentRef joins it to the Booking/PaymentRecord pair.
type Notification struct {
	Kind           NotificationKind
	PaymentRef     string
	ChargeRef      string
	Method         string
	FailureMessage string
}

// Authorization is the gateway's answer to a create-authorization call.
// ClientToken is opaque and handed to the front end to complete the charge.
type Authorization struct {
	PaymentRef  string
	ClientToken string
}

// ReconcileOutcome labels what a verified notification delivery did. Every
// outcome other than a hard store error is acknowledged with success.
type ReconcileOutcome string

const (
	OutcomeConfirmed    ReconcileOutcome = "confirmed"
	OutcomeMarkedFailed ReconcileOutcome = "marked_failed"
	OutcomeDuplicate    ReconcileOutcome = "duplicate"
	OutcomeSuperseded   ReconcileOutcome = "superseded"
	OutcomeIgnored      ReconcileOutcome = "ignored"
	OutcomeSkipped      ReconcileOutcome = "skipped"
)

// CentsFromPrice converts a decimal major-unit price to the integer
// minor-unit amount the gateway requires, without float accumulation.
func CentsFromPrice(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
