// Package service holds the booking-payment core: the Booking Intent
// Service, the Notification Reconciler and the Query Facade. Collaborators
// are consumed through the interfaces below so the state machine can be
// exercised without Postgres or Stripe.
package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/chrisimbolon/bookingops/internal/domain"
)

var (
	// ErrValidation marks malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrSessionNotFound is returned for an unknown or unavailable session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrBookingNotFound is returned for an unknown booking id.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrGateway marks a failed authorization call. Nothing was persisted;
	// retrying is the caller's decision.
	ErrGateway = errors.New("payment gateway error")
	// ErrOrphanedAuthorization marks the one known bad state of booking
	// creation: the gateway authorization exists but the local write
	// failed. The payment reference is carried in the wrapped message so
	// an operator can reconcile it.
	ErrOrphanedAuthorization = errors.New("authorization orphaned: charge authorized but booking not recorded")
	// ErrAuthenticity marks a notification that failed the signature or
	// parse check. It is rejected before any state change.
	ErrAuthenticity = errors.New("notification authenticity check failed")
)

// LedgerStore is the durable state owner. All mutation goes through its
// atomic operations; implementations must enforce the payment_ref
// uniqueness constraint and serialize the joint update per reference.
type LedgerStore interface {
	GetSession(ctx context.Context, id int64) (*domain.Session, error)
	ListAvailableSessions(ctx context.Context) ([]domain.Session, error)
	CreateBookingAndPayment(ctx context.Context, b *domain.Booking, p *domain.PaymentRecord) error
	FindBookingByPaymentRef(ctx context.Context, ref string) (*domain.Booking, error)
	FindPaymentByPaymentRef(ctx context.Context, ref string) (*domain.PaymentRecord, error)
	UpdateBookingAndPaymentAtomic(ctx context.Context, paymentRef string, mutate func(b *domain.Booking, p *domain.PaymentRecord) error) error
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	ListBookingsByEmail(ctx context.Context, email string) ([]domain.Booking, error)
}

// PaymentGateway wraps the external processor.
type PaymentGateway interface {
	CreateAuthorization(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*domain.Authorization, error)
	VerifyNotification(payload []byte, sigHeader string) (*domain.Notification, error)
}

// ConfirmationNotifier is the side-effect hook invoked after a booking is
// durably confirmed. Delivery is best effort and outside the transaction.
type ConfirmationNotifier interface {
	BookingConfirmed(ctx context.Context, b *domain.Booking)
}
