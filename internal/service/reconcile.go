package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chrisimbolon/bookingops/internal/domain"
	"github.com/chrisimbolon/bookingops/internal/store"
)

// Reconciler consumes asynchronous payment-outcome notifications and
// applies idempotent transitions to the matching Booking/PaymentRecord
// pair. The gateway redelivers until it sees success, so every business
// no-op (unknown reference, duplicate delivery, unknown event kind) is an
// acknowledged outcome, not an error. Only two things are errors: a failed
// authenticity check, and a store failure before the commit.
type Reconciler struct {
	store    LedgerStore
	gateway  PaymentGateway
	notifier ConfirmationNotifier
	log      *slog.Logger
	now      func() time.Time
}

func NewReconciler(store LedgerStore, gateway PaymentGateway, notifier ConfirmationNotifier, log *slog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HandleNotification verifies the raw payload against its signature header
// and dispatches on the declared event kind. The returned outcome is only
// meaningful when err is nil; an ErrAuthenticity error maps to a client
// rejection, any other error means the mutation did not commit and the
// gateway should retry.
func (r *Reconciler) HandleNotification(ctx context.Context, payload []byte, sigHeader string) (domain.ReconcileOutcome, error) {
	n, err := r.gateway.VerifyNotification(payload, sigHeader)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthenticity, err)
	}

	switch n.Kind {
	case domain.NotificationSucceeded:
		return r.applySuccess(ctx, n)
	case domain.NotificationFailed:
		return r.applyFailure(ctx, n)
	default:
		r.log.Info("ignoring notification of unknown kind",
			slog.String("kind", string(n.Kind)))
		return domain.OutcomeSkipped, nil
	}
}

// applySuccess moves pending -> confirmed exactly once. The cheap unlocked
// pre-check skips redeliveries without taking row locks; the locked mutator
// re-checks and stays decisive under concurrency.
func (r *Reconciler) applySuccess(ctx context.Context, n *domain.Notification) (domain.ReconcileOutcome, error) {
	existing, err := r.store.FindBookingByPaymentRef(ctx, n.PaymentRef)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// May belong to another environment, or the gateway is ahead of
		// us. Acknowledge so it stops retrying.
		r.log.Warn("success notification for unknown payment reference",
			slog.String("payment_ref", n.PaymentRef))
		return domain.OutcomeIgnored, nil
	case err != nil:
		return "", fmt.Errorf("booking lookup failed: %w", err)
	case existing.Status == domain.BookingConfirmed:
		return domain.OutcomeDuplicate, nil
	}

	var confirmed *domain.Booking
	err = r.store.UpdateBookingAndPaymentAtomic(ctx, n.PaymentRef, func(b *domain.Booking, p *domain.PaymentRecord) error {
		if b.Status != domain.BookingPending {
			return store.ErrNoChange
		}
		now := r.now()
		b.Status = domain.BookingConfirmed
		b.ConfirmedAt = &now
		// A success outcome also overrides an earlier failed shadow: a
		// confirmed booking must never sit next to a failed payment.
		p.Status = domain.PaymentSucceeded
		if n.ChargeRef != "" {
			p.ChargeRef = &n.ChargeRef
		}
		if n.Method != "" {
			p.Method = &n.Method
		}
		confirmed = b
		return nil
	})
	switch {
	case errors.Is(err, store.ErrNoChange):
		return domain.OutcomeDuplicate, nil
	case errors.Is(err, store.ErrNotFound):
		return domain.OutcomeIgnored, nil
	case err != nil:
		return "", fmt.Errorf("confirm transition failed: %w", err)
	}

	r.log.Info("booking confirmed",
		slog.String("booking_id", confirmed.ID.String()),
		slog.String("payment_ref", n.PaymentRef),
		slog.String("charge_ref", n.ChargeRef))

	if r.notifier != nil {
		r.notifier.BookingConfirmed(ctx, confirmed)
	}
	return domain.OutcomeConfirmed, nil
}

// applyFailure marks the payment shadow failed. The booking stays pending;
// cancelling it is an administrative decision, not ours. A succeeded
// payment wins over a racing or late failure notification.
func (r *Reconciler) applyFailure(ctx context.Context, n *domain.Notification) (domain.ReconcileOutcome, error) {
	existing, err := r.store.FindPaymentByPaymentRef(ctx, n.PaymentRef)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.log.Warn("failure notification for unknown payment reference",
			slog.String("payment_ref", n.PaymentRef))
		return domain.OutcomeIgnored, nil
	case err != nil:
		return "", fmt.Errorf("payment lookup failed: %w", err)
	case existing.Status == domain.PaymentSucceeded:
		return domain.OutcomeSuperseded, nil
	case existing.Status == domain.PaymentFailed:
		return domain.OutcomeDuplicate, nil
	}

	err = r.store.UpdateBookingAndPaymentAtomic(ctx, n.PaymentRef, func(b *domain.Booking, p *domain.PaymentRecord) error {
		if p.Status == domain.PaymentSucceeded {
			return store.ErrNoChange
		}
		if p.Status == domain.PaymentFailed {
			return store.ErrNoChange
		}
		p.Status = domain.PaymentFailed
		return nil
	})
	switch {
	case errors.Is(err, store.ErrNoChange):
		return domain.OutcomeSuperseded, nil
	case errors.Is(err, store.ErrNotFound):
		return domain.OutcomeIgnored, nil
	case err != nil:
		return "", fmt.Errorf("failure transition failed: %w", err)
	}

	r.log.Info("payment marked failed",
		slog.String("payment_ref", n.PaymentRef),
		slog.String("reason", n.FailureMessage))
	return domain.OutcomeMarkedFailed, nil
}
