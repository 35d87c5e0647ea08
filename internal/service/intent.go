package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chrisimbolon/bookingops/internal/domain"
	"github.com/chrisimbolon/bookingops/internal/store"
)

// CreateBookingRequest is the payload from the presentation layer.
type CreateBookingRequest struct {
	SessionID int64  `json:"session_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	UserPhone string `json:"user_phone,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// CreateBookingResponse hands the front end what it needs to complete the
// charge: the booking id and the gateway's opaque client token.
type CreateBookingResponse struct {
	BookingID   string `json:"booking_id"`
	PaymentRef  string `json:"payment_ref"`
	ClientToken string `json:"client_token"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

// IntentService validates a booking request, authorizes the charge at the
// gateway and records the pending Booking/PaymentRecord pair.
type IntentService struct {
	store    LedgerStore
	gateway  PaymentGateway
	currency string
	log      *slog.Logger
	now      func() time.Time
}

func NewIntentService(store LedgerStore, gateway PaymentGateway, currency string, log *slog.Logger) *IntentService {
	return &IntentService{
		store:    store,
		gateway:  gateway,
		currency: currency,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateBooking runs the authorize-then-persist sequence. The two systems
// are not transactional across each other: if the gateway call succeeds
// and the local write fails, the result is ErrOrphanedAuthorization with
// the payment reference attached, never a silent swallow.
func (s *IntentService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*CreateBookingResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: session %d", ErrSessionNotFound, req.SessionID)
		}
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}
	if !sess.Available {
		return nil, fmt.Errorf("%w: session %d is not available", ErrSessionNotFound, req.SessionID)
	}

	amountCents := domain.CentsFromPrice(sess.Price)

	auth, err := s.gateway.CreateAuthorization(ctx, amountCents, s.currency, map[string]string{
		"session_id":    strconv.FormatInt(sess.ID, 10),
		"session_title": sess.Title,
		"user_name":     req.UserName,
		"user_email":    req.UserEmail,
	})
	if err != nil {
		s.log.Error("authorization call failed",
			slog.Int64("session_id", sess.ID),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	now := s.now()
	booking := &domain.Booking{
		ID:         uuid.New(),
		SessionID:  sess.ID,
		UserName:   req.UserName,
		UserEmail:  req.UserEmail,
		UserPhone:  req.UserPhone,
		PaymentRef: auth.PaymentRef,
		AmountPaid: sess.Price,
		Status:     domain.BookingPending,
		BookedAt:   now,
		Notes:      req.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	payment := &domain.PaymentRecord{
		ID:          uuid.New(),
		BookingID:   booking.ID,
		PaymentRef:  auth.PaymentRef,
		AmountCents: amountCents,
		Currency:    s.currency,
		Status:      domain.PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateBookingAndPayment(ctx, booking, payment); err != nil {
		s.log.Error("booking persist failed after authorization",
			slog.String("payment_ref", auth.PaymentRef),
			slog.Any("error", err))
		return nil, fmt.Errorf("%w: payment_ref=%s: %v", ErrOrphanedAuthorization, auth.PaymentRef, err)
	}

	s.log.Info("booking created",
		slog.String("booking_id", booking.ID.String()),
		slog.String("payment_ref", auth.PaymentRef),
		slog.Int64("amount_cents", amountCents))

	return &CreateBookingResponse{
		BookingID:   booking.ID.String(),
		PaymentRef:  auth.PaymentRef,
		ClientToken: auth.ClientToken,
		AmountCents: amountCents,
		Currency:    s.currency,
		Status:      string(domain.BookingPending),
	}, nil
}

func validateRequest(req CreateBookingRequest) error {
	if strings.TrimSpace(req.UserName) == "" {
		return fmt.Errorf("%w: user name is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(req.UserEmail)
	if err != nil || addr.Address != req.UserEmail {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, req.UserEmail)
	}
	return nil
}
