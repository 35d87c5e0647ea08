// Package mocks provides testify mocks for the service collaborator
// interfaces.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/chrisimbolon/bookingops/internal/domain"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// LedgerStore is a mock of service.LedgerStore.
type LedgerStore struct {
	mock.Mock
}

func NewLedgerStore(t testingT) *LedgerStore {
	m := &LedgerStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *LedgerStore) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	args := m.Called(ctx, id)
	var sess *domain.Session
	if args.Get(0) != nil {
		sess = args.Get(0).(*domain.Session)
	}
	return sess, args.Error(1)
}

func (m *LedgerStore) ListAvailableSessions(ctx context.Context) ([]domain.Session, error) {
	args := m.Called(ctx)
	var sessions []domain.Session
	if args.Get(0) != nil {
		sessions = args.Get(0).([]domain.Session)
	}
	return sessions, args.Error(1)
}

func (m *LedgerStore) CreateBookingAndPayment(ctx context.Context, b *domain.Booking, p *domain.PaymentRecord) error {
	args := m.Called(ctx, b, p)
	return args.Error(0)
}

func (m *LedgerStore) FindBookingByPaymentRef(ctx context.Context, ref string) (*domain.Booking, error) {
	args := m.Called(ctx, ref)
	var b *domain.Booking
	if args.Get(0) != nil {
		b = args.Get(0).(*domain.Booking)
	}
	return b, args.Error(1)
}

func (m *LedgerStore) FindPaymentByPaymentRef(ctx context.Context, ref string) (*domain.PaymentRecord, error) {
	args := m.Called(ctx, ref)
	var p *domain.PaymentRecord
	if args.Get(0) != nil {
		p = args.Get(0).(*domain.PaymentRecord)
	}
	return p, args.Error(1)
}

func (m *LedgerStore) UpdateBookingAndPaymentAtomic(ctx context.Context, paymentRef string, mutate func(b *domain.Booking, p *domain.PaymentRecord) error) error {
	args := m.Called(ctx, paymentRef, mutate)
	return args.Error(0)
}

func (m *LedgerStore) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	var b *domain.Booking
	if args.Get(0) != nil {
		b = args.Get(0).(*domain.Booking)
	}
	return b, args.Error(1)
}

func (m *LedgerStore) ListBookingsByEmail(ctx context.Context, email string) ([]domain.Booking, error) {
	args := m.Called(ctx, email)
	var bookings []domain.Booking
	if args.Get(0) != nil {
		bookings = args.Get(0).([]domain.Booking)
	}
	return bookings, args.Error(1)
}

// PaymentGateway is a mock of service.PaymentGateway.
type PaymentGateway struct {
	mock.Mock
}

func NewPaymentGateway(t testingT) *PaymentGateway {
	m := &PaymentGateway{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *PaymentGateway) CreateAuthorization(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*domain.Authorization, error) {
	args := m.Called(ctx, amountCents, currency, metadata)
	var auth *domain.Authorization
	if args.Get(0) != nil {
		auth = args.Get(0).(*domain.Authorization)
	}
	return auth, args.Error(1)
}

func (m *PaymentGateway) VerifyNotification(payload []byte, sigHeader string) (*domain.Notification, error) {
	args := m.Called(payload, sigHeader)
	var n *domain.Notification
	if args.Get(0) != nil {
		n = args.Get(0).(*domain.Notification)
	}
	return n, args.Error(1)
}
