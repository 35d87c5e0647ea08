package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisimbolon/bookingops/internal/domain"
	"github.com/chrisimbolon/bookingops/internal/service"
	"github.com/chrisimbolon/bookingops/internal/service/mocks"
	"github.com/chrisimbolon/bookingops/internal/store"
)

// memLedger is an in-memory LedgerStore with the same locking contract as
// the Postgres implementation: the joint update is serialized per process
// under one mutex, and mutations are applied copy-then-swap so an aborted
// mutator leaves nothing behind.
type memLedger struct {
	mu          sync.Mutex
	bookings    map[string]*domain.Booking       // by payment ref
	payments    map[string]*domain.PaymentRecord // by payment ref
	failUpdates bool
}

func newMemLedger() *memLedger {
	return &memLedger{
		bookings: map[string]*domain.Booking{},
		payments: map[string]*domain.PaymentRecord{},
	}
}

func (m *memLedger) seedPendingPair(ref string) *domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	b := &domain.Booking{
		ID:         uuid.New(),
		SessionID:  1,
		UserName:   "Ana",
		UserEmail:  "ana@example.com",
		PaymentRef: ref,
		AmountPaid: decimal.RequireFromString("100.00"),
		Status:     domain.BookingPending,
		BookedAt:   now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	p := &domain.PaymentRecord{
		ID:          uuid.New(),
		BookingID:   b.ID,
		PaymentRef:  ref,
		AmountCents: 10000,
		Currency:    "usd",
		Status:      domain.PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.bookings[ref] = b
	m.payments[ref] = p
	return b
}

func (m *memLedger) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	return nil, store.ErrNotFound
}

func (m *memLedger) ListAvailableSessions(ctx context.Context) ([]domain.Session, error) {
	return nil, nil
}

func (m *memLedger) CreateBookingAndPayment(ctx context.Context, b *domain.Booking, p *domain.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.PaymentRef]; ok {
		return store.ErrDuplicatePaymentRef
	}
	bCopy, pCopy := *b, *p
	m.bookings[b.PaymentRef] = &bCopy
	m.payments[p.PaymentRef] = &pCopy
	return nil
}

func (m *memLedger) FindBookingByPaymentRef(ctx context.Context, ref string) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[ref]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memLedger) FindPaymentByPaymentRef(ctx context.Context, ref string) (*domain.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[ref]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memLedger) UpdateBookingAndPaymentAtomic(ctx context.Context, ref string, mutate func(b *domain.Booking, p *domain.PaymentRecord) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdates {
		return errors.New("store unavailable")
	}
	b, ok := m.bookings[ref]
	if !ok {
		return store.ErrNotFound
	}
	p, ok := m.payments[ref]
	if !ok {
		return store.ErrNotFound
	}
	bCopy, pCopy := *b, *p
	if err := mutate(&bCopy, &pCopy); err != nil {
		return err
	}
	m.bookings[ref] = &bCopy
	m.payments[ref] = &pCopy
	return nil
}

func (m *memLedger) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ID == id {
			cp := *b
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memLedger) ListBookingsByEmail(ctx context.Context, email string) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Booking{}
	for _, b := range m.bookings {
		if b.UserEmail == email {
			out = append(out, *b)
		}
	}
	return out, nil
}

// countingNotifier records confirmation hook invocations.
type countingNotifier struct {
	mu    sync.Mutex
	calls []*domain.Booking
}

func (n *countingNotifier) BookingConfirmed(_ context.Context, b *domain.Booking) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, b)
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func successNotification(ref string) *domain.Notification {
	return &domain.Notification{
		Kind:       domain.NotificationSucceeded,
		PaymentRef: ref,
		ChargeRef:  "ch_789",
		Method:     "card",
	}
}

func failureNotification(ref string) *domain.Notification {
	return &domain.Notification{
		Kind:           domain.NotificationFailed,
		PaymentRef:     ref,
		FailureMessage: "card declined",
	}
}

func newReconciler(t *testing.T, ledger *memLedger, n *domain.Notification, verifyErr error) (*service.Reconciler, *countingNotifier) {
	t.Helper()
	gw := mocks.NewPaymentGateway(t)
	gw.On("VerifyNotification", []byte("payload"), "sig").Return(n, verifyErr)
	notifier := &countingNotifier{}
	return service.NewReconciler(ledger, gw, notifier, discardLogger()), notifier
}

func deliver(t *testing.T, r *service.Reconciler) (domain.ReconcileOutcome, error) {
	t.Helper()
	return r.HandleNotification(context.Background(), []byte("payload"), "sig")
}

func TestHandleNotification_ConfirmsPendingBooking(t *testing.T) {
	ledger := newMemLedger()
	ledger.seedPendingPair("pi_1")
	r, notifier := newReconciler(t, ledger, successNotification("pi_1"), nil)

	outcome, err := deliver(t, r)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConfirmed, outcome)

	b, _ := ledger.FindBookingByPaymentRef(context.Background(), "pi_1")
	p, _ := ledger.FindPaymentByPaymentRef(context.Background(), "pi_1")
	assert.Equal(t, domain.BookingConfirmed, b.Status)
	require.NotNil(t, b.ConfirmedAt)
	assert.Equal(t, domain.PaymentSucceeded, p.Status)
	require.NotNil(t, p.ChargeRef)
	assert.Equal(t, "ch_789", *p.ChargeRef)
	assert.Equal(t, 1, notifier.count())
}

func TestHandleNotification_DuplicateDeliveryIsNoop(t *testing.T) {
	ledger := newMemLedger()
	ledger.seedPendingPair("pi_1")

	gw := mocks.NewPaymentGateway(t)
	gw.On("VerifyNotification", []byte("payload"), "sig").Return(successNotification("pi_1"), nil).Times(3)
	notifier := &countingNotifier{}
	r := service.NewReconciler(ledger, gw, notifier, discardLogger())

	outcome, err := deliver(t, r)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeConfirmed, outcome)

	b, _ := ledger.FindBookingByPaymentRef(context.Background(), "pi_1")
	firstConfirmedAt := *b.ConfirmedAt

	// The gateway may deliver the same notification more than once.
	for i := 0; i < 2; i++ {
		outcome, err = deliver(t, r)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeDuplicate, outcome)
	}

	b, _ = ledger.FindBookingByPaymentRef(context.Background(), "pi_1")
	assert.Equal(t, firstConfirmedAt, *b.ConfirmedAt, "confirmation timestamp must survive redelivery")
	assert.Equal(t, 1, notifier.count(), "hook must fire on first delivery only")
}

func TestHandleNotification_FailureLeavesBookingPending(t *testing.T) {
	ledger := newMemLedger()
	ledger.seedPendingPair("pi_1")
	r, notifier := newReconciler(t, ledger, failureNotification("pi_1"), nil)

	outcome, err := deliver(t, r)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeMarkedFailed, outcome)

	b, _ := ledger.FindBookingByPaymentRef(context.Background(), "pi_1")
	p, _ := ledger.FindPaymentByPaymentRef(context.Background(), "pi_1")
	// A failed charge does not retroactively cancel the booking.
	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Nil(t, b.ConfirmedAt)
	assert.Equal(t, domain.PaymentFailed, p.Status)
	assert.Equal(t, 0, notifier.count())
}

func TestHandleNotification_FailureThenSuccessConfirms(t *testing.T) {
	ledger := newMemLedger()
	ledger.seedPendingPair("pi_1")

	rFail, _ := newReconciler(t, ledger, failureNotification("pi_1"), nil)
	outcome, err := deliver(t, rFail)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeMarkedFailed, outcome)

	rOK, _ := newReconciler(t, ledger, successNotification("pi_1"), nil)
	outcome, err = deliver(t, rOK)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConfirmed, outcome)

	b, _ := ledger.FindBookingByPaymentRef(context.Background(), "pi_1")
	p, _ := ledger.FindPaymentByPaymentRef(context.Background(), "pi_1")
	// A confirmed booking must never sit next to a failed payment.
	assert.Equal(t, domain.BookingConfirmed, b.Status)
	assert.Equal(t, domain.PaymentSucceeded, p.Status)
}

func TestHandleNotification_SuccessThenFailureIsSuperseded(t *testing.T) {
	ledger := newMemLedger()
	ledger.seedPendingPair("pi_1")

	rOK, _ := newReconciler(t, ledger, successNotification("pi_1"), nil)
	outcome, err := deliver(t, rOK)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeConfirmed, outcome)

	rFail, _ := newReconciler(t, ledger, failureNotification("pi_1"), nil)
	outcome, err = deliver(t, rFail)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuperseded, outcome)

	p, _ := ledger.FindPaymentByPaymentRef(context.Background(), "pi_1")
	assert.Equal(t, domain.PaymentSucceeded, p.Status, "terminal success must not regress")
}

func TestHandleNotification_UnknownReferenceAcknowledged(t *testing.T) {
	ledger := newMemLedger()

	for _, n := range []*domain.Notification{successNotification("pi_ghost"), failureNotification("pi_ghost")} {
		r, notifier := newReconciler(t, ledger, n, nil)
		outcome, err := deliver(t, r)

		require.NoError(t, err, "unknown references must not escalate to the gateway")
		assert.Equal(t, domain.OutcomeIgnored, outcome)
		assert.Empty(t, ledger.bookings, "no state may be created for unknown references")
		assert.Empty(t, ledger.payments)
		assert.Equal(t, 0, notifier.count())
	}
}

func TestHandleNotification_UnknownKindSkipped(t *testing.T) {
	ledger := newMemLedger()
	ledger.seedPendingPair("pi_1")
	r, _ := newReconciler(t, ledger, &domain.Notification{Kind: domain.NotificationUnknown}, nil)

	outcome, err := deliver(t, r)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, outcome)

	b, _ := ledger.FindBookingByPaymentRef(context.Background(), "pi_1")
	assert.Equal(t, domain.BookingPending, b.Status)
}

func TestHandleNotification_BadSignatureRejectedWithoutMutation(t *testing.T) {
	ledger := newMemLedger()
	ledger.seedPendingPair("pi_1")
	r, notifier := newReconciler(t, ledger, nil, errors.New("signature mismatch"))

	outcome, err := deliver(t, r)

	assert.ErrorIs(t, err, service.ErrAuthenticity)
	assert.Empty(t, outcome)

	b, _ := ledger.FindBookingByPaymentRef(context.Background(), "pi_1")
	p, _ := ledger.FindPaymentByPaymentRef(context.Background(), "pi_1")
	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.Equal(t, 0, notifier.count())
}

func TestHandleNotification_StoreFailureSurfaces(t *testing.T) {
	ledger := newMemLedger()
	ledger.seedPendingPair("pi_1")
	ledger.failUpdates = true
	r, notifier := newReconciler(t, ledger, successNotification("pi_1"), nil)

	_, err := deliver(t, r)

	// The acknowledgment must not go out before the commit, so a store
	// failure is a hard error and the gateway will redeliver.
	require.Error(t, err)
	assert.NotErrorIs(t, err, service.ErrAuthenticity)
	assert.Equal(t, 0, notifier.count())
}

func TestHandleNotification_ConcurrentDeliveriesConfirmOnce(t *testing.T) {
	ledger := newMemLedger()
	ledger.seedPendingPair("pi_1")

	gw := mocks.NewPaymentGateway(t)
	gw.On("VerifyNotification", []byte("payload"), "sig").Return(successNotification("pi_1"), nil)
	notifier := &countingNotifier{}
	r := service.NewReconciler(ledger, gw, notifier, discardLogger())

	const deliveries = 8
	outcomes := make(chan domain.ReconcileOutcome, deliveries)
	var wg sync.WaitGroup
	wg.Add(deliveries)
	for i := 0; i < deliveries; i++ {
		go func() {
			defer wg.Done()
			outcome, err := r.HandleNotification(context.Background(), []byte("payload"), "sig")
			assert.NoError(t, err)
			outcomes <- outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	confirmed := 0
	for o := range outcomes {
		if o == domain.OutcomeConfirmed {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed, "exactly one delivery wins the confirmed transition")
	assert.Equal(t, 1, notifier.count())
}
