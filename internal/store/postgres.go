package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chrisimbolon/bookingops/internal/domain"
)

var (
	// ErrNotFound is returned when a session, booking or payment record
	// does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicatePaymentRef is returned when the payment_ref uniqueness
	// constraint is violated on insert.
	ErrDuplicatePaymentRef = errors.New("duplicate payment reference")
	// ErrNoChange may be returned by an UpdateBookingAndPaymentAtomic
	// mutator to abort the transaction without writing anything.
	ErrNoChange = errors.New("no change")
)

// Store owns all persisted state. Every mutation goes through one of its
// transactional operations; callers never read-then-write around it.
type Store struct {
	db *pgxpool.Pool
}

// New opens a pgx pool and pings it, retrying while the database comes up.
func New(ctx context.Context, connString string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	err = retry.Do(
		func() error { return pool.Ping(ctx) },
		retry.Attempts(10),
		retry.Delay(2*time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{db: pool}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

// GetSession retrieves a single catalog session by ID.
func (s *Store) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, title, therapy_type, description, duration, price, available, created_at
		 FROM sessions WHERE id = $1`, id)

	var sess domain.Session
	err := row.Scan(&sess.ID, &sess.Title, &sess.TherapyType, &sess.Description,
		&sess.Duration, &sess.Price, &sess.Available, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session query failed: %w", err)
	}
	return &sess, nil
}

// ListAvailableSessions returns the bookable catalog, newest first.
func (s *Store) ListAvailableSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, title, therapy_type, description, duration, price, available, created_at
		 FROM sessions WHERE available ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("session list query failed: %w", err)
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		var sess domain.Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.TherapyType, &sess.Description,
			&sess.Duration, &sess.Price, &sess.Available, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("session scan failed: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// CreateBookingAndPayment persists a pending Booking and its PaymentRecord
// as one transaction. The payment_ref uniqueness constraint on both tables
// guards against a reference being recorded twice.
func (s *Store) CreateBookingAndPayment(ctx context.Context, b *domain.Booking, p *domain.PaymentRecord) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO bookings
		   (id, session_id, user_name, user_email, user_phone, payment_ref,
		    amount_paid, status, booked_at, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		b.ID, b.SessionID, b.UserName, b.UserEmail, b.UserPhone, b.PaymentRef,
		b.AmountPaid, string(b.Status), b.BookedAt, b.Notes, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return wrapInsertErr("booking insert failed", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO payment_records
		   (id, booking_id, payment_ref, amount_cents, currency, status,
		    charge_ref, method, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.BookingID, p.PaymentRef, p.AmountCents, p.Currency, string(p.Status),
		p.ChargeRef, p.Method, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return wrapInsertErr("payment record insert failed", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func wrapInsertErr(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicatePaymentRef
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// FindBookingByPaymentRef looks up the booking joined to a gateway
// payment reference.
func (s *Store) FindBookingByPaymentRef(ctx context.Context, ref string) (*domain.Booking, error) {
	return s.queryBooking(ctx, `WHERE payment_ref = $1`, ref)
}

// GetBooking retrieves a booking by its ID.
func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return s.queryBooking(ctx, `WHERE id = $1`, id)
}

const bookingColumns = `id, session_id, user_name, user_email, user_phone, payment_ref,
	amount_paid, status, booked_at, confirmed_at, notes, created_at, updated_at`

func (s *Store) queryBooking(ctx context.Context, where string, arg any) (*domain.Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings `+where, arg)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking query failed: %w", err)
	}
	return b, nil
}

// ListBookingsByEmail returns all bookings for a contact email, newest
// first. No match yields an empty slice, not an error.
func (s *Store) ListBookingsByEmail(ctx context.Context, email string) ([]domain.Booking, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_email = $1 ORDER BY created_at DESC`,
		email)
	if err != nil {
		return nil, fmt.Errorf("booking list query failed: %w", err)
	}
	defer rows.Close()

	bookings := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("booking scan failed: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	var status string
	err := row.Scan(&b.ID, &b.SessionID, &b.UserName, &b.UserEmail, &b.UserPhone,
		&b.PaymentRef, &b.AmountPaid, &status, &b.BookedAt, &b.ConfirmedAt,
		&b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status, err = domain.ParseBookingStatus(status)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// FindPaymentByPaymentRef looks up the payment record for a gateway
// payment reference.
func (s *Store) FindPaymentByPaymentRef(ctx context.Context, ref string) (*domain.PaymentRecord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payment_records WHERE payment_ref = $1`, ref)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("payment query failed: %w", err)
	}
	return p, nil
}

const paymentColumns = `id, booking_id, payment_ref, amount_cents, currency, status,
	charge_ref, method, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.PaymentRecord, error) {
	var p domain.PaymentRecord
	var status string
	err := row.Scan(&p.ID, &p.BookingID, &p.PaymentRef, &p.AmountCents, &p.Currency,
		&status, &p.ChargeRef, &p.Method, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status, err = domain.ParsePaymentStatus(status)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateBookingAndPaymentAtomic loads the Booking/PaymentRecord pair for a
// payment reference with row locks, applies mutate, and persists both rows
// in the same transaction. The FOR UPDATE locks serialize concurrent
// notifications for the same reference: exactly one delivery wins a state
// transition, later ones block, then observe the applied state and no-op.
// A mutator returning ErrNoChange rolls back without writes.
func (s *Store) UpdateBookingAndPaymentAtomic(ctx context.Context, paymentRef string,
	mutate func(b *domain.Booking, p *domain.PaymentRecord) error) error {

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE payment_ref = $1 FOR UPDATE`, paymentRef)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("booking lock failed: %w", err)
	}

	row = tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payment_records WHERE payment_ref = $1 FOR UPDATE`, paymentRef)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("payment lock failed: %w", err)
	}

	if err := mutate(b, p); err != nil {
		return err
	}

	b.UpdatedAt = time.Now().UTC()
	p.UpdatedAt = b.UpdatedAt

	_, err = tx.Exec(ctx,
		`UPDATE bookings SET status = $1, confirmed_at = $2, updated_at = $3 WHERE id = $4`,
		string(b.Status), b.ConfirmedAt, b.UpdatedAt, b.ID)
	if err != nil {
		return fmt.Errorf("booking update failed: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE payment_records SET status = $1, charge_ref = $2, method = $3, updated_at = $4 WHERE id = $5`,
		string(p.Status), p.ChargeRef, p.Method, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("payment update failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}
