package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chrisimbolon/bookingops/internal/domain"
	"github.com/chrisimbolon/bookingops/internal/store"
)

const (
	sessionsCacheKey = "sessions:available"
	sessionsCacheTTL = 30 * time.Second
)

// QueryService is the read-only facade consumed by the presentation layer.
// The catalog list is cached briefly in Redis; a cache failure degrades to
// a direct store read, never to an error.
type QueryService struct {
	store LedgerStore
	cache redis.Cmdable
	log   *slog.Logger
}

func NewQueryService(store LedgerStore, cache redis.Cmdable, log *slog.Logger) *QueryService {
	return &QueryService{store: store, cache: cache, log: log}
}

// GetBooking looks a booking up by ID.
func (q *QueryService) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	bookingID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid booking id %q", ErrValidation, id)
	}
	b, err := q.store.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, id)
		}
		return nil, fmt.Errorf("booking lookup failed: %w", err)
	}
	return b, nil
}

// ListBookingsByEmail returns all bookings for a contact email. No match
// is an empty slice, not an error.
func (q *QueryService) ListBookingsByEmail(ctx context.Context, email string) ([]domain.Booking, error) {
	return q.store.ListBookingsByEmail(ctx, email)
}

// ListAvailableSessions returns the bookable catalog, served from cache
// when possible. Availability changes are made by catalog management out
// of band, so staleness is bounded by the TTL only.
func (q *QueryService) ListAvailableSessions(ctx context.Context) ([]domain.Session, error) {
	if q.cache != nil {
		data, err := q.cache.Get(ctx, sessionsCacheKey).Bytes()
		if err == nil {
			var sessions []domain.Session
			if err := json.Unmarshal(data, &sessions); err == nil {
				return sessions, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			q.log.Warn("session cache read failed", slog.Any("error", err))
		}
	}

	sessions, err := q.store.ListAvailableSessions(ctx)
	if err != nil {
		return nil, err
	}

	if q.cache != nil {
		if data, err := json.Marshal(sessions); err == nil {
			if err := q.cache.Set(ctx, sessionsCacheKey, data, sessionsCacheTTL).Err(); err != nil {
				q.log.Warn("session cache write failed", slog.Any("error", err))
			}
		}
	}
	return sessions, nil
}
