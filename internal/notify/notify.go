// Package notify implements the confirmation side-effect hook. Delivery of
// the actual email is someone else's job; we hand a booking.confirmed event
// to the message bus (or just the log when no bus is configured) and move
// on. Failures here never affect the reconciliation result.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/chrisimbolon/bookingops/internal/domain"
)

const routingConfirmed = "booking.confirmed"

// BookingConfirmedEvent is the wire shape published to the bus.
type BookingConfirmedEvent struct {
	Event       string    `json:"event"`
	OccurredAt  time.Time `json:"occurred_at"`
	BookingID   string    `json:"booking_id"`
	SessionID   int64     `json:"session_id"`
	UserName    string    `json:"user_name"`
	UserEmail   string    `json:"user_email"`
	PaymentRef  string    `json:"payment_ref"`
	AmountPaid  string    `json:"amount_paid"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Publisher emits confirmation events on a topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *slog.Logger
}

func NewPublisher(url, exchange string, log *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange, log: log}, nil
}

func (p *Publisher) BookingConfirmed(ctx context.Context, b *domain.Booking) {
	evt := BookingConfirmedEvent{
		Event:      routingConfirmed,
		OccurredAt: time.Now().UTC(),
		BookingID:  b.ID.String(),
		SessionID:  b.SessionID,
		UserName:   b.UserName,
		UserEmail:  b.UserEmail,
		PaymentRef: b.PaymentRef,
		AmountPaid: b.AmountPaid.String(),
	}
	if b.ConfirmedAt != nil {
		evt.ConfirmedAt = *b.ConfirmedAt
	}

	body, err := json.Marshal(evt)
	if err != nil {
		p.log.Error("marshal confirmation event failed", slog.Any("error", err))
		return
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, routingConfirmed, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		p.log.Error("publish confirmation event failed",
			slog.String("booking_id", evt.BookingID),
			slog.Any("error", err))
	}
}

func (p *Publisher) Close() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// LogNotifier is the fallback hook when no message bus is configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) BookingConfirmed(_ context.Context, b *domain.Booking) {
	n.Log.Info("booking confirmation notification",
		slog.String("booking_id", b.ID.String()),
		slog.String("user_email", b.UserEmail))
}
