// Package gateway wraps the external card-payment processor. It is the
// only place that talks to Stripe; everything behind it works with domain
// types. The processor is an untrusted network boundary: notifications are
// handed out only after their signature verifies.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/chrisimbolon/bookingops/internal/domain"
)

// StripeGateway creates payment authorizations and verifies incoming
// notifications against the shared signing secret.
type StripeGateway struct {
	sc            *client.API
	signingSecret string
}

func NewStripeGateway(secretKey, signingSecret string) *StripeGateway {
	return &StripeGateway{
		sc:            client.New(secretKey, nil),
		signingSecret: signingSecret,
	}
}

// CreateAuthorization opens a payment intent for the given minor-unit
// amount. The intent ID becomes the payment reference; the client secret
// is the opaque token the front end needs to complete the charge. Metadata
// travels to the processor for auditability.
func (g *StripeGateway) CreateAuthorization(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*domain.Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return &domain.Authorization{
		PaymentRef:  pi.ID,
		ClientToken: pi.ClientSecret,
	}, nil
}

// VerifyNotification checks the signature header against the raw payload
// and parses the event. Any failure, malformed payload included, is a
// verification failure; nothing unverified leaves this function. The HMAC
// is the trust anchor; the API version pinned by the vendored SDK is not,
// so a version mismatch on an otherwise valid signature is tolerated.
func (g *StripeGateway) VerifyNotification(payload []byte, sigHeader string) (*domain.Notification, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, g.signingSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("notification verification failed: %w", err)
	}

	switch string(event.Type) {
	case "payment_intent.succeeded":
		return parseIntentNotification(event, domain.NotificationSucceeded)
	case "payment_intent.payment_failed":
		return parseIntentNotification(event, domain.NotificationFailed)
	default:
		return &domain.Notification{Kind: domain.NotificationUnknown}, nil
	}
}

func parseIntentNotification(event stripe.Event, kind domain.NotificationKind) (*domain.Notification, error) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("notification payload parse failed: %w", err)
	}
	if pi.ID == "" {
		return nil, fmt.Errorf("notification payload missing payment intent id")
	}

	n := &domain.Notification{Kind: kind, PaymentRef: pi.ID}
	if pi.LatestCharge != nil {
		n.ChargeRef = pi.LatestCharge.ID
	}
	if len(pi.PaymentMethodTypes) > 0 {
		n.Method = pi.PaymentMethodTypes[0]
	}
	if pi.LastPaymentError != nil {
		n.FailureMessage = pi.LastPaymentError.Msg
	}
	return n, nil
}
