package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config is everything the process needs, injected explicitly into the
// component constructors. Secrets never live in package state.
type Config struct {
	DBSource string `envconfig:"DB_SOURCE" required:"true"`
	Port     string `envconfig:"SERVER_PORT" default:"8080"`
	Env      string `envconfig:"ENVIRONMENT" default:"development"`

	StripeSecretKey      string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripePublishableKey string `envconfig:"STRIPE_PUBLISHABLE_KEY"`
	StripeWebhookSecret  string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
	Currency             string `envconfig:"CURRENCY" default:"usd"`

	// Optional collaborators. Empty means disabled.
	RedisAddr       string `envconfig:"REDIS_ADDR"`
	RabbitURL       string `envconfig:"RABBIT_URL"`
	BookingExchange string `envconfig:"BOOKING_EXCHANGE" default:"booking.exchange"`
}

func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}
