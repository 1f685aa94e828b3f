package openpayments

import (
	"fmt"
	"log/slog"
	"time"
)

// LevelTrace is below slog.LevelDebug and enables full request and response dumps.
const LevelTrace = slog.Level(-8)

// Options are the timeouts and offsets the client needs. All must be positive.
type Options struct {
	// ConnectTimeout bounds establishing a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// RequestTimeout bounds a whole request, response body included.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// IncomingPaymentExpiry is how long a created incoming payment stays open.
	IncomingPaymentExpiry time.Duration `mapstructure:"incoming_payment_expiry"`
}

// DefaultOptions returns 10s connect, 10s request and a 10 minute incoming payment expiry.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:        10 * time.Second,
		RequestTimeout:        10 * time.Second,
		IncomingPaymentExpiry: 600 * time.Second,
	}
}

// Validate fails on any zero or negative value.
func (o Options) Validate() error {
	if o.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect timeout must be positive, got %s", ErrInvalidConfig, o.ConnectTimeout)
	}
	if o.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive, got %s", ErrInvalidConfig, o.RequestTimeout)
	}
	if o.IncomingPaymentExpiry <= 0 {
		return fmt.Errorf("%w: incoming payment expiry must be positive, got %s", ErrInvalidConfig, o.IncomingPaymentExpiry)
	}
	return nil
}
