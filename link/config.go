package link

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/arloliu/streambus/logger"
)

// DialFunc dials the raw socket for a connection. The default uses a
// net.Dialer with TCP keep-alive; tests and proxy setups substitute their own.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config holds the configuration parameters shared by every connection that a
// Pool creates for one store endpoint.
type Config struct {
	// target specifies the store endpoint to dial.
	target Target

	// connectTimeout bounds the dial of a single connection attempt.
	// Defaults to 3 seconds.
	connectTimeout time.Duration

	// sendTimeout bounds the write of one request frame.
	// Defaults to 3 seconds.
	sendTimeout time.Duration

	// replyTimeout bounds the wait for one reply when the caller's context
	// carries no deadline. A context deadline always wins when set.
	// Defaults to 5 seconds.
	replyTimeout time.Duration

	// dialFunc dials the raw socket. Defaults to a net.Dialer with a
	// 30-second TCP keep-alive.
	dialFunc DialFunc

	// logger provides a logger instance for connection events and errors.
	logger logger.Logger
}

// NewConfig creates a connection configuration for the given target with
// optional functional options.
//
// It initializes the configuration with default values and then applies the
// provided options. An invalid option value fails the constructor, not the
// first use of a connection.
func NewConfig(target Target, opts ...ConfigOption) (*Config, error) {
	if target == nil {
		return nil, errors.New("target is nil")
	}

	dialer := &net.Dialer{KeepAlive: 30 * time.Second}

	cfg := &Config{
		target:         target,
		connectTimeout: 3 * time.Second,
		sendTimeout:    3 * time.Second,
		replyTimeout:   5 * time.Second,
		dialFunc:       dialer.DialContext,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Target returns the configured store endpoint.
func (cfg *Config) Target() Target {
	return cfg.target
}

// ConfigOption customizes a Config. Options validate their value and fail
// NewConfig when it is out of range.
type ConfigOption func(*Config) error

// WithConnectTimeout sets the timeout for establishing a connection.
func WithConnectTimeout(d time.Duration) ConfigOption {
	return func(cfg *Config) error {
		if d <= 0 {
			return errors.New("connect timeout must be positive")
		}
		cfg.connectTimeout = d

		return nil
	}
}

// WithSendTimeout sets the timeout for writing one request frame.
func WithSendTimeout(d time.Duration) ConfigOption {
	return func(cfg *Config) error {
		if d <= 0 {
			return errors.New("send timeout must be positive")
		}
		cfg.sendTimeout = d

		return nil
	}
}

// WithReplyTimeout sets the default timeout for waiting for one reply. A
// deadline on the operation's context overrides it per call.
func WithReplyTimeout(d time.Duration) ConfigOption {
	return func(cfg *Config) error {
		if d <= 0 {
			return errors.New("reply timeout must be positive")
		}
		cfg.replyTimeout = d

		return nil
	}
}

// WithDialFunc replaces the socket dialer.
func WithDialFunc(dial DialFunc) ConfigOption {
	return func(cfg *Config) error {
		if dial == nil {
			return errors.New("dial func is nil")
		}
		cfg.dialFunc = dial

		return nil
	}
}

// WithLogger sets the logger instance for connections using this config.
func WithLogger(l logger.Logger) ConfigOption {
	return func(cfg *Config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	}
}
