package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/streambus/logger"
)

func TestNewConfig(t *testing.T) {
	require := require.New(t)

	t.Run("defaults", func(t *testing.T) {
		cfg, err := NewConfig(TCP("localhost", 6379))
		require.NoError(err)
		require.Equal(3*time.Second, cfg.connectTimeout)
		require.Equal(3*time.Second, cfg.sendTimeout)
		require.Equal(5*time.Second, cfg.replyTimeout)
		require.NotNil(cfg.dialFunc)
		require.NotNil(cfg.logger)
		require.Equal("tcp://localhost:6379", cfg.Target().String())
	})

	t.Run("nil target", func(t *testing.T) {
		_, err := NewConfig(nil)
		require.Error(err)
	})

	t.Run("options applied", func(t *testing.T) {
		mockLogger := logger.NewMockLogger()
		cfg, err := NewConfig(Unix("/tmp/store.sock"),
			WithConnectTimeout(time.Second),
			WithSendTimeout(2*time.Second),
			WithReplyTimeout(10*time.Second),
			WithLogger(mockLogger),
		)
		require.NoError(err)
		require.Equal(time.Second, cfg.connectTimeout)
		require.Equal(2*time.Second, cfg.sendTimeout)
		require.Equal(10*time.Second, cfg.replyTimeout)
		require.Equal(mockLogger, cfg.logger)
		require.Equal("unix", cfg.Target().Network())
		require.Equal("/tmp/store.sock", cfg.Target().Address())
	})

	t.Run("invalid option values fail the constructor", func(t *testing.T) {
		target := TCP("localhost", 6379)

		_, err := NewConfig(target, WithConnectTimeout(0))
		require.Error(err)

		_, err = NewConfig(target, WithSendTimeout(-time.Second))
		require.Error(err)

		_, err = NewConfig(target, WithReplyTimeout(0))
		require.Error(err)

		_, err = NewConfig(target, WithDialFunc(nil))
		require.Error(err)

		_, err = NewConfig(target, WithLogger(nil))
		require.Error(err)
	})
}
