package streambus

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	buserr "github.com/arloliu/streambus/errors"
	"github.com/arloliu/streambus/serial"
	"github.com/arloliu/streambus/stream"
)

// newServerElement creates a started element serving an echo command plus the
// failure modes the command tests exercise.
func newServerElement(t *testing.T, store *miniredis.Miniredis, name string, opts ...Option) *Element {
	t.Helper()

	server := newTestElement(t, store, name, opts...)

	require.NoError(t, server.AddCommand("echo", func(_ context.Context, req *Request) (*Response, error) {
		return OK(req.Data), nil
	}))
	require.NoError(t, server.AddCommand("boom", func(_ context.Context, _ *Request) (*Response, error) {
		return nil, stderrors.New("actuator jammed")
	}))
	require.NoError(t, server.AddCommand("panic", func(_ context.Context, _ *Request) (*Response, error) {
		panic("unexpected state")
	}))
	require.NoError(t, server.AddCommand("reject", func(_ context.Context, _ *Request) (*Response, error) {
		return Fail(42, "target out of reach"), nil
	}))
	require.NoError(t, server.AddCommand("deny", func(_ context.Context, _ *Request) (*Response, error) {
		return nil, buserr.NewUser(7, "not calibrated")
	}))

	require.NoError(t, server.Start())

	return server
}

func TestStart(t *testing.T) {
	store := miniredis.RunT(t)

	t.Run("second start fails", func(t *testing.T) {
		e := newTestElement(t, store, "starter")
		require.NoError(t, e.Start())
		require.Error(t, e.Start())
	})

	t.Run("start after close fails", func(t *testing.T) {
		e := newTestElement(t, store, "starter2")
		e.Close()
		require.Error(t, e.Start())
	})

	t.Run("restart after stop reuses the group", func(t *testing.T) {
		e := newTestElement(t, store, "starter3")
		require.NoError(t, e.Start())
		e.taskMgr.Stop()
		e.taskMgr.Wait()
		e.started.Store(false)

		// The consumer group already exists; Start must treat that as
		// success.
		require.NoError(t, e.Start())
	})
}

func TestCommand(t *testing.T) {
	store := miniredis.RunT(t)
	ctx := context.Background()

	_ = newServerElement(t, store, "server")
	client := newTestElement(t, store, "client")

	t.Run("echo round trip", func(t *testing.T) {
		reply, err := client.Command(ctx, "server", "echo", []byte("ping"))
		require.NoError(t, err)
		assert.Equal(t, []byte("ping"), reply.Data)
		assert.Equal(t, serial.MethodNone, reply.Method)
	})

	t.Run("validates arguments", func(t *testing.T) {
		_, err := client.Command(ctx, "", "echo", nil)
		require.Error(t, err)
		assert.True(t, buserr.IsKind(err, buserr.InvalidCommand))

		_, err = client.Command(ctx, "server", "", nil)
		require.Error(t, err)
		assert.True(t, buserr.IsKind(err, buserr.InvalidCommand))
	})

	t.Run("unsupported command", func(t *testing.T) {
		_, err := client.Command(ctx, "server", "warp", nil)
		require.Error(t, err)
		assert.True(t, buserr.IsKind(err, buserr.UnsupportedCommand))
		assert.Contains(t, err.Error(), "does not support command warp")
	})

	t.Run("failing handler reports callback_failed", func(t *testing.T) {
		_, err := client.Command(ctx, "server", "boom", nil)
		require.Error(t, err)
		assert.True(t, buserr.IsKind(err, buserr.CallbackFailed))
		assert.Contains(t, err.Error(), "actuator jammed")
	})

	t.Run("panicking handler reports callback_failed", func(t *testing.T) {
		_, err := client.Command(ctx, "server", "panic", nil)
		require.Error(t, err)
		assert.True(t, buserr.IsKind(err, buserr.CallbackFailed))
	})

	t.Run("application failure codes survive the wire", func(t *testing.T) {
		for _, cmd := range []string{"reject", "deny"} {
			_, err := client.Command(ctx, "server", cmd, nil)
			require.Error(t, err, "command %q", cmd)
			assert.True(t, buserr.IsKind(err, buserr.User))

			var berr *buserr.Error
			require.True(t, stderrors.As(err, &berr))
			code, ok := berr.UserCode()
			require.True(t, ok)
			if cmd == "reject" {
				assert.Equal(t, 42, code)
			} else {
				assert.Equal(t, 7, code)
			}
		}
	})

	t.Run("no acknowledge from absent target", func(t *testing.T) {
		_, err := client.Command(ctx, "ghost", "echo", nil, WithAckTimeout(200*time.Millisecond))
		require.Error(t, err)
		assert.True(t, buserr.IsKind(err, buserr.NoResponse))
		assert.Contains(t, err.Error(), "did not receive acknowledge from ghost")
	})

	t.Run("command on a closed element fails", func(t *testing.T) {
		closed := newTestElement(t, store, "closedcaller")
		closed.Close()

		_, err := closed.Command(ctx, "server", "echo", nil)
		require.Error(t, err)
	})

	t.Run("concurrent calls settle independently", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				reply, err := client.Command(ctx, "server", "echo", []byte{byte('a' + i)})
				if err == nil && reply.Data[0] != byte('a'+i) {
					err = stderrors.New("reply payload mismatch")
				}
				errs[i] = err
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			assert.NoError(t, err, "call %d", i)
		}
	})
}

func TestAwaitEntryDeadline(t *testing.T) {
	store := miniredis.RunT(t)
	client := newTestElement(t, store, "waiter")

	// A deadline below the store's 1ms block resolution expires without a
	// read; it must never degrade into an unbounded wait.
	begin := time.Now()
	ent, _, err := client.awaitEntry(context.Background(), responseStream("waiter"), "0",
		time.Now().Add(500*time.Microsecond),
		func(*stream.Entry) bool { return false })
	require.NoError(t, err)
	require.Nil(t, ent)
	assert.Less(t, time.Since(begin), time.Second, "expired wait must not suspend")
}

func TestCommandSerialization(t *testing.T) {
	store := miniredis.RunT(t)
	ctx := context.Background()

	type pose struct {
		X float64 `msgpack:"x"`
		Y float64 `msgpack:"y"`
	}

	server := newTestElement(t, store, "kinematics")
	require.NoError(t, server.AddCommand("mirror", func(_ context.Context, req *Request) (*Response, error) {
		var p pose
		if err := serial.DecodeInto(req.Data, serial.MethodMsgpack, &p); err != nil {
			return nil, err
		}
		p.X, p.Y = -p.X, -p.Y

		return Encoded(&p, serial.MethodMsgpack)
	}))
	require.NoError(t, server.AddCommand("typed", func(_ context.Context, req *Request) (*Response, error) {
		m, ok := req.Value.(map[string]any)
		if !ok {
			return nil, stderrors.New("request value not decoded")
		}

		return Encoded(len(m), serial.MethodMsgpack)
	}, WithRequestMethod(serial.MethodMsgpack)))
	require.NoError(t, server.Start())

	client := newTestElement(t, store, "planner")

	t.Run("msgpack payload round trip", func(t *testing.T) {
		reply, err := client.Command(ctx, "kinematics", "mirror", &pose{X: 1.5, Y: -2},
			WithCallSerialization(serial.MethodMsgpack))
		require.NoError(t, err)
		assert.Equal(t, serial.MethodMsgpack, reply.Method)

		var p pose
		require.NoError(t, reply.DecodeInto(&p))
		assert.Equal(t, -1.5, p.X)
		assert.Equal(t, 2.0, p.Y)
	})

	t.Run("request method decodes before the handler", func(t *testing.T) {
		reply, err := client.Command(ctx, "kinematics", "typed", map[string]string{"a": "1", "b": "2"},
			WithCallSerialization(serial.MethodMsgpack))
		require.NoError(t, err)

		var n int
		require.NoError(t, reply.DecodeInto(&n))
		assert.Equal(t, 2, n)
	})

	t.Run("undecodable request reports callback_failed", func(t *testing.T) {
		_, err := client.Command(ctx, "kinematics", "typed", []byte{0xc1})
		require.Error(t, err)
		assert.True(t, buserr.IsKind(err, buserr.CallbackFailed))
	})
}

func TestBuiltinCommands(t *testing.T) {
	store := miniredis.RunT(t)
	ctx := context.Background()

	_ = newServerElement(t, store, "core")
	client := newTestElement(t, store, "probe")

	t.Run("version", func(t *testing.T) {
		reply, err := client.Command(ctx, "core", CmdVersion, nil)
		require.NoError(t, err)
		assert.Equal(t, serial.MethodMsgpack, reply.Method)

		var info map[string]string
		require.NoError(t, reply.DecodeInto(&info))
		assert.Equal(t, Language, info["language"])
		assert.Equal(t, Version, info["version"])
	})

	t.Run("command_list", func(t *testing.T) {
		reply, err := client.Command(ctx, "core", CmdCommandList, nil)
		require.NoError(t, err)

		var names []string
		require.NoError(t, reply.DecodeInto(&names))

		assert.True(t, sortedContains(names, CmdVersion))
		assert.True(t, sortedContains(names, CmdCommandList))
		assert.True(t, sortedContains(names, CmdHealthcheck))
		assert.True(t, sortedContains(names, "echo"))
		assert.True(t, sortedStrings(names))
	})

	t.Run("healthcheck default is healthy", func(t *testing.T) {
		reply, err := client.Command(ctx, "core", CmdHealthcheck, nil)
		require.NoError(t, err)
		assert.Empty(t, reply.Data)
	})

	t.Run("failing health predicate surfaces to the caller", func(t *testing.T) {
		sick := newTestElement(t, store, "sick", WithHealthcheck(func(_ context.Context) error {
			return stderrors.New("temperature out of range")
		}))
		require.NoError(t, sick.Start())

		_, err := client.Command(ctx, "sick", CmdHealthcheck, nil)
		require.Error(t, err)
		assert.True(t, buserr.IsKind(err, buserr.CallbackFailed))
		assert.Contains(t, err.Error(), "temperature out of range")
	})
}

func sortedContains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}

	return false
}

func sortedStrings(names []string) bool {
	for i := 1; i < len(names); i++ {
		if strings.Compare(names[i-1], names[i]) > 0 {
			return false
		}
	}

	return true
}
