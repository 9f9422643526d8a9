package link

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/streambus/logger"
)

func TestConnStateTransitions(t *testing.T) {
	require := require.New(t)

	t.Run("initial state", func(t *testing.T) {
		cs := newConnStateMgr(logger.GetLogger())
		require.Equal(DisconnectedState, cs.State())
		require.True(cs.State().IsDisconnected())
	})

	t.Run("lifecycle", func(t *testing.T) {
		stateChangeCount := 0
		cs := newConnStateMgr(logger.GetLogger())
		cs.AddHandler(func(prevState ConnState, newState ConnState) { stateChangeCount++ })

		require.NoError(cs.to(ConnectingState))
		require.Equal(ConnectingState, cs.State())
		require.Equal(1, stateChangeCount)

		require.NoError(cs.to(ConnectedState))
		require.Equal(ConnectedState, cs.State())
		require.Equal(2, stateChangeCount)

		// No-op transition to the current state does not invoke handlers.
		require.NoError(cs.to(ConnectedState))
		require.Equal(2, stateChangeCount)

		require.NoError(cs.to(ClosedState))
		require.True(cs.State().IsClosed())
		require.Equal(3, stateChangeCount)
	})

	t.Run("invalid transitions", func(t *testing.T) {
		cs := newConnStateMgr(logger.GetLogger())

		// Connected is only reachable from Connecting.
		require.ErrorIs(cs.to(ConnectedState), ErrInvalidTransition)

		require.NoError(cs.to(ConnectingState))
		require.NoError(cs.to(DisconnectedState)) // failed dial path

		require.NoError(cs.to(ClosedState))
		// Closed is terminal.
		require.ErrorIs(cs.to(ConnectingState), ErrInvalidTransition)
		require.ErrorIs(cs.to(ConnectedState), ErrInvalidTransition)
		require.ErrorIs(cs.to(DisconnectedState), ErrInvalidTransition)
	})

	t.Run("state names", func(t *testing.T) {
		require.Equal("disconnected", DisconnectedState.String())
		require.Equal("connecting", ConnectingState.String())
		require.Equal("connected", ConnectedState.String())
		require.Equal("closed", ClosedState.String())
	})
}

func TestConnStateWait(t *testing.T) {
	require := require.New(t)

	t.Run("wait reaches state", func(t *testing.T) {
		cs := newConnStateMgr(logger.GetLogger())

		done := make(chan error, 1)
		go func() {
			done <- cs.WaitState(context.Background(), ConnectedState)
		}()

		time.Sleep(20 * time.Millisecond)
		require.NoError(cs.to(ConnectingState))
		require.NoError(cs.to(ConnectedState))

		select {
		case err := <-done:
			require.NoError(err)
		case <-time.After(time.Second):
			t.Fatal("WaitState never returned")
		}
	})

	t.Run("wait unblocks on context cancel", func(t *testing.T) {
		cs := newConnStateMgr(logger.GetLogger())

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- cs.WaitState(ctx, ConnectedState)
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.ErrorIs(err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("WaitState never unblocked after cancel")
		}
	})

	t.Run("wait on current state returns immediately", func(t *testing.T) {
		cs := newConnStateMgr(logger.GetLogger())
		require.NoError(cs.WaitState(context.Background(), DisconnectedState))
	})
}
