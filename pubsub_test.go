package streambus

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	buserr "github.com/arloliu/streambus/errors"
	"github.com/arloliu/streambus/serial"
	"github.com/arloliu/streambus/stream"
)

func TestEntryWrite(t *testing.T) {
	store := miniredis.RunT(t)
	ctx := context.Background()

	t.Run("publishes under the element namespace", func(t *testing.T) {
		pub := newTestElement(t, store, "camera")
		sub := newTestElement(t, store, "monitor")

		id, err := pub.EntryWrite(ctx, "frames", "seq", "1", "shutter", "8ms")
		require.NoError(t, err)
		require.NotEmpty(t, id)

		entries, err := sub.EntryReadN(ctx, "camera", "frames", 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, id, entries[0].ID)

		seq, ok := entries[0].Get("seq")
		require.True(t, ok)
		assert.Equal(t, "1", string(seq))
	})

	t.Run("rejects reserved keys and empty names", func(t *testing.T) {
		pub := newTestElement(t, store, "camera2")

		_, err := pub.EntryWrite(ctx, "", "k", "v")
		require.Error(t, err)
		assert.True(t, buserr.IsKind(err, buserr.InvalidCommand))

		_, err = pub.EntryWrite(ctx, "frames", "ser", "sneaky")
		require.Error(t, err)
		assert.True(t, buserr.IsKind(err, buserr.InvalidCommand))
	})

	t.Run("tracks published streams", func(t *testing.T) {
		pub := newTestElement(t, store, "camera3")

		_, err := pub.EntryWrite(ctx, "frames", "seq", "1")
		require.NoError(t, err)
		_, err = pub.EntryWrite(ctx, "exposure", "ev", "0")
		require.NoError(t, err)

		assert.Equal(t, []string{"exposure", "frames"}, pub.Streams())
	})

	t.Run("serializes values under the element method", func(t *testing.T) {
		pub := newTestElement(t, store, "imu", WithSerialization(serial.MethodMsgpack))
		sub := newTestElement(t, store, "fusion")

		_, err := pub.EntryWrite(ctx, "pose", "x", 1.5, "y", -2.25)
		require.NoError(t, err)

		entries, err := sub.EntryReadN(ctx, "imu", "pose", 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		method, err := entries[0].Method()
		require.NoError(t, err)
		assert.Equal(t, serial.MethodMsgpack, method)

		raw, ok := entries[0].Get("x")
		require.True(t, ok)
		var x float64
		require.NoError(t, serial.DecodeInto(raw, method, &x))
		assert.Equal(t, 1.5, x)
	})
}

func TestEntryReadN(t *testing.T) {
	store := miniredis.RunT(t)
	ctx := context.Background()

	pub := newTestElement(t, store, "lidar")
	sub := newTestElement(t, store, "mapper")

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := pub.EntryWrite(ctx, "scan", "seq", strconv.Itoa(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	t.Run("returns the latest n newest first", func(t *testing.T) {
		entries, err := sub.EntryReadN(ctx, "lidar", "scan", 3)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, ids[4], entries[0].ID)
		assert.Equal(t, ids[3], entries[1].ID)
		assert.Equal(t, ids[2], entries[2].ID)
	})

	t.Run("missing stream is empty success", func(t *testing.T) {
		entries, err := sub.EntryReadN(ctx, "lidar", "nothing", 3)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("validates names", func(t *testing.T) {
		_, err := sub.EntryReadN(ctx, "", "scan", 3)
		require.Error(t, err)
		_, err = sub.EntryReadN(ctx, "lidar", "", 3)
		require.Error(t, err)
	})
}

func TestEntryReadSince(t *testing.T) {
	store := miniredis.RunT(t)
	ctx := context.Background()

	pub := newTestElement(t, store, "gps")
	sub := newTestElement(t, store, "nav")

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := pub.EntryWrite(ctx, "fix", "seq", strconv.Itoa(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	t.Run("follows from a cursor oldest first", func(t *testing.T) {
		entries, err := sub.EntryReadSince(ctx, "gps", "fix", ids[1], 0, 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, ids[2], entries[0].ID)
		assert.Equal(t, ids[3], entries[1].ID)
	})

	t.Run("cursor zero reads everything", func(t *testing.T) {
		entries, err := sub.EntryReadSince(ctx, "gps", "fix", "0", 0, 0)
		require.NoError(t, err)
		assert.Len(t, entries, len(ids))
	})

	t.Run("count limits the batch", func(t *testing.T) {
		entries, err := sub.EntryReadSince(ctx, "gps", "fix", "0", 0, 2)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("blocking read delivers a late entry", func(t *testing.T) {
		done := make(chan struct{})
		go func() {
			defer close(done)
			time.Sleep(50 * time.Millisecond)
			_, err := pub.EntryWrite(ctx, "fix", "seq", "late")
			assert.NoError(t, err)
		}()

		entries, err := sub.EntryReadSince(ctx, "gps", "fix", ids[3], 2*time.Second, 0)
		require.NoError(t, err)
		require.NotEmpty(t, entries)

		seq, ok := entries[0].Get("seq")
		require.True(t, ok)
		assert.Equal(t, "late", string(seq))
		<-done
	})
}

func TestEntryReadLoop(t *testing.T) {
	store := miniredis.RunT(t)
	ctx := context.Background()

	pub := newTestElement(t, store, "depth")
	sub := newTestElement(t, store, "viewer")

	t.Run("validates arguments", func(t *testing.T) {
		err := sub.EntryReadLoop(ctx, "", "frames", "0", func(*stream.Entry) bool { return true })
		require.Error(t, err)
		assert.True(t, buserr.IsKind(err, buserr.InvalidCommand))

		err = sub.EntryReadLoop(ctx, "depth", "frames", "0", nil)
		require.Error(t, err)
		assert.True(t, buserr.IsKind(err, buserr.InvalidCommand))
	})

	t.Run("delivers entries in order until the handler stops", func(t *testing.T) {
		var ids []string
		for i := 0; i < 3; i++ {
			id, err := pub.EntryWrite(ctx, "frames", "seq", strconv.Itoa(i))
			require.NoError(t, err)
			ids = append(ids, id)
		}

		var seen []string
		err := sub.EntryReadLoop(ctx, "depth", "frames", "0", func(ent *stream.Entry) bool {
			seen = append(seen, ent.ID)
			return len(seen) < 3
		})
		require.NoError(t, err)
		assert.Equal(t, ids, seen)
	})

	t.Run("empty cursor starts at the stream tail", func(t *testing.T) {
		done := make(chan struct{})
		go func() {
			defer close(done)
			time.Sleep(50 * time.Millisecond)
			_, err := pub.EntryWrite(ctx, "frames", "seq", "late")
			assert.NoError(t, err)
		}()

		var seqs []string
		err := sub.EntryReadLoop(ctx, "depth", "frames", "", func(ent *stream.Entry) bool {
			seq, ok := ent.Get("seq")
			require.True(t, ok)
			seqs = append(seqs, string(seq))
			return false
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"late"}, seqs)
		<-done
	})

	t.Run("context cancel stops the loop cleanly", func(t *testing.T) {
		loopCtx, cancel := context.WithCancel(ctx)
		stopped := make(chan error, 1)
		go func() {
			stopped <- sub.EntryReadLoop(loopCtx, "depth", "quiet", "0", func(*stream.Entry) bool {
				return true
			})
		}()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-stopped:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("cancel did not stop the loop")
		}
	})
}

func TestLog(t *testing.T) {
	store := miniredis.RunT(t)
	ctx := context.Background()

	e := newTestElement(t, store, "arm")
	require.NoError(t, e.Log(ctx, "info", "homing complete"))

	entries, err := e.engine.RangeRead(ctx, LogStream, "", "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	el, ok := entries[0].Get(elementKey)
	require.True(t, ok)
	assert.Equal(t, "arm", string(el))

	host, ok := entries[0].Get(hostKey)
	require.True(t, ok)
	assert.NotEmpty(t, host)

	level, ok := entries[0].Get(levelKey)
	require.True(t, ok)
	assert.Equal(t, "info", string(level))

	msg, ok := entries[0].Get(msgKey)
	require.True(t, ok)
	assert.Equal(t, "homing complete", string(msg))
}
