package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentQueuePushDequeueOrder(t *testing.T) {
	q := NewFragmentQueue(4, nil)
	q.Push([]byte("a"))
	q.Push([]byte("b"))

	ctx := context.Background()
	frag, ok := q.Dequeue(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", string(frag))

	frag, ok = q.Dequeue(ctx)
	require.True(t, ok)
	assert.Equal(t, "b", string(frag))
}

func TestFragmentQueueDropsWhenFull(t *testing.T) {
	q := NewFragmentQueue(1, nil)
	q.Push([]byte("kept"))
	q.Push([]byte("dropped"))

	ctx := context.Background()
	frag, ok := q.Dequeue(ctx)
	require.True(t, ok)
	assert.Equal(t, "kept", string(frag), "a full queue drops the newest fragment rather than blocking")
}

func TestFragmentQueueDequeueUnblocksOnContextCancel(t *testing.T) {
	q := NewFragmentQueue(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Dequeue(ctx)
	assert.False(t, ok)
}

func TestFragmentQueueDequeueUnblocksOnClose(t *testing.T) {
	q := NewFragmentQueue(1, nil)
	q.Close()

	_, ok := q.Dequeue(context.Background())
	assert.False(t, ok)
}

func TestLoopbackDeliversWrittenFramesToQueue(t *testing.T) {
	q := NewFragmentQueue(4, nil)
	loop := NewLoopback(q)

	require.NoError(t, loop.Write([]byte{1, 2, 3}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frag, ok := q.Dequeue(ctx)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, frag)

	require.NoError(t, loop.Close())
}

func TestLoopbackWriteCopiesInput(t *testing.T) {
	q := NewFragmentQueue(1, nil)
	loop := NewLoopback(q)

	buf := []byte{9, 9, 9}
	require.NoError(t, loop.Write(buf))
	buf[0] = 0 // mutate after write

	frag, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, byte(9), frag[0], "Loopback.Write must copy, not alias, the caller's buffer")
}
