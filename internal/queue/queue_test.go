package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestInMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(1)
	require.NoError(t, q.Publish(ctx, Message{Type: "a", Body: []byte(`{"n":1}`)}))
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "b"}), ErrFull)

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := receive(t, ch)
	assert.Equal(t, "a", msg.Type)
	assert.JSONEq(t, `{"n":1}`, string(msg.Body))

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewRedisQueue(client, "test:events")
	q.timeout = 100 * time.Millisecond
	require.NoError(t, q.Publish(ctx, Message{Type: "first", Body: []byte(`{"id":"1"}`)}))
	require.NoError(t, q.Publish(ctx, Message{Type: "second", Body: []byte(`{"id":"2"}`)}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", receive(t, ch).Type)
	msg := receive(t, ch)
	assert.Equal(t, "second", msg.Type)
	assert.JSONEq(t, `{"id":"2"}`, string(msg.Body))
}
