package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-mango-store/internal/events"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type capture struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (c *capture) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, kafka.Message{Topic: topic, Key: key, Value: value, Headers: headers})
}

func TestEmitter_WrapsEnvelope(t *testing.T) {
	pub := &capture{}
	e := &Emitter{Pub: pub, Producer: "mango-api", Log: zap.NewNop()}

	e.Emit(context.Background(), events.TopicOrderCancelled, events.TypeOrderCancelled, "o-1",
		events.OrderCancelledPayload{OrderID: "o-1", Reason: "timeout"})

	require.Len(t, pub.msgs, 1)
	m := pub.msgs[0]
	assert.Equal(t, events.TopicOrderCancelled, m.Topic)
	assert.Equal(t, []byte("o-1"), m.Key)

	env, err := UnmarshalEnvelope(m.Value)
	require.NoError(t, err)
	assert.Equal(t, events.TypeOrderCancelled, env.EventType)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "mango-api", env.Producer)
	assert.NotEmpty(t, env.EventID)

	p, err := UnwrapPayload[events.OrderCancelledPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "timeout", p.Reason)
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		m := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeReader) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

func TestConsumer_CommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}}
	c := newConsumer(r, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(_ context.Context, m kafka.Message) error {
			if m.Offset == 2 {
				return errors.New("boom")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []int64{1, 3}, r.commits())
	assert.True(t, r.closed)
}
