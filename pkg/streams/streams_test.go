package streams

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingOrigin(emitted chan<- Frame) Origin {
	return func(ctx context.Context, emit func(Frame)) error {
		i := 0
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
				f := Frame{Kind: "logs", Timestamp: time.Now(), Data: []byte{byte(i)}}
				emit(f)
				if emitted != nil {
					emitted <- f
				}
				i++
				time.Sleep(time.Millisecond)
			}
		}
	}
}

func TestSubscribeReceivesFrames(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	key := Key{Kind: "logs", HostID: "h1", ResourceID: "c1"}

	sub, unsubscribe := r.Subscribe(key, countingOrigin(nil))
	defer unsubscribe()

	select {
	case f := <-sub.C():
		assert.Equal(t, "logs", f.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestConcurrentSubscribersShareOneOrigin(t *testing.T) {
	started := make(chan Frame, 100)
	r := NewRegistry(RegistryConfig{})
	key := Key{Kind: "stats", HostID: "h1", ResourceID: "c1"}

	sub1, unsub1 := r.Subscribe(key, countingOrigin(started))
	defer unsub1()
	sub2, unsub2 := r.Subscribe(key, countingOrigin(started))
	defer unsub2()

	assert.Equal(t, 1, r.ActiveStreams(), "two subscribers to the same key must share one SharedStream")
	assert.Equal(t, 2, r.TotalSubscribers())

	<-sub1.C()
	<-sub2.C()
}

func TestLateSubscriberReceivesRingBuffer(t *testing.T) {
	r := NewRegistry(RegistryConfig{RingBufferSize: 8, SubscriberBufSize: 32})
	key := Key{Kind: "logs", HostID: "h1", ResourceID: "c1"}

	sub1, unsub1 := r.Subscribe(key, countingOrigin(nil))
	time.Sleep(20 * time.Millisecond) // let a few frames accumulate
	sub2, unsub2 := r.Subscribe(key, nil)
	defer unsub1()
	defer unsub2()

	select {
	case <-sub2.C():
	case <-time.After(time.Second):
		t.Fatal("late subscriber got nothing from the ring buffer")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	key := Key{Kind: "logs", HostID: "h1", ResourceID: "c1"}
	sub, unsubscribe := r.Subscribe(key, countingOrigin(nil))
	unsubscribe()

	_, open := <-sub.C()
	assert.False(t, open)
}

func TestSlowConsumerDropped(t *testing.T) {
	r := NewRegistry(RegistryConfig{SubscriberBufSize: 1, SlowConsumerDropAt: 2})
	key := Key{Kind: "logs", HostID: "h1", ResourceID: "c1"}

	sub, unsubscribe := r.Subscribe(key, countingOrigin(nil))
	defer unsubscribe()

	closed := false
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case _, open := <-sub.C():
			if !open {
				closed = true
				break loop
			}
		case <-deadline:
			break loop
		}
	}
	require.True(t, closed, "slow consumer should eventually be disconnected")
}

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker[string](4)
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish("hello")
	assert.Equal(t, "hello", <-ch)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := NewBroker[int](1)
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(1)
	b.Publish(2) // dropped, buffer full and nobody reading yet
	assert.Equal(t, 1, <-ch)
}
