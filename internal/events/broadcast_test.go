package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLossyBroadcaster_DropsWhenSubscriberChannelIsFull(t *testing.T) {
	var b LossyBroadcaster[int]
	ch := make(chan int) // unbuffered: always full from Publish's point of view
	b.Subscribe(ch)

	done := make(chan struct{})
	go func() {
		b.Publish(1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber instead of dropping the value")
	}
}

func TestLossyBroadcaster_DeliversToReadySubscriber(t *testing.T) {
	var b LossyBroadcaster[string]
	ch := make(chan string, 1)
	b.Subscribe(ch)

	b.Publish("tick")

	select {
	case v := <-ch:
		assert.Equal(t, "tick", v)
	default:
		t.Fatal("expected value to be delivered to a buffered channel with room")
	}
}

func TestLosslessBroadcaster_DeliversViaConfiguredSend(t *testing.T) {
	b := NewLosslessBroadcaster(func(ch chan<- int, val int) {
		ch <- val
	})
	ch := make(chan int, 1)
	b.Subscribe(ch)

	b.Publish(42)

	require.Equal(t, 42, <-ch)
}

func TestLosslessBroadcaster_FansOutToAllSubscribers(t *testing.T) {
	b := NewLosslessBroadcaster(func(ch chan<- int, val int) {
		ch <- val
	})
	a := make(chan int, 1)
	c := make(chan int, 1)
	b.Subscribe(a)
	b.Subscribe(c)

	b.Publish(7)

	assert.Equal(t, 7, <-a)
	assert.Equal(t, 7, <-c)
}
