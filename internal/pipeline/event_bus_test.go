package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingHandler struct {
	results []*Result
}

func (h *collectingHandler) OnResult(r *Result) {
	h.results = append(h.results, r)
}

func TestEventBus_HandlerReceivesInOrder(t *testing.T) {
	bus := NewEventBus()
	h := &collectingHandler{}
	unsub := bus.Subscribe(h)

	bus.Publish(&Result{FrameSeq: 1})
	bus.Publish(&Result{FrameSeq: 2})

	require.Len(t, h.results, 2)
	assert.Equal(t, uint64(1), h.results[0].FrameSeq)
	assert.Equal(t, uint64(2), h.results[1].FrameSeq)

	unsub()
	bus.Publish(&Result{FrameSeq: 3})
	assert.Len(t, h.results, 2)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestEventBus_ChannelDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	ch, unsub := bus.SubscribeChannel(2)
	defer unsub()

	for i := 1; i <= 5; i++ {
		bus.Publish(&Result{FrameSeq: uint64(i)})
	}

	// Only the first two fit; the rest were skipped without blocking
	assert.Equal(t, uint64(1), (<-ch).FrameSeq)
	assert.Equal(t, uint64(2), (<-ch).FrameSeq)
	select {
	case r := <-ch:
		t.Fatalf("unexpected result %d", r.FrameSeq)
	default:
	}
}

func TestEventBus_CloseClosesChannels(t *testing.T) {
	bus := NewEventBus()
	ch, _ := bus.SubscribeChannel(1)

	bus.Close()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestEventBus_NilResultIgnored(t *testing.T) {
	bus := NewEventBus()
	h := &collectingHandler{}
	bus.Subscribe(h)

	bus.Publish(nil)
	assert.Empty(t, h.results)
}
