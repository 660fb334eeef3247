package bus

import (
	"testing"
	"time"

	"github.com/pisugar/pisugar-server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeDeliversSyntheticSnapshot(t *testing.T) {
	b := New(func() model.BatterySnapshot { return model.BatterySnapshot{VoltageMV: 4000} })
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "__full__", ev.Field)
	case <-time.After(time.Second):
		t.Fatal("expected synthetic snapshot on attach")
	}
}

// Invariant 8: a slow subscriber never blocks the producer. Overflow drops
// the oldest delta, never a tap event.
func TestSlowSubscriberNeverBlocksPublisher(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultQueueSize*4; i++ {
			b.PublishSnapshotDelta("capacity_percent", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestTapEventsAreNeverDropped(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < defaultQueueSize; i++ {
		b.PublishTap(model.Single)
	}

	count := 0
drain:
	for {
		select {
		case <-sub.Taps():
			count++
		default:
			break drain
		}
	}
	require.Equal(t, defaultQueueSize, count)
}

func TestUnsubscribeRemovesHandle(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())
}
