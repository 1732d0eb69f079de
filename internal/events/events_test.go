package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
}

func TestBusPublishAndSince(t *testing.T) {
	b := NewBus(0, fixedNow)

	e1 := b.Publish(Event{Type: AlarmAdded, AlarmID: "a"})
	e2 := b.Publish(Event{Type: AlarmFired, AlarmID: "a"})

	assert.Equal(t, uint64(1), e1.Seq)
	assert.Equal(t, uint64(2), e2.Seq)
	assert.Equal(t, fixedNow(), e1.At)

	assert.Len(t, b.Since(0), 2)
	got := b.Since(1)
	require.Len(t, got, 1)
	assert.Equal(t, AlarmFired, got[0].Type)
	assert.Empty(t, b.Since(2))
}

func TestBusCapacity(t *testing.T) {
	b := NewBus(3, fixedNow)
	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: AlarmAdded})
	}
	got := b.Since(0)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(8), got[0].Seq)
	assert.Equal(t, uint64(10), got[2].Seq)
}

func TestSubscription(t *testing.T) {
	b := NewBus(0, fixedNow)
	sub := b.Subscribe()

	b.Publish(Event{Type: AlarmAlert, Message: "ring"})

	select {
	case e := <-sub.C():
		assert.Equal(t, "ring", e.Message)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	sub.Close()
	sub.Close()
	_, open := <-sub.C()
	assert.False(t, open)

	// publishing after close must not panic
	b.Publish(Event{Type: AlarmAlert})
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus(0, fixedNow)
	sub := b.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			b.Publish(Event{Type: AlarmFired})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
	assert.Len(t, sub.C(), subscriberBuffer)
}

func TestConcurrentPublishAssignsUniqueSeq(t *testing.T) {
	b := NewBus(1000, nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(Event{Type: AlarmFired})
		}()
	}
	wg.Wait()

	seen := map[uint64]bool{}
	for _, e := range b.Since(0) {
		assert.False(t, seen[e.Seq])
		seen[e.Seq] = true
	}
	assert.Len(t, seen, 100)
}

func TestIsError(t *testing.T) {
	assert.True(t, Event{Type: DeliveryFailed}.IsError())
	assert.True(t, Event{Type: PlatformWarning}.IsError())
	assert.False(t, Event{Type: AlarmFired}.IsError())
	assert.Equal(t, Event{Type: AlarmFired}, Discard.Publish(Event{Type: AlarmFired}))
}
