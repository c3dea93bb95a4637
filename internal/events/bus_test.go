package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus[int]()

	var got []string
	bus.Subscribe(func(event int) { got = append(got, "a") })
	bus.Subscribe(func(event int) { got = append(got, "b") })
	bus.Subscribe(func(event int) { got = append(got, "c") })

	bus.Emit(1)

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus[int]()

	count := 0
	unsubscribe := bus.Subscribe(func(event int) { count++ })

	bus.Emit(1)
	unsubscribe()
	unsubscribe()
	bus.Emit(2)

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, bus.Len())
}

func TestBusPanickingHandler(t *testing.T) {
	bus := NewBus[string]()

	var got []string
	bus.Subscribe(func(event string) { panic("boom") })
	bus.Subscribe(func(event string) { got = append(got, event) })

	require.NotPanics(t, func() {
		bus.Emit("ready")
	})

	assert.Equal(t, []string{"ready"}, got)
}

func TestBusSubscribeDuringEmit(t *testing.T) {
	bus := NewBus[int]()

	lateCalls := 0
	firstCalls := 0

	bus.Subscribe(func(event int) {
		firstCalls++
		bus.Subscribe(func(event int) { lateCalls++ })
	})

	bus.Emit(1)

	// The late subscriber was not part of the snapshot.
	assert.Equal(t, 1, firstCalls)
	assert.Equal(t, 0, lateCalls)

	bus.Emit(2)
	assert.Equal(t, 2, firstCalls)
	assert.Equal(t, 1, lateCalls)
}

func TestBusUnsubscribeDuringEmit(t *testing.T) {
	bus := NewBus[int]()

	var got []string
	var unsubscribeB func()

	bus.Subscribe(func(event int) {
		got = append(got, "a")
		unsubscribeB()
	})
	unsubscribeB = bus.Subscribe(func(event int) { got = append(got, "b") })

	bus.Emit(1)

	// b was captured in the snapshot and still receives the first event.
	assert.Equal(t, []string{"a", "b"}, got)

	bus.Emit(2)
	assert.Equal(t, []string{"a", "b", "a"}, got)
}

func TestBusClose(t *testing.T) {
	bus := NewBus[int]()

	count := 0
	bus.Subscribe(func(event int) {
		count++
		bus.Close()
	})
	bus.Subscribe(func(event int) { count++ })

	bus.Emit(1)
	assert.Equal(t, 1, count)

	bus.Emit(2)
	assert.Equal(t, 1, count)

	bus.Subscribe(func(event int) { count++ })
	bus.Emit(3)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, bus.Len())
}

func TestBusCloseDuringEmit(t *testing.T) {
	bus := NewBus[int]()

	entered := make(chan struct{})
	release := make(chan struct{})
	lateCalls := 0

	bus.Subscribe(func(event int) {
		close(entered)
		<-release
	})
	bus.Subscribe(func(event int) { lateCalls++ })

	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.Emit(1)
	}()

	<-entered
	bus.Close()
	close(release)
	<-done

	assert.Zero(t, lateCalls)
}

func TestBusConcurrentUse(t *testing.T) {
	bus := NewBus[int]()

	var mutex sync.Mutex
	total := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsubscribe := bus.Subscribe(func(event int) {
				mutex.Lock()
				total += event
				mutex.Unlock()
			})
			bus.Emit(1)
			unsubscribe()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, bus.Len())
	assert.Positive(t, total)
}
