package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan StateChangedEvent, 1)

	unsub := bus.Subscribe(func(e StateChangedEvent) {
		received <- e
	})
	defer unsub()

	ev := StateChangedEvent{
		Session:   "abc",
		Previous:  "Connecting",
		Current:   "Connected",
		Timestamp: time.Now(),
	}
	bus.Publish(ev)

	got := <-received
	if got.Current != ev.Current {
		t.Errorf("Expected current %s, got %s", ev.Current, got.Current)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan ProbeResultEvent, 1)
	received2 := make(chan ProbeResultEvent, 1)

	unsub1 := bus.Subscribe(func(e ProbeResultEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e ProbeResultEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(ProbeResultEvent{Success: true, Latency: 12 * time.Millisecond})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan ReconnectAttemptEvent, 1)

	unsub := bus.Subscribe(func(e ReconnectAttemptEvent) {
		received <- e
	})

	bus.Publish(ReconnectAttemptEvent{Attempt: 1})
	<-received

	unsub()

	bus.Publish(ReconnectAttemptEvent{Attempt: 2})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	probeReceived := make(chan bool, 1)
	stateReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ ProbeResultEvent) {
		probeReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ StateChangedEvent) {
		stateReceived <- true
	})
	defer unsub2()

	bus.Publish(ProbeResultEvent{Success: false})
	<-probeReceived

	select {
	case <-stateReceived:
		t.Fatal("State subscriber should NOT have received ProbeResultEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}

	bus.Publish(StateChangedEvent{Current: "Connected"})
	<-stateReceived

	select {
	case <-probeReceived:
		t.Fatal("Probe subscriber should NOT have received StateChangedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ ProbeResultEvent) {
		receivedCh <- true
	})
	defer unsub()

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				bus.Publish(ProbeResultEvent{Success: true, Timestamp: time.Now()})
			}
		}()
	}

	wg.Wait()

	for i := 0; i < expected; i++ {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"StateChanged", StateChangedEvent{Current: "Connected"}},
		{"ProbeResult", ProbeResultEvent{Success: true}},
		{"ReconnectAttempt", ReconnectAttemptEvent{Attempt: 1}},
		{"ReaperSweep", ReaperSweepEvent{Killed: 2}},
		{"NetworkChanged", NetworkChangedEvent{Online: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case StateChangedEvent:
				unsub = bus.Subscribe(func(e StateChangedEvent) { received <- e })
			case ProbeResultEvent:
				unsub = bus.Subscribe(func(e ProbeResultEvent) { received <- e })
			case ReconnectAttemptEvent:
				unsub = bus.Subscribe(func(e ReconnectAttemptEvent) { received <- e })
			case ReaperSweepEvent:
				unsub = bus.Subscribe(func(e ReaperSweepEvent) { received <- e })
			case NetworkChangedEvent:
				unsub = bus.Subscribe(func(e NetworkChangedEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}
