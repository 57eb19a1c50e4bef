package api

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/graaaaa/scr-multilauncher/internal/engine"
)

// drain returns the events buffered for sub without blocking.
func drain(sub *Subscriber) []LineEvent {
	var got []LineEvent
	for {
		select {
		case e, ok := <-sub.Events():
			if !ok {
				return got
			}
			got = append(got, e)
		default:
			return got
		}
	}
}

func isDone(sub *Subscriber) bool {
	select {
	case <-sub.Done():
		return true
	default:
		return false
	}
}

func TestHub_PublishNumbersLines(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	hub.Publish("[10:00:00.000] Invalid PID: 4", "")
	hub.Publish("", "cycle-2")
	hub.Publish("[10:00:00.500] Closed 0x1A4 for starcraft.exe (PID: 8)", "cycle-2")

	got := drain(sub)
	want := []LineEvent{
		{Seq: 1, Line: "[10:00:00.000] Invalid PID: 4"},
		{Seq: 2, Line: "[10:00:00.500] Closed 0x1A4 for starcraft.exe (PID: 8)", CycleID: "cycle-2"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHub_RecordPublishesLines(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	hub.Record(context.Background(), engine.Record{CycleID: "c1", Lines: []string{"a", "b"}})

	got := drain(sub)
	if len(got) != 2 || got[0].Line != "a" || got[1].Line != "b" || got[1].CycleID != "c1" {
		t.Errorf("unexpected events %+v", got)
	}
}

func TestHub_FanOut(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	subs := make([]*Subscriber, 4)
	for i := range subs {
		subs[i] = hub.Subscribe()
	}
	hub.Publish("line", "")

	for i, sub := range subs {
		if got := drain(sub); len(got) != 1 || got[0].Seq != 1 {
			t.Errorf("subscriber %d got %+v", i, got)
		}
	}
}

func TestHub_LaggingSubscriberDropsLines(t *testing.T) {
	hub := NewHub(WithHubSubscriberBufferSize(1))
	defer hub.Close()
	slow := hub.Subscribe()

	hub.Publish("first", "")
	hub.Publish("second", "")

	got := drain(slow)
	if len(got) != 1 || got[0].Line != "first" {
		t.Fatalf("got %+v, want only first", got)
	}

	// Numbering continues past the dropped line.
	hub.Publish("third", "")
	if got := drain(slow); len(got) != 1 || got[0].Seq != 3 {
		t.Errorf("got %+v, want seq 3", got)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	sub := hub.Subscribe()

	if isDone(sub) {
		t.Fatal("new subscriber already done")
	}
	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	hub.Unsubscribe(nil)

	if !isDone(sub) {
		t.Error("Done should be closed after Unsubscribe")
	}
	hub.Publish("after", "")
	if _, ok := <-sub.Events(); ok {
		t.Error("Events should be closed after Unsubscribe")
	}
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()
	a, b := hub.Subscribe(), hub.Subscribe()

	hub.Close()
	hub.Close()

	for i, sub := range []*Subscriber{a, b} {
		if !isDone(sub) {
			t.Errorf("subscriber %d not done after Close", i)
		}
	}
	if late := hub.Subscribe(); !isDone(late) {
		t.Error("Subscribe after Close should return a done subscriber")
	}
	hub.Publish("late", "")
	hub.Unsubscribe(a)
}

func TestHub_Concurrent(t *testing.T) {
	hub := NewHub(WithHubSubscriberBufferSize(100))
	defer hub.Close()

	var wg sync.WaitGroup
	for id := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := hub.Subscribe()
			for j := range 5 {
				hub.Publish(fmt.Sprintf("line %d.%d", id, j), "")
			}
			drain(sub)
			hub.Unsubscribe(sub)
		}()
	}
	wg.Wait()
}
