package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestStatusReplayLastOnly(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	// The status topic only replays the current state to new subscribers.
	pub.ConfigureTopic(TopicStudyStatus, TopicConfig{
		BufferSize: 5,
		ReplayAll:  false,
	})

	states := []string{"loading", "building", "ready"}
	for i, state := range states {
		err := pub.Publish(TopicStudyStatus, state, StudyStatus{
			State: state,
			Step:  i + 1,
			Total: len(states),
		})
		if err != nil {
			t.Fatalf("Failed to publish %q status: %v", state, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	sub, err := pub.Subscribe(ctx, TopicStudyStatus)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	select {
	case event := <-sub.Events():
		if event.Version != 3 {
			t.Errorf("Expected version 3, got %d", event.Version)
		}
		var status StudyStatus
		if err := json.Unmarshal(event.Data, &status); err != nil {
			t.Fatalf("Failed to decode status payload: %v", err)
		}
		if status.State != "ready" {
			t.Errorf("Expected replayed state %q, got %q", "ready", status.State)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for replayed status")
	}

	// Only the last state is replayed.
	select {
	case event := <-sub.Events():
		t.Errorf("Received unexpected extra event version %d", event.Version)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGraphModelReplayAll(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	pub.ConfigureTopic(TopicGraphModel, TopicConfig{
		BufferSize: 3,
		ReplayAll:  true,
	})

	// Publish 5 rebuilds; the buffer keeps the last 3.
	for i := 1; i <= 5; i++ {
		err := pub.Publish(TopicGraphModel, "rebuilt", GraphSummary{
			Nodes:    i * 10,
			Edges:    i * 12,
			Valid:    true,
			Complete: true,
		})
		if err != nil {
			t.Fatalf("Failed to publish rebuild %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	sub, err := pub.Subscribe(ctx, TopicGraphModel)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	// Replayed events are versions 3, 4, 5 in order.
	for want := 3; want <= 5; want++ {
		select {
		case event := <-sub.Events():
			if event.Version != want {
				t.Errorf("Expected version %d, got %d", want, event.Version)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for replayed event version %d", want)
		}
	}
}

func TestNoBufferNoReplay(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	pub.ConfigureTopic(TopicGraphModel, TopicConfig{BufferSize: 0})

	for i := 1; i <= 3; i++ {
		if err := pub.Publish(TopicGraphModel, "rebuilt", GraphSummary{Nodes: i}); err != nil {
			t.Fatalf("Failed to publish rebuild %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	sub, err := pub.Subscribe(ctx, TopicGraphModel)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	// Nothing buffered, so nothing replayed.
	select {
	case event := <-sub.Events():
		t.Errorf("Received unexpected replayed event version %d", event.Version)
	case <-time.After(50 * time.Millisecond):
	}

	// Live events still flow.
	if err := pub.Publish(TopicGraphModel, "rebuilt", GraphSummary{Nodes: 40}); err != nil {
		t.Fatalf("Failed to publish new event: %v", err)
	}

	select {
	case event := <-sub.Events():
		if event.Version != 4 {
			t.Errorf("Expected version 4, got %d", event.Version)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for new event")
	}
}
