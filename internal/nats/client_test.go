package nats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/ODSapper/agentmem/internal/events"
)

// startTestServer starts an embedded NATS server for testing
func startTestServer(t *testing.T) (*server.Server, string) {
	opts := &server.Options{
		Host:           "127.0.0.1",
		Port:           -1, // Random port
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 2048,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("Failed to create NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	return ns, ns.ClientURL()
}

func TestEventSubject_FollowsMemoryTargetTypePattern(t *testing.T) {
	ev := events.NewEvent(events.EventChunkStored, "chunkstore", "proj-1", events.PriorityNormal,
		events.ChunkStoredPayload("chunk-1"))
	got := EventSubject(ev)
	want := "memory.proj-1.chunk_stored"
	if got != want {
		t.Fatalf("expected subject %q, got %q", want, got)
	}
}

// TestClient_PublishEventRoundTripsMemoryPayload verifies that a memory
// core event republishes on its memory.<target>.<type> subject and that a
// subscriber can recover the original payload.
func TestClient_PublishEventRoundTripsMemoryPayload(t *testing.T) {
	ns, url := startTestServer(t)
	defer ns.Shutdown()

	publisher, err := NewClient(url)
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}
	defer publisher.Close()

	subscriber, err := NewClient(url)
	if err != nil {
		t.Fatalf("Failed to create subscriber: %v", err)
	}
	defer subscriber.Close()

	ev := events.NewEvent(events.EventContradictionFound, "chunkstore", "proj-42", events.PriorityHigh,
		events.ContradictionDetectedPayload("new-chunk", "old-chunk", 0.95))

	received := make(chan *events.Event, 1)
	if _, err := subscriber.Subscribe(EventSubject(ev), func(msg *Message) {
		var got events.Event
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Errorf("failed to unmarshal republished event: %v", err)
			return
		}
		received <- &got
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := publisher.PublishEvent(ev); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}
	publisher.Flush()

	select {
	case got := <-received:
		if got.Type != events.EventContradictionFound {
			t.Errorf("expected republished type %v, got %v", events.EventContradictionFound, got.Type)
		}
		if got.Payload["new_id"] != "new-chunk" || got.Payload["existing_id"] != "old-chunk" {
			t.Errorf("expected contradiction payload to round-trip, got %+v", got.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for republished event")
	}
}

// TestClient_PublishEventIsolatesByTarget verifies that events for
// different projects land on distinct subjects, so a dashboard scoped to
// one project's subject never sees another project's events.
func TestClient_PublishEventIsolatesByTarget(t *testing.T) {
	ns, url := startTestServer(t)
	defer ns.Shutdown()

	client, err := NewClient(url)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	evA := events.NewEvent(events.EventChunkStored, "chunkstore", "project-a", events.PriorityNormal,
		events.ChunkStoredPayload("chunk-a"))
	evB := events.NewEvent(events.EventChunkStored, "chunkstore", "project-b", events.PriorityNormal,
		events.ChunkStoredPayload("chunk-b"))

	receivedA := make(chan struct{}, 1)
	if _, err := client.Subscribe(EventSubject(evA), func(msg *Message) { receivedA <- struct{}{} }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	receivedB := make(chan struct{}, 1)
	if _, err := client.Subscribe(EventSubject(evB), func(msg *Message) { receivedB <- struct{}{} }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := client.PublishEvent(evA); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}
	client.Flush()

	select {
	case <-receivedA:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for project-a event")
	}

	select {
	case <-receivedB:
		t.Fatal("expected project-b subscriber to not receive project-a's event")
	case <-time.After(200 * time.Millisecond):
	}
}
