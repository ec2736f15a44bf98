package portforward

import (
	"context"
	"net"
	"testing"

	"github.com/google/uuid"
	"k8s.io/client-go/rest"

	"github.com/fioletoven/b4n/internal/k8s"
)

func newNoopListener(t *testing.T) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestStartRejectsNonPodRef(t *testing.T) {
	s := New(&rest.Config{Host: "https://example.invalid"})
	_, err := s.Start(context.Background(), k8s.ResourceRef{Kind: k8s.Kind{Plural: "services"}, Name: "svc-a"}, 8080, "127.0.0.1:0")
	if err != ErrNotAPod {
		t.Fatalf("expected ErrNotAPod, got %v", err)
	}
}

func TestStartRejectsUnnamedPodRef(t *testing.T) {
	s := New(&rest.Config{Host: "https://example.invalid"})
	_, err := s.Start(context.Background(), k8s.ResourceRef{Kind: k8s.Kind{Plural: "pods"}}, 8080, "127.0.0.1:0")
	if err != ErrNotAPod {
		t.Fatalf("expected ErrNotAPod, got %v", err)
	}
}

func TestStopRemovesTaskFromSlice(t *testing.T) {
	s := New(&rest.Config{Host: "https://example.invalid"})
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()
	s.tasks = append(s.tasks, &task{id: id, cancel: cancel, listener: newNoopListener(t)})

	if s.Counters(id) == nil {
		t.Fatal("expected counters to be present before Stop")
	}
	s.Stop(id)
	if s.Counters(id) != nil {
		t.Fatal("expected counters to be gone after Stop")
	}
	if ctx.Err() == nil {
		t.Fatal("expected Stop to cancel the task's context")
	}
}
