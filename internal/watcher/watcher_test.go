package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/fioletoven/b4n/internal/k8s"
)

// forbiddenError satisfies k8s.IsForbidden's string match.
type forbiddenError struct{}

func (forbiddenError) Error() string { return "pods is forbidden: User cannot list resource" }

// scriptedSource replays a fixed sequence of List results, one per call,
// repeating the last entry once exhausted. It never supports watch, so the
// Watcher always exercises the list-polling path (spec §8 scenarios 1-2).
type scriptedSource struct {
	mu      sync.Mutex
	calls   int
	results [][]*unstructured.Unstructured
	errs    []error
}

func (s *scriptedSource) List(ctx context.Context, ref k8s.ResourceRef) ([]*unstructured.Unstructured, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.results[i], err
}

func (s *scriptedSource) SupportsWatch(ref k8s.ResourceRef) bool { return false }

func (s *scriptedSource) Watch(ctx context.Context, ref k8s.ResourceRef) (<-chan WatchEvent, error) {
	return nil, errors.New("not supported")
}

func namedPod(name string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"metadata": map[string]interface{}{"name": name, "uid": name + "-uid"},
	}}
}

func drain(t *testing.T, w *Watcher, timeout time.Duration) []ObserverResult {
	t.Helper()
	var out []ObserverResult
	deadline := time.After(timeout)
	for {
		select {
		case r := <-w.out:
			out = append(out, r)
		case <-deadline:
			return out
		}
	}
}

func TestWatcherEmitsInitApplyInitDoneOnFirstList(t *testing.T) {
	src := &scriptedSource{results: [][]*unstructured.Unstructured{
		{namedPod("a"), namedPod("b")},
	}}
	w := New(src)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx, k8s.ResourceRef{Kind: k8s.Kind{Plural: "pods"}, Namespace: k8s.NewNamespace("default")})

	events := drain(t, w, 150*time.Millisecond)
	if len(events) < 4 {
		t.Fatalf("expected at least Init+2 Apply+InitDone, got %d: %+v", len(events), events)
	}
	if events[0].Kind != EventInit {
		t.Fatalf("expected first event Init, got %v", events[0].Kind)
	}
	last := events[len(events)-1]
	for i, e := range events {
		if e.Kind == EventInitDone && i != len(events)-1 {
			t.Fatalf("InitDone must be last in the initial batch, found at %d of %d", i, len(events))
		}
	}
	if last.Kind != EventInitDone {
		t.Fatalf("expected last event InitDone, got %v", last.Kind)
	}
}

func TestWatcherEmitsDeleteWhenItemDisappears(t *testing.T) {
	src := &scriptedSource{results: [][]*unstructured.Unstructured{
		{namedPod("a"), namedPod("b")},
		{namedPod("a")},
	}}
	listPollIntervalOverride(t, 10*time.Millisecond)

	w := New(src)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx, k8s.ResourceRef{Kind: k8s.Kind{Plural: "pods"}, Namespace: k8s.NewNamespace("default")})

	events := drain(t, w, 200*time.Millisecond)
	var sawDelete bool
	for _, e := range events {
		if e.Kind == EventDelete && e.Uid == "b-uid" {
			sawDelete = true
		}
	}
	if !sawDelete {
		t.Fatalf("expected a Delete for b-uid after its second list omitted it, got %+v", events)
	}
}

// TestWatcherForbiddenFallsBackToNamespaceWithoutSleeping verifies the
// access-error fallback dance (spec §8 scenario 2): a 403 on the requested
// namespace switches immediately (no backoff sleep) to the configured
// fallback namespace and resumes successfully.
func TestWatcherForbiddenFallsBackToNamespaceWithoutSleeping(t *testing.T) {
	src := &scriptedSource{
		results: [][]*unstructured.Unstructured{nil, {namedPod("a")}},
		errs:    []error{forbiddenError{}, nil},
	}
	w := New(src).WithFallbackNamespace("fallback-ns")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	w.Start(ctx, k8s.ResourceRef{Kind: k8s.Kind{Plural: "pods"}, Namespace: k8s.NewNamespace("forbidden-ns")})
	events := drain(t, w, 200*time.Millisecond)
	elapsed := time.Since(start)

	if elapsed >= backoffInitial {
		t.Fatalf("fallback retry should not wait out the backoff delay, took %v", elapsed)
	}
	if !w.HasAccess() {
		t.Fatal("expected access to recover once the fallback namespace lists successfully")
	}
	var sawInit bool
	for _, e := range events {
		if e.Kind == EventInit {
			sawInit = true
		}
	}
	if !sawInit {
		t.Fatalf("expected an Init once the fallback namespace succeeded, got %+v", events)
	}
}

func listPollIntervalOverride(t *testing.T, d time.Duration) {
	t.Helper()
	orig := listPollIntervalVar
	listPollIntervalVar = d
	t.Cleanup(func() { listPollIntervalVar = orig })
}

func podWithContainers(name string, containerNames ...string) *unstructured.Unstructured {
	containers := make([]interface{}, len(containerNames))
	for i, n := range containerNames {
		containers[i] = map[string]interface{}{"name": n, "image": n + ":latest"}
	}
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"metadata": map[string]interface{}{"name": name, "uid": name + "-uid"},
		"spec":     map[string]interface{}{"containers": containers},
	}}
}

// TestWatcherFansOutContainersForContainerRef verifies that a Watcher
// started against the synthetic "containers" kind (spec §4.1) emits one
// ResourceItem per container instead of the raw pod object, and that a
// container removed from a later poll produces a Delete for its uid.
func TestWatcherFansOutContainersForContainerRef(t *testing.T) {
	src := &scriptedSource{results: [][]*unstructured.Unstructured{
		{podWithContainers("web", "app", "sidecar")},
		{podWithContainers("web", "app")},
	}}
	listPollIntervalOverride(t, 10*time.Millisecond)

	w := New(src)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx, k8s.ResourceRef{
		Kind:      k8s.Kind{Plural: "containers"},
		Namespace: k8s.NewNamespace("default"),
		Name:      "web",
	})

	events := drain(t, w, 200*time.Millisecond)

	var sawApp, sawSidecar bool
	for _, e := range events {
		if e.Kind == EventApply && e.Item != nil {
			if e.Item.Uid == k8s.ContainerUid("web-uid", "app", false) {
				sawApp = true
			}
			if e.Item.Uid == k8s.ContainerUid("web-uid", "sidecar", false) {
				sawSidecar = true
			}
			if e.Object != nil {
				t.Fatalf("container fan-out Apply must carry Item, not the raw pod Object: %+v", e)
			}
		}
	}
	if !sawApp || !sawSidecar {
		t.Fatalf("expected Apply events for both containers, got %+v", events)
	}

	var sawSidecarDelete bool
	for _, e := range events {
		if e.Kind == EventDelete && e.Uid == k8s.ContainerUid("web-uid", "sidecar", false) {
			sawSidecarDelete = true
		}
	}
	if !sawSidecarDelete {
		t.Fatalf("expected a Delete for the sidecar container once it dropped out of the pod spec, got %+v", events)
	}
}

// streamingSource supports watch and replays a scripted sequence of watch
// events (including errors), so runStreaming's error-window branching (spec
// §4.1, §8 scenario 1) can be exercised without a real API server.
type streamingSource struct {
	initial []*unstructured.Unstructured
	events  []WatchEvent
}

func (s *streamingSource) List(ctx context.Context, ref k8s.ResourceRef) ([]*unstructured.Unstructured, error) {
	return s.initial, nil
}

func (s *streamingSource) SupportsWatch(ref k8s.ResourceRef) bool { return true }

func (s *streamingSource) Watch(ctx context.Context, ref k8s.ResourceRef) (<-chan WatchEvent, error) {
	out := make(chan WatchEvent)
	go func() {
		defer close(out)
		for _, ev := range s.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return out, nil
}

// TestRunStreamingAbsorbsIsolatedWatchError verifies an isolated watch error
// does not tear down the stream: reading continues and a later Apply from
// the same stream is still delivered.
func TestRunStreamingAbsorbsIsolatedWatchError(t *testing.T) {
	src := &streamingSource{events: []WatchEvent{
		{Err: errors.New("transient hiccup")},
		{Added: true, Object: namedPod("a")},
	}}
	w := New(src)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx, k8s.ResourceRef{Kind: k8s.Kind{Plural: "pods"}, Namespace: k8s.NewNamespace("default")})

	events := drain(t, w, 150*time.Millisecond)
	if w.HasConnectionError() {
		t.Fatalf("an isolated watch error must not set hasConnectionErr")
	}
	var sawApply bool
	for _, e := range events {
		if e.Kind == EventApply && e.Object != nil && e.Object.GetName() == "a" {
			sawApply = true
		}
	}
	if !sawApply {
		t.Fatalf("expected the post-error Apply to still be delivered on the same stream, got %+v", events)
	}
}

// TestRunStreamingForcesRestartOnRepeatedWatchError verifies two watch
// errors arriving within watchErrorWindow are treated as a sustained
// watch-start failure: hasConnectionErr is set and the stream tears down
// (the outer run loop then restarts with backoff).
func TestRunStreamingForcesRestartOnRepeatedWatchError(t *testing.T) {
	src := &streamingSource{events: []WatchEvent{
		{Err: errors.New("first failure")},
		{Err: errors.New("second failure")},
	}}
	w := New(src)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx, k8s.ResourceRef{Kind: k8s.Kind{Plural: "pods"}, Namespace: k8s.NewNamespace("default")})

	deadline := time.After(300 * time.Millisecond)
	for !w.HasConnectionError() {
		select {
		case <-deadline:
			t.Fatalf("expected hasConnectionErr to be set after a repeated watch error within the window")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
