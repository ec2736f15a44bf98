// Package watcher implements the observation plane's per-kind projection
// (spec §4.1): a supervised background task streaming Init/Apply/Delete/
// InitDone events for one Kubernetes resource kind, with two coexisting
// transport strategies (streaming watch, list polling), exponential
// backoff restart, and a forbidden-access fallback-namespace dance.
//
// Grounded primarily on the original implementation's watcher/list.rs (the
// list-polling strategy, and the exact Init/Apply/Delete/InitDone emission
// order it produces) and on the teacher's internal/informer/store.go
// (SharedInformerFactory-backed streaming watch, notify-channel pattern).
package watcher

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/fioletoven/b4n/internal/k8s"
)

// EventKind tags one ObserverResult.
type EventKind int

const (
	EventInit EventKind = iota
	EventApply
	EventDelete
	EventInitDone
)

// InitData accompanies an Init event: everything a consumer needs to know
// about the projection that just (re)started.
type InitData struct {
	Kind      k8s.Kind
	Namespace k8s.Namespace
	PodName   string // set only for container projections
}

// ObserverResult is one envelope in a Watcher's output stream. For a
// container projection (ResourceRef.IsContainer(), spec §4.1 container
// fan-out) Item carries a pre-built synthetic row and Object is nil; every
// other projection carries the raw object in Object and leaves Item nil.
type ObserverResult struct {
	Kind   EventKind
	Init   InitData
	Object *unstructured.Unstructured
	Item   *k8s.ResourceItem
	Uid    string // populated on Delete
}

// Source abstracts the transport a Watcher polls or streams from, so
// production code can back it with the dynamic client while tests script a
// fake API server's responses (spec §8 scenarios 1-2) without a real
// cluster.
type Source interface {
	// List returns the current collection for ref. Forbidden/NotFound
	// errors must be distinguishable via k8s.IsForbidden/k8s.IsNotFound.
	List(ctx context.Context, ref k8s.ResourceRef) ([]*unstructured.Unstructured, error)
	// SupportsWatch reports whether Watch can be used for ref's kind; APIs
	// without a watch verb (e.g. metrics) return false and force list
	// polling.
	SupportsWatch(ref k8s.ResourceRef) bool
	// Watch opens a native watch stream; events is closed when the stream
	// ends (transport error or cancellation).
	Watch(ctx context.Context, ref k8s.ResourceRef) (events <-chan WatchEvent, err error)
}

// WatchEvent is one native watch notification.
type WatchEvent struct {
	Added    bool
	Modified bool
	Deleted  bool
	Object   *unstructured.Unstructured
	Err      error
}

// Backoff parameters (spec §4.1, §4.2): initial 800ms, cap 30s, multiplier
// 2.0, full jitter (randomization factor 1.0), no overall cap on restarts.
const (
	backoffInitial    = 800 * time.Millisecond
	backoffCap        = 30 * time.Second
	backoffMultiplier = 2.0
)

// nextBackoff multiplies delay by backoffMultiplier, capped at backoffCap.
func nextBackoff(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * backoffMultiplier)
	if next > backoffCap {
		next = backoffCap
	}
	return next
}

// jitter applies full jitter: a uniform random value in [0, delay].
func jitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(delay) + 1))
}

// listPollIntervalVar is the relist cadence for APIs with no watch verb
// (spec §4.1). A var (not const) so tests can speed it up.
var listPollIntervalVar = 5 * time.Second

// watchErrorWindow bounds how errors are categorized: "watch start/watch
// failed" errors within this window force a restart; other errors just
// back off (spec §4.1).
const watchErrorWindow = 120 * time.Second

// Watcher maintains a live projection of a single resource kind.
type Watcher struct {
	source Source
	ref    k8s.ResourceRef

	fallbackNamespace  string
	stopOnAccessError  bool

	out    chan ObserverResult
	cancel context.CancelFunc
	done   chan struct{}

	hasError         atomic.Bool
	hasConnectionErr atomic.Bool
	hasAccess        atomic.Bool
	isReady          atomic.Bool

	// containerRows tracks the synthetic uids last emitted for a container
	// projection, so a later poll/watch update can diff and emit Deletes for
	// containers that disappeared from the pod spec.
	containerRows map[string]k8s.ResourceItem
}

// New builds a Watcher bound to source. The watcher does not start running
// until Start is called.
func New(source Source) *Watcher {
	return &Watcher{source: source, out: make(chan ObserverResult, 256)}
}

// WithFallbackNamespace configures the one-shot access-error fallback
// namespace used in list mode (spec §4.1, §8 scenario 2).
func (w *Watcher) WithFallbackNamespace(ns string) *Watcher {
	w.fallbackNamespace = ns
	return w
}

// WithStopOnAccessError configures list mode to stop (rather than back off
// and retry) on a persistent Forbidden response once no fallback remains.
func (w *Watcher) WithStopOnAccessError(stop bool) *Watcher {
	w.stopOnAccessError = stop
	return w
}

// Scope reports whether ref targets a namespaced or cluster-scoped
// projection, as known at Start time.
type Scope int

const (
	ScopeNamespaced Scope = iota
	ScopeCluster
)

// Start stops any prior projection and starts a new one for ref.
func (w *Watcher) Start(ctx context.Context, ref k8s.ResourceRef) Scope {
	w.Stop()

	w.ref = ref
	w.hasError.Store(false)
	w.hasConnectionErr.Store(false)
	w.hasAccess.Store(true)
	w.isReady.Store(false)
	w.containerRows = nil

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(runCtx)

	if ref.Kind.IsNamespaces() || ref.Namespace.IsNone() {
		return ScopeCluster
	}
	return ScopeNamespaced
}

// Restart is a no-op if ref is equivalent to the current projection;
// otherwise it is Stop followed by Start.
func (w *Watcher) Restart(ctx context.Context, ref k8s.ResourceRef) Scope {
	if refsEquivalent(w.ref, ref) {
		if ref.Kind.IsNamespaces() || ref.Namespace.IsNone() {
			return ScopeCluster
		}
		return ScopeNamespaced
	}
	return w.Start(ctx, ref)
}

func refsEquivalent(a, b k8s.ResourceRef) bool {
	return a.Kind.Equal(b.Kind) && a.Namespace == b.Namespace && a.Name == b.Name &&
		a.Filter == b.Filter && a.Container == b.Container
}

// Cancel signals shutdown and returns immediately (non-blocking).
func (w *Watcher) Cancel() {
	if w.cancel != nil {
		w.cancel()
	}
}

// Stop signals shutdown and blocks until the background task has exited.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
}

// TryNext is a non-blocking receive from the watcher's output channel.
func (w *Watcher) TryNext() (ObserverResult, bool) {
	select {
	case r := <-w.out:
		return r, true
	default:
		return ObserverResult{}, false
	}
}

// Push injects a result directly into the output channel, for composing
// fakes in tests of consumers (e.g. internal/stats) that only need a
// Watcher's drain contract, not a live source.
func (w *Watcher) Push(r ObserverResult) {
	w.out <- r
}

func (w *Watcher) HasError() bool           { return w.hasError.Load() }
func (w *Watcher) HasConnectionError() bool { return w.hasConnectionErr.Load() }
func (w *Watcher) HasAccess() bool          { return w.hasAccess.Load() }
func (w *Watcher) IsReady() bool            { return w.isReady.Load() }

func (w *Watcher) emit(ctx context.Context, r ObserverResult) {
	select {
	case w.out <- r:
	case <-ctx.Done():
	default:
		// consumer not draining fast enough: drop rather than back-pressure
		// the producer (spec §4.1 cancellation section, §5 shared-resource
		// policy).
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	fallback := w.fallbackNamespace
	delay := backoffInitial

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var err error
		if w.source.SupportsWatch(w.ref) {
			err = w.runStreaming(ctx)
		} else {
			err = w.runListPoll(ctx, &fallback)
		}

		if ctx.Err() != nil {
			w.hasError.Store(true)
			return
		}

		if err != nil && k8s.IsForbidden(err) {
			w.hasAccess.Store(false)
			if fallback != "" {
				w.ref.Namespace = k8s.NewNamespace(fallback)
				fallback = ""
				continue // immediate retry, no sleep (spec: access-error fallback)
			}
			if w.stopOnAccessError {
				return
			}
		} else {
			w.hasAccess.Store(true)
		}

		w.hasError.Store(true)
		wait := jitter(delay)
		delay = nextBackoff(delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// runListPoll implements the list.rs polling loop verbatim: list, diff
// against the previous uid set, emit Init/Apply/Delete/InitDone, then sleep
// 5s (or relist at once, without sleeping, after switching to the
// access-error fallback namespace).
func (w *Watcher) runListPoll(ctx context.Context, fallback *string) error {
	var prev map[string]*unstructured.Unstructured

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		objects, err := w.source.List(ctx, w.ref)
		if err != nil {
			w.hasConnectionErr.Store(!k8s.IsForbidden(err))
			if k8s.IsForbidden(err) {
				w.hasAccess.Store(false)
				if *fallback != "" {
					w.ref.Namespace = k8s.NewNamespace(*fallback)
					*fallback = ""
					continue
				}
			}
			prev = nil
			return err
		}

		w.hasConnectionErr.Store(false)
		w.hasAccess.Store(true)
		w.hasError.Store(false)
		prev = w.emitResults(ctx, objects, prev)
		w.isReady.Store(true)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(listPollIntervalVar):
		}
	}
}

func (w *Watcher) emitResults(ctx context.Context, objects []*unstructured.Unstructured, prev map[string]*unstructured.Unstructured) map[string]*unstructured.Unstructured {
	current := make(map[string]*unstructured.Unstructured, len(objects))
	for _, o := range objects {
		current[string(o.GetUID())] = o
	}

	if prev == nil {
		w.emit(ctx, ObserverResult{Kind: EventInit, Init: w.initData()})
		for _, o := range objects {
			w.emitApply(ctx, o)
		}
		w.emit(ctx, ObserverResult{Kind: EventInitDone})
		return current
	}

	remaining := make(map[string]*unstructured.Unstructured, len(prev))
	for k, v := range prev {
		remaining[k] = v
	}
	for uid, o := range current {
		delete(remaining, uid)
		w.emitApply(ctx, o)
	}
	for uid := range remaining {
		w.emit(ctx, ObserverResult{Kind: EventDelete, Uid: uid})
	}
	return current
}

func (w *Watcher) initData() InitData {
	return InitData{Kind: w.ref.Kind, Namespace: w.ref.Namespace, PodName: w.ref.Name}
}

// emitApply emits o as a regular Apply, unless the projection is a container
// fan-out (spec §4.1: "if ResourceRef.is_container()... fans out a synthetic
// ResourceItem per container"), in which case it fans o (the pod object) out
// via ContainerRows instead.
func (w *Watcher) emitApply(ctx context.Context, o *unstructured.Unstructured) {
	if !w.ref.IsContainer() {
		w.emit(ctx, ObserverResult{Kind: EventApply, Object: o})
		return
	}

	rows := ContainerRows(o)
	current := make(map[string]k8s.ResourceItem, len(rows))
	for _, row := range rows {
		row := row
		current[row.Uid] = row
		w.emit(ctx, ObserverResult{Kind: EventApply, Item: &row})
	}
	for uid := range w.containerRows {
		if _, ok := current[uid]; !ok {
			w.emit(ctx, ObserverResult{Kind: EventDelete, Uid: uid})
		}
	}
	w.containerRows = current
}

// runStreaming opens a native watch and relays its events, emitting Init up
// front (from a List, since the native watch has no retroactive listing)
// and InitDone once the watch confirms it is live.
func (w *Watcher) runStreaming(ctx context.Context) error {
	objects, err := w.source.List(ctx, w.ref)
	if err != nil {
		return err
	}
	w.hasAccess.Store(true)
	w.hasConnectionErr.Store(false)

	w.emit(ctx, ObserverResult{Kind: EventInit, Init: w.initData()})
	for _, o := range objects {
		w.emitApply(ctx, o)
	}

	events, err := w.source.Watch(ctx, w.ref)
	if err != nil {
		return err
	}
	w.emit(ctx, ObserverResult{Kind: EventInitDone})
	w.isReady.Store(true)

	// lastErrAt tracks the previous watch error, if any, so a second failure
	// arriving within watchErrorWindow is recognized as a sustained
	// watch-start failure (spec §4.1, §8 scenario 1) rather than an isolated
	// blip: the former forces a full restart with the connection-error flag
	// set (the caller's backoff then applies), the latter is absorbed and
	// reading continues on the same stream.
	var lastErrAt time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Err != nil {
				if !lastErrAt.IsZero() && time.Since(lastErrAt) <= watchErrorWindow {
					w.hasConnectionErr.Store(true)
					return ev.Err
				}
				lastErrAt = time.Now()
				continue
			}
			switch {
			case ev.Added, ev.Modified:
				w.emitApply(ctx, ev.Object)
			case ev.Deleted:
				w.emit(ctx, ObserverResult{Kind: EventDelete, Uid: string(ev.Object.GetUID())})
			}
		}
	}
}
