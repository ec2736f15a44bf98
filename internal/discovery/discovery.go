// Package discovery maintains the set of API resource kinds the connected
// cluster currently exposes (spec §4.2), refreshing on a fixed interval and
// backing off on failure with the same policy as internal/watcher.
package discovery

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"

	"github.com/fioletoven/b4n/internal/k8s"
)

const (
	backoffInitial    = 800 * time.Millisecond
	backoffCap        = 30 * time.Second
	backoffMultiplier = 2.0
)

// refreshIntervalVar is the on-success refresh cadence (spec §4.2: 6s). A
// var (not const) so tests can speed it up.
var refreshIntervalVar = 6 * time.Second

// ApiCapabilities records what verbs/views a discovered resource supports.
type ApiCapabilities struct {
	Namespaced bool
	Verbs      []string
}

// ApiResource is one discovered (GVR, capabilities) pair.
type ApiResource struct {
	Kind         k8s.Kind
	Capabilities ApiCapabilities
}

// Snapshot is an immutable discovery result plus a wrapping generation
// counter consumers can compare to detect a kind-set change cheaply.
type Snapshot struct {
	Resources  []ApiResource
	Generation uint64
}

// Source abstracts the discovery client so tests can script ServerPreferred
// responses without a real API server.
type Source interface {
	Discover(ctx context.Context) ([]ApiResource, error)
}

// ClientGoSource is the production Source backed by client-go's discovery
// client (ServerPreferredResources), grounded on kcli's own one-shot
// discovery call in internal/k8sclient (generalized here into a repeating
// task per spec §4.2).
type ClientGoSource struct {
	Client discovery.DiscoveryInterface
}

func (s *ClientGoSource) Discover(ctx context.Context) ([]ApiResource, error) {
	lists, err := s.Client.ServerPreferredResources()
	if err != nil && len(lists) == 0 {
		return nil, err
	}
	var out []ApiResource
	for _, l := range lists {
		gv, gvErr := schema.ParseGroupVersion(l.GroupVersion)
		if gvErr != nil {
			continue
		}
		for _, r := range l.APIResources {
			out = append(out, ApiResource{
				Kind: k8s.Kind{Plural: r.Name, Group: gv.Group, Version: gv.Version},
				Capabilities: ApiCapabilities{
					Namespaced: r.Namespaced,
					Verbs:      []string(r.Verbs),
				},
			})
		}
	}
	return out, err
}

// Discovery is the supervised background task. It publishes Snapshots via
// TryNext, matching the Watcher's non-blocking drain idiom so the
// orchestrator's per-tick sequence (spec §4.8 step 1-ish) never stalls
// waiting on a discovery refresh.
type Discovery struct {
	source Source

	mu       sync.Mutex
	latest   Snapshot
	hasFresh atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

func New(source Source) *Discovery {
	return &Discovery{source: source}
}

// Start launches the background refresh loop; Stop must be called to clean
// up when the orchestrator shuts down or reconnects to a new cluster.
func (d *Discovery) Start(ctx context.Context) {
	d.Stop()
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(runCtx)
}

func (d *Discovery) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
	d.cancel = nil
}

func (d *Discovery) run(ctx context.Context) {
	defer close(d.done)
	delay := backoffInitial
	var generation uint64

	for {
		resources, err := d.source.Discover(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			generation++
			d.mu.Lock()
			d.latest = Snapshot{Resources: resources, Generation: generation}
			d.mu.Unlock()
			d.hasFresh.Store(true)
			delay = backoffInitial

			select {
			case <-ctx.Done():
				return
			case <-time.After(refreshIntervalVar):
			}
			continue
		}

		wait := time.Duration(rand.Int63n(int64(delay) + 1))
		next := time.Duration(float64(delay) * backoffMultiplier)
		if next > backoffCap {
			next = backoffCap
		}
		delay = next

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// TryNext returns the latest snapshot only once per refresh (ok is false if
// nothing new has been published since the last call), matching Watcher's
// fresh-only consumption contract (spec §4.2: "try_next() exposes only
// fresh snapshots").
func (d *Discovery) TryNext() (Snapshot, bool) {
	if !d.hasFresh.CompareAndSwap(true, false) {
		return Snapshot{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest, true
}

// Generation returns the current snapshot's generation without consuming
// the fresh flag, for callers that only need change detection.
func (d *Discovery) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest.Generation
}
