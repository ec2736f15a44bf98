// Package stats aggregates a cluster-wide view combining pod membership
// with optional pod/node metrics (spec §4.3), owning three Watchers (pods,
// podmetrics, nodemetrics) and two shadow tables it reconciles on each tick.
//
// Grounded on original_source/b4n-kube/stats/observer.rs: the pod_data/
// node_data shadow-table shapes, the dirty-flag-triggers-rebuild pattern,
// and the wrapping generation counter.
package stats

import (
	"sync"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/fioletoven/b4n/internal/watcher"
)

// ContainerMetrics is one container's latest CPU/memory sample.
type ContainerMetrics struct {
	CPUMillis  int64
	MemoryBytes int64
}

// PodEntry is one shadow-table row in pod_data.
type PodEntry struct {
	Uid        string
	NodeName   string
	Name       string
	Namespace  string
	Containers map[string]ContainerMetrics // keyed by container name
}

// NodeEntry is one shadow-table row in node_data.
type NodeEntry struct {
	Name        string
	CPUMillis   int64
	MemoryBytes int64
}

// NodeAggregate is one node's regrouped view in a published Statistics
// snapshot: its own metrics plus every pod currently scheduled to it.
type NodeAggregate struct {
	Node NodeEntry
	Pods []PodEntry
}

// Statistics is an immutable, regrouped-by-node snapshot.
type Statistics struct {
	Nodes      []NodeAggregate
	Generation uint32 // wraps (spec §4.3)
}

// Stats is the aggregator. Pods/PodMetrics/NodeMetrics are the three owned
// Watchers; callers are responsible for Start()ing them with the right
// ResourceRef before the first Tick.
type Stats struct {
	Pods        *watcher.Watcher
	PodMetrics  *watcher.Watcher
	NodeMetrics *watcher.Watcher

	mu        sync.Mutex
	podData   map[string]PodEntry // uid -> entry
	nodeData  map[string]NodeEntry
	dirty     bool
	published Statistics
}

func New(pods, podMetrics, nodeMetrics *watcher.Watcher) *Stats {
	return &Stats{
		Pods:        pods,
		PodMetrics:  podMetrics,
		NodeMetrics: nodeMetrics,
		podData:     make(map[string]PodEntry),
		nodeData:    make(map[string]NodeEntry),
	}
}

// Tick drains all three watchers non-blockingly, applies Apply/Delete to
// the shadow tables, merges per-container metrics by name (every container
// named in a metrics sample is stored; the names are not checked against the
// pod spec), refreshes node_data, and — if
// anything changed — rebuilds and publishes a new Statistics snapshot with
// an incremented (wrapping) generation.
func (s *Stats) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drainPods()
	s.drainPodMetrics()
	s.drainNodeMetrics()

	if !s.dirty {
		return
	}
	s.published = s.rebuild()
	s.dirty = false
}

func (s *Stats) drainPods() {
	for {
		r, ok := s.Pods.TryNext()
		if !ok {
			return
		}
		switch r.Kind {
		case watcher.EventApply:
			if r.Object == nil {
				continue
			}
			uid := string(r.Object.GetUID())
			nodeName, _, _ := nestedString(r.Object.Object, "spec", "nodeName")
			entry, existed := s.podData[uid]
			if !existed {
				entry = PodEntry{Uid: uid, Containers: map[string]ContainerMetrics{}}
			}
			entry.Name = r.Object.GetName()
			entry.Namespace = r.Object.GetNamespace()
			entry.NodeName = nodeName
			s.podData[uid] = entry
			s.dirty = true
		case watcher.EventDelete:
			if _, ok := s.podData[r.Uid]; ok {
				delete(s.podData, r.Uid)
				s.dirty = true
			}
		}
	}
}

func (s *Stats) drainPodMetrics() {
	for {
		r, ok := s.PodMetrics.TryNext()
		if !ok {
			return
		}
		if r.Kind != watcher.EventApply || r.Object == nil {
			continue
		}
		uid := string(r.Object.GetUID())
		entry, ok := s.podData[uid]
		if !ok {
			// metrics arrived before the pod's own Apply; the pod-membership
			// watcher is authoritative for presence, so drop this sample.
			continue
		}
		containers, _, _ := nestedSlice(r.Object.Object, "containers")
		for _, raw := range containers {
			c, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := c["name"].(string)
			cpu, mem := parseUsage(c["usage"])
			entry.Containers[name] = ContainerMetrics{CPUMillis: cpu, MemoryBytes: mem}
		}
		s.podData[uid] = entry
		s.dirty = true
	}
}

func (s *Stats) drainNodeMetrics() {
	for {
		r, ok := s.NodeMetrics.TryNext()
		if !ok {
			return
		}
		if r.Kind != watcher.EventApply || r.Object == nil {
			continue
		}
		name := r.Object.GetName()
		cpu, mem := parseUsage(r.Object.Object["usage"])
		s.nodeData[name] = NodeEntry{Name: name, CPUMillis: cpu, MemoryBytes: mem}
		s.dirty = true
	}
}

func (s *Stats) rebuild() Statistics {
	byNode := make(map[string][]PodEntry)
	for _, p := range s.podData {
		byNode[p.NodeName] = append(byNode[p.NodeName], p)
	}
	nodes := make([]NodeAggregate, 0, len(s.nodeData))
	for name, n := range s.nodeData {
		nodes = append(nodes, NodeAggregate{Node: n, Pods: byNode[name]})
	}
	return Statistics{Nodes: nodes, Generation: s.published.Generation + 1}
}

// Snapshot returns the most recently published Statistics (it may be stale
// relative to the shadow tables until the next Tick runs).
func (s *Stats) Snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published
}

func nestedString(obj map[string]interface{}, path ...string) (string, bool, error) {
	cur := interface{}(obj)
	for _, p := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return "", false, nil
		}
		cur, ok = m[p]
		if !ok {
			return "", false, nil
		}
	}
	s, ok := cur.(string)
	return s, ok, nil
}

func nestedSlice(obj map[string]interface{}, path ...string) ([]interface{}, bool, error) {
	cur := interface{}(obj)
	for _, p := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false, nil
		}
		cur, ok = m[p]
		if !ok {
			return nil, false, nil
		}
	}
	s, ok := cur.([]interface{})
	return s, ok, nil
}

// parseUsage reads the metrics.k8s.io {cpu, memory} quantity strings found
// under a container/node's "usage" map, via apimachinery's own
// resource.Quantity parser (the same type the typed k8s.io/metrics clientset
// uses internally) rather than hand-rolling suffix parsing.
func parseUsage(raw interface{}) (cpuMillis, memBytes int64) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return 0, 0
	}
	if cpu, ok := m["cpu"].(string); ok {
		if q, err := resource.ParseQuantity(cpu); err == nil {
			cpuMillis = q.MilliValue()
		}
	}
	if mem, ok := m["memory"].(string); ok {
		if q, err := resource.ParseQuantity(mem); err == nil {
			memBytes = q.Value()
		}
	}
	return cpuMillis, memBytes
}
