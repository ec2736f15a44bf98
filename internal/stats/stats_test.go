package stats

import (
	"testing"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/fioletoven/b4n/internal/watcher"
)

func pod(uid, name, node string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"metadata": map[string]interface{}{"name": name, "namespace": "default", "uid": uid},
		"spec":     map[string]interface{}{"nodeName": node},
	}}
}

func podMetrics(uid string, cpu, mem string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"metadata": map[string]interface{}{"uid": uid},
		"containers": []interface{}{
			map[string]interface{}{"name": "c1", "usage": map[string]interface{}{"cpu": cpu, "memory": mem}},
		},
	}}
}

func nodeMetrics(name, cpu, mem string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"metadata": map[string]interface{}{"name": name},
		"usage":    map[string]interface{}{"cpu": cpu, "memory": mem},
	}}
}

func TestTickRebuildsOnlyWhenDirty(t *testing.T) {
	pods := watcher.New(nil)
	podm := watcher.New(nil)
	nodem := watcher.New(nil)
	s := New(pods, podm, nodem)

	before := s.Snapshot().Generation
	s.Tick() // nothing queued: not dirty
	if s.Snapshot().Generation != before {
		t.Fatalf("expected no generation bump with no input, got %d -> %d", before, s.Snapshot().Generation)
	}

	pods.Push(watcher.ObserverResult{Kind: watcher.EventApply, Object: pod("u1", "web-1", "node-a")})
	nodem.Push(watcher.ObserverResult{Kind: watcher.EventApply, Object: nodeMetrics("node-a", "500m", "1Gi")})
	podm.Push(watcher.ObserverResult{Kind: watcher.EventApply, Object: podMetrics("u1", "120m", "64Mi")})

	s.Tick()
	snap := s.Snapshot()
	if snap.Generation != before+1 {
		t.Fatalf("expected generation to bump by 1, got %d -> %d", before, snap.Generation)
	}
	if len(snap.Nodes) != 1 || len(snap.Nodes[0].Pods) != 1 {
		t.Fatalf("expected one node with one pod, got %+v", snap.Nodes)
	}
	cm := snap.Nodes[0].Pods[0].Containers["c1"]
	if cm.CPUMillis != 120 {
		t.Fatalf("expected 120 millicores, got %d", cm.CPUMillis)
	}
}

func TestPodDeleteRemovesFromAggregate(t *testing.T) {
	pods := watcher.New(nil)
	s := New(pods, watcher.New(nil), watcher.New(nil))

	pods.Push(watcher.ObserverResult{Kind: watcher.EventApply, Object: pod("u1", "web-1", "node-a")})
	s.Tick()
	pods.Push(watcher.ObserverResult{Kind: watcher.EventDelete, Uid: "u1"})
	s.Tick()

	if _, ok := s.podData["u1"]; ok {
		t.Fatal("expected pod to be removed from the shadow table after Delete")
	}
}
