package watcher

import (
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/fioletoven/b4n/internal/k8s"
	"github.com/fioletoven/b4n/internal/resources"
)

// ContainerRows fans a single pod object out into one synthetic
// k8s.ResourceItem per container (init containers first, then regular
// containers), mirroring the teacher's container-tab projection. Each row's
// Uid is k8s.ContainerUid(podUID, name, isInit) so callers can reconcile
// updates the same way the pod-level projection reconciles by pod UID.
func ContainerRows(pod *unstructured.Unstructured) []k8s.ResourceItem {
	podUID := string(pod.GetUID())
	createdAt := pod.GetCreationTimestamp().Time

	statuses := containerStatusIndex(pod, "status", "initContainerStatuses")
	rows := containerRowsFor(pod, statuses, true, podUID, createdAt)

	statuses = containerStatusIndex(pod, "status", "containerStatuses")
	rows = append(rows, containerRowsFor(pod, statuses, false, podUID, createdAt)...)
	return rows
}

func containerStatusIndex(pod *unstructured.Unstructured, path ...string) map[string]map[string]interface{} {
	out := map[string]map[string]interface{}{}
	list, found, _ := unstructured.NestedSlice(pod.Object, path...)
	if !found {
		return out
	}
	for _, raw := range list {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if name, ok := m["name"].(string); ok {
			out[name] = m
		}
	}
	return out
}

func containerRowsFor(pod *unstructured.Unstructured, statuses map[string]map[string]interface{}, isInit bool, podUID string, createdAt time.Time) []k8s.ResourceItem {
	specPath := "containers"
	if isInit {
		specPath = "initContainers"
	}
	specs, _, _ := unstructured.NestedSlice(pod.Object, "spec", specPath)

	rows := make([]k8s.ResourceItem, 0, len(specs))
	for _, raw := range specs {
		spec, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := spec["name"].(string)
		image, _ := spec["image"].(string)

		ready, state, restarts := containerState(statuses[name])

		item := k8s.ResourceItem{
			Uid:       k8s.ContainerUid(podUID, name, isInit),
			Name:      name,
			Namespace: pod.GetNamespace(),
			CreatedAt: createdAt,
			Data: k8s.ResourceData{
				Columns: resources.ContainerColumns(state, ready, isInit, restarts, image),
			},
		}
		rows = append(rows, item)
	}
	return rows
}

func containerState(status map[string]interface{}) (ready bool, state string, restarts int32) {
	if status == nil {
		return false, "Waiting", 0
	}
	ready, _ = status["ready"].(bool)
	if rc, ok := status["restartCount"].(int64); ok {
		restarts = int32(rc)
	}
	stateMap, _ := status["state"].(map[string]interface{})
	switch {
	case stateMap["running"] != nil:
		state = "Running"
	case stateMap["terminated"] != nil:
		state = "Terminated"
	case stateMap["waiting"] != nil:
		if reason, ok := stateMap["waiting"].(map[string]interface{})["reason"].(string); ok && reason != "" {
			state = reason
		} else {
			state = "Waiting"
		}
	default:
		state = "Unknown"
	}
	return ready, state, restarts
}
