package resources

import (
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/fioletoven/b4n/internal/k8s"
)

func newPod(name string, ready bool) *unstructured.Unstructured {
	status := "Running"
	containerStatuses := []interface{}{
		map[string]interface{}{"ready": ready, "restartCount": int64(2)},
	}
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"metadata": map[string]interface{}{
			"name":              name,
			"namespace":         "default",
			"uid":               name + "-uid",
			"creationTimestamp": time.Now().Format(time.RFC3339),
		},
		"spec": map[string]interface{}{
			"containers": []interface{}{map[string]interface{}{"name": "c1"}},
			"nodeName":   "node-1",
		},
		"status": map[string]interface{}{
			"phase":             status,
			"podIP":             "10.0.0.1",
			"containerStatuses": containerStatuses,
		},
	}}
}

func TestPodDataReadyColumn(t *testing.T) {
	item, err := podData(newPod("a", true), false)
	if err != nil {
		t.Fatalf("podData: %v", err)
	}
	if item.Data.Columns["READY"].Text != "1/1" {
		t.Fatalf("expected 1/1, got %q", item.Data.Columns["READY"].Text)
	}
	if !item.Data.IsReady {
		t.Fatal("expected IsReady true")
	}
}

func TestSortItemsByNameThenReversedAge(t *testing.T) {
	h := podHeader(false)

	older := k8s.ResourceItem{Name: "b", CreatedAt: time.Now().Add(-time.Hour), Data: k8s.ResourceData{Columns: map[string]k8s.ResourceValue{}}}
	newer := k8s.ResourceItem{Name: "a", CreatedAt: time.Now(), Data: k8s.ResourceData{Columns: map[string]k8s.ResourceValue{}}}
	older.Data.Columns["AGE"] = k8s.NewTimeValue(older.CreatedAt)
	newer.Data.Columns["AGE"] = k8s.NewTimeValue(newer.CreatedAt)

	items := []k8s.ResourceItem{older, newer}
	SortItems(items, h) // default: column 0 (NAME), ascending
	if items[0].Name != "a" || items[1].Name != "b" {
		t.Fatalf("expected name-ascending order, got %v/%v", items[0].Name, items[1].Name)
	}

	ageCol := 0
	for i, c := range h.Columns {
		if c.Name == "AGE" {
			ageCol = i
		}
	}
	h.Sort = SortState{Column: ageCol, Descending: false}
	SortItems(items, h)
	if items[0].Name != "a" {
		t.Fatalf("expected newest-first for ascending request on a reversed-order column, got %v", items[0].Name)
	}
}

func TestToggleSortTwiceIsIdentity(t *testing.T) {
	s := SortState{}
	orig := s
	s.ToggleSort(0)
	s.ToggleSort(0)
	if s != orig {
		t.Fatalf("expected toggling twice to be the identity, got %+v vs %+v", s, orig)
	}
}
