package watcher

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"

	"github.com/fioletoven/b4n/internal/k8s"
)

// noWatchKinds lack a watch verb in the Kubernetes API (metrics.k8s.io);
// these always fall back to list polling.
var noWatchKinds = map[string]bool{
	"pods.metrics.k8s.io":  true,
	"nodes.metrics.k8s.io": true,
}

// DynamicSource is the production Source backed by a single dynamic client,
// used for both streaming watch and list polling depending on the kind.
type DynamicSource struct {
	Client dynamic.Interface
}

func (s *DynamicSource) gvr(ref k8s.ResourceRef) schema.GroupVersionResource {
	if ref.Kind.IsContainers() {
		// "containers" is a synthetic display kind (spec §4.1 container
		// fan-out): the underlying API object watched/listed is still the
		// named pod, fanned out into per-container rows by the Watcher.
		return schema.GroupVersionResource{Version: "v1", Resource: "pods"}
	}
	return schema.GroupVersionResource{Group: ref.Kind.Group, Version: ref.Kind.Version, Resource: ref.Kind.Plural}
}

func (s *DynamicSource) resourceInterface(ref k8s.ResourceRef) dynamic.ResourceInterface {
	r := s.Client.Resource(s.gvr(ref))
	if ref.Namespace.IsSpecific() {
		return r.Namespace(ref.Namespace.Value())
	}
	return r
}

func (s *DynamicSource) listOptions(ref k8s.ResourceRef) metav1.ListOptions {
	opts := metav1.ListOptions{}
	if ref.Filter.LabelSelector != "" {
		opts.LabelSelector = ref.Filter.LabelSelector
	}
	if ref.Filter.FieldSelector != "" {
		opts.FieldSelector = ref.Filter.FieldSelector
	}
	if ref.Name != "" {
		sel := "metadata.name=" + ref.Name
		if opts.FieldSelector != "" {
			sel = opts.FieldSelector + "," + sel
		}
		opts.FieldSelector = sel
	}
	return opts
}

func (s *DynamicSource) List(ctx context.Context, ref k8s.ResourceRef) ([]*unstructured.Unstructured, error) {
	list, err := s.resourceInterface(ref).List(ctx, s.listOptions(ref))
	if err != nil {
		return nil, err
	}
	out := make([]*unstructured.Unstructured, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, &list.Items[i])
	}
	return out, nil
}

func (s *DynamicSource) SupportsWatch(ref k8s.ResourceRef) bool {
	return !noWatchKinds[ref.Kind.Plural+"."+ref.Kind.Group]
}

func (s *DynamicSource) Watch(ctx context.Context, ref k8s.ResourceRef) (<-chan WatchEvent, error) {
	w, err := s.resourceInterface(ref).Watch(ctx, s.listOptions(ref))
	if err != nil {
		return nil, err
	}
	out := make(chan WatchEvent)
	go func() {
		defer close(out)
		defer w.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.ResultChan():
				if !ok {
					return
				}
				out <- translateWatchEvent(ev)
			}
		}
	}()
	return out, nil
}

func translateWatchEvent(ev watch.Event) WatchEvent {
	if ev.Type == watch.Error {
		return WatchEvent{Err: apierrorFromStatus(ev.Object)}
	}
	obj, _ := ev.Object.(*unstructured.Unstructured)
	switch ev.Type {
	case watch.Added:
		return WatchEvent{Added: true, Object: obj}
	case watch.Modified:
		return WatchEvent{Modified: true, Object: obj}
	case watch.Deleted:
		return WatchEvent{Deleted: true, Object: obj}
	default:
		return WatchEvent{Modified: true, Object: obj}
	}
}
