package watcher

import (
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
)

// apierrorFromStatus converts a watch.Error event's payload (normally a
// *metav1.Status) into a Go error classifiable by k8s.IsForbidden/IsNotFound.
func apierrorFromStatus(obj runtime.Object) error {
	return apierrors.FromObject(obj)
}
