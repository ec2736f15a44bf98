package app

import (
	"testing"

	"github.com/fioletoven/b4n/internal/k8s"
)

func TestChangeKindToNamespacesHighlightsCurrent(t *testing.T) {
	a := &AppData{Current: ResourcesInfo{Ref: k8s.ResourceRef{Namespace: k8s.NewNamespace("prod")}}}
	a.ChangeKind(k8s.Kind{Plural: "namespaces"}, k8s.NewNamespace("prod"))
	if a.Current.Highlighted != "prod" {
		t.Fatalf("expected prod highlighted by default, got %q", a.Current.Highlighted)
	}
}

func TestViewStackRoundTrips(t *testing.T) {
	a := &AppData{}
	a.Current = ResourcesInfo{Ref: k8s.ResourceRef{Kind: k8s.Kind{Plural: "pods"}, Namespace: k8s.NewNamespace("default")}}
	a.ChangeAndSelect(k8s.Kind{Plural: "events"}, k8s.NewNamespace("default"), "uid-1")

	if a.Current.Ref.Kind.Plural != "events" {
		t.Fatalf("expected events to be current after push, got %q", a.Current.Ref.Kind.Plural)
	}
	prev, ok := a.PopView()
	if !ok {
		t.Fatal("expected a view to pop")
	}
	if prev.Ref.Kind.Plural != "pods" {
		t.Fatalf("expected pods restored after pop, got %q", prev.Ref.Kind.Plural)
	}
	if a.Current.Ref.Kind.Plural != "pods" {
		t.Fatalf("expected Current restored to pods, got %q", a.Current.Ref.Kind.Plural)
	}
}

func TestPopViewOnEmptyStackIsNoOp(t *testing.T) {
	a := &AppData{Current: ResourcesInfo{Ref: k8s.ResourceRef{Kind: k8s.Kind{Plural: "pods"}}}}
	_, ok := a.PopView()
	if ok {
		t.Fatal("expected PopView on an empty stack to report ok=false")
	}
	if a.Current.Ref.Kind.Plural != "pods" {
		t.Fatal("expected Current unchanged on empty-stack pop")
	}
}
