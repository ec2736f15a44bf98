// Package app is the application orchestrator (spec §4.8): it owns the
// shared AppData, coordinates the Executor, Watchers, port-forward
// supervisor, configuration watchers, and the view stack, and runs the
// fixed per-tick sequence every render frame.
//
// Grounded on the teacher's internal/ui/tui.go model/Update loop (kept as
// in-workspace reference for the bubbletea View rendering idiom) but
// restructured: tui.go interleaves kubectl-subprocess dispatch with view
// state in one 2897-line file, where this package separates the pure
// per-tick orchestration (testable without a terminal) from the bubbletea
// glue in program.go.
package app

import (
	"context"

	"github.com/fioletoven/b4n/internal/config"
	"github.com/fioletoven/b4n/internal/discovery"
	"github.com/fioletoven/b4n/internal/executor"
	"github.com/fioletoven/b4n/internal/k8s"
	"github.com/fioletoven/b4n/internal/portforward"
	"github.com/fioletoven/b4n/internal/resources"
	"github.com/fioletoven/b4n/internal/stats"
	"github.com/fioletoven/b4n/internal/watcher"
)

// ResourcesInfo is the current list view's addressing: kind, namespace,
// active filter/sort, and scroll/highlight position — everything a
// PreviousData record needs to restore on "back".
type ResourcesInfo struct {
	Ref         k8s.ResourceRef
	Header      resources.Header
	FilterText  string
	Extended    bool
	ViewOffset  int
	Highlighted string // uid of the highlighted row, empty if none
}

// PreviousData is one entry in the view stack (spec §4.8: "pushes or pops a
// PreviousData record onto a stack so that back restores kind, namespace,
// filter, sort, offset, and highlighted item").
type PreviousData = ResourcesInfo

// AppData is the shared state every view reads/mutates.
type AppData struct {
	Config  config.Config
	Theme   config.Theme
	History config.History

	Current  ResourcesInfo
	ViewStack []PreviousData

	Connected bool
	XrayMode  bool

	// Kinds is the latest discovery snapshot's resource catalogue (spec
	// §4.2), refreshed each Tick; used to validate/resolve kind names typed
	// into the command palette.
	Kinds []discovery.ApiResource

	Generation uint64 // bumped whenever Statistics changes (spec §4.8 step 4)
}

// FindKind looks up a discovered kind by plural name (case-insensitive),
// resolving its group/version so ChangeKind can build an exact ResourceRef
// instead of guessing at core/v1.
func (a *AppData) FindKind(plural string) (k8s.Kind, bool) {
	for _, r := range a.Kinds {
		if r.Kind.Plural == plural || (len(plural) > 0 && equalFoldASCII(r.Kind.Plural, plural)) {
			return r.Kind, true
		}
	}
	return k8s.Kind{}, false
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// PushView saves Current onto the view stack, then installs next as Current
// (spec §4.8 transitions: ChangeKind, ChangeAndSelect, ViewContainers,
// ViewInvolved, ViewScoped, ...).
func (a *AppData) PushView(next ResourcesInfo) {
	a.ViewStack = append(a.ViewStack, a.Current)
	a.Current = next
}

// PopView restores the most recent PreviousData (ViewPreviousResource); ok
// is false if the stack is empty (caller should no-op, not crash).
func (a *AppData) PopView() (ResourcesInfo, bool) {
	if len(a.ViewStack) == 0 {
		return ResourcesInfo{}, false
	}
	last := len(a.ViewStack) - 1
	prev := a.ViewStack[last]
	a.ViewStack = a.ViewStack[:last]
	a.Current = prev
	return prev, true
}

// ChangeKind switches Current to list the given kind in ns, pushing the
// prior view. With no explicit selection, a ChangeKind to the namespaces
// kind highlights the current namespace by default (spec §4.8).
func (a *AppData) ChangeKind(kind k8s.Kind, ns k8s.Namespace) {
	next := ResourcesInfo{Ref: k8s.ResourceRef{Kind: kind, Namespace: ns}}
	if kind.IsNamespaces() {
		next.Highlighted = ns.Value()
	}
	a.PushView(next)
}

// ChangeNamespace re-scopes the current kind to a new namespace without
// touching the view stack (it is a refinement of Current, not a
// navigation).
func (a *AppData) ChangeNamespace(ns k8s.Namespace) {
	a.Current.Ref.Namespace = ns
}

// ChangeAndSelect pushes a new kind/namespace view with a specific row
// pre-highlighted (e.g. jumping from an owner reference to its object).
func (a *AppData) ChangeAndSelect(kind k8s.Kind, ns k8s.Namespace, uid string) {
	a.PushView(ResourcesInfo{Ref: k8s.ResourceRef{Kind: kind, Namespace: ns}, Highlighted: uid})
}

// ChangeAndSelectPrev is ChangeAndSelect but replaces the top of the stack
// instead of pushing (used when refining a selection within the same
// logical navigation step, e.g. re-filtering before committing the jump).
func (a *AppData) ChangeAndSelectPrev(kind k8s.Kind, ns k8s.Namespace, uid string) {
	if len(a.ViewStack) > 0 {
		a.ViewStack[len(a.ViewStack)-1] = ResourcesInfo{Ref: k8s.ResourceRef{Kind: kind, Namespace: ns}, Highlighted: uid}
		return
	}
	a.Current = ResourcesInfo{Ref: k8s.ResourceRef{Kind: kind, Namespace: ns}, Highlighted: uid}
}

// ViewContainers pushes a container-rows view for the given pod (spec
// §4.1/§4.7 container fan-out; spec §4.8 names this transition). The pushed
// Ref's Kind is the synthetic "containers" kind so ResourceRef.IsContainer()
// recognizes it and the Watcher fans the pod out per-container.
func (a *AppData) ViewContainers(pod k8s.ResourceRef) {
	a.PushView(ResourcesInfo{Ref: k8s.ResourceRef{
		Kind:      k8s.Kind{Plural: "containers"},
		Namespace: pod.Namespace,
		Name:      pod.Name,
	}})
}

// ViewInvolved pushes an events-filtered-by-involved-object view (the xray
// drill-down named in SPEC_FULL.md's Supplemented features and referenced
// here by spec §4.8's ViewInvolved transition).
func (a *AppData) ViewInvolved(involvedUID string, ns k8s.Namespace) {
	a.PushView(ResourcesInfo{Ref: k8s.ResourceRef{
		Kind:      k8s.Kind{Plural: "events"},
		Namespace: ns,
		Filter:    k8s.Filter{InvolvedObject: involvedUID},
	}})
}

// ViewScoped pushes a view scoped by an extra label/field filter (e.g.
// "pods of this deployment") without changing kind/namespace otherwise.
func (a *AppData) ViewScoped(filter k8s.Filter) {
	next := a.Current
	next.Ref.Filter = filter
	a.PushView(next)
}

// ViewScopedPrev is ViewScoped but replaces the stack top instead of
// pushing, mirroring ChangeAndSelectPrev's "refine, don't navigate" shape.
func (a *AppData) ViewScopedPrev(filter k8s.Filter) {
	if len(a.ViewStack) > 0 {
		top := a.ViewStack[len(a.ViewStack)-1]
		top.Ref.Filter = filter
		a.ViewStack[len(a.ViewStack)-1] = top
		return
	}
	a.Current.Ref.Filter = filter
}

// ViewPreviousResource is the "back" action: pop the stack, or no-op at the
// root.
func (a *AppData) ViewPreviousResource() {
	a.PopView()
}

// Engines bundles every background component the orchestrator coordinates,
// so Tick can drain them uniformly (spec §4.8 per-tick sequence).
type Engines struct {
	Bundle      *k8s.Bundle
	Primary     *watcher.Watcher // the Watcher backing AppData.Current
	Discovery   *discovery.Discovery
	Stats       *stats.Stats
	Executor    *executor.Executor
	PortForward *portforward.Supervisor
	ConfigStore *config.Store
}

// Orchestrator runs the fixed per-tick sequence from spec §4.8 over one
// AppData/Engines pair. RouteResult and RoutePortForwardEvent are supplied by the
// bubbletea glue layer (program.go) so this package stays render-agnostic.
type Orchestrator struct {
	Data    *AppData
	Engines *Engines

	// RouteResult is called once per executor.TaskResult drained this tick,
	// routing it by id to the current view's matching handler (step 2).
	RouteResult func(executor.TaskResult)

	// RoutePortForwardEvent is called once per portforward.Event drained
	// this tick (step 3), so the forwards pane can render live counters
	// instead of the event being sampled and thrown away.
	RoutePortForwardEvent func(portforward.Event)
}

// Tick executes spec §4.8's seven-step sequence. File-watcher draining
// (step 1) and TUI event dispatch/rendering (steps 6-7) are handled by the
// fsnotify callback on config.Store and by the bubbletea glue in
// program.go respectively; Tick covers the orchestration proper: draining
// the Executor (step 2), sampling port-forward events (step 3), updating
// the statistics generation (step 4), and refreshing the connection flag
// plus overdue check (step 5).
func (o *Orchestrator) Tick(ctx context.Context) {
	for {
		r, ok := o.Engines.Executor.TryNext()
		if !ok {
			break
		}
		if o.RouteResult != nil {
			o.RouteResult(r)
		}
	}

	for {
		e, ok := o.Engines.PortForward.TryNext()
		if !ok {
			break
		}
		if o.RoutePortForwardEvent != nil {
			o.RoutePortForwardEvent(e)
		}
	}

	if snap, ok := o.Engines.Discovery.TryNext(); ok {
		o.Data.Kinds = snap.Resources
	}

	o.Engines.Stats.Tick()
	if snap := o.Engines.Stats.Snapshot(); snap.Generation != 0 {
		o.Data.Generation = uint64(snap.Generation)
	}

	o.Data.Connected = !o.Engines.Primary.HasError()
	o.Engines.Executor.CheckClientOverdue(ctx)
}
