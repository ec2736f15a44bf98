// Package k8s holds the data model shared by the observation plane, the
// executor and the resource table: resource references, kinds, namespaces
// and the row/column projection types the rest of the tree builds on.
package k8s

import (
	"strconv"
	"strings"
	"time"
)

// Kind identifies a Kubernetes API resource type by its plural name, group
// and version. Equality ignores Version when either side leaves it empty,
// so a watcher started against "pods" (no version) matches discovery's
// "pods v1".
type Kind struct {
	Plural  string
	Group   string
	Version string
}

func (k Kind) Equal(other Kind) bool {
	if !strings.EqualFold(k.Plural, other.Plural) || !strings.EqualFold(k.Group, other.Group) {
		return false
	}
	if k.Version == "" || other.Version == "" {
		return true
	}
	return strings.EqualFold(k.Version, other.Version)
}

func (k Kind) IsContainers() bool {
	return strings.EqualFold(k.Plural, "containers")
}

func (k Kind) IsNamespaces() bool {
	return k.Group == "" && strings.EqualFold(k.Plural, "namespaces")
}

func (k Kind) String() string {
	if k.Group == "" {
		return k.Plural
	}
	return k.Plural + "." + k.Group
}

// NamespaceKind selects which namespace mode a Namespace value carries.
type NamespaceKind int

const (
	NamespaceNone NamespaceKind = iota
	NamespaceSpecific
	NamespaceAll
)

// AllNamespaces is the sentinel display value for NamespaceAll.
const AllNamespaces = "all namespaces"

// Namespace is either a specific namespace name, the "all namespaces"
// sentinel, or none (for cluster-scoped kinds). The fields are unexported and
// Namespace has no marshalling methods, so an encoded Namespace does not
// carry which of the three it is.
type Namespace struct {
	kind NamespaceKind
	name string
}

func NewNamespace(name string) Namespace {
	if name == "" {
		return Namespace{kind: NamespaceNone}
	}
	return Namespace{kind: NamespaceSpecific, name: name}
}

func AllNamespacesSelector() Namespace { return Namespace{kind: NamespaceAll} }
func NoNamespace() Namespace           { return Namespace{kind: NamespaceNone} }

func (n Namespace) IsAll() bool    { return n.kind == NamespaceAll }
func (n Namespace) IsNone() bool   { return n.kind == NamespaceNone }
func (n Namespace) IsSpecific() bool { return n.kind == NamespaceSpecific }

// Value returns the API-facing namespace string: empty for All/None,
// the specific name otherwise.
func (n Namespace) Value() string {
	if n.kind == NamespaceSpecific {
		return n.name
	}
	return ""
}

func (n Namespace) String() string {
	switch n.kind {
	case NamespaceAll:
		return AllNamespaces
	case NamespaceSpecific:
		return n.name
	default:
		return ""
	}
}

// Filter narrows a watch/list projection beyond kind+namespace.
type Filter struct {
	LabelSelector   string
	FieldSelector   string
	InvolvedObject  string // uid of the owner, for "involved" drill-down views
}

func (f Filter) IsEmpty() bool {
	return f.LabelSelector == "" && f.FieldSelector == "" && f.InvolvedObject == ""
}

// ResourceRef identifies what is being observed or acted on.
type ResourceRef struct {
	Kind      Kind
	Namespace Namespace
	Name      string // empty => list/watch-collection mode; set => watch-by-name
	Container string
	Filter    Filter
}

// IsContainer reports whether this ref addresses container rows of a pod.
func (r ResourceRef) IsContainer() bool {
	return r.Kind.IsContainers() && r.Container == ""
}

// IsNamedWatch reports whether Name selects a single-object watch rather
// than a collection.
func (r ResourceRef) IsNamedWatch() bool { return r.Name != "" }

// ResourceValue is a single display cell: optional display text paired
// with a separate sort key (zero-padded for numerics so lexical ordering
// matches numeric ordering) and an optional encoded timestamp for
// age/last-seen columns.
type ResourceValue struct {
	Text      string
	SortKey   string
	Timestamp *time.Time
}

func NewTextValue(text string) ResourceValue {
	return ResourceValue{Text: text, SortKey: strings.ToLower(text)}
}

func NewTimeValue(t time.Time) ResourceValue {
	return ResourceValue{Text: FormatAge(t), SortKey: t.UTC().Format(time.RFC3339Nano), Timestamp: &t}
}

// ResourceData is the kind-specific payload carried by a ResourceItem:
// extra column values plus state flags the table and filters need.
type ResourceData struct {
	Columns        map[string]ResourceValue
	IsReady        bool
	IsCompleted    bool
	IsTerminating  bool
	IsJob          bool
}

// ResourceItem is a single table row.
type ResourceItem struct {
	Uid       string
	Name      string
	Namespace string
	CreatedAt time.Time
	// Tags is the flattened lowercase bag used by both simple substring
	// and extended boolean-expression filtering: name, "k:v" labels, "k:v"
	// annotations.
	Tags []string
	Data ResourceData
}

// ContainerUid builds the stable uid for a container row: pod uid,
// container name, and I/M for init/main.
func ContainerUid(podUID, container string, isInit bool) string {
	kind := "M"
	if isInit {
		kind = "I"
	}
	return podUID + "." + container + "." + kind
}

// SyntheticUid builds the stable uid for rows that do not back a real
// Kubernetes object, e.g. the "all namespaces" pseudo-row.
func SyntheticUid(name string) string { return "_" + name + "_" }

// FormatAge renders a creation timestamp the way the resource table's age
// column does: compact units, biggest-unit-first.
func FormatAge(t time.Time) string {
	d := time.Since(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return formatUnit(int(d.Seconds()), "s")
	case d < time.Hour:
		return formatUnit(int(d.Minutes()), "m")
	case d < 24*time.Hour:
		return formatUnit(int(d.Hours()), "h")
	default:
		days := int(d.Hours() / 24)
		return formatUnit(days, "d")
	}
}

func formatUnit(n int, suffix string) string {
	if n < 0 {
		n = 0
	}
	return strconv.Itoa(n) + suffix
}
