package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fioletoven/b4n/internal/config"
	"github.com/fioletoven/b4n/internal/content"
	"github.com/fioletoven/b4n/internal/discovery"
	"github.com/fioletoven/b4n/internal/executor"
	"github.com/fioletoven/b4n/internal/k8s"
	"github.com/fioletoven/b4n/internal/listmodel"
	"github.com/fioletoven/b4n/internal/portforward"
	"github.com/fioletoven/b4n/internal/resources"
	"github.com/fioletoven/b4n/internal/shell"
	"github.com/fioletoven/b4n/internal/stats"
	"github.com/fioletoven/b4n/internal/terminal"
	"github.com/fioletoven/b4n/internal/watcher"
)

// Options mirrors the teacher's internal/ui.Options, trimmed to the fields
// SPEC_FULL.md's CLI section names (kubeconfig/context/namespace/insecure
// TLS/log level/initial kind) and with AI/kubectl-fallback fields dropped.
type Options struct {
	Kubeconfig            string
	Context               string
	Namespace             string
	InsecureSkipTLSVerify bool
	LogLevel              string
	InitialKind           string
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("24")).Padding(0, 1)
	footerStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Padding(0, 1)
	selectedRow        = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	disconnectedBadge  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	xrayBadge          = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	errorStatusStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

type tickMsg time.Time

func tickEvery() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// viewMode selects what the bottom input line / main body is currently
// driving: the plain resource table, the `/` filter box, the `:` command
// palette, the YAML editor (spec §4.6) or a live shell session (spec §4.5's
// sibling exec bridge).
type viewMode int

const (
	modeList viewMode = iota
	modeFilter
	modePalette
	modeEditor
	modeShell
)

// forwardInfo is one port-forward's display row; Active/Overall/Errors are
// refreshed from the Supervisor's live Counters on every render.
type forwardInfo struct {
	id   uuid.UUID
	ref  k8s.ResourceRef
	port int
	addr string
}

// uiState holds every piece of Model state that must survive being mutated
// from outside the bubbletea Update loop -- namely from the RouteResult and
// RoutePortForwardEvent callbacks the Orchestrator invokes mid-Tick. Model
// itself is copied by value on every Update call (bubbletea's convention),
// so anything a callback captured at NewModel time has to live behind a
// pointer for the mutation to be visible on the next render.
type uiState struct {
	pendingFetch  map[uuid.UUID]k8s.ResourceRef
	pendingSet    map[uuid.UUID]k8s.ResourceRef
	pendingDelete map[uuid.UUID]int
	pendingPorts  map[uuid.UUID]k8s.ResourceRef

	editor  *content.Document
	editRef k8s.ResourceRef
	cursorX int
	cursorY int

	shellSession *shell.Session
	shellScreen  shell.Screen
	shellRef     k8s.ResourceRef

	forwards []forwardInfo

	status      string
	statusIsErr bool
}

func newUIState() *uiState {
	return &uiState{
		pendingFetch:  map[uuid.UUID]k8s.ResourceRef{},
		pendingSet:    map[uuid.UUID]k8s.ResourceRef{},
		pendingDelete: map[uuid.UUID]int{},
		pendingPorts:  map[uuid.UUID]k8s.ResourceRef{},
	}
}

func (u *uiState) setStatus(msg string, isErr bool) {
	u.status = msg
	u.statusIsErr = isErr
}

// Model is the bubbletea glue: it owns the Orchestrator, the resource
// table's ScrollableList, and the mouse/key translator, and renders one
// frame from AppData on each tick.
type Model struct {
	orch      *Orchestrator
	list      *listmodel.ScrollableList[k8s.ResourceItem]
	events    *terminal.Translator
	filter    textinput.Model
	palette   textinput.Model
	mode      viewMode
	ui        *uiState
	ctx       context.Context
	width     int
	height    int
	log       *logrus.Logger
}

func NewModel(ctx context.Context, orch *Orchestrator, log *logrus.Logger) Model {
	fi := textinput.New()
	fi.Prompt = "/"
	fi.CharLimit = 200

	pal := textinput.New()
	pal.Prompt = ":"
	pal.CharLimit = 200

	m := Model{
		orch:    orch,
		list:    listmodel.NewScrollableList[k8s.ResourceItem](),
		events:  terminal.NewTranslator(orch.Data.Config.Mouse),
		filter:  fi,
		palette: pal,
		ui:      newUIState(),
		ctx:     ctx,
		log:     log,
	}

	// RouteResult/RoutePortForwardEvent are assigned once here, closing over
	// m.ui (a pointer, so mutations are visible regardless of Model's
	// value-copy semantics) rather than over m itself (spec §4.8 step 2-3).
	orch.RouteResult = m.routeResult
	orch.RoutePortForwardEvent = m.routePortForwardEvent

	return m
}

func (m Model) Init() tea.Cmd {
	return tickEvery()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetViewHeight(m.height)
		return m, nil
	case tea.KeyMsg:
		switch m.mode {
		case modeFilter:
			return m.updateFiltering(msg)
		case modePalette:
			return m.updatePalette(msg)
		case modeEditor:
			return m.updateEditor(msg)
		case modeShell:
			return m.updateShell(msg)
		}
		return m.updateList(msg)
	case tea.MouseMsg:
		if m.mode != modeList {
			return m, nil
		}
		me := m.events.TranslateMouse(msg)
		switch me.Kind {
		case terminal.ScrollDown:
			m.list.MoveCursor(1)
		case terminal.ScrollUp:
			m.list.MoveCursor(-1)
		case terminal.ClickLeft, terminal.LeftDoubleClick:
			if row := me.Row - 1; row >= 0 && row < m.list.List().Len() {
				m.list.SetHighlighted(row)
			}
		}
		return m, nil
	case tickMsg:
		m.orch.Tick(m.ctx)
		m.drainPrimary()
		return m, tickEvery()
	}
	return m, nil
}

// updateList handles every key binding available over the plain resource
// table (spec §4.8 transitions plus the executor-backed actions).
func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := m.events.TranslateKey(msg)
	switch {
	case key.Code == "q", key.Code == "c" && key.Modifiers.Ctrl:
		return m, tea.Quit
	case key.Code == "esc":
		if prev, ok := m.orch.Data.PopView(); ok {
			m.restartPrimary(prev.Ref)
		}
		return m, nil
	case key.Code == "down", key.Code == "j":
		m.list.MoveCursor(1)
		return m, nil
	case key.Code == "up", key.Code == "k":
		m.list.MoveCursor(-1)
		return m, nil
	case key.Code == "/":
		m.mode = modeFilter
		m.filter.SetValue(m.orch.Data.Current.FilterText)
		m.filter.Focus()
		return m, textinput.Blink
	case key.Code == ":":
		m.mode = modePalette
		m.palette.SetValue("")
		m.palette.Focus()
		return m, textinput.Blink
	case key.Code == "x":
		m.orch.Data.XrayMode = !m.orch.Data.XrayMode
		return m, nil
	case key.Code == "enter":
		if ref, ok := m.highlightedRef(); ok && m.orch.Data.Current.Ref.Kind.Plural == "pods" {
			m.orch.Data.ViewContainers(ref)
			m.restartPrimary(m.orch.Data.Current.Ref)
		}
		return m, nil
	case key.Code == "i":
		if item, ok := m.highlightedItem(); ok {
			m.orch.Data.ViewInvolved(item.Uid, m.orch.Data.Current.Ref.Namespace)
			m.restartPrimary(m.orch.Data.Current.Ref)
		}
		return m, nil
	case key.Code == "y":
		m.startFetchYAML()
		return m, nil
	case key.Code == "d":
		m.startDelete()
		return m, nil
	case key.Code == "s":
		m.startShell()
		return m, nil
	case key.Code == "S":
		sortHeader := m.orch.Data.Current.Header
		sortHeader.Sort.ToggleSort(m.list.Highlighted())
		m.orch.Data.Current.Header = sortHeader
		m.resort()
		return m, nil
	}
	return m, nil
}

func (m Model) highlightedRef() (k8s.ResourceRef, bool) {
	item, ok := m.highlightedItem()
	if !ok {
		return k8s.ResourceRef{}, false
	}
	ref := m.orch.Data.Current.Ref
	ref.Name = item.Name
	ref.Namespace = k8s.NewNamespace(item.Namespace)
	return ref, true
}

func (m Model) highlightedItem() (k8s.ResourceItem, bool) {
	l := m.list.List()
	i := m.list.Highlighted()
	if i < 0 || i >= l.Len() {
		return k8s.ResourceItem{}, false
	}
	return l.At(i).Value, true
}

// restartPrimary restarts the primary Watcher against ref and clears the
// table, since navigating (ChangeKind/ViewContainers/ViewInvolved/back) is
// meaningless unless the observation plane actually re-points at the new
// Ref (spec §4.8's transitions otherwise only mutate AppData, never the
// running projection).
func (m *Model) restartPrimary(ref k8s.ResourceRef) {
	m.orch.Engines.Primary.Restart(m.ctx, ref)
	m.list.SetItems(nil, func(it k8s.ResourceItem) string { return it.Uid })
}

func (m *Model) resort() {
	items := itemValues(m.list)
	resources.SortItems(items, m.orch.Data.Current.Header)
	wrapped := make([]listmodel.Item[k8s.ResourceItem], len(items))
	for i, it := range items {
		wrapped[i] = listmodel.Item[k8s.ResourceItem]{Value: it}
	}
	m.list.SetItems(wrapped, func(it k8s.ResourceItem) string { return it.Uid })
}

// drainPrimary applies Apply/Delete events from the primary Watcher into
// the ScrollableList backing the resource table, preserving the
// highlighted row across reconciliation by uid.
func (m *Model) drainPrimary() {
	changed := false
	items := append([]k8s.ResourceItem(nil), itemValues(m.list)...)
	for {
		r, ok := m.orch.Engines.Primary.TryNext()
		if !ok {
			break
		}
		switch r.Kind {
		case watcher.EventApply:
			var item k8s.ResourceItem
			switch {
			case r.Item != nil:
				item = *r.Item
			case r.Object != nil:
				toItem, header := resources.Dispatch(m.orch.Data.Current.Ref.Kind.Plural)
				var err error
				item, err = toItem(r.Object, m.orch.Data.Current.Ref.Namespace.IsAll())
				if err != nil {
					continue
				}
				if len(m.orch.Data.Current.Header.Columns) == 0 {
					m.orch.Data.Current.Header = header(m.orch.Data.Current.Ref.Namespace.IsAll())
				}
			default:
				continue
			}
			items = upsertItem(items, item)
			changed = true
		case watcher.EventDelete:
			items = removeItem(items, r.Uid)
			changed = true
		}
	}
	if !changed {
		return
	}
	if len(m.orch.Data.Current.Header.Columns) > 0 {
		resources.SortItems(items, m.orch.Data.Current.Header)
	}
	wrapped := make([]listmodel.Item[k8s.ResourceItem], len(items))
	for i, it := range items {
		wrapped[i] = listmodel.Item[k8s.ResourceItem]{Value: it}
	}
	m.list.SetItems(wrapped, func(it k8s.ResourceItem) string { return it.Uid })
}

func itemValues(l *listmodel.ScrollableList[k8s.ResourceItem]) []k8s.ResourceItem {
	out := make([]k8s.ResourceItem, l.List().FullLen())
	for i := 0; i < l.List().FullLen(); i++ {
		out[i] = l.List().FullAt(i).Value
	}
	return out
}

func upsertItem(items []k8s.ResourceItem, item k8s.ResourceItem) []k8s.ResourceItem {
	for i := range items {
		if items[i].Uid == item.Uid {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

func removeItem(items []k8s.ResourceItem, uid string) []k8s.ResourceItem {
	for i := range items {
		if items[i].Uid == uid {
			return append(items[:i], items[i+1:]...)
		}
	}
	return items
}

// updateFiltering routes key input to the bubbles/textinput filter box
// (spec's filter-expression feature, internal/resources/filter.go)
// while it is focused; Enter commits the filter, Esc cancels it.
func (m Model) updateFiltering(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeList
		m.filter.Blur()
		return m, nil
	case tea.KeyEnter:
		m.mode = modeList
		m.filter.Blur()
		text := m.filter.Value()
		m.orch.Data.Current.FilterText = text
		if text == "" {
			m.list.List().ClearFilter()
		} else if expr, err := resources.ParseExtendedFilter(strings.ToLower(text)); err == nil {
			m.list.List().SetFilter(func(it listmodel.Item[k8s.ResourceItem]) bool {
				return expr.Eval(it.Value.Tags)
			})
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	return m, cmd
}

// updatePalette drives the `:`-command palette (SPEC_FULL.md's Supplemented
// "command palette" feature): a single text line parsed as "<verb> [arg]"
// against the already-written AppData transition methods, so switching kind
// or namespace, or listing contexts, doesn't need a dedicated key per
// action.
func (m Model) updatePalette(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeList
		m.palette.Blur()
		return m, nil
	case tea.KeyEnter:
		m.mode = modeList
		m.palette.Blur()
		m.runPaletteCommand(m.palette.Value())
		return m, nil
	}
	var cmd tea.Cmd
	m.palette, cmd = m.palette.Update(msg)
	return m, cmd
}

func (m *Model) runPaletteCommand(line string) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return
	}
	verb := strings.ToLower(fields[0])
	arg := ""
	if len(fields) > 1 {
		arg = strings.Join(fields[1:], " ")
	}

	switch verb {
	case "ns", "namespace":
		ns := k8s.NewNamespace(arg)
		if arg == k8s.AllNamespaces || arg == "all" {
			ns = k8s.AllNamespacesSelector()
		}
		m.orch.Data.ChangeNamespace(ns)
		m.restartPrimary(m.orch.Data.Current.Ref)
		m.ui.setStatus("namespace: "+ns.String(), false)
	case "kind":
		kind, ok := m.orch.Data.FindKind(arg)
		if !ok {
			kind = k8s.Kind{Plural: arg}
		}
		m.orch.Data.ChangeKind(kind, m.orch.Data.Current.Ref.Namespace)
		m.restartPrimary(m.orch.Data.Current.Ref)
		m.ui.setStatus("kind: "+kind.String(), false)
	case "ctx", "contexts":
		m.orch.Engines.Executor.RunCommand(m.ctx, executor.Command{Kind: executor.CmdListContexts})
		m.ui.setStatus("listing contexts...", false)
	case "pf", "portforward":
		m.startPortForward(arg)
	case "x", "xray":
		m.orch.Data.XrayMode = !m.orch.Data.XrayMode
	default:
		m.ui.setStatus("unknown command: "+verb, true)
	}
}

// startFetchYAML issues CmdFetchYAML for the highlighted row and records the
// request id so routeResult can open the editor once the result lands
// (spec §4.4/§4.6).
func (m *Model) startFetchYAML() {
	ref, ok := m.highlightedRef()
	if !ok {
		return
	}
	id := m.orch.Engines.Executor.RunCommand(m.ctx, executor.Command{
		Kind:    executor.CmdFetchYAML,
		Payload: FetchYAMLPayload{Ref: ref},
	})
	m.ui.pendingFetch[id] = ref
	m.ui.setStatus("fetching "+ref.Name+"...", false)
}

func (m *Model) startDelete() {
	ref, ok := m.highlightedRef()
	if !ok {
		return
	}
	id := m.orch.Engines.Executor.RunCommand(m.ctx, executor.Command{
		Kind:    executor.CmdDeleteResources,
		Payload: DeletePayload{Refs: []k8s.ResourceRef{ref}},
	})
	m.ui.pendingDelete[id] = 1
	m.ui.setStatus("deleting "+ref.Name+"...", false)
}

// startShell opens an in-process exec session against the highlighted pod
// (spec §4.5's sibling shell bridge), switching the view into modeShell once
// the session is live.
func (m *Model) startShell() {
	ref, ok := m.highlightedRef()
	if !ok || m.orch.Data.Current.Ref.Kind.Plural != "pods" {
		return
	}
	session, screen, err := shell.Start(m.ctx, m.orch.Engines.Bundle.RestConfig, m.orch.Engines.Bundle.Clientset, shell.Options{
		Ref:  ref,
		Cols: m.width,
		Rows: m.height - 2,
	})
	if err != nil {
		m.ui.setStatus("shell: "+err.Error(), true)
		return
	}
	m.ui.shellSession = session
	m.ui.shellScreen = screen
	m.ui.shellRef = ref
	m.mode = modeShell
}

func (m *Model) updateShell(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEsc && len(msg.Runes) == 0 {
		if m.ui.shellSession != nil {
			m.ui.shellSession.Close()
		}
		m.ui.shellSession = nil
		m.ui.shellScreen = nil
		m.mode = modeList
		return m, nil
	}
	if m.ui.shellSession != nil {
		_, _ = m.ui.shellSession.Write([]byte(msg.String()))
	}
	return m, nil
}

// startPortForward parses "<port> [localAddr]" and starts a forward to the
// highlighted pod through the already-constructed Supervisor (spec §4.5).
func (m *Model) startPortForward(arg string) {
	ref, ok := m.highlightedRef()
	if !ok || m.orch.Data.Current.Ref.Kind.Plural != "pods" {
		m.ui.setStatus("pf: select a pod first", true)
		return
	}
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		m.ui.setStatus("pf: usage \"pf <port> [addr]\"", true)
		return
	}
	port, err := strconv.Atoi(fields[0])
	if err != nil {
		m.ui.setStatus("pf: invalid port "+fields[0], true)
		return
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	if len(fields) > 1 {
		addr = fields[1]
	}
	id, err := m.orch.Engines.PortForward.Start(m.ctx, ref, port, addr)
	if err != nil {
		m.ui.setStatus("pf: "+err.Error(), true)
		return
	}
	m.ui.forwards = append(m.ui.forwards, forwardInfo{id: id, ref: ref, port: port, addr: addr})
	m.ui.setStatus(fmt.Sprintf("forwarding %s -> %s:%d", addr, ref.Name, port), false)
}

// routeResult is assigned to Orchestrator.RouteResult once, in NewModel; it
// runs mid-Tick (spec §4.8 step 2) and only ever touches m.ui (pointer
// fields), never the Model value it closed over.
func (m Model) routeResult(r executor.TaskResult) {
	if ref, ok := m.ui.pendingFetch[r.Id]; ok {
		delete(m.ui.pendingFetch, r.Id)
		if r.Result.Err != nil {
			m.ui.setStatus("fetch: "+r.Result.Err.Error(), true)
			return
		}
		raw, _ := r.Result.Value.(string)
		m.openEditor(ref, raw)
		return
	}
	if _, ok := m.ui.pendingSet[r.Id]; ok {
		delete(m.ui.pendingSet, r.Id)
		if r.Result.Err != nil {
			m.ui.setStatus("save: "+r.Result.Err.Error(), true)
			return
		}
		m.ui.setStatus("saved", false)
		return
	}
	if _, ok := m.ui.pendingDelete[r.Id]; ok {
		delete(m.ui.pendingDelete, r.Id)
		if r.Result.Err != nil {
			m.ui.setStatus("delete: "+r.Result.Err.Error(), true)
			return
		}
		m.ui.setStatus("deleted", false)
		return
	}
	if _, ok := m.ui.pendingPorts[r.Id]; ok {
		delete(m.ui.pendingPorts, r.Id)
		if r.Result.Err != nil {
			return
		}
		if ports, ok := r.Result.Value.([]int); ok {
			m.ui.setStatus(fmt.Sprintf("ports: %v", ports), false)
		}
		return
	}
	if r.Result.Err != nil {
		m.ui.setStatus(r.Result.Err.Error(), true)
	}
}

// routePortForwardEvent is assigned to Orchestrator.RoutePortForwardEvent
// once, in NewModel (spec §4.8 step 3): it updates m.ui.status so the
// forwards pane reflects accept/close/error events as they happen instead
// of the event being drained and discarded.
func (m Model) routePortForwardEvent(e portforward.Event) {
	switch e.Kind {
	case portforward.EventTaskStopped:
		for i, f := range m.ui.forwards {
			if f.id == e.Task {
				m.ui.forwards = append(m.ui.forwards[:i], m.ui.forwards[i+1:]...)
				break
			}
		}
	case portforward.EventConnectionError:
		if e.Err != nil {
			m.ui.setStatus("forward error: "+e.Err.Error(), true)
		}
	}
}

func (m *Model) openEditor(ref k8s.ResourceRef, raw string) {
	lines := strings.Split(raw, "\n")
	styled := make([]content.StyledLine, len(lines))
	for i, line := range lines {
		styled[i] = content.StyledLine{{Text: line}}
	}
	m.ui.editor = content.NewDocument(styled, true, content.StyleFallback{}, nil)
	m.ui.editRef = ref
	m.ui.cursorX, m.ui.cursorY = 0, 0
	m.mode = modeEditor
}

// updateEditor drives the YAML editor view (spec §4.6), routing printable
// keys and structural edits (newline, backspace, arrows) through
// internal/content.Document's edit operations, and committing via
// CmdSetYAML on Ctrl+S.
func (m Model) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	doc := m.ui.editor
	if doc == nil {
		m.mode = modeList
		return m, nil
	}
	pos := content.Position{X: m.ui.cursorX, Y: m.ui.cursorY}

	switch {
	case msg.Type == tea.KeyEsc:
		m.ui.editor = nil
		m.mode = modeList
		return m, nil
	case msg.Type == tea.KeyCtrlS:
		m.commitEditor()
		return m, nil
	case msg.Type == tea.KeyEnter:
		next := doc.InsertChar(pos, '\n')
		m.ui.cursorX, m.ui.cursorY = next.X, next.Y
		return m, nil
	case msg.Type == tea.KeyBackspace:
		if next, ok := doc.RemoveChar(pos, true); ok {
			m.ui.cursorX, m.ui.cursorY = next.X, next.Y
		}
		return m, nil
	case msg.Type == tea.KeyDelete:
		doc.RemoveChar(pos, false)
		return m, nil
	case msg.Type == tea.KeyLeft:
		if m.ui.cursorX > 0 {
			m.ui.cursorX--
		}
		return m, nil
	case msg.Type == tea.KeyRight:
		if m.ui.cursorX < doc.LineSize(m.ui.cursorY) {
			m.ui.cursorX++
		}
		return m, nil
	case msg.Type == tea.KeyUp:
		if m.ui.cursorY > 0 {
			m.ui.cursorY--
		}
		return m, nil
	case msg.Type == tea.KeyDown:
		if m.ui.cursorY < doc.Len()-1 {
			m.ui.cursorY++
		}
		return m, nil
	case msg.Type == tea.KeyCtrlZ:
		if next, ok := doc.Undo(); ok {
			m.ui.cursorX, m.ui.cursorY = next.X, next.Y
		}
		return m, nil
	case msg.Type == tea.KeyRunes:
		for _, ch := range msg.Runes {
			next := doc.InsertChar(content.Position{X: m.ui.cursorX, Y: m.ui.cursorY}, ch)
			m.ui.cursorX, m.ui.cursorY = next.X, next.Y
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) commitEditor() {
	if m.ui.editor == nil {
		return
	}
	raw := strings.Join(m.ui.editor.Plain, "\n")
	id := m.orch.Engines.Executor.RunCommand(m.ctx, executor.Command{
		Kind:    executor.CmdSetYAML,
		Payload: SetYAMLPayload{Ref: m.ui.editRef, Raw: raw},
	})
	m.ui.pendingSet[id] = m.ui.editRef
	m.ui.editor = nil
	m.mode = modeList
	m.ui.setStatus("saving "+m.ui.editRef.Name+"...", false)
}

// statsByUid flattens a Statistics snapshot's node-grouped pods into a flat
// uid -> PodEntry map, so the pods table can look metrics up per row (spec
// §4.3/§4.7's optional CPU+MEM column).
func statsByUid(snap stats.Statistics) map[string]stats.PodEntry {
	out := make(map[string]stats.PodEntry, len(snap.Nodes))
	for _, node := range snap.Nodes {
		for _, pod := range node.Pods {
			out[pod.Uid] = pod
		}
	}
	return out
}

func formatMillis(m int64) string {
	return strconv.FormatInt(m, 10) + "m"
}

func formatBytes(b int64) string {
	const mi = 1024 * 1024
	return strconv.FormatInt(b/mi, 10) + "Mi"
}

func (m Model) View() string {
	switch m.mode {
	case modeEditor:
		return m.viewEditor()
	case modeShell:
		return m.viewShell()
	}

	status := "connected"
	if !m.orch.Data.Connected {
		status = disconnectedBadge.Render("disconnected")
	}
	badge := ""
	if m.orch.Data.XrayMode {
		badge = " " + xrayBadge.Render("xray")
	}
	header := headerStyle.Render(fmt.Sprintf(" %s  ns:%s  %s%s ",
		m.orch.Data.Current.Ref.Kind.Plural,
		m.orch.Data.Current.Ref.Namespace.String(),
		status, badge))

	var podMetrics map[string]stats.PodEntry
	if m.orch.Data.Current.Ref.Kind.Plural == "pods" {
		podMetrics = statsByUid(m.orch.Engines.Stats.Snapshot())
	}

	var body string
	start, count := m.list.Visible()
	highlighted := m.list.Highlighted()
	for i := 0; i < count; i++ {
		item := m.list.List().At(start + i).Value
		line := fmt.Sprintf("%-40s %6s", item.Name, k8s.FormatAge(item.CreatedAt))
		if podMetrics != nil {
			if pe, ok := podMetrics[item.Uid]; ok {
				var cpu, mem int64
				for _, c := range pe.Containers {
					cpu += c.CPUMillis
					mem += c.MemoryBytes
				}
				line += fmt.Sprintf("  %8s %8s", formatMillis(cpu), formatBytes(mem))
			}
		}
		if m.orch.Data.XrayMode {
			line += "  " + item.Uid
		}
		if start+i == highlighted {
			line = selectedRow.Render(line)
		}
		body += line + "\n"
	}

	footerText := fmt.Sprintf(" %d items  gen:%d  kinds:%d  forwards:%d  q: quit  esc: back  /: filter  :: cmd  y: yaml  d: delete  s: shell  x: xray ",
		m.list.List().Len(), m.orch.Data.Generation, len(m.orch.Data.Kinds), len(m.ui.forwards))
	footer := footerStyle.Render(footerText)

	var statusLine string
	if m.ui.status != "" {
		if m.ui.statusIsErr {
			statusLine = "\n" + errorStatusStyle.Render(m.ui.status)
		} else {
			statusLine = "\n" + statusStyle.Render(m.ui.status)
		}
	}

	switch m.mode {
	case modeFilter:
		return header + "\n" + body + footer + statusLine + "\n" + m.filter.View()
	case modePalette:
		return header + "\n" + body + footer + statusLine + "\n" + m.palette.View()
	}
	return header + "\n" + body + footer + statusLine
}

func (m Model) viewEditor() string {
	if m.ui.editor == nil {
		return ""
	}
	header := headerStyle.Render(fmt.Sprintf(" edit %s  ctrl+s: save  esc: cancel  ctrl+z: undo ", m.ui.editRef.Name))
	lines := m.ui.editor.Page(0, m.ui.editor.Len())
	var body string
	for _, l := range lines {
		body += l.PlainText() + "\n"
	}
	return header + "\n" + body
}

func (m Model) viewShell() string {
	header := headerStyle.Render(fmt.Sprintf(" shell %s  esc: close ", m.ui.shellRef.Name))
	if m.ui.shellScreen == nil {
		return header
	}
	return header + "\n" + m.ui.shellScreen.String()
}

// Run wires a k8s.Bundle and every background engine per Options, then
// starts the bubbletea program in the alternate screen. Mouse capture is
// always on: Config.Mouse selects all-motion reporting, otherwise cell-motion
// reporting is used; capture itself cannot be switched off.
func Run(opts Options) error {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(opts.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	bundle, err := k8s.NewBundle(opts.Kubeconfig, opts.Context, opts.InsecureSkipTLSVerify)
	if err != nil {
		return fmt.Errorf("connecting to cluster: %w", err)
	}

	cfgStore, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	defer cfgStore.Close()

	ns := k8s.NewNamespace(opts.Namespace)
	kind := k8s.Kind{Plural: opts.InitialKind}
	if kind.Plural == "" {
		kind = k8s.Kind{Plural: "pods"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &watcher.DynamicSource{Client: bundle.Dynamic}
	primary := watcher.New(source)
	primary.Start(ctx, k8s.ResourceRef{Kind: kind, Namespace: ns})

	disc := discovery.New(&discovery.ClientGoSource{Client: bundle.Discovery})
	disc.Start(ctx)

	podsWatcher := watcher.New(source)
	podMetricsSource := &watcher.DynamicSource{Client: bundle.Dynamic}
	nodeMetricsSource := &watcher.DynamicSource{Client: bundle.Dynamic}
	podMetricsWatcher := watcher.New(podMetricsSource)
	nodeMetricsWatcher := watcher.New(nodeMetricsSource)
	podsWatcher.Start(ctx, k8s.ResourceRef{Kind: k8s.Kind{Plural: "pods"}, Namespace: k8s.NewNamespace("")})
	podMetricsWatcher.Start(ctx, k8s.ResourceRef{Kind: k8s.Kind{Plural: "pods", Group: "metrics.k8s.io"}, Namespace: k8s.NewNamespace("")})
	nodeMetricsWatcher.Start(ctx, k8s.ResourceRef{Kind: k8s.Kind{Plural: "nodes", Group: "metrics.k8s.io"}})
	statsAgg := stats.New(podsWatcher, podMetricsWatcher, nodeMetricsWatcher)

	exec := executor.New(func(ctx context.Context, cmd executor.Command) executor.Result {
		return runCommand(ctx, bundle, cfgStore, cmd)
	})

	pf := portforward.New(bundle.RestConfig)

	orch := &Orchestrator{
		Data: &AppData{
			Config:  cfgStore.Config(),
			Theme:   cfgStore.Theme(),
			History: cfgStore.History(),
			Current: ResourcesInfo{Ref: k8s.ResourceRef{Kind: kind, Namespace: ns}},
		},
		Engines: &Engines{
			Bundle:      bundle,
			Primary:     primary,
			Discovery:   disc,
			Stats:       statsAgg,
			Executor:    exec,
			PortForward: pf,
			ConfigStore: cfgStore,
		},
	}

	m := NewModel(ctx, orch, log)
	programOpts := []tea.ProgramOption{tea.WithAltScreen()}
	if orch.Data.Config.Mouse {
		programOpts = append(programOpts, tea.WithMouseAllMotion())
	} else {
		programOpts = append(programOpts, tea.WithMouseCellMotion())
	}
	p := tea.NewProgram(m, programOpts...)
	_, err = p.Run()

	primary.Stop()
	podsWatcher.Stop()
	podMetricsWatcher.Stop()
	nodeMetricsWatcher.Stop()
	disc.Stop()
	pf.StopAll()

	return err
}
