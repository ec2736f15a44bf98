// Package config loads and hot-reloads the three YAML files under
// $HOME/.b4n/ (spec.md §6): config.yaml, themes/<theme>.yaml, and
// history.yaml. Each is watched via fsnotify; modifications this process
// itself makes set a one-shot "skip next reload" flag so a self-write never
// triggers a spurious reload.
//
// Grounded on the teacher's internal/config/config.go for the
// load-defaults-on-missing-file and write-back-defaults behavior, trimmed
// of the AI/integrations/keychain sections SPEC_FULL.md's domain has no use
// for, and extended with fsnotify per SPEC_FULL.md's AMBIENT STACK (pulled
// from Scoutflo-kubernetes-mcp-server's go.mod).
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const dirName = ".b4n"

// LogsConfig controls the log-view pane's defaults.
type LogsConfig struct {
	Lines      int  `yaml:"lines,omitempty"`
	Timestamps bool `yaml:"timestamps,omitempty"`
}

// ContextColors is a per-context header/footer color override.
type ContextColors struct {
	Fg string `yaml:"fg,omitempty"`
	Bg string `yaml:"bg,omitempty"`
}

// Config is config.yaml's root shape (spec.md §6).
type Config struct {
	Logs        LogsConfig               `yaml:"logs,omitempty"`
	Mouse       bool                     `yaml:"mouse"`
	Theme       string                   `yaml:"theme"`
	Contexts    map[string]ContextColors `yaml:"contexts,omitempty"`
	Aliases     map[string]string        `yaml:"aliases,omitempty"` // plural -> "alias[,alias]"
	KeyBindings map[string]string        `yaml:"key_bindings,omitempty"`
}

func defaultConfig() *Config {
	return &Config{
		Mouse: true,
		Theme: "default",
	}
}

// Theme is one themes/<name>.yaml document: color tables for headers,
// footers, per-state line coloring, and syntax highlighting spans.
type Theme struct {
	Name       string            `yaml:"name"`
	Header     ColorPair         `yaml:"header"`
	Footer     ColorPair         `yaml:"footer"`
	LineStates map[string]string `yaml:"line_states,omitempty"` // e.g. "ready" -> "#00ff00"
	Syntax     map[string]string `yaml:"syntax,omitempty"`      // e.g. "key" -> "#569cd6"
}

type ColorPair struct {
	Fg string `yaml:"fg"`
	Bg string `yaml:"bg"`
}

func defaultTheme(name string) *Theme {
	return &Theme{
		Name:   name,
		Header: ColorPair{Fg: "#ffffff", Bg: "#1f1f1f"},
		Footer: ColorPair{Fg: "#c0c0c0", Bg: "#1f1f1f"},
		LineStates: map[string]string{
			"ready":       "#2ecc71",
			"terminating": "#e67e22",
			"error":       "#e74c3c",
		},
		Syntax: map[string]string{
			"key":     "#569cd6",
			"string":  "#ce9178",
			"comment": "#6a9955",
			"number":  "#b5cea8",
		},
	}
}

// HistoryCap bounds each per-context filter/search ring (spec.md §6: "cap
// 20 entries each").
const HistoryCap = 20

// ContextEntry is one recently-used context/kind/namespace tuple.
type ContextEntry struct {
	Context   string `yaml:"context"`
	Kind      string `yaml:"kind"`
	Namespace string `yaml:"namespace"`
}

// History is history.yaml's root shape, extended per SPEC_FULL.md's
// "Supplemented features" with favorite contexts/namespaces, aliases, and
// named context groups (adapted from the teacher's internal/state.Store,
// see DESIGN.md).
type History struct {
	Recent             []ContextEntry      `yaml:"recent,omitempty"`
	FilterHistory      map[string][]string `yaml:"filter_history,omitempty"` // per-context ring
	SearchHistory      map[string][]string `yaml:"search_history,omitempty"` // per-context ring
	FavoriteContexts   []string            `yaml:"favorite_contexts,omitempty"`
	FavoriteNamespaces map[string][]string `yaml:"favorite_namespaces,omitempty"` // context -> namespaces
	Aliases            map[string]string   `yaml:"aliases,omitempty"`             // short name -> context
	ContextGroups      map[string][]string `yaml:"context_groups,omitempty"`      // group name -> member contexts
	ActiveContextGroup string              `yaml:"active_context_group,omitempty"`
}

// pushRing appends value to ring, trimming from the front once it exceeds
// HistoryCap.
func pushRing(ring []string, value string) []string {
	for _, v := range ring {
		if v == value {
			return ring
		}
	}
	ring = append(ring, value)
	if len(ring) > HistoryCap {
		ring = ring[len(ring)-HistoryCap:]
	}
	return ring
}

func (h *History) PushFilter(ctx, pattern string) {
	if h.FilterHistory == nil {
		h.FilterHistory = map[string][]string{}
	}
	h.FilterHistory[ctx] = pushRing(h.FilterHistory[ctx], pattern)
}

func (h *History) PushSearch(ctx, pattern string) {
	if h.SearchHistory == nil {
		h.SearchHistory = map[string][]string{}
	}
	h.SearchHistory[ctx] = pushRing(h.SearchHistory[ctx], pattern)
}

func (h *History) PushRecent(e ContextEntry) {
	filtered := h.Recent[:0:0]
	for _, r := range h.Recent {
		if r != e {
			filtered = append(filtered, r)
		}
	}
	h.Recent = append([]ContextEntry{e}, filtered...)
	if len(h.Recent) > HistoryCap {
		h.Recent = h.Recent[:HistoryCap]
	}
}

// SetContextGroup replaces (or creates) a named group's member list,
// deduplicating and dropping blank entries.
func (h *History) SetContextGroup(name string, contexts []string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if h.ContextGroups == nil {
		h.ContextGroups = map[string][]string{}
	}
	h.ContextGroups[name] = dedupeNonEmpty(contexts)
}

// RemoveContextGroup deletes a named group, clearing ActiveContextGroup if
// it was the one removed.
func (h *History) RemoveContextGroup(name string) {
	name = strings.TrimSpace(name)
	delete(h.ContextGroups, name)
	if h.ActiveContextGroup == name {
		h.ActiveContextGroup = ""
	}
}

// SetActiveContextGroup marks name as active; a name that isn't a known
// group is ignored (ActiveContextGroup stays at its previous value).
func (h *History) SetActiveContextGroup(name string) {
	name = strings.TrimSpace(name)
	if _, ok := h.ContextGroups[name]; ok {
		h.ActiveContextGroup = name
	}
}

func dedupeNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Dir returns $HOME/.b4n, creating it if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// loadOrDefault reads path into out; on a missing file it writes the
// supplied default back to disk (spec.md §6: "On load failure (missing),
// defaults are written"); on a parse failure it leaves the file untouched
// and returns the default in memory (spec.md §6: "On deserialize failure,
// defaults are used in memory and the file is left untouched").
func loadOrDefault[T any](path string, def *T) (*T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := writeYAML(path, def); werr != nil {
			return def, werr
		}
		return def, nil
	}
	if err != nil {
		return def, err
	}
	var out T
	if yaml.Unmarshal(data, &out) != nil {
		return def, nil
	}
	return &out, nil
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Store owns the live config/theme/history state, a per-file fsnotify
// watcher, and the skip-next-reload flags guarding self-writes.
type Store struct {
	dir string

	mu      sync.RWMutex
	config  *Config
	theme   *Theme
	history *History

	skipConfig  atomic.Bool
	skipTheme   atomic.Bool
	skipHistory atomic.Bool

	watcher *fsnotify.Watcher
	done    chan struct{}

	// OnReload, if set, is invoked (off the watch goroutine's own context)
	// whenever an externally-triggered reload successfully replaces the
	// in-memory config/theme/history.
	OnReload func()
}

// Load reads (or initializes) all three files and starts their fsnotify
// watchers.
func Load() (*Store, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	s := &Store{dir: dir, done: make(chan struct{})}

	s.config, err = loadOrDefault(filepath.Join(dir, "config.yaml"), defaultConfig())
	if err != nil {
		return nil, err
	}
	themeName := s.config.Theme
	if themeName == "" {
		themeName = "default"
	}
	if err := os.MkdirAll(filepath.Join(dir, "themes"), 0o755); err != nil {
		return nil, err
	}
	s.theme, err = loadOrDefault(s.themePath(themeName), defaultTheme(themeName))
	if err != nil {
		return nil, err
	}
	s.history, err = loadOrDefault(filepath.Join(dir, "history.yaml"), &History{})
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	s.watcher = w
	for _, p := range []string{s.configPath(), s.themePath(themeName), s.historyPath()} {
		if err := w.Add(p); err != nil {
			w.Close()
			return nil, err
		}
	}
	go s.watchLoop()

	return s, nil
}

func (s *Store) configPath() string  { return filepath.Join(s.dir, "config.yaml") }
func (s *Store) historyPath() string { return filepath.Join(s.dir, "history.yaml") }
func (s *Store) themePath(name string) string {
	return filepath.Join(s.dir, "themes", name+".yaml")
}

func (s *Store) watchLoop() {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reload(ev.Name)
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *Store) reload(path string) {
	switch path {
	case s.configPath():
		if !s.skipConfig.CompareAndSwap(true, false) {
			if cfg, err := loadOrDefault(path, defaultConfig()); err == nil {
				s.mu.Lock()
				s.config = cfg
				s.mu.Unlock()
				s.notifyReload()
			}
		}
	case s.historyPath():
		if !s.skipHistory.CompareAndSwap(true, false) {
			if h, err := loadOrDefault(path, &History{}); err == nil {
				s.mu.Lock()
				s.history = h
				s.mu.Unlock()
				s.notifyReload()
			}
		}
	default:
		if !s.skipTheme.CompareAndSwap(true, false) {
			name := s.Config().Theme
			if t, err := loadOrDefault(path, defaultTheme(name)); err == nil {
				s.mu.Lock()
				s.theme = t
				s.mu.Unlock()
				s.notifyReload()
			}
		}
	}
}

func (s *Store) notifyReload() {
	if s.OnReload != nil {
		s.OnReload()
	}
}

func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.config
}

func (s *Store) Theme() Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.theme
}

func (s *Store) History() History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.history
}

// SaveConfig persists cfg, setting the skip-next-reload flag first so the
// write this call performs doesn't bounce back as a reload.
func (s *Store) SaveConfig(cfg Config) error {
	s.skipConfig.Store(true)
	s.mu.Lock()
	s.config = &cfg
	s.mu.Unlock()
	return writeYAML(s.configPath(), &cfg)
}

// SaveHistory persists h with the same skip-next-reload protocol.
func (s *Store) SaveHistory(h History) error {
	s.skipHistory.Store(true)
	s.mu.Lock()
	s.history = &h
	s.mu.Unlock()
	return writeYAML(s.historyPath(), &h)
}

// SaveTheme persists t under its own name with the same skip-next-reload
// protocol.
func (s *Store) SaveTheme(t Theme) error {
	s.skipTheme.Store(true)
	s.mu.Lock()
	s.theme = &t
	s.mu.Unlock()
	return writeYAML(s.themePath(t.Name), &t)
}

// ListThemes returns the names of every themes/*.yaml file present.
func (s *Store) ListThemes() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "themes"))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".yaml" {
			names = append(names, e.Name()[:len(e.Name())-len(".yaml")])
		}
	}
	return names, nil
}

// Close stops the file watchers.
func (s *Store) Close() error {
	err := s.watcher.Close()
	<-s.done
	return err
}
