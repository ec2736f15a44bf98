// Package executor runs commands independently of the render loop and
// delivers their results back to the UI in FIFO order over a single shared
// channel (spec §4.4).
//
// Grounded on kcli's internal/ui command dispatch (the same
// "spawn-a-goroutine-per-request, reply-on-a-channel" idiom it already uses
// for its kubectl-subprocess runner) generalized to a closed tagged command
// set and a uuid-keyed result envelope, plus the 30s overdue-retry policy
// for the client-connection command from spec.md §4.4 directly.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CommandKind tags the closed set of commands the executor accepts.
type CommandKind int

const (
	CmdNewKubernetesClient CommandKind = iota
	CmdFetchYAML
	CmdSetYAML
	CmdDeleteResources
	CmdListContexts
	CmdListPorts
	CmdSaveHistory
	CmdSaveConfig
	CmdListThemes
)

// Command is one request; Payload is command-specific (kept as `any` since
// the set is closed by CommandKind, not by a Go type hierarchy — mirroring
// the tagged-union the original models as an enum with per-variant data).
type Command struct {
	Kind    CommandKind
	Payload any
}

// Result is the outcome of running a Command; Err is set on failure, Value
// otherwise (command-specific, same convention as Payload).
type Result struct {
	Value any
	Err   error
}

// TaskResult is the single envelope type written to the shared result
// channel; Id lets the UI route it back to the view/handler that issued it.
type TaskResult struct {
	Id     uuid.UUID
	Result Result
}

// Runner executes one Command; production code supplies a closure per
// CommandKind bound to the live k8s.Bundle/config/history state, tests
// supply a scripted stand-in.
type Runner func(ctx context.Context, cmd Command) Result

// Executor runs commands on background goroutines and funnels every result
// through one shared channel, preserving delivery order across commands as
// the spec requires (cross-command ordering is just "whichever finishes
// first writes first").
type Executor struct {
	run Runner

	results chan TaskResult

	mu        sync.Mutex
	tasks     map[uuid.UUID]context.CancelFunc
	lastClientReq struct {
		id      uuid.UUID
		cmd     Command
		at      time.Time
		pending bool
	}
}

func New(run Runner) *Executor {
	return &Executor{
		run:     run,
		results: make(chan TaskResult, 64),
		tasks:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// RunCommand assigns a fresh id, spawns the command, and returns the id
// immediately; the spawned goroutine writes exactly one TaskResult to the
// shared channel before exiting.
func (e *Executor) RunCommand(ctx context.Context, cmd Command) uuid.UUID {
	id := uuid.New()
	taskCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.tasks[id] = cancel
	if cmd.Kind == CmdNewKubernetesClient {
		e.lastClientReq.id = id
		e.lastClientReq.cmd = cmd
		e.lastClientReq.at = time.Now()
		e.lastClientReq.pending = true
	}
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.tasks, id)
			e.mu.Unlock()
		}()
		result := e.run(taskCtx, cmd)
		e.results <- TaskResult{Id: id, Result: result}
		if cmd.Kind == CmdNewKubernetesClient {
			e.mu.Lock()
			if e.lastClientReq.id == id {
				e.lastClientReq.pending = false
			}
			e.mu.Unlock()
		}
	}()

	return id
}

// CancelCommand aborts the task associated with id, if still running.
// Commands are expected to poll ctx.Done() at every suspension point and
// before every observable side effect (spec §4.4).
func (e *Executor) CancelCommand(id uuid.UUID) {
	e.mu.Lock()
	cancel, ok := e.tasks[id]
	delete(e.tasks, id)
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// TryNext is a non-blocking receive from the shared result channel.
func (e *Executor) TryNext() (TaskResult, bool) {
	select {
	case r := <-e.results:
		return r, true
	default:
		return TaskResult{}, false
	}
}

// overdueThreshold is the window after which an in-flight
// NewKubernetesClient request with no reply is considered stalled (spec
// §4.4: "30 s and no new request has been issued").
const overdueThreshold = 30 * time.Second

// CheckClientOverdue re-issues the last NewKubernetesClient command if it
// has been pending for more than 30s and no newer request has superseded
// it, cancelling the stalled task first. Call this once per orchestrator
// tick (spec §4.8 step 5).
func (e *Executor) CheckClientOverdue(ctx context.Context) {
	e.mu.Lock()
	req := e.lastClientReq
	e.mu.Unlock()

	if !req.pending || time.Since(req.at) < overdueThreshold {
		return
	}
	e.CancelCommand(req.id)
	e.RunCommand(ctx, req.cmd)
}
