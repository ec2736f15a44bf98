// Package shell bridges a pod container's exec stream to an in-process
// VT100 screen the TUI can render, and exposes a resize queue so the shell
// view can push terminal size changes through mid-session.
//
// Grounded on kubilitics-backend/internal/api/rest/exec.go: the
// TerminalSizeQueue/chanWriter idiom and the PodExecOptions request shape
// (container/command/stdin/stdout/stderr/tty all true) are carried over
// directly, generalized from a WebSocket relay into an in-process bridge
// feeding a local vt10x.VT screen instead of a browser xterm.js client.
package shell

import (
	"context"
	"io"
	"sync"

	"github.com/hinshun/vt10x"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/fioletoven/b4n/internal/k8s"
)

// Screen is the minimal surface the shell bridge needs from a VT100
// emulator; vt10x.VT satisfies it, a fake can too for tests.
type Screen interface {
	io.Writer
	Resize(cols, rows int)
	String() string
}

// vtScreen adapts github.com/hinshun/vt10x's terminal state machine to the
// Screen interface. vt10x.New returns a vt10x.Terminal wired to an in-memory
// vt10x.State; the exec stream's stdout and stderr are written into it
// directly.
type vtScreen struct {
	mu   sync.Mutex
	term vt10x.Terminal
}

// NewVTScreen constructs a Screen backed by vt10x at the given size.
func NewVTScreen(cols, rows int) (Screen, io.Writer) {
	term := vt10x.New(vt10x.WithSize(cols, rows))
	return &vtScreen{term: term}, term
}

func (s *vtScreen) Write(p []byte) (int, error) {
	// vt10x.Terminal itself implements io.Writer (feeding the parser); this
	// wrapper only exists so Screen can also expose Resize/String behind one
	// interface for the shell view.
	return s.term.Write(p)
}

func (s *vtScreen) Resize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.term.Resize(cols, rows)
}

func (s *vtScreen) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.term.String()
}

// sizeQueue implements remotecommand.TerminalSizeQueue, relaying resize
// events pushed from the UI thread into the exec stream.
type sizeQueue struct {
	ch  chan remotecommand.TerminalSize
	ctx context.Context
}

func newSizeQueue(ctx context.Context) *sizeQueue {
	return &sizeQueue{ch: make(chan remotecommand.TerminalSize, 4), ctx: ctx}
}

func (q *sizeQueue) Next() *remotecommand.TerminalSize {
	select {
	case s := <-q.ch:
		return &s
	case <-q.ctx.Done():
		return nil
	}
}

func (q *sizeQueue) Push(cols, rows uint16) {
	select {
	case q.ch <- remotecommand.TerminalSize{Width: cols, Height: rows}:
	default:
	}
}

// Session is one live exec session: stdin is written to, stdout/stderr are
// relayed into the Screen, and Resize pushes terminal size changes.
type Session struct {
	stdinW *io.PipeWriter
	sizes  *sizeQueue
	done   chan struct{}
	err    error
}

// Options selects the target container and command.
type Options struct {
	Ref       k8s.ResourceRef // Ref.Name is the pod, Ref.Container the container
	Command   []string        // defaults to []string{"/bin/sh"} when empty
	Cols      int
	Rows      int
}

// Start opens an exec session against ref's pod/container and begins
// streaming. The returned Screen reflects the remote process's terminal
// output as vt10x interprets it; Session.Write sends stdin.
func Start(ctx context.Context, restConfig *rest.Config, clientset kubernetes.Interface, opts Options) (*Session, Screen, error) {
	command := opts.Command
	if len(command) == 0 {
		command = []string{"/bin/sh"}
	}
	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	screen, rawWriter := NewVTScreen(cols, rows)

	stdinR, stdinW := io.Pipe()
	sizes := newSizeQueue(ctx)
	sizes.Push(uint16(cols), uint16(rows))

	req := clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(opts.Ref.Namespace.Value()).
		Name(opts.Ref.Name).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: opts.Ref.Container,
			Command:   command,
			Stdin:     true,
			Stdout:    true,
			Stderr:    true,
			TTY:       true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(restConfig, "POST", req.URL())
	if err != nil {
		return nil, nil, err
	}

	s := &Session{stdinW: stdinW, sizes: sizes, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		s.err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
			Stdin:             stdinR,
			Stdout:            rawWriter,
			Stderr:            rawWriter,
			Tty:               true,
			TerminalSizeQueue: sizes,
		})
	}()

	return s, screen, nil
}

// Write sends stdin to the remote process.
func (s *Session) Write(p []byte) (int, error) {
	return s.stdinW.Write(p)
}

// Resize pushes a new terminal size to the remote process.
func (s *Session) Resize(cols, rows uint16) {
	s.sizes.Push(cols, rows)
}

// Wait blocks until the session ends and returns its terminal error, if
// any.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Close stops accepting stdin; the remote process observes EOF.
func (s *Session) Close() error {
	return s.stdinW.Close()
}
