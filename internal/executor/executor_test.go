package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRunCommandDeliversExactlyOneResult(t *testing.T) {
	e := New(func(ctx context.Context, cmd Command) Result {
		return Result{Value: "ok"}
	})
	id := e.RunCommand(context.Background(), Command{Kind: CmdListContexts})

	deadline := time.After(time.Second)
	for {
		if r, ok := e.TryNext(); ok {
			if r.Id != id {
				t.Fatalf("expected result for %v, got %v", id, r.Id)
			}
			if r.Result.Value != "ok" {
				t.Fatalf("expected value ok, got %v", r.Result.Value)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("no result delivered")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestCancelCommandStopsBeforeSideEffect(t *testing.T) {
	started := make(chan struct{})
	e := New(func(ctx context.Context, cmd Command) Result {
		close(started)
		<-ctx.Done()
		return Result{Err: ctx.Err()}
	})
	id := e.RunCommand(context.Background(), Command{Kind: CmdFetchYAML})
	<-started
	e.CancelCommand(id)

	deadline := time.After(time.Second)
	for {
		if r, ok := e.TryNext(); ok {
			if r.Result.Err == nil {
				t.Fatal("expected a cancellation error")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("no result delivered after cancel")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestCheckClientOverdueReissuesStalledRequest(t *testing.T) {
	calls := 0
	block := make(chan struct{})
	e := New(func(ctx context.Context, cmd Command) Result {
		calls++
		if calls == 1 {
			<-block // first call never completes on its own
			return Result{Err: errors.New("should not reach here")}
		}
		return Result{Value: "reconnected"}
	})

	id := e.RunCommand(context.Background(), Command{Kind: CmdNewKubernetesClient})
	_ = id
	e.lastClientReq.at = time.Now().Add(-overdueThreshold - time.Second)

	e.CheckClientOverdue(context.Background())
	close(block)

	deadline := time.After(time.Second)
	for {
		if r, ok := e.TryNext(); ok && r.Result.Value == "reconnected" {
			return
		}
		select {
		case <-deadline:
			t.Fatal("overdue client request was not reissued")
		case <-time.After(time.Millisecond):
		}
	}
}
