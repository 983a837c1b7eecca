package encpack

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunnerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RunnerConfig
		wantErr bool
	}{
		{"default", DefaultRunnerConfig(), false},
		{"zero", RunnerConfig{}, false},
		{"negative", RunnerConfig{MaxWorkers: -1}, true},
		{"too many", RunnerConfig{MaxWorkers: 1025}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if _, err := NewRunner(tt.config); (err != nil) != tt.wantErr {
				t.Errorf("NewRunner() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubmit_Result(t *testing.T) {
	r, _ := NewRunner(RunnerConfig{MaxWorkers: 2})

	task := Submit(context.Background(), r, func() (int, error) {
		return 42, nil
	})
	got, err := task.Wait(context.Background())
	if err != nil || got != 42 {
		t.Fatalf("Wait() = %d, %v", got, err)
	}

	<-task.Done()
	failing := Submit(context.Background(), r, func() (int, error) {
		return 0, ErrAuthFailed
	})
	if _, err := failing.Wait(context.Background()); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Wait() error = %v, want ErrAuthFailed", err)
	}
	r.Wait()
}

func TestSubmit_PanicRecovery(t *testing.T) {
	r, _ := NewRunner(RunnerConfig{MaxWorkers: 1})

	task := Submit(context.Background(), r, func() (string, error) {
		panic("boom")
	})
	_, err := task.Wait(context.Background())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Wait() error = %v, want panic converted to error", err)
	}

	// The slot is released after a panic
	next := Submit(context.Background(), r, func() (string, error) { return "ok", nil })
	if got, err := next.Wait(context.Background()); err != nil || got != "ok" {
		t.Fatalf("Wait() = %q, %v", got, err)
	}
}

func TestSubmit_CancelledBeforeStart(t *testing.T) {
	r, _ := NewRunner(RunnerConfig{MaxWorkers: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	blocker := Submit(context.Background(), r, func() (int, error) {
		close(started)
		<-release
		return 1, nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	queued := Submit(ctx, r, func() (int, error) {
		ran.Store(true)
		return 2, nil
	})
	cancel()

	if _, err := queued.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want context.Canceled", err)
	}
	close(release)
	if _, err := blocker.Wait(context.Background()); err != nil {
		t.Fatalf("blocker failed: %v", err)
	}
	r.Wait()
	if ran.Load() {
		t.Fatal("cancelled task ran")
	}
}

func TestTask_WaitContext(t *testing.T) {
	r, _ := NewRunner(RunnerConfig{MaxWorkers: 1})
	release := make(chan struct{})
	task := Submit(context.Background(), r, func() (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := task.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want DeadlineExceeded", err)
	}

	close(release)
	if got, err := task.Wait(context.Background()); err != nil || got != 1 {
		t.Fatalf("Wait() = %d, %v", got, err)
	}
}

func TestPacker_AsyncOperations(t *testing.T) {
	fs := newTestFS(t)
	p := newTestPacker(t, fs, &Config{ChunkSize: 64})
	r, _ := NewRunner(DefaultRunnerConfig())
	ctx := context.Background()

	writeTestFile(t, fs, "/src/a.txt", patternData(100))
	entries := []Entry{{SourcePath: "/src/a.txt", RelativePath: "a.txt"}}

	if _, err := p.BuildAsync(ctx, r, entries, testPassword, "/a.epk", testParams()).Wait(ctx); err != nil {
		t.Fatalf("BuildAsync failed: %v", err)
	}

	info, err := p.InspectAsync(ctx, r, "/a.epk").Wait(ctx)
	if err != nil || len(info.Files) != 1 {
		t.Fatalf("InspectAsync = %+v, %v", info, err)
	}
	report, err := p.VerifyAsync(ctx, r, "/a.epk", testPassword).Wait(ctx)
	if err != nil || report.Bytes != 100 {
		t.Fatalf("VerifyAsync = %+v, %v", report, err)
	}
	dir, err := p.ExtractAsync(ctx, r, "/a.epk", testPassword, "/out").Wait(ctx)
	if err != nil {
		t.Fatalf("ExtractAsync failed: %v", err)
	}
	assertFileEquals(t, fs, dir+"/a.txt", patternData(100))

	if _, err := p.ExtractAsync(ctx, r, "/a.epk", []byte("nope"), "/out").Wait(ctx); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("ExtractAsync(wrong password) error = %v, want ErrAuthFailed", err)
	}
	r.Wait()
}
