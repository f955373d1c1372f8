package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("keyredact_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	okID, err := s.StartRun(ctx, Run{InputPath: "/tmp/in.mp4", OutputPath: "/tmp/out.mp4", Keyword: "secret", MinConfidence: 60})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := s.FinishRun(ctx, okID, 300, 42, 57, nil); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	// Make sure started_at ordering is deterministic
	time.Sleep(10 * time.Millisecond)

	failID, err := s.StartRun(ctx, Run{InputPath: "/tmp/bad.mp4", OutputPath: "/tmp/bad-out.mp4", Keyword: "Secret", CaseSensitive: true})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := s.FinishRun(ctx, failID, 12, 0, 0, errors.New("encoder: exit status 1")); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	if err := s.FinishRun(ctx, "00000000-0000-0000-0000-000000000000", 0, 0, 0, nil); err == nil {
		t.Error("Expected error finishing an unknown run")
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}

	latest, first := runs[0], runs[1]
	if latest.ID != failID || latest.Status != StatusFailed || latest.Error == "" || !latest.CaseSensitive {
		t.Errorf("Unexpected failed run %+v", latest)
	}
	if first.ID != okID || first.Status != StatusSucceeded || first.Frames != 300 || first.RedactedFrames != 42 || first.Boxes != 57 {
		t.Errorf("Unexpected succeeded run %+v", first)
	}
	if first.FinishedAt == nil {
		t.Error("Expected finished_at to be set")
	}

	limited, err := s.ListRuns(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Errorf("ListRuns(limit=1) = %d runs, err %v", len(limited), err)
	}

	// Reset drops the table; a fresh store recreates it empty.
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	s2, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	defer s2.Close(ctx)
	runs, err = s2.ListRuns(ctx, 0)
	if err != nil || len(runs) != 0 {
		t.Errorf("Expected empty history after reset, got %d runs (err %v)", len(runs), err)
	}
}
