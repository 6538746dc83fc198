package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/alebrije/pos/internal/storage/postgres"
)

type fakeMigrator struct {
	version  int64
	applied  int
	upSteps  []int
	downArgs []int
	upErr    error
	list     []postgres.MigrationInfo
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.upSteps = append(f.upSteps, steps)
	if f.upErr != nil {
		return f.upErr
	}
	f.version, f.applied = 2, 2
	return nil
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.downArgs = append(f.downArgs, steps)
	f.version, f.applied = 1, 1
	return nil
}

func (f *fakeMigrator) MigrationStatus(context.Context) (int64, int, error) {
	return f.version, f.applied, nil
}

func (f *fakeMigrator) ListMigrations(context.Context) ([]postgres.MigrationInfo, error) {
	return f.list, nil
}

func TestRun_Directions(t *testing.T) {
	testCases := []struct {
		name      string
		direction string
		steps     int
		want      string
	}{
		{name: "up all", direction: "up", want: "migrate up ok: version=2 applied=2\n"},
		{name: "down defaults to one", direction: " DOWN ", want: "migrate down ok: version=1 applied=1\n"},
		{name: "status", direction: "status", want: "migration status: version=0 applied=0\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := &fakeMigrator{}
			var out bytes.Buffer
			if err := run(context.Background(), m, tc.direction, tc.steps, &out); err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if out.String() != tc.want {
				t.Fatalf("unexpected output %q, want %q", out.String(), tc.want)
			}
		})
	}
}

func TestRun_DownDefaultsToOneStep(t *testing.T) {
	m := &fakeMigrator{}
	if err := run(context.Background(), m, "down", 0, &bytes.Buffer{}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(m.downArgs) != 1 || m.downArgs[0] != 1 {
		t.Fatalf("expected one step rollback, got %v", m.downArgs)
	}
}

func TestRun_List(t *testing.T) {
	m := &fakeMigrator{list: []postgres.MigrationInfo{
		{Version: 1, Name: "kv_entries", Applied: true},
		{Version: 2, Name: "outbox_messages"},
	}}
	var out bytes.Buffer
	if err := run(context.Background(), m, "list", 0, &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	want := "[x] 0001 kv_entries\n[ ] 0002 outbox_messages\n"
	if out.String() != want {
		t.Fatalf("unexpected list output %q", out.String())
	}
}

func TestRun_Errors(t *testing.T) {
	m := &fakeMigrator{upErr: errors.New("lock timeout")}
	err := run(context.Background(), m, "up", 1, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "lock timeout") {
		t.Fatalf("expected wrapped migrate error, got %v", err)
	}

	err = run(context.Background(), &fakeMigrator{}, "sideways", 0, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unsupported direction") {
		t.Fatalf("expected unsupported direction error, got %v", err)
	}
}

func TestMainMissingDSNExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_EXIT") == "1" {
		os.Args = []string{"migrate", "-direction=status", "-dsn="}
		_ = os.Unsetenv(envPostgresDSN)
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMainMissingDSNExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}
