package postgres

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
)

func migrationFiles(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys[migrationsDir+"/"+name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestReadMigrations_OrdersByVersion(t *testing.T) {
	t.Parallel()

	plan, err := readMigrations(migrationFiles(map[string]string{
		"0010_sale_cache.up.sql":   "CREATE TABLE sale_cache (id BIGINT);",
		"0010_sale_cache.down.sql": "DROP TABLE sale_cache;",
		"0002_kv.up.sql":           "CREATE TABLE kv (key TEXT);",
		"0002_kv.down.sql":         "DROP TABLE kv;",
	}))
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(plan))
	}
	if plan[0].label() != "0002_kv" || plan[1].label() != "0010_sale_cache" {
		t.Fatalf("unexpected order: %s, %s", plan[0].label(), plan[1].label())
	}
	if plan[1].down != "DROP TABLE sale_cache;" {
		t.Fatalf("unexpected down script %q", plan[1].down)
	}
}

func TestReadMigrations_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name:  "missing down",
			files: map[string]string{"0001_kv.up.sql": "SELECT 1;"},
			want:  "both up and down",
		},
		{
			name:  "bad file name",
			files: map[string]string{"kv.sql": "SELECT 1;"},
			want:  "invalid migration file name",
		},
		{
			name:  "blank body",
			files: map[string]string{"0001_kv.up.sql": " \n", "0001_kv.down.sql": "SELECT 1;"},
			want:  "is empty",
		},
		{
			name:  "name mismatch",
			files: map[string]string{"0001_kv.up.sql": "SELECT 1;", "0001_outbox.down.sql": "SELECT 1;"},
			want:  "two names",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := readMigrations(migrationFiles(tt.files))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestReadMigrations_EmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := readMigrations(fstest.MapFS{migrationsDir + "/README": {Mode: fs.ModeDir | 0o755}}); err == nil {
		t.Fatal("expected error for directory without migrations")
	}
}

func TestReadMigrations_Embedded(t *testing.T) {
	t.Parallel()

	plan, err := readMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}

	want := []string{"0001_kv_entries", "0002_outbox_messages", "0003_outbox_terminal"}
	if len(plan) != len(want) {
		t.Fatalf("expected %d embedded migrations, got %d", len(want), len(plan))
	}
	for i, step := range plan {
		if step.label() != want[i] {
			t.Fatalf("step %d: expected %s, got %s", i, want[i], step.label())
		}
	}
	if !strings.Contains(plan[2].up, "terminal_id") {
		t.Fatal("terminal migration must add terminal_id")
	}
}
