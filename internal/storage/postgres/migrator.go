package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	migrationsDir = "sql/migrations"
	// migrationLockKey: advisory lock, общий для всех терминалов одной базы.
	migrationLockKey    = int64(4815162342)
	migrationLockWait   = 5 * time.Second
	schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFileName = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

	errStoreNotInitialized = errors.New("postgres store is not initialized")
)

// schemaStep: пара up/down скриптов одной версии схемы.
type schemaStep struct {
	version int64
	name    string
	up      string
	down    string
}

func (s schemaStep) label() string {
	return fmt.Sprintf("%04d_%s", s.version, s.name)
}

// MigrationInfo описывает встроенную миграцию схемы терминала.
type MigrationInfo struct {
	Version int64
	Name    string
	Applied bool
}

// MigrateUp применяет до steps ещё не применённых миграций; steps<=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, plan []schemaStep) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		done := make(map[int64]bool, len(applied))
		for _, v := range applied {
			done[v] = true
		}

		for _, step := range plan {
			if done[step.version] {
				continue
			}
			if err := runStep(ctx, conn, step, true); err != nil {
				return err
			}
			if steps--; steps == 0 {
				return nil
			}
		}
		return nil
	})
}

// MigrateDown откатывает steps последних применённых миграций, минимум одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrationLock(ctx, func(conn *sql.Conn, plan []schemaStep) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		byVersion := make(map[int64]schemaStep, len(plan))
		for _, step := range plan {
			byVersion[step.version] = step
		}

		for i := len(applied) - 1; i >= 0 && steps > 0; i, steps = i-1, steps-1 {
			step, ok := byVersion[applied[i]]
			if !ok {
				return fmt.Errorf("cannot roll back unknown schema version %d", applied[i])
			}
			if err := runStep(ctx, conn, step, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListMigrations возвращает все встроенные миграции с отметкой о применении.
func (s *Store) ListMigrations(ctx context.Context) ([]MigrationInfo, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}
	plan, err := readMigrations(migrationsFS)
	if err != nil {
		return nil, err
	}
	applied, err := s.appliedSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[int64]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	infos := make([]MigrationInfo, len(plan))
	for i, step := range plan {
		infos[i] = MigrationInfo{Version: step.version, Name: step.name, Applied: done[step.version]}
	}
	return infos, nil
}

// MigrationStatus возвращает текущую версию схемы и количество применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, errStoreNotInitialized
	}
	applied, err := s.appliedSnapshot(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(applied) == 0 {
		return 0, 0, nil
	}
	return applied[len(applied)-1], len(applied), nil
}

func (s *Store) appliedSnapshot(ctx context.Context) ([]int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	conn, err := s.db.Conn(queryCtx)
	if err != nil {
		return nil, fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(queryCtx, schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return appliedVersions(queryCtx, conn)
}

// withMigrationLock выполняет fn на выделенном соединении под advisory lock.
func (s *Store) withMigrationLock(ctx context.Context, fn func(*sql.Conn, []schemaStep) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	plan, err := readMigrations(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationLockWait)
	_, err = conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey)
	cancel()
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return fn(conn, plan)
}

// runStep выполняет скрипт версии и запись в schema_migrations в одной транзакции.
func runStep(ctx context.Context, conn *sql.Conn, step schemaStep, up bool) error {
	direction, body := "down", step.down
	record, args := `DELETE FROM schema_migrations WHERE version = $1`, []any{step.version}
	if up {
		direction, body = "up", step.up
		record, args = `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, []any{step.version, step.name}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s %s: begin: %w", step.label(), direction, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("migration %s %s: %w", step.label(), direction, err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("migration %s %s: record version: %w", step.label(), direction, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %s %s: commit: %w", step.label(), direction, err)
	}
	return nil
}

// appliedVersions возвращает применённые версии по возрастанию.
func appliedVersions(ctx context.Context, conn *sql.Conn) ([]int64, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	return versions, nil
}

// readMigrations собирает пары NNNN_name.up.sql / NNNN_name.down.sql из fsys.
func readMigrations(fsys fs.FS) ([]schemaStep, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", migrationsDir, err)
	}

	steps := make(map[int64]*schemaStep)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		file := entry.Name()
		m := migrationFileName.FindStringSubmatch(file)
		if m == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", file)
		}
		version, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version: %w", file, err)
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, file))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration %s is empty", file)
		}

		step, ok := steps[version]
		if !ok {
			step = &schemaStep{version: version, name: m[2]}
			steps[version] = step
		}
		if step.name != m[2] {
			return nil, fmt.Errorf("version %d has two names: %s and %s", version, step.name, m[2])
		}

		target := &step.down
		if m[3] == "up" {
			target = &step.up
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", m[3], version)
		}
		*target = body
	}
	if len(steps) == 0 {
		return nil, errors.New("no migration files found")
	}

	plan := make([]schemaStep, 0, len(steps))
	for _, step := range steps {
		if step.up == "" || step.down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", step.label())
		}
		plan = append(plan, *step)
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].version < plan[j].version })
	return plan, nil
}
