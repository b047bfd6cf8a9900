package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/safety/internal/config"
	"github.com/your-org/safety/internal/models"
)

// ErrNotFound is returned by mutations that target a missing row.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	pool      *pgxpool.Pool
	vectorDim int
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, vectorDim int) (*PostgresStore, error) {
	return NewPostgresStoreFromDSN(ctx, cfg.DSN(), int32(cfg.MaxConns), vectorDim)
}

func NewPostgresStoreFromDSN(ctx context.Context, dsn string, maxConns int32, vectorDim int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, vectorDim: vectorDim}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS workers (
			id BIGSERIAL PRIMARY KEY,
			employee_number TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			team TEXT NOT NULL DEFAULT '',
			image_path TEXT NOT NULL,
			face_vector VECTOR(%d) NOT NULL,
			status TEXT NOT NULL DEFAULT 'OFF_WORK',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS system_config (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			admin_password TEXT NOT NULL,
			warning_delay_seconds INT NOT NULL,
			required_equipment TEXT[] NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`, s.vectorDim)
	_, err := s.pool.Exec(ctx, query)
	return err
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Workers ---

const workerColumns = `id, employee_number, name, team, image_path, face_vector::text, status, created_at`

func scanWorker(row pgx.Row) (*models.Worker, error) {
	var (
		w      models.Worker
		vec    pgvector.Vector
		status string
	)
	if err := row.Scan(&w.ID, &w.EmployeeNumber, &w.Name, &w.Team, &w.ImagePath, &vec, &status, &w.CreatedAt); err != nil {
		return nil, err
	}
	w.Embedding = vec.Slice()
	w.Status = models.WorkerStatus(status)
	return &w, nil
}

// InsertWorker creates a worker row. A taken employee number fails with a
// unique violation (see IsUniqueViolation); existing rows are never overwritten.
func (s *PostgresStore) InsertWorker(ctx context.Context, w *models.Worker) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO workers (employee_number, name, team, image_path, face_vector)
		VALUES ($1, $2, $3, $4, $5::vector)
		RETURNING id`,
		w.EmployeeNumber, w.Name, w.Team, w.ImagePath, pgvector.NewVector(w.Embedding),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert worker %s: %w", w.EmployeeNumber, err)
	}
	return id, nil
}

// UpdateWorkerEnrollment rewrites every enrollment field of the worker with w.ID.
func (s *PostgresStore) UpdateWorkerEnrollment(ctx context.Context, w *models.Worker) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workers SET employee_number = $2, name = $3, team = $4, image_path = $5, face_vector = $6::vector
		WHERE id = $1`,
		w.ID, w.EmployeeNumber, w.Name, w.Team, w.ImagePath, pgvector.NewVector(w.Embedding))
	if err != nil {
		return fmt.Errorf("update worker %d: %w", w.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateWorkerProfile changes metadata only; image and embedding are untouched.
func (s *PostgresStore) UpdateWorkerProfile(ctx context.Context, id int64, employeeNumber, name, team string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workers SET employee_number = $2, name = $3, team = $4 WHERE id = $1`,
		id, employeeNumber, name, team)
	if err != nil {
		return fmt.Errorf("update worker profile %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateWorkerStatus(ctx context.Context, id int64, status models.WorkerStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE workers SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update worker status %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetWorker(ctx context.Context, id int64) (*models.Worker, error) {
	w, err := scanWorker(s.pool.QueryRow(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get worker: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) GetWorkerByEmployeeNumber(ctx context.Context, employeeNumber string) (*models.Worker, error) {
	w, err := scanWorker(s.pool.QueryRow(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE employee_number = $1`, employeeNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get worker by employee number: %w", err)
	}
	return w, nil
}

// ListWorkers returns all workers ordered by employee number (see SortByEmployeeNumber).
func (s *PostgresStore) ListWorkers(ctx context.Context) ([]models.Worker, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		workers = append(workers, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	SortByEmployeeNumber(workers)
	return workers, nil
}

// DeleteWorker removes the row and returns it so the caller can drop its image.
func (s *PostgresStore) DeleteWorker(ctx context.Context, id int64) (*models.Worker, error) {
	w := &models.Worker{}
	err := s.pool.QueryRow(ctx,
		`DELETE FROM workers WHERE id = $1 RETURNING id, employee_number, image_path`, id,
	).Scan(&w.ID, &w.EmployeeNumber, &w.ImagePath)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("delete worker: %w", err)
	}
	return w, nil
}

// DeleteWorkers removes every listed worker that exists. Unknown ids are ignored.
func (s *PostgresStore) DeleteWorkers(ctx context.Context, ids []int64) ([]models.Worker, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`DELETE FROM workers WHERE id = ANY($1) RETURNING id, employee_number, image_path`, ids)
	if err != nil {
		return nil, fmt.Errorf("delete workers: %w", err)
	}
	defer rows.Close()

	var deleted []models.Worker
	for rows.Next() {
		var w models.Worker
		if err := rows.Scan(&w.ID, &w.EmployeeNumber, &w.ImagePath); err != nil {
			return nil, fmt.Errorf("scan deleted worker: %w", err)
		}
		deleted = append(deleted, w)
	}
	return deleted, rows.Err()
}

func (s *PostgresStore) CountWorkers(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM workers`).Scan(&count)
	return count, err
}

// --- System config ---

// GetSystemConfig returns the singleton row, creating it from defaults on first read.
func (s *PostgresStore) GetSystemConfig(ctx context.Context, defaults models.SystemConfig) (*models.SystemConfig, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO system_config (id, admin_password, warning_delay_seconds, required_equipment)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		defaults.AdminPassword, defaults.WarningDelaySeconds, nonNil(defaults.RequiredEquipment))
	if err != nil {
		return nil, fmt.Errorf("seed system config: %w", err)
	}

	cfg := &models.SystemConfig{}
	err = s.pool.QueryRow(ctx, `
		SELECT admin_password, warning_delay_seconds, required_equipment, updated_at
		FROM system_config WHERE id = 1`,
	).Scan(&cfg.AdminPassword, &cfg.WarningDelaySeconds, &cfg.RequiredEquipment, &cfg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get system config: %w", err)
	}
	return cfg, nil
}

// UpdateSystemConfig replaces every field of the singleton row.
func (s *PostgresStore) UpdateSystemConfig(ctx context.Context, cfg models.SystemConfig) (*models.SystemConfig, error) {
	out := &models.SystemConfig{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO system_config (id, admin_password, warning_delay_seconds, required_equipment, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			admin_password = EXCLUDED.admin_password,
			warning_delay_seconds = EXCLUDED.warning_delay_seconds,
			required_equipment = EXCLUDED.required_equipment,
			updated_at = NOW()
		RETURNING admin_password, warning_delay_seconds, required_equipment, updated_at`,
		cfg.AdminPassword, cfg.WarningDelaySeconds, nonNil(cfg.RequiredEquipment),
	).Scan(&out.AdminPassword, &out.WarningDelaySeconds, &out.RequiredEquipment, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update system config: %w", err)
	}
	return out, nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
