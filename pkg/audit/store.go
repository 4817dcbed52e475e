// Package audit records every operator command against a Postgres
// table, best-effort: a failure to log never blocks or fails the
// command itself.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Store wraps a Postgres connection used only for the operator
// command audit log.
type Store struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// Open connects to dsn, verifies it, and runs the store's migrations.
func Open(dsn string, logger zerolog.Logger) (*Store, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	conn.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	s := &Store{conn: conn, logger: logger}
	if err := s.runMigrations(); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return s, nil
}

type migration struct {
	id  string
	sql string
}

func (s *Store) runMigrations() error {
	const changelog = `
	CREATE TABLE IF NOT EXISTS operator_audit_changelog (
		id VARCHAR(255) PRIMARY KEY,
		executed_at TIMESTAMP NOT NULL
	);`
	if _, err := s.conn.Exec(changelog); err != nil {
		return fmt.Errorf("create changelog: %w", err)
	}

	migrations := []migration{
		{
			id: "001-create-operator-command-log",
			sql: `
			CREATE TABLE IF NOT EXISTS operator_command_log (
				id BIGSERIAL PRIMARY KEY,
				imei VARCHAR(15) NOT NULL,
				operator VARCHAR(100) NOT NULL,
				action VARCHAR(50) NOT NULL,
				success BOOLEAN NOT NULL,
				message TEXT,
				issued_at TIMESTAMP NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_operator_command_log_imei ON operator_command_log(imei);
			CREATE INDEX IF NOT EXISTS idx_operator_command_log_issued_at ON operator_command_log(issued_at);
			`,
		},
	}

	for _, m := range migrations {
		if err := s.executeMigration(m); err != nil {
			return fmt.Errorf("migration %s: %w", m.id, err)
		}
	}
	return nil
}

func (s *Store) executeMigration(m migration) error {
	var count int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM operator_audit_changelog WHERE id = $1`, m.id).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if _, err := s.conn.Exec(m.sql); err != nil {
		return err
	}
	_, err := s.conn.Exec(`INSERT INTO operator_audit_changelog (id, executed_at) VALUES ($1, $2)`, m.id, time.Now())
	return err
}

// Record inserts one operator command outcome. It logs and swallows
// any error: audit logging must never be why an operator command fails.
func (s *Store) Record(ctx context.Context, imei, operator, action string, success bool, message string) {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO operator_command_log (imei, operator, action, success, message, issued_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		imei, operator, action, success, message, time.Now(),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("imei", imei).Str("action", action).Msg("failed to record audit entry")
	}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}
