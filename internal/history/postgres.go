package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS processing_runs (
	id               UUID PRIMARY KEY,
	output           TEXT NOT NULL,
	source           TEXT,
	fields           TEXT[] NOT NULL DEFAULT '{}',
	input_rows       INTEGER NOT NULL DEFAULT 0,
	output_rows      INTEGER NOT NULL DEFAULT 0,
	duplicate_rows   INTEGER NOT NULL DEFAULT 0,
	empty_phone_rows INTEGER NOT NULL DEFAULT 0,
	client_ip        TEXT,
	user_agent       TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	downloaded_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS processing_runs_created_at_idx ON processing_runs (created_at DESC);
CREATE INDEX IF NOT EXISTS processing_runs_output_idx ON processing_runs (output);
`

// PGRecorder stores runs in the processing_runs table.
type PGRecorder struct {
	pool *pgxpool.Pool
}

// NewPGRecorder returns a recorder backed by pool. Call EnsureSchema once
// before use.
func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

// EnsureSchema creates the table and indexes if they do not exist.
func (r *PGRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create processing_runs: %w", err)
	}
	return nil
}

func (r *PGRecorder) RecordRun(ctx context.Context, run Run) error {
	id, err := toPgUUID(run.ID)
	if err != nil {
		return err
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	fields := run.Fields
	if fields == nil {
		fields = []string{}
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO processing_runs
			(id, output, source, fields, input_rows, output_rows,
			 duplicate_rows, empty_phone_rows, client_ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id,
		run.Output,
		toPgText(run.Source),
		fields,
		run.InputRows,
		run.OutputRows,
		run.DuplicateRows,
		run.EmptyPhoneRows,
		toPgText(run.ClientIP),
		toPgText(run.UserAgent),
		pgtype.Timestamptz{Time: createdAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *PGRecorder) MarkDownloaded(ctx context.Context, output string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE processing_runs SET downloaded_at = $2 WHERE output = $1 AND downloaded_at IS NULL`,
		output, pgtype.Timestamptz{Time: at, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("mark downloaded: %w", err)
	}
	return nil
}

func (r *PGRecorder) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, output, source, fields, input_rows, output_rows,
		       duplicate_rows, empty_phone_rows, client_ip, user_agent,
		       created_at, downloaded_at
		FROM processing_runs
		ORDER BY created_at DESC
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, scanRun)
	if err != nil {
		return nil, fmt.Errorf("scan runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.CollectableRow) (Run, error) {
	var (
		id                          pgtype.UUID
		source, clientIP, userAgent pgtype.Text
		createdAt, downloadedAt     pgtype.Timestamptz
		run                         Run
	)
	err := row.Scan(
		&id, &run.Output, &source, &run.Fields,
		&run.InputRows, &run.OutputRows, &run.DuplicateRows, &run.EmptyPhoneRows,
		&clientIP, &userAgent, &createdAt, &downloadedAt,
	)
	if err != nil {
		return Run{}, err
	}

	if id.Valid {
		run.ID = uuid.UUID(id.Bytes).String()
	}
	run.Source = source.String
	run.ClientIP = clientIP.String
	run.UserAgent = userAgent.String
	run.CreatedAt = createdAt.Time
	if downloadedAt.Valid {
		t := downloadedAt.Time
		run.DownloadedAt = &t
	}
	return run, nil
}

func toPgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// toPgUUID parses id, generating a new one when id is empty.
func toPgUUID(id string) (pgtype.UUID, error) {
	if id == "" {
		return pgtype.UUID{Bytes: uuid.New(), Valid: true}, nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("run id %q: %w", id, err)
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}
