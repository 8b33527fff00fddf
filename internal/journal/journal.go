// Package journal keeps a history of detected collections and purchase attempts.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

type AttemptRecord struct {
	ResourceID          int64
	Index               int
	Outcome             string
	InsufficientBalance bool
	PaymentURL          string
	Detail              string
	CreatedAt           time.Time
}

// Journal records what the monitor did. Failing to record never affects the monitor itself.
type Journal interface {
	RecordDetection(ctx context.Context, resourceID int64) error
	RecordAttempt(ctx context.Context, record AttemptRecord) error
}

// NopJournal is used when no journal is configured.
type NopJournal struct{}

func (NopJournal) RecordDetection(context.Context, int64) error {
	return nil
}

func (NopJournal) RecordAttempt(context.Context, AttemptRecord) error {
	return nil
}

type SqlJournal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and migrates) the journal at dsn. Remote libsql databases are supported
// through `libsql://` dsns, anything else is treated as a local sqlite path.
func Open(ctx context.Context, dsn string) (*SqlJournal, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "libsql://") {
		driver = "libsql"
	}

	database, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// a single connection keeps ":memory:" databases alive and serializes writers.
		database.SetMaxOpenConns(1)
	}

	_, err = database.ExecContext(ctx, Schema)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &SqlJournal{db: database, now: time.Now}, nil
}

func (j *SqlJournal) Close() error {
	return j.db.Close()
}

func (j *SqlJournal) RecordDetection(ctx context.Context, resourceID int64) error {
	_, err := j.db.ExecContext(
		ctx,
		"insert into detection(resource_id, detected_at) values (?, ?) on conflict(resource_id) do nothing",
		resourceID, j.now().Unix(),
	)
	return err
}

func (j *SqlJournal) RecordAttempt(ctx context.Context, record AttemptRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = j.now()
	}
	insufficient := 0
	if record.InsufficientBalance {
		insufficient = 1
	}

	_, err := j.db.ExecContext(
		ctx,
		`insert into attempt(resource_id, attempt_index, outcome, insufficient_balance, payment_url, detail, created_at)
		values (?, ?, ?, ?, ?, ?, ?)`,
		record.ResourceID,
		record.Index,
		record.Outcome,
		insufficient,
		record.PaymentURL,
		record.Detail,
		createdAt.Unix(),
	)
	return err
}

// Recent returns the latest attempts, newest first.
func (j *SqlJournal) Recent(ctx context.Context, limit int) ([]AttemptRecord, error) {
	rows, err := j.db.QueryContext(
		ctx,
		`select resource_id, attempt_index, outcome, insufficient_balance, payment_url, detail, created_at
		from attempt order by id desc limit ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var record AttemptRecord
		var insufficient int
		var createdAt int64
		err := rows.Scan(
			&record.ResourceID,
			&record.Index,
			&record.Outcome,
			&insufficient,
			&record.PaymentURL,
			&record.Detail,
			&createdAt,
		)
		if err != nil {
			return nil, err
		}
		record.InsufficientBalance = insufficient != 0
		record.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, record)
	}
	return out, rows.Err()
}

// Detections returns the detected resource ids, oldest first.
func (j *SqlJournal) Detections(ctx context.Context) ([]int64, error) {
	rows, err := j.db.QueryContext(ctx, "select resource_id from detection order by resource_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		err := rows.Scan(&id)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
