package twisim

import (
	"database/sql"
	"fmt"
	"strings"

	// SQLite driver for the trace database
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"
)

// TraceDB records bus operations in a SQLite database, one row per
// operation. Rows are buffered and written in batches; each TraceDB tags its
// rows with a fresh run id so several runs can share one file.
type TraceDB struct {
	*sql.DB
	statement *sql.Stmt

	runID     string
	seq       int
	rows      []traceRow
	batchSize int
	err       error // first write failure, reported by Flush
}

type traceRow struct {
	seq  int
	time sim.VTimeInSec
	kind string
	what string
}

// NewTraceDB opens (or creates) the database at path.
func NewTraceDB(path string) (*TraceDB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database %s: %w", path, err)
	}

	t := &TraceDB{
		DB:        db,
		runID:     xid.New().String(),
		batchSize: 1000,
	}

	if err := t.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	if t.statement, err = db.Prepare(
		`insert into bus_trace (run_id, seq, time, kind, what) values (?, ?, ?, ?, ?)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare trace insert: %w", err)
	}

	return t, nil
}

// RunID identifies the rows written by this recorder.
func (t *TraceDB) RunID() string {
	return t.runID
}

// Trace is a Tracer: pass it to TWI.SetTracer.
func (t *TraceDB) Trace(now sim.VTimeInSec, line string) {
	t.rows = append(t.rows, traceRow{
		seq:  t.seq,
		time: now,
		kind: traceKind(line),
		what: line,
	})
	t.seq++

	if len(t.rows) >= t.batchSize {
		t.Flush()
	}
}

// Flush writes the buffered rows in one transaction.
func (t *TraceDB) Flush() error {
	if len(t.rows) == 0 || t.err != nil {
		return t.err
	}

	tx, err := t.Begin()
	if err != nil {
		t.err = err
		return err
	}

	stmt := tx.Stmt(t.statement)
	for _, row := range t.rows {
		if _, err := stmt.Exec(t.runID, row.seq, float64(row.time), row.kind, row.what); err != nil {
			tx.Rollback()
			t.err = fmt.Errorf("failed to insert trace row %d: %w", row.seq, err)
			return t.err
		}
	}

	if err := tx.Commit(); err != nil {
		t.err = err
		return err
	}

	t.rows = t.rows[:0]
	return nil
}

// Close flushes and closes the database.
func (t *TraceDB) Close() error {
	err := t.Flush()
	t.statement.Close()
	if cerr := t.DB.Close(); err == nil {
		err = cerr
	}
	return err
}

func (t *TraceDB) createTable() error {
	for _, stmt := range []string{
		`create table if not exists bus_trace
		(
			run_id varchar(20) not null,
			seq    integer     not null,
			time   float       not null,
			kind   varchar(16) not null,
			what   varchar(64) not null
		);`,
		`create index if not exists bus_trace_run_index on bus_trace (run_id, seq);`,
		`create index if not exists bus_trace_kind_index on bus_trace (kind);`,
	} {
		if _, err := t.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create trace table: %w", err)
		}
	}
	return nil
}

// traceKind classifies a trace line
func traceKind(line string) string {
	switch {
	case strings.HasSuffix(line, " LOST"):
		return "lost"
	case line == "S":
		return "start"
	case line == "P":
		return "stop"
	case strings.HasPrefix(line, "W "):
		return "write"
	case strings.HasPrefix(line, "R "):
		return "read"
	case strings.HasPrefix(line, "0x"):
		return "address"
	default:
		return "other"
	}
}
