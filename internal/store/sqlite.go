package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keithhendry/dotty/internal/pipeline"
)

// ErrRunNotFound is returned by LoadRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Ledger implements pipeline.Observer on a sqlite database.
type Ledger struct {
	db *sql.DB

	mu  sync.Mutex
	seq map[string]int
}

// Open opens (or creates) the ledger at path and applies the schema.
func Open(path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Build events arrive concurrently; one connection serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &Ledger{db: db, seq: make(map[string]int)}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

// Observe implements pipeline.Observer.
func (l *Ledger) Observe(e pipeline.Event) error {
	switch ev := e.(type) {
	case *pipeline.RunStartedEvent:
		_, err := l.db.Exec(
			`INSERT INTO runs (id, trigger, dry_run, state, started_at) VALUES (?,?,?,?,?)`,
			ev.RunID, ev.Trigger.String(), ev.DryRun, string(pipeline.StatePending), formatTime(ev.At),
		)
		return wrap("insert run", err)

	case *pipeline.VersionResolvedEvent:
		_, err := l.db.Exec(`UPDATE runs SET version = ?, tag = ?, source = ? WHERE id = ?`,
			ev.Version, ev.Tag, ev.Source, ev.RunID)
		return wrap("update version", err)

	case *pipeline.StateTransitionedEvent:
		l.mu.Lock()
		l.seq[ev.RunID]++
		seq := l.seq[ev.RunID]
		l.mu.Unlock()

		tx, err := l.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if _, err := tx.Exec(`INSERT INTO transitions (run_id, seq, from_state, to_state, at) VALUES (?,?,?,?,?)`,
			ev.RunID, seq, string(ev.From), string(ev.To), formatTime(ev.At)); err != nil {
			return wrap("insert transition", err)
		}
		if _, err := tx.Exec(`UPDATE runs SET state = ? WHERE id = ?`, string(ev.To), ev.RunID); err != nil {
			return wrap("update state", err)
		}
		return tx.Commit()

	case *pipeline.BuildFinishedEvent:
		_, err := l.db.Exec(
			`INSERT OR REPLACE INTO builds (run_id, platform, archive, sha256, error, duration_ms) VALUES (?,?,?,?,?,?)`,
			ev.RunID, ev.Platform.String(), ev.Archive, ev.SHA256, errString(ev.Err), ev.Duration.Milliseconds(),
		)
		return wrap("insert build", err)

	case *pipeline.ReleasePublishedEvent:
		assets, err := json.Marshal(ev.Assets)
		if err != nil {
			return err
		}
		_, err = l.db.Exec(`INSERT INTO releases (run_id, tag, url, assets, published_at) VALUES (?,?,?,?,?)`,
			ev.RunID, ev.Tag, ev.URL, string(assets), formatTime(ev.At))
		return wrap("insert release", err)

	case *pipeline.FormulaUpdatedEvent:
		_, err := l.db.Exec(`INSERT INTO formula_prs (run_id, branch, url, reused) VALUES (?,?,?,?)`,
			ev.RunID, ev.Branch, ev.URL, ev.Reused)
		return wrap("insert formula pr", err)

	case *pipeline.RunFinishedEvent:
		l.mu.Lock()
		delete(l.seq, ev.RunID)
		l.mu.Unlock()
		_, err := l.db.Exec(`UPDATE runs SET state = ?, error = ?, finished_at = ? WHERE id = ?`,
			string(ev.State), errString(ev.Err), formatTime(ev.At), ev.RunID)
		return wrap("finish run", err)
	}
	return nil
}

const runColumns = `id, trigger, dry_run, state, version, tag, source, error, started_at, finished_at`

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (l *Ledger) ListRuns(limit int) ([]RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// LoadRun returns the full record of one run.
func (l *Ledger) LoadRun(id string) (*Run, error) {
	s, err := scanRun(l.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
		}
		return nil, fmt.Errorf("query run: %w", err)
	}
	run := &Run{RunSummary: *s}

	trows, err := l.db.Query(`SELECT seq, from_state, to_state, at FROM transitions WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer trows.Close()
	for trows.Next() {
		var t Transition
		var from, to, at string
		if err := trows.Scan(&t.Seq, &from, &to, &at); err != nil {
			return nil, err
		}
		t.From, t.To, t.At = pipeline.State(from), pipeline.State(to), parseTime(at)
		run.Transitions = append(run.Transitions, t)
	}
	if err := trows.Err(); err != nil {
		return nil, err
	}

	brows, err := l.db.Query(`SELECT platform, archive, sha256, error, duration_ms FROM builds WHERE run_id = ? ORDER BY platform`, id)
	if err != nil {
		return nil, err
	}
	defer brows.Close()
	for brows.Next() {
		var b Build
		var ms int64
		if err := brows.Scan(&b.Platform, &b.Archive, &b.SHA256, &b.Error, &ms); err != nil {
			return nil, err
		}
		b.Duration = time.Duration(ms) * time.Millisecond
		run.Builds = append(run.Builds, b)
	}
	if err := brows.Err(); err != nil {
		return nil, err
	}

	var rel Release
	var assets, published string
	err = l.db.QueryRow(`SELECT tag, url, assets, published_at FROM releases WHERE run_id = ?`, id).
		Scan(&rel.Tag, &rel.URL, &assets, &published)
	switch {
	case err == nil:
		if err := json.Unmarshal([]byte(assets), &rel.Assets); err != nil {
			return nil, fmt.Errorf("decode assets: %w", err)
		}
		rel.PublishedAt = parseTime(published)
		run.Release = &rel
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	var pr FormulaPR
	err = l.db.QueryRow(`SELECT branch, url, reused FROM formula_prs WHERE run_id = ?`, id).
		Scan(&pr.Branch, &pr.URL, &pr.Reused)
	switch {
	case err == nil:
		run.FormulaPR = &pr
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunSummary, error) {
	var s RunSummary
	var state, started, finished string
	if err := row.Scan(&s.ID, &s.Trigger, &s.DryRun, &state, &s.Version, &s.Tag, &s.Source, &s.Error, &started, &finished); err != nil {
		return nil, err
	}
	s.State = pipeline.State(state)
	s.StartedAt, s.FinishedAt = parseTime(started), parseTime(finished)
	return &s, nil
}

// timeLayout has a fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
