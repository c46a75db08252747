// CLAUDE:SUMMARY SQLite audit trail: buffered async writer with periodic batch flush, plus recent-entry query for admins
package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id      TEXT PRIMARY KEY,
	timestamp     INTEGER NOT NULL,
	action        TEXT NOT NULL,
	transport     TEXT NOT NULL DEFAULT 'http',
	user_id       TEXT,
	request_id    TEXT,
	parameters    TEXT,
	result        TEXT,
	error_message TEXT,
	duration_ms   INTEGER,
	status        TEXT NOT NULL DEFAULT 'success'
);
CREATE INDEX IF NOT EXISTS idx_audit_log_time ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
`

const (
	bufferSize    = 256
	batchSize     = 32
	flushInterval = 500 * time.Millisecond
)

// SQLiteLogger queues entries on a channel and writes them from a single
// goroutine. Close drains the queue.
type SQLiteLogger struct {
	db     *sql.DB
	queue  chan *Entry
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// NewSQLiteLogger creates the audit table if needed and starts the writer.
func NewSQLiteLogger(sqlDB *sql.DB, logger *slog.Logger) (*SQLiteLogger, error) {
	if _, err := sqlDB.Exec(Schema); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &SQLiteLogger{
		db:     sqlDB,
		queue:  make(chan *Entry, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l, nil
}

func (l *SQLiteLogger) Log(ctx context.Context, e *Entry) error {
	fillDefaults(e)
	return l.insert(ctx, e)
}

// LogAsync never blocks; entries are dropped when the buffer is full.
func (l *SQLiteLogger) LogAsync(e *Entry) {
	fillDefaults(e)
	select {
	case l.queue <- e:
	default:
		l.logger.Warn("audit buffer full, dropping entry", "action", e.Action)
	}
}

func (l *SQLiteLogger) Close() error {
	l.once.Do(func() {
		close(l.queue)
		<-l.done
	})
	return nil
}

func fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = "aud_" + uuid.NewString()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	if e.Transport == "" {
		e.Transport = "http"
	}
	if e.Status == "" {
		e.Status = StatusSuccess
		if e.Error != "" {
			e.Status = StatusError
		}
	}
}

func (l *SQLiteLogger) run() {
	defer close(l.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	pending := make([]*Entry, 0, batchSize)
	flush := func() {
		for _, e := range pending {
			if err := l.insert(context.Background(), e); err != nil {
				l.logger.Error("audit write failed", "action", e.Action, "error", err)
			}
		}
		pending = pending[:0]
	}

	for {
		select {
		case e, ok := <-l.queue:
			if !ok {
				flush()
				return
			}
			pending = append(pending, e)
			if len(pending) == batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (l *SQLiteLogger) insert(ctx context.Context, e *Entry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_log (entry_id, timestamp, action, transport, user_id, request_id,
			parameters, result, error_message, duration_ms, status)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.EntryID, e.Timestamp, e.Action, e.Transport, e.UserID, e.RequestID,
		e.Parameters, e.Result, e.Error, e.DurationMs, e.Status)
	return err
}

// Recent returns the newest entries, optionally filtered by action.
func (l *SQLiteLogger) Recent(ctx context.Context, action string, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT entry_id, timestamp, action, transport, COALESCE(user_id,''), COALESCE(request_id,''),
		COALESCE(parameters,''), COALESCE(result,''), COALESCE(error_message,''), COALESCE(duration_ms,0), status
		FROM audit_log`
	var args []any
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.Action, &e.Transport, &e.UserID, &e.RequestID,
			&e.Parameters, &e.Result, &e.Error, &e.DurationMs, &e.Status); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
