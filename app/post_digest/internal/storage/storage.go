package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// 结果状态
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run 一次流水线运行的统计
type Run struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       time.Time
	Eligible         int
	Attempted        int
	Succeeded        int
	Failed           int
	DocumentsWritten int
}

// Outcome 单篇帖子的处理结果
type Outcome struct {
	PostID    string
	Status    string
	Reason    string
	Documents int
	At        time.Time
}

// Storage 运行记录，支持 postgres 与 sqlite
type Storage struct {
	db      *sql.DB
	dialect dialect
}

type dialect struct {
	driver     string
	idColumn   string
	timeColumn string
}

var (
	postgresDialect = dialect{driver: "postgres", idColumn: "BIGSERIAL PRIMARY KEY", timeColumn: "TIMESTAMPTZ"}
	sqliteDialect   = dialect{driver: "sqlite", idColumn: "INTEGER PRIMARY KEY AUTOINCREMENT", timeColumn: "TIMESTAMP"}
)

// bind 第 n 个(从 1 开始)占位符
func (d dialect) bind(n int) string {
	if d.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// NewStorage 按 DSN 打开数据库并建表
//
//	postgres://... 或 postgresql://...  -> lib/pq
//	sqlite://path 或 file:path          -> modernc sqlite
func NewStorage(dsn string) (*Storage, error) {
	d, source, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if d.driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{db: db, dialect: d}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func parseDSN(dsn string) (dialect, string, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgresDialect, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqliteDialect, strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "file:"):
		return sqliteDialect, dsn, nil
	default:
		return dialect{}, "", fmt.Errorf("unsupported database url: %q", dsn)
	}
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS digest_runs (
			id TEXT PRIMARY KEY,
			started_at ` + s.dialect.timeColumn + ` NOT NULL,
			finished_at ` + s.dialect.timeColumn + `,
			eligible INTEGER NOT NULL DEFAULT 0,
			attempted INTEGER NOT NULL DEFAULT 0,
			succeeded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			documents_written INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS digest_outcomes (
			id ` + s.dialect.idColumn + `,
			run_id TEXT NOT NULL REFERENCES digest_runs(id),
			post_id TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			documents INTEGER NOT NULL DEFAULT 0,
			created_at ` + s.dialect.timeColumn + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS digest_outcomes_post_id ON digest_outcomes (post_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	return nil
}

// StartRun 创建运行记录
func (s *Storage) StartRun(ctx context.Context, run Run) error {
	b := s.dialect.bind
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO digest_runs (id, started_at) VALUES (`+b(1)+`, `+b(2)+`)`,
		run.ID, run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// RecordOutcome 记录单篇帖子的结果
func (s *Storage) RecordOutcome(ctx context.Context, runID string, o Outcome) error {
	b := s.dialect.bind
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO digest_outcomes (run_id, post_id, status, reason, documents, created_at)
		VALUES (`+b(1)+`, `+b(2)+`, `+b(3)+`, `+b(4)+`, `+b(5)+`, `+b(6)+`)`,
		runID, o.PostID, o.Status, o.Reason, o.Documents, o.At.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

// FinishRun 写入运行统计
func (s *Storage) FinishRun(ctx context.Context, run Run) error {
	b := s.dialect.bind
	_, err := s.db.ExecContext(ctx, `
		UPDATE digest_runs
		SET finished_at = `+b(1)+`, eligible = `+b(2)+`, attempted = `+b(3)+`,
			succeeded = `+b(4)+`, failed = `+b(5)+`, documents_written = `+b(6)+`
		WHERE id = `+b(7),
		run.FinishedAt.UTC(), run.Eligible, run.Attempted,
		run.Succeeded, run.Failed, run.DocumentsWritten, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// RecentRuns 按开始时间倒序返回最近的运行
func (s *Storage) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, eligible, attempted, succeeded, failed, documents_written
		FROM digest_runs
		ORDER BY started_at DESC
		LIMIT `+s.dialect.bind(1), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished any
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Eligible, &r.Attempted,
			&r.Succeeded, &r.Failed, &r.DocumentsWritten); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = timeValue(started)
		r.FinishedAt = timeValue(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PostOutcomes 某篇帖子的历史结果，按时间顺序
func (s *Storage) PostOutcomes(ctx context.Context, postID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, status, reason, documents, created_at
		FROM digest_outcomes
		WHERE post_id = `+s.dialect.bind(1)+`
		ORDER BY id`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o      Outcome
			reason sql.NullString
			at     any
		)
		if err := rows.Scan(&o.PostID, &o.Status, &reason, &o.Documents, &at); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Reason = reason.String
		o.At = timeValue(at)
		out = append(out, o)
	}
	return out, rows.Err()
}

// timeValue 兼容驱动返回 time.Time 或字符串两种形式
func timeValue(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	}
	return time.Time{}
}

func parseTime(s string) time.Time {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
