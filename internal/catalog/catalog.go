// Package catalog keeps a SQLite record of every finished recording.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Honorable-Knights-of-the-Roundtable/liveaudiostream/pkg/liveaudio"
	_ "modernc.org/sqlite"
)

const defaultListLimit = 100

// Store is a SQLite backed liveaudio.ArtifactRecorder.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open (creating if needed) the catalog database at path.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug("catalog opened", slog.String("path", path))
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS recordings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    path TEXT NOT NULL,
    sample_rate INTEGER NOT NULL,
    channels INTEGER NOT NULL,
    bits_per_sample INTEGER NOT NULL,
    audio_source INTEGER NOT NULL,
    chunks INTEGER NOT NULL,
    frames INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    started_at_ns INTEGER NOT NULL,
    stopped_at_ns INTEGER NOT NULL,
    error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_recordings_session ON recordings(session_id, started_at_ns);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create catalog schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordArtifact adds a finished recording to the catalog.
func (s *Store) RecordArtifact(ctx context.Context, a liveaudio.Artifact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recordings(session_id, path, sample_rate, channels, bits_per_sample, audio_source,
		 chunks, frames, duration_ns, started_at_ns, stopped_at_ns, error)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.Path, a.SampleRate, a.Channels, a.BitsPerSample, a.AudioSource,
		a.Chunks, a.Frames, int64(a.Duration), unixNano(a.StartedAt), unixNano(a.StoppedAt), a.Err)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	s.log.Debug("recording catalogued", slog.String("session_id", a.SessionID), slog.String("path", a.Path))
	return nil
}

// List returns up to limit recordings, most recent first.
// An empty sessionID lists recordings of every session.
func (s *Store) List(ctx context.Context, sessionID string, limit int) ([]liveaudio.Artifact, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, path, sample_rate, channels, bits_per_sample, audio_source,
		 chunks, frames, duration_ns, started_at_ns, stopped_at_ns, error
		 FROM recordings WHERE ? = '' OR session_id = ?
		 ORDER BY started_at_ns DESC, id DESC LIMIT ?`, sessionID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []liveaudio.Artifact
	for rows.Next() {
		var a liveaudio.Artifact
		var duration, startedAt, stoppedAt int64
		if err := rows.Scan(
			&a.SessionID, &a.Path, &a.SampleRate, &a.Channels, &a.BitsPerSample, &a.AudioSource,
			&a.Chunks, &a.Frames, &duration, &startedAt, &stoppedAt, &a.Err,
		); err != nil {
			return nil, err
		}
		a.Duration = time.Duration(duration)
		a.StartedAt = fromUnixNano(startedAt)
		a.StoppedAt = fromUnixNano(stoppedAt)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// Zero times are stored as 0.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
