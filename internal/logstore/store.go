// Package logstore implements component F: an append-only event log keyed
// by station, time-range extraction to on-disk files, and a retention
// sweep. Grounded on original_source/src/logs.rs's rusqlite schema, ported
// onto database/sql with the modernc.org/sqlite pure-Go driver.
package logstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS stations (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp  TEXT NOT NULL,
	station_id INTEGER NOT NULL REFERENCES stations(id) ON DELETE CASCADE,
	level      TEXT NOT NULL DEFAULT 'info',
	message    TEXT NOT NULL
);
`

// retentionWindow is how far back append-era events and extraction
// artifacts are kept before purge removes them.
const retentionWindow = 30 * 24 * time.Hour

// canonicalServerLog is the one extraction artifact purge truncates
// instead of deleting, mirroring the original implementation's treatment
// of its running server.log.
const canonicalServerLog = "server.log"

// Store is the log store described in spec §4.F. Safe for concurrent
// Append from many station/operator sessions; Extract and Purge are
// expected to run serially (e.g. one operator command at a time).
type Store struct {
	db      *sql.DB
	log     *zap.Logger
	logDir  string
	breaker *gobreaker.CircuitBreaker
}

// Open creates (if absent) the schema at dbPath and returns a Store that
// writes extraction artifacts under logDir.
func Open(dbPath, logDir string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create log store schema: %w", err)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		db.Close()
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "logstore-append",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("log store circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Store{db: db, log: log, logDir: logDir, breaker: breaker}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database handle is reachable, for the readiness
// probe (spec §6.9).
func (s *Store) Ping() error {
	return s.db.Ping()
}

// EnsureStation inserts station_name into the stations relation if it is
// not already present. Idempotent.
func (s *Store) EnsureStation(stationName string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO stations (name) VALUES (?)`, stationName)
	if err != nil {
		return fmt.Errorf("ensure station %q: %w", stationName, err)
	}
	return nil
}

// Append inserts an event row for stationName with the given level
// (defaulting to "info" when empty) and message, timestamped now. On DB
// failure the error is diagnosed and swallowed (spec §4.F, §7): a wedged
// database degrades append to a no-op rather than blocking the caller.
func (s *Store) Append(stationName, level, message string) {
	if level == "" {
		level = "info"
	}
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.appendOnce(stationName, level, message)
	})
	if err != nil {
		s.log.Warn("log append failed, continuing without persistence",
			zap.String("station", stationName),
			zap.String("level", level),
			zap.Error(err),
		)
	}
}

func (s *Store) appendOnce(stationName, level, message string) error {
	if err := s.EnsureStation(stationName); err != nil {
		return err
	}
	timestamp := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	_, err := s.db.Exec(
		`INSERT INTO events (timestamp, station_id, level, message)
		 SELECT ?, id, ?, ? FROM stations WHERE name = ?`,
		timestamp, level, message, stationName,
	)
	return err
}

// Extract selects events for stationName between begin and end (inclusive)
// ordered by timestamp, writes them to a newly created file under logDir,
// and returns the file's name relative to logDir. Lines whose row fails to
// scan are skipped and diagnosed rather than failing the whole extraction.
func (s *Store) Extract(stationName string, begin, end time.Time) (string, error) {
	rows, err := s.db.Query(
		`SELECT events.timestamp, events.message FROM events
		 JOIN stations ON events.station_id = stations.id
		 WHERE stations.name = ? AND events.timestamp BETWEEN ? AND ?
		 ORDER BY events.timestamp`,
		stationName,
		begin.Local().Format("2006-01-02T15:04:05.000Z07:00"),
		end.Local().Format("2006-01-02T15:04:05.000Z07:00"),
	)
	if err != nil {
		return "", fmt.Errorf("query events for %q: %w", stationName, err)
	}
	defer rows.Close()

	fileName := fmt.Sprintf("%s_%d.log", sanitizeForFilename(stationName), begin.Unix())
	file, err := os.Create(filepath.Join(s.logDir, fileName))
	if err != nil {
		return "", fmt.Errorf("create extraction file: %w", err)
	}
	defer file.Close()

	for rows.Next() {
		var timestamp, message string
		if err := rows.Scan(&timestamp, &message); err != nil {
			s.log.Warn("skipping unreadable event row during extraction",
				zap.String("station", stationName),
				zap.Error(err),
			)
			continue
		}
		if _, err := fmt.Fprintf(file, "[%s] %s\n", timestamp, message); err != nil {
			return "", fmt.Errorf("write extraction file: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate events for %q: %w", stationName, err)
	}

	return fileName, nil
}

// Purge deletes event rows older than the retention window and removes
// on-disk extraction artifacts older than the same window, except the
// canonical server.log file, which is truncated instead of removed.
func (s *Store) Purge() error {
	cutoff := time.Now().Add(-retentionWindow)
	if _, err := s.db.Exec(`DELETE FROM events WHERE timestamp < ?`, cutoff.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("purge event rows: %w", err)
	}

	entries, err := os.ReadDir(s.logDir)
	if err != nil {
		return fmt.Errorf("read log directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if entry.Name() == canonicalServerLog {
			if err := os.Truncate(filepath.Join(s.logDir, entry.Name()), 0); err != nil {
				s.log.Warn("unable to truncate canonical server log", zap.Error(err))
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.logDir, entry.Name())); err != nil {
				s.log.Warn("unable to remove stale extraction artifact",
					zap.String("file", entry.Name()),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

func sanitizeForFilename(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_")
	return replacer.Replace(name)
}
