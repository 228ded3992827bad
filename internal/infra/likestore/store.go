// Package likestore persists liked track IDs in SQLite.
package likestore

import (
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	appName    = "tunedeck"
	dbFileName = "tunedeck.db"
)

const schema = `
CREATE TABLE IF NOT EXISTS liked_tracks (
	track_id TEXT PRIMARY KEY,
	liked_at INTEGER NOT NULL
)`

// Store is a LikeStore backed by SQLite. Membership is cached in memory;
// every toggle is written through.
type Store struct {
	db *sql.DB

	mu  sync.RWMutex
	ids map[string]time.Time
}

// DefaultPath returns the database path under the XDG data directory.
func DefaultPath() (string, error) {
	path, err := xdg.DataFile(filepath.Join(appName, dbFileName))
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve data directory")
	}
	return path, nil
}

// Open opens (or creates) the store at path. An empty path uses DefaultPath.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open like store")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}

	s := &Store{db: db, ids: make(map[string]time.Time)}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}

	zlog.Debug().Msgf("likestore: opened: path=%s liked=%d", path, len(s.ids))
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT track_id, liked_at FROM liked_tracks`)
	if err != nil {
		return errors.Wrap(err, "failed to load liked tracks")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			at int64
		)
		if err := rows.Scan(&id, &at); err != nil {
			return errors.Wrap(err, "failed to scan liked track")
		}
		s.ids[id] = time.Unix(at, 0)
	}
	return errors.Wrap(rows.Err(), "failed to read liked tracks")
}

// Toggle likes trackID if it is not liked and unlikes it otherwise.
// Returns the new state.
func (s *Store) Toggle(trackID string) (bool, error) {
	if trackID == "" {
		return false, errors.New("track ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[trackID]; ok {
		if _, err := s.db.Exec(`DELETE FROM liked_tracks WHERE track_id = ?`, trackID); err != nil {
			return true, errors.Wrapf(err, "failed to unlike %s", trackID)
		}
		delete(s.ids, trackID)
		return false, nil
	}

	now := time.Now()
	if _, err := s.db.Exec(
		`INSERT INTO liked_tracks (track_id, liked_at) VALUES (?, ?) ON CONFLICT(track_id) DO NOTHING`,
		trackID, now.Unix(),
	); err != nil {
		return false, errors.Wrapf(err, "failed to like %s", trackID)
	}
	s.ids[trackID] = now
	return true, nil
}

// Contains reports whether trackID is liked.
func (s *Store) Contains(trackID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[trackID]
	return ok
}

// IDs returns liked track IDs, most recently liked first.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := s.ids[ids[i]], s.ids[ids[j]]
		if ti.Equal(tj) {
			return ids[i] < ids[j]
		}
		return ti.After(tj)
	})
	return ids
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
