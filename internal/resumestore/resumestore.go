// Package resumestore keeps per-torrent resume records in a Bolt database file.
//
// The file carries a schema version. Older files are migrated in place when opened.
// Files written by a newer version are rejected.
package resumestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/internal/logger"
	bolt "go.etcd.io/bbolt"
)

// CurrentVersion is the schema version written by this package.
const CurrentVersion = 2

var (
	metaBucket     = []byte("meta")
	torrentsBucket = []byte("torrents")
	versionKey     = []byte("schema_version")
)

var (
	// ErrNotFound is returned when there is no record for a torrent.
	ErrNotFound = errors.New("resume record not found")
	// ErrSchemaTooNew is matched by errors from files written by a newer version.
	ErrSchemaTooNew = errors.New("resume database schema is newer than supported")
	// ErrLocked is returned when another process holds the database file.
	ErrLocked = errors.New("resume database is locked by another process")
)

// SchemaError is returned from Open when the file cannot be used by this version.
type SchemaError struct {
	Found     int
	Supported int
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("resume database has schema version %d but only versions up to %d are supported; "+
		"the file was written by a newer release and cannot be downgraded", e.Found, e.Supported)
}

// Is makes errors.Is(err, ErrSchemaTooNew) true.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaTooNew
}

// Record is the durable state of a single torrent.
type Record struct {
	ID engine.TorrentID
	// ResumeData is the opaque blob returned by the engine.
	ResumeData []byte
	// Exactly one of Metainfo and MagnetURI is set.
	Metainfo       []byte
	MagnetURI      string
	Name           string
	SavePath       string
	FilePriorities []int
	Category       string
	Tags           []string
	AddedAt        time.Time
	DownloadLimit  int64
	UploadLimit    int64
	Paused         bool
	SchemaVersion  int
	LastSavedAt    time.Time
}

// RecheckRequired reports whether a torrent must be rechecked on load.
// err is the error returned from Read.
func RecheckRequired(rec *Record, err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	return err == nil && rec != nil && len(rec.ResumeData) == 0
}

// Store is a handle to the resume database.
type Store struct {
	db  *bolt.DB
	log logger.Logger
}

// Open opens or creates the database at path, running migrations if needed.
// Opening a file locked by another process is retried until timeout elapses.
func Open(path string, timeout time.Duration) (*Store, error) {
	l := logger.New("resume")
	err := os.MkdirAll(filepath.Dir(path), 0750)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	var db *bolt.DB
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = timeout
	err = backoff.Retry(func() error {
		var err2 error
		db, err2 = bolt.Open(path, 0640, &bolt.Options{Timeout: 100 * time.Millisecond})
		if err2 == bolt.ErrTimeout {
			l.Debugln("database is locked, retrying:", path)
			return err2
		}
		if err2 != nil {
			return backoff.Permanent(err2)
		}
		return nil
	}, bo)
	if err == bolt.ErrTimeout {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, log: l}
	if err = s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		torrents, err := tx.CreateBucketIfNotExists(torrentsBucket)
		if err != nil {
			return err
		}
		version := 0
		if v := meta.Get(versionKey); v != nil {
			version, err = strconv.Atoi(string(v))
			if err != nil {
				return fmt.Errorf("invalid schema version %q: %w", v, err)
			}
		} else if k, _ := torrents.Cursor().First(); k != nil {
			// Rows without a version stamp were written by the first release.
			version = 1
		} else {
			version = CurrentVersion
		}
		if version > CurrentVersion {
			return &SchemaError{Found: version, Supported: CurrentVersion}
		}
		for version < CurrentVersion {
			m, ok := migrations[version]
			if !ok {
				return fmt.Errorf("no migration from schema version %d", version)
			}
			s.log.Infof("migrating resume database from version %d to %d", version, version+1)
			if err = migrateBucket(torrents, m); err != nil {
				return fmt.Errorf("migration from version %d: %w", version, err)
			}
			version++
		}
		return meta.Put(versionKey, []byte(strconv.Itoa(version)))
	})
}

func migrateBucket(b *bolt.Bucket, m migration) error {
	type kv struct{ k, v []byte }
	var rows []kv
	err := b.ForEach(func(k, v []byte) error {
		nv, err := m(v)
		if err != nil {
			return fmt.Errorf("row %q: %w", k, err)
		}
		rows = append(rows, kv{append([]byte(nil), k...), nv})
		return nil
	})
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err = b.Put(r.k, r.v); err != nil {
			return err
		}
	}
	return nil
}

// Version returns the schema version of the open database.
func (s *Store) Version() (int, error) {
	var version int
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		version, err = strconv.Atoi(string(tx.Bucket(metaBucket).Get(versionKey)))
		return err
	})
	return version, err
}

// Write saves the record for rec.ID in its own transaction.
func (s *Store) Write(rec *Record) error {
	r := *rec
	r.SchemaVersion = CurrentVersion
	r.LastSavedAt = time.Now()
	value, err := encodeRow(&r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(torrentsBucket).Put([]byte(rec.ID), value)
	})
}

// Read returns the record of a torrent, or ErrNotFound.
func (s *Store) Read(id engine.TorrentID) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(torrentsBucket).Get([]byte(id))
		if value == nil {
			return ErrNotFound
		}
		var err error
		rec, err = decodeRow(append([]byte(nil), value...))
		return err
	})
	return rec, err
}

// Delete removes the record of a torrent. Deleting a missing record is not an error.
func (s *Store) Delete(id engine.TorrentID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(torrentsBucket).Delete([]byte(id))
	})
}

// IDs returns the ids of all records in sorted order.
func (s *Store) IDs() ([]engine.TorrentID, error) {
	var ids []engine.TorrentID
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(torrentsBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, engine.TorrentID(k))
			return nil
		})
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

// List returns all records ordered by the time they were added.
// Rows that fail to decode are skipped and returned as errors keyed by id.
func (s *Store) List() ([]*Record, map[engine.TorrentID]error, error) {
	var recs []*Record
	bad := make(map[engine.TorrentID]error)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(torrentsBucket).ForEach(func(k, v []byte) error {
			rec, err := decodeRow(append([]byte(nil), v...))
			if err != nil {
				bad[engine.TorrentID(k)] = err
				return nil
			}
			recs = append(recs, rec)
			return nil
		})
	})
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].AddedAt.Equal(recs[j].AddedAt) {
			return recs[i].AddedAt.Before(recs[j].AddedAt)
		}
		return recs[i].ID < recs[j].ID
	})
	return recs, bad, err
}

// Close the database file.
func (s *Store) Close() error {
	return s.db.Close()
}
