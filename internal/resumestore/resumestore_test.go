package resumestore

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/cenkalti/flux/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"
	bolt "go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) (*Store, string) {
	path := filepath.Join(t.TempDir(), "resume.db")
	s, err := Open(path, time.Second)
	require.NoError(t, err)
	return s, path
}

func TestWriteRead(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	v, err := s.Version()
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, v)

	added := time.Unix(1700000000, 0)
	rec := &Record{
		ID:             "aa",
		ResumeData:     []byte("blob"),
		MagnetURI:      "magnet:?xt=urn:btih:aa",
		Name:           "foo",
		SavePath:       "/downloads",
		FilePriorities: []int{0, 4, 7},
		Category:       "linux",
		Tags:           []string{"iso"},
		AddedAt:        added,
		DownloadLimit:  1024,
		UploadLimit:    512,
		Paused:         true,
	}
	require.NoError(t, s.Write(rec))

	got, err := s.Read("aa")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got.ResumeData)
	assert.Equal(t, "foo", got.Name)
	assert.Equal(t, []int{0, 4, 7}, got.FilePriorities)
	assert.Equal(t, []string{"iso"}, got.Tags)
	assert.True(t, got.AddedAt.Equal(added))
	assert.Equal(t, int64(1024), got.DownloadLimit)
	assert.Equal(t, int64(512), got.UploadLimit)
	assert.True(t, got.Paused)
	assert.Equal(t, CurrentVersion, got.SchemaVersion)
	assert.False(t, got.LastSavedAt.IsZero())
	assert.False(t, RecheckRequired(got, err))

	require.NoError(t, s.Delete("aa"))
	require.NoError(t, s.Delete("aa"))
	_, err = s.Read("aa")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMissingRecordMeansRecheck(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	rec, err := s.Read("missing")
	assert.True(t, RecheckRequired(rec, err))

	require.NoError(t, s.Write(&Record{ID: "nodata", Name: "x"}))
	rec, err = s.Read("nodata")
	require.NoError(t, err)
	assert.True(t, RecheckRequired(rec, err))

	assert.False(t, RecheckRequired(nil, errors.New("disk error")))
}

func TestListOrder(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()

	require.NoError(t, s.Write(&Record{ID: "b", AddedAt: time.Unix(200, 0)}))
	require.NoError(t, s.Write(&Record{ID: "a", AddedAt: time.Unix(300, 0)}))
	require.NoError(t, s.Write(&Record{ID: "c", AddedAt: time.Unix(100, 0)}))

	recs, bad, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, bad)
	require.Len(t, recs, 3)
	assert.Equal(t, engine.TorrentID("c"), recs[0].ID)
	assert.Equal(t, engine.TorrentID("b"), recs[1].ID)
	assert.Equal(t, engine.TorrentID("a"), recs[2].ID)

	ids, err := s.IDs()
	require.NoError(t, err)
	assert.Equal(t, []engine.TorrentID{"a", "b", "c"}, ids)
}

func writeV1(t *testing.T, path string, stamp bool, rows ...rowV1) {
	db, err := bolt.Open(path, 0640, nil)
	require.NoError(t, err)
	defer db.Close()
	err = db.Update(func(tx *bolt.Tx) error {
		if stamp {
			meta, err := tx.CreateBucketIfNotExists(metaBucket)
			if err != nil {
				return err
			}
			if err = meta.Put(versionKey, []byte("1")); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucketIfNotExists(torrentsBucket)
		if err != nil {
			return err
		}
		for _, r := range rows {
			value, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err = b.Put([]byte(r.ID), value); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestMigrateFromV1(t *testing.T) {
	for _, stamp := range []bool{true, false} {
		t.Run("stamped="+strconv.FormatBool(stamp), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "resume.db")
			writeV1(t, path, stamp,
				rowV1{ID: "aa", ResumeData: []byte("one"), Name: "first", Tags: []string{"x"}, AddedTime: 100, SchemaVersion: 1},
				rowV1{ID: "bb", ResumeData: []byte("two"), Name: "second", Paused: true, AddedTime: 200, SchemaVersion: 1},
			)

			s, err := Open(path, time.Second)
			require.NoError(t, err)
			defer s.Close()

			v, err := s.Version()
			require.NoError(t, err)
			assert.Equal(t, 2, v)

			rec, err := s.Read("aa")
			require.NoError(t, err)
			assert.Equal(t, []byte("one"), rec.ResumeData)
			assert.Equal(t, "first", rec.Name)
			assert.Equal(t, []string{"x"}, rec.Tags)
			assert.Equal(t, 2, rec.SchemaVersion)
			assert.Zero(t, rec.DownloadLimit)

			rec, err = s.Read("bb")
			require.NoError(t, err)
			assert.True(t, rec.Paused)

			// Every row is rewritten in the new encoding.
			err = s.db.View(func(tx *bolt.Tx) error {
				return tx.Bucket(torrentsBucket).ForEach(func(k, v []byte) error {
					var r rowV2
					if err := bencode.DecodeBytes(v, &r); err != nil {
						return err
					}
					assert.Equal(t, 2, r.SchemaVersion, "row %s", k)
					return nil
				})
			})
			require.NoError(t, err)
		})
	}
}

func TestRejectNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.db")
	db, err := bolt.Open(path, 0640, nil)
	require.NoError(t, err)
	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		return meta.Put(versionKey, []byte("3"))
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaTooNew)
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 3, se.Found)
	assert.Equal(t, CurrentVersion, se.Supported)
}

func TestLocked(t *testing.T) {
	s, path := newTestStore(t)
	defer s.Close()

	_, err := Open(path, 300*time.Millisecond)
	assert.ErrorIs(t, err, ErrLocked)
}
