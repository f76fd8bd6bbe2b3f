package resumestore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/flux/engine"
	"github.com/zeebo/bencode"
)

// migration converts a row from version N to version N+1.
type migration func(value []byte) ([]byte, error)

// migrations are keyed by the version they migrate from.
var migrations = map[int]migration{
	1: migrateV1,
}

// rowV1 is the row format of schema version 1. Rows are JSON encoded.
type rowV1 struct {
	ID             string   `json:"info_hash"`
	ResumeData     []byte   `json:"resume_data"`
	Metainfo       []byte   `json:"metainfo,omitempty"`
	MagnetURI      string   `json:"magnet_uri,omitempty"`
	Name           string   `json:"name"`
	SavePath       string   `json:"save_path"`
	FilePriorities []int    `json:"file_priorities,omitempty"`
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
	AddedTime      int64    `json:"added_time"`
	Paused         bool     `json:"paused"`
	SchemaVersion  int      `json:"schema_version"`
	LastSavedAt    int64    `json:"last_saved_at"`
}

// rowV2 is the row format of schema version 2. Rows are bencoded and carry transfer limits.
type rowV2 struct {
	ID             string   `bencode:"info_hash"`
	ResumeData     []byte   `bencode:"resume_data"`
	Metainfo       []byte   `bencode:"metainfo"`
	MagnetURI      string   `bencode:"magnet_uri"`
	Name           string   `bencode:"name"`
	SavePath       string   `bencode:"save_path"`
	FilePriorities []int    `bencode:"file_priorities"`
	Category       string   `bencode:"category"`
	Tags           []string `bencode:"tags"`
	AddedTime      int64    `bencode:"added_time"`
	Paused         int      `bencode:"paused"`
	DownloadLimit  int64    `bencode:"dl_limit"`
	UploadLimit    int64    `bencode:"ul_limit"`
	SchemaVersion  int      `bencode:"schema_version"`
	LastSavedAt    int64    `bencode:"last_saved_at"`
}

func migrateV1(value []byte) ([]byte, error) {
	var r1 rowV1
	if err := json.Unmarshal(value, &r1); err != nil {
		return nil, err
	}
	r2 := rowV2{
		ID:             r1.ID,
		ResumeData:     r1.ResumeData,
		Metainfo:       r1.Metainfo,
		MagnetURI:      r1.MagnetURI,
		Name:           r1.Name,
		SavePath:       r1.SavePath,
		FilePriorities: r1.FilePriorities,
		Category:       r1.Category,
		Tags:           r1.Tags,
		AddedTime:      r1.AddedTime,
		Paused:         boolToInt(r1.Paused),
		SchemaVersion:  2,
		LastSavedAt:    r1.LastSavedAt,
	}
	return bencode.EncodeBytes(r2)
}

func encodeRow(rec *Record) ([]byte, error) {
	r := rowV2{
		ID:             string(rec.ID),
		ResumeData:     rec.ResumeData,
		Metainfo:       rec.Metainfo,
		MagnetURI:      rec.MagnetURI,
		Name:           rec.Name,
		SavePath:       rec.SavePath,
		FilePriorities: rec.FilePriorities,
		Category:       rec.Category,
		Tags:           rec.Tags,
		AddedTime:      unix(rec.AddedAt),
		Paused:         boolToInt(rec.Paused),
		DownloadLimit:  rec.DownloadLimit,
		UploadLimit:    rec.UploadLimit,
		SchemaVersion:  rec.SchemaVersion,
		LastSavedAt:    unix(rec.LastSavedAt),
	}
	return bencode.EncodeBytes(r)
}

func decodeRow(value []byte) (*Record, error) {
	var r rowV2
	if err := bencode.DecodeBytes(value, &r); err != nil {
		return nil, fmt.Errorf("cannot decode resume record: %w", err)
	}
	if r.SchemaVersion > CurrentVersion {
		return nil, &SchemaError{Found: r.SchemaVersion, Supported: CurrentVersion}
	}
	return &Record{
		ID:             engine.TorrentID(r.ID),
		ResumeData:     r.ResumeData,
		Metainfo:       r.Metainfo,
		MagnetURI:      r.MagnetURI,
		Name:           r.Name,
		SavePath:       r.SavePath,
		FilePriorities: r.FilePriorities,
		Category:       r.Category,
		Tags:           r.Tags,
		AddedAt:        fromUnix(r.AddedTime),
		Paused:         r.Paused != 0,
		DownloadLimit:  r.DownloadLimit,
		UploadLimit:    r.UploadLimit,
		SchemaVersion:  r.SchemaVersion,
		LastSavedAt:    fromUnix(r.LastSavedAt),
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
