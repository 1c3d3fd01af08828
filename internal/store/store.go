package store

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/podscribe/backend/internal/transcript"
)

// ErrNotFound is returned by FindByAudioSource when no transcript exists for
// the source. A miss is a normal outcome, not a failure.
var ErrNotFound = errors.New("transcript not found")

// StorageError is a persistence read/write failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Record is one persisted transcription result. Records are created once per
// successful run and never mutated; a later run for the same audio source
// overwrites the record (last write wins).
type Record struct {
	SavedAt     time.Time             `json:"savedAt"`
	AudioURL    string                `json:"audioUrl"`
	Title       string                `json:"title,omitempty"`
	PubDate     string                `json:"pubDate,omitempty"`
	GUID        string                `json:"guid,omitempty"`
	Description string                `json:"description,omitempty"`
	FeedTitle   string                `json:"feedTitle,omitempty"`
	FeedURL     string                `json:"feedUrl,omitempty"`
	RSSURL      string                `json:"rssUrl,omitempty"`
	Provider    string                `json:"provider"`
	Transcript  *transcript.Canonical `json:"transcript"`
}

// EncodeKey derives the stable storage key for an audio source URL: base64 of
// the URL with every non-alphanumeric mapped to '_'. Not reversible, only
// collision-resistant and stable across calls for the same input.
func EncodeKey(audioURL string) string {
	enc := base64.StdEncoding.EncodeToString([]byte(audioURL))
	out := []byte(enc)
	for i, c := range out {
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			out[i] = '_'
		}
	}
	return string(out)
}

// Store persists transcription records in SQLite, one row per distinct audio
// source keyed by EncodeKey.
type Store struct {
	db *sql.DB
}

func NewSQLite(path string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	s := &Store{db: sqlDB}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transcripts (
		source_key TEXT PRIMARY KEY,
		audio_url TEXT NOT NULL,
		provider TEXT NOT NULL,
		saved_at DATETIME NOT NULL,
		record TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the record under its derived key, overwriting any existing
// record for the same audio source.
func (s *Store) Save(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}

	_, err = s.db.Exec(`
		INSERT INTO transcripts (source_key, audio_url, provider, saved_at, record)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_key) DO UPDATE SET
			audio_url = excluded.audio_url,
			provider = excluded.provider,
			saved_at = excluded.saved_at,
			record = excluded.record`,
		EncodeKey(rec.AudioURL), rec.AudioURL, rec.Provider, rec.SavedAt, data,
	)
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

// FindByAudioSource looks up the record for an audio URL by its derived key.
func (s *Store) FindByAudioSource(audioURL string) (*Record, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT record FROM transcripts WHERE source_key = ?",
		EncodeKey(audioURL),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: "find", Err: err}
	}

	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, &StorageError{Op: "find", Err: err}
	}
	return rec, nil
}

// ListAll returns every stored record, newest first.
func (s *Store) ListAll() ([]*Record, error) {
	rows, err := s.db.Query("SELECT record FROM transcripts ORDER BY saved_at DESC")
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		rec := &Record{}
		if err := json.Unmarshal(data, rec); err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return records, nil
}
