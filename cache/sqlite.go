package cache

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore creates a new store with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) SQLiteStore {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		partition TEXT NOT NULL,
		key TEXT NOT NULL,
		received_at INTEGER,
		bytes BLOB,
		PRIMARY KEY (partition, key)
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS key_idx ON cache (key)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteStore) Put(partition, key string, e Entry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(`INSERT OR REPLACE INTO cache
		(partition, key, received_at, bytes) VALUES (?, ?, ?, ?)`,
		partition, key, e.ReceivedAt.Unix(), e.Bytes)
	return err
}

func (s SQLiteStore) Get(partition, key string) (Entry, bool, error) {
	var entry Entry
	var rec int64
	err := s.db.QueryRow(
		"SELECT key, received_at, bytes FROM cache WHERE partition = ? AND key = ?",
		partition, key,
	).Scan(&entry.Key, &rec, &entry.Bytes)
	if err == sql.ErrNoRows {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, err
	}
	entry.ReceivedAt = time.Unix(rec, 0)
	return entry, true, nil
}

func (s SQLiteStore) Match(key string) (Entry, bool, error) {
	var entry Entry
	var rec int64
	err := s.db.QueryRow(
		"SELECT key, received_at, bytes FROM cache WHERE key = ? ORDER BY received_at DESC LIMIT 1",
		key,
	).Scan(&entry.Key, &rec, &entry.Bytes)
	if err == sql.ErrNoRows {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, err
	}
	entry.ReceivedAt = time.Unix(rec, 0)
	return entry, true, nil
}

func (s SQLiteStore) Partitions() ([]string, error) {
	names := make([]string, 0)
	rows, err := s.db.Query("SELECT DISTINCT partition FROM cache ORDER BY partition")
	if err != nil {
		return names, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s SQLiteStore) DeletePartition(name string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE partition = ?", name)
	return err
}

func (s SQLiteStore) PurgeAll() error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache")
	return err
}
