package cache

import (
	"time"
)

// PartitionStore is an interface for cache storage.
// It stores and retrieves []byte values, which represent HTTP responses,
// grouped into named partitions. Partitions are namespaced per deployment
// generation, so that entries from different deployments never collide.
//
// Implementations must be thread-safe!
type PartitionStore interface {
	// Put stores the given response in the named partition under the given key.
	// An existing entry with the same key is overwritten.
	Put(partition, key string, e Entry) error
	// Get returns the entry for the given key in the named partition, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	Get(partition, key string) (Entry, bool, error)
	// Match returns an entry for the given key from any partition.
	// If several partitions hold the key, the most recently received entry wins.
	Match(key string) (Entry, bool, error)
	// Partitions returns the names of all partitions that hold at least one entry.
	Partitions() ([]string, error)
	// DeletePartition removes the named partition and all of its entries.
	DeletePartition(name string) error
	// PurgeAll removes every partition.
	// It is a utility method used by the manual cache reset.
	PurgeAll() error
}

// Entry is one stored response snapshot.
type Entry struct {
	Key        string
	ReceivedAt time.Time
	Bytes      []byte
}
