package cache

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory PartitionStore.
// Use it for tests and for deployments where the cache
// does not need to survive a restart.
type MemoryStore struct {
	mutex      *sync.RWMutex
	partitions map[string]map[string]Entry
}

func NewMemoryStore() MemoryStore {
	return MemoryStore{
		mutex:      &sync.RWMutex{},
		partitions: make(map[string]map[string]Entry),
	}
}

func (m MemoryStore) Put(partition, key string, e Entry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entries, ok := m.partitions[partition]
	if !ok {
		entries = make(map[string]Entry)
		m.partitions[partition] = entries
	}
	entries[key] = e
	return nil
}

func (m MemoryStore) Get(partition, key string) (Entry, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.partitions[partition][key]
	return entry, ok, nil
}

func (m MemoryStore) Match(key string) (Entry, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var newest Entry
	var found bool
	for _, entries := range m.partitions {
		if entry, ok := entries[key]; ok {
			if !found || entry.ReceivedAt.After(newest.ReceivedAt) {
				newest = entry
				found = true
			}
		}
	}
	return newest, found, nil
}

func (m MemoryStore) Partitions() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.partitions))
	for name := range m.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m MemoryStore) DeletePartition(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.partitions, name)
	return nil
}

func (m MemoryStore) PurgeAll() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for name := range m.partitions {
		delete(m.partitions, name)
	}
	return nil
}
