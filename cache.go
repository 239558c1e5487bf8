/* hidock-driver - host-side driver for HiDock USB voice recorders
 *
 * Metadata cache: durable filename -> recording metadata map, backed
 * by a bbolt database so it survives process restarts and reconnects
 */

package hidock

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

// recordingsBucket is the sole bbolt bucket this cache uses
var recordingsBucket = []byte("recordings")

// CacheEntry is the durable, JSON-encoded record stored per filename
type CacheEntry struct {
	Filename   string        `json:"filename"`
	FileLength uint32        `json:"file_length"`
	Duration   time.Duration `json:"duration"`
	Timestamp  *time.Time    `json:"timestamp,omitempty"`
	Signature  [16]byte      `json:"signature"`

	// LocalPath, if non-empty, is where a completed download last wrote
	// this recording on disk. It is advisory: the cache does not verify
	// the file still exists there before returning it.
	LocalPath string `json:"local_path,omitempty"`

	// Checksum is the sha256 hex digest of the file at LocalPath as of
	// the last completed download, or empty if never downloaded.
	Checksum string `json:"checksum,omitempty"`
}

// MetadataCache persists FileRecord metadata in a bbolt database,
// keyed by filename
type MetadataCache struct {
	db *bolt.DB
}

// OpenMetadataCache opens (creating if necessary) the bbolt database at path
func OpenMetadataCache(path string) (*MetadataCache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, NewError(ErrNotFound, err, "cache: open %s failed", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordingsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, NewError(ErrProtocol, err, "cache: init buckets failed")
	}

	return &MetadataCache{db: db}, nil
}

// Close closes the underlying database
func (c *MetadataCache) Close() error {
	return c.db.Close()
}

// GetAllMetadata returns every cached entry, in no particular order
func (c *MetadataCache) GetAllMetadata() []CacheEntry {
	var entries []CacheEntry

	c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordingsBucket)
		return b.ForEach(func(k, v []byte) error {
			var e CacheEntry
			if err := json.Unmarshal(v, &e); err == nil {
				entries = append(entries, e)
			}
			return nil
		})
	})

	return entries
}

// Get returns the cached entry for filename, or nil if not present
func (c *MetadataCache) Get(filename string) *CacheEntry {
	var entry *CacheEntry

	c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordingsBucket)
		v := b.Get([]byte(filename))
		if v == nil {
			return nil
		}
		var e CacheEntry
		if err := json.Unmarshal(v, &e); err == nil {
			entry = &e
		}
		return nil
	})

	return entry
}

// Set upserts entry into the cache, keyed by its filename
func (c *MetadataCache) Set(entry CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return NewError(ErrProtocol, err, "cache: encode entry failed")
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordingsBucket)
		return b.Put([]byte(entry.Filename), data)
	})
}

// SetLocalPath records where a completed download wrote filename and
// its checksum, creating a bare entry if the device hasn't been
// listed since. Reconcile/device list data, if already cached, is left
// untouched.
func (c *MetadataCache) SetLocalPath(filename, localPath, checksum string) error {
	entry := c.Get(filename)
	if entry == nil {
		entry = &CacheEntry{Filename: filename}
	}
	entry.LocalPath = localPath
	entry.Checksum = checksum
	return c.Set(*entry)
}

// Delete removes filename from the cache
func (c *MetadataCache) Delete(filename string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordingsBucket)
		return b.Delete([]byte(filename))
	})
}

// Reconcile folds a freshly-listed set of records into the cache.
//
// If the fresh list is at least as large as the current cache, it is
// treated as authoritative: every entry is upserted and any cached
// filename absent from fresh is deleted (the device's list is
// complete and is the source of truth).
//
// Otherwise the fresh list is assumed truncated (e.g. the device
// stopped responding partway through file_list): entries present in
// fresh are upserted, but cached entries missing from fresh are left
// alone rather than deleted.
func (c *MetadataCache) Reconcile(fresh []FileRecord) error {
	cached := c.GetAllMetadata()
	cachedCount := len(cached)

	byName := make(map[string]CacheEntry, cachedCount)
	for _, e := range cached {
		byName[e.Filename] = e
	}

	if len(fresh) >= cachedCount {
		freshNames := make(map[string]bool, len(fresh))
		for _, r := range fresh {
			freshNames[r.Filename] = true
			if err := c.Set(recordToEntry(r, byName[r.Filename])); err != nil {
				return err
			}
		}
		for _, e := range cached {
			if !freshNames[e.Filename] {
				if err := c.Delete(e.Filename); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, r := range fresh {
		if err := c.Set(recordToEntry(r, byName[r.Filename])); err != nil {
			return err
		}
	}
	return nil
}

// recordToEntry builds the entry to store for a freshly-listed record,
// carrying forward the local-download bookkeeping (LocalPath/Checksum)
// from the existing cache entry, if any, since the device's file list
// never reports those fields.
func recordToEntry(r FileRecord, existing CacheEntry) CacheEntry {
	return CacheEntry{
		Filename:   r.Filename,
		FileLength: r.FileLength,
		Duration:   r.Duration,
		Timestamp:  r.Timestamp,
		Signature:  r.Signature,
		LocalPath:  existing.LocalPath,
		Checksum:   existing.Checksum,
	}
}
