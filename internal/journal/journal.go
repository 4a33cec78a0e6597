// Package journal keeps an optional local log of dashboard operations in BoltDB.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRecords = []byte("records")

// DefaultMaxEntries bounds the journal when no limit is configured.
const DefaultMaxEntries = 1000

// Record is one journaled operation.
type Record struct {
	Seq     uint64    `json:"seq"`
	Time    time.Time `json:"time"`
	Op      string    `json:"op"`
	Key     string    `json:"id,omitempty"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	Address string    `json:"address,omitempty"`
}

// Journal is a capped, append-only record log.
type Journal struct {
	db  *bolt.DB
	max int
}

// Open opens or creates the journal at path keeping at most maxEntries records.
func Open(path string, maxEntries int) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Journal{db: db, max: maxEntries}, nil
}

// Append stores rec, assigning its sequence number, and drops the oldest
// records beyond the cap.
func (j *Journal) Append(rec Record) (Record, error) {
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketRecords)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec.Seq = seq
		if rec.Time.IsZero() {
			rec.Time = time.Now().UTC()
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}
		return prune(b, seq, j.max)
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// prune deletes records whose sequence is at least keep behind seq.
func prune(b *bolt.Bucket, seq uint64, keep int) error {
	if seq <= uint64(keep) {
		return nil
	}
	limit := seq - uint64(keep)
	var stale [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= limit; k, _ = c.Next() {
		stale = append(stale, append([]byte(nil), k...))
	}
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Recent returns up to n records, newest first.
func (j *Journal) Recent(n int) ([]Record, error) {
	var out []Record
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
