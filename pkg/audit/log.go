package audit

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Record is one click decision as written to the audit trail. Rejected
// clicks are recorded too: the trail is the complete history of what the
// engine decided and why.
type Record struct {
	TraceID     string `json:"traceId"`
	Address     string `json:"address"`
	CountryCode string `json:"countryCode"`
	Timestamp   uint64 `json:"timestamp"`
	Accepted    bool   `json:"accepted"`
	Reason      string `json:"reason,omitempty"`
	Reward      string `json:"reward,omitempty"`
	TrustScore  int    `json:"trustScore"`
}

// Log is an append-only LevelDB decision log. Keys are ordered by
// (timestamp, sequence) so range scans replay decisions in order.
type Log struct {
	mu  sync.Mutex
	db  *leveldb.DB
	seq uint64
}

// Open opens (or creates) an audit log at the given path.
func Open(path string) (*Log, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log at %s: %w", path, err)
	}
	return &Log{db: db}, nil
}

// Append writes one decision record.
func (l *Log) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	l.mu.Lock()
	l.seq++
	key := fmt.Sprintf("click:%020d:%012d", rec.Timestamp, l.seq)
	l.mu.Unlock()

	if err := l.db.Put([]byte(key), data, nil); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// Range returns all records with timestamps in [from, to], in order.
func (l *Log) Range(from, to uint64) ([]Record, error) {
	start := []byte(fmt.Sprintf("click:%020d:", from))
	limit := []byte(fmt.Sprintf("click:%020d:", to+1))

	iter := l.db.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
	defer iter.Release()

	var records []Record
	for iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit record %s: %w", iter.Key(), err)
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("audit iteration failed: %w", err)
	}
	return records, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}
