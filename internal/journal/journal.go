// Package journal records which orchestration steps completed on which
// network so an interrupted deployment can resume without repeating work.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/compose-network/deploykit/internal/logger"
	"github.com/compose-network/deploykit/internal/networks"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

/*
Bolt DB schema:

<NETWORK>/
|--> step name + "#" + fingerprint -> StepRecord (json marshalled)

A step name can hold several records, one per definition it ran with.
*/

type (
	Journal struct {
		db     *bolt.DB
		logger *slog.Logger
	}

	StepRecord struct {
		RunID       string         `json:"runId"`
		Step        string         `json:"step"`
		Action      string         `json:"action"`
		Address     common.Address `json:"address"`
		TxHash      common.Hash    `json:"txHash"`
		CompletedAt time.Time      `json:"completedAt"`
		// Fingerprint identifies the step definition that produced the record.
		Fingerprint string `json:"fingerprint,omitempty"`
	}
)

// NewRunID returns an identifier that groups the records of one invocation.
func NewRunID() string {
	return uuid.NewString()
}

// Open opens (creating if needed) the journal database at path.
func Open(path string, log *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}

	return &Journal{
		db:     db,
		logger: logger.Named(log, "journal").With("path", path),
	}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record marks a step definition complete on network, replacing an earlier
// record of the same definition.
func (j *Journal) Record(network string, record StepRecord) error {
	if record.Step == "" {
		return errors.New("step name is required")
	}
	if record.CompletedAt.IsZero() {
		record.CompletedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode step record: %w", err)
	}

	err = j.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketName(network))
		if err != nil {
			return fmt.Errorf("failed to create bucket=%s: %w", bucketName(network), err)
		}
		return bucket.Put(recordKey(record.Step, record.Fingerprint), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to record step %s: %w", record.Step, err)
	}

	j.logger.
		With("network", string(bucketName(network))).
		With("step", record.Step).
		With("run_id", record.RunID).
		Debug("step recorded")

	return nil
}

// Completed returns the record of step on network written with fingerprint, if any.
func (j *Journal) Completed(network, step, fingerprint string) (StepRecord, bool, error) {
	var (
		record StepRecord
		found  bool
	)

	err := j.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName(network))
		if bucket == nil {
			return nil
		}

		raw := bucket.Get(recordKey(step, fingerprint))
		if raw == nil {
			return nil
		}

		found = true
		return json.Unmarshal(raw, &record)
	})
	if err != nil {
		return StepRecord{}, false, fmt.Errorf("failed to read step %s: %w", step, err)
	}

	return record, found, nil
}

// History returns every record of network ordered by completion time.
func (j *Journal) History(network string) ([]StepRecord, error) {
	var records []StepRecord

	err := j.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName(network))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(_, v []byte) error {
			var record StepRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read journal history: %w", err)
	}

	sort.SliceStable(records, func(a, b int) bool {
		return records[a].CompletedAt.Before(records[b].CompletedAt)
	})

	return records, nil
}

// Reset forgets every record of step on network so the next run executes it
// again. Resetting with an empty step forgets the whole network.
func (j *Journal) Reset(network, step string) error {
	err := j.db.Update(func(tx *bolt.Tx) error {
		name := bucketName(network)
		if step == "" {
			if tx.Bucket(name) == nil {
				return nil
			}
			return tx.DeleteBucket(name)
		}

		bucket := tx.Bucket(name)
		if bucket == nil {
			return nil
		}

		var keys [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var record StepRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			if record.Step == step {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, key := range keys {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset journal: %w", err)
	}

	j.logger.With("network", string(bucketName(network))).With("step", step).Info("journal reset")

	return nil
}

func recordKey(step, fingerprint string) []byte {
	if fingerprint == "" {
		return []byte(step)
	}
	return []byte(step + "#" + fingerprint)
}

func bucketName(network string) []byte {
	return []byte(networks.Canonical(network))
}
