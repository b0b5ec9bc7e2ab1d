package relayer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/highwayswap/highway/transport"
	"github.com/lightningnetwork/lnd/clock"
	"go.etcd.io/bbolt"
)

const (
	// checkpointFileName is the file name of the checkpoint database.
	checkpointFileName = "relayer.db"

	// DefaultCheckpointTimeout is how long opening the checkpoint waits
	// for the file lock.
	DefaultCheckpointTimeout = 5 * time.Second
)

var (
	// chainsBucketKey is the top level bucket holding one bucket per
	// chain. Each chain bucket maps message ids to a record.
	//
	// chains -> <chain id> -> <message id> -> status || unix time
	chainsBucketKey = []byte("chains")

	errInvalidRecord = errors.New("invalid checkpoint record")
)

// Status is what became of a message the relayer handled.
type Status uint8

const (
	// StatusDelivered is a message that settled with the requested asset.
	StatusDelivered Status = iota + 1

	// StatusRefunded is a message that settled with the bridge asset.
	StatusRefunded

	// StatusRejected is a message the agent can never settle, for example
	// because its payload is malformed.
	StatusRejected

	// StatusRedeemedElsewhere is a message someone else submitted first.
	StatusRedeemedElsewhere
)

// String returns a human readable form of the status.
func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "Delivered"

	case StatusRefunded:
		return "Refunded"

	case StatusRejected:
		return "Rejected"

	case StatusRedeemedElsewhere:
		return "RedeemedElsewhere"

	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Record is the checkpoint entry of one message.
type Record struct {
	Status Status
	Time   time.Time
}

// Checkpoint remembers the messages a relayer is done with, so that a
// restart never submits a message twice.
type Checkpoint struct {
	db    *bbolt.DB
	clock clock.Clock
}

// OpenCheckpoint opens or creates the checkpoint database in dir.
func OpenCheckpoint(dir string, clock clock.Clock) (*Checkpoint, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, checkpointFileName)
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: DefaultCheckpointTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open checkpoint %v: %w", path,
			err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chainsBucketKey)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Checkpoint{
		db:    db,
		clock: clock,
	}, nil
}

func chainKey(chain transport.ChainID) []byte {
	var key [2]byte
	binary.BigEndian.PutUint16(key[:], uint16(chain))

	return key[:]
}

func serializeRecord(r Record) []byte {
	var v [9]byte
	v[0] = byte(r.Status)
	binary.BigEndian.PutUint64(v[1:], uint64(r.Time.Unix()))

	return v[:]
}

func deserializeRecord(v []byte) (Record, error) {
	if len(v) != 9 {
		return Record{}, fmt.Errorf("%w: %d bytes", errInvalidRecord,
			len(v))
	}

	return Record{
		Status: Status(v[0]),
		Time:   time.Unix(int64(binary.BigEndian.Uint64(v[1:])), 0),
	}, nil
}

// Put records the status of a message handled for chain. An existing record
// is never overwritten.
func (c *Checkpoint) Put(chain transport.ChainID, id transport.MessageID,
	status Status) error {

	return c.db.Update(func(tx *bbolt.Tx) error {
		chains := tx.Bucket(chainsBucketKey)
		bucket, err := chains.CreateBucketIfNotExists(chainKey(chain))
		if err != nil {
			return err
		}

		if bucket.Get(id[:]) != nil {
			return nil
		}

		return bucket.Put(id[:], serializeRecord(Record{
			Status: status,
			Time:   c.clock.Now(),
		}))
	})
}

// Get returns the record of a message, if any.
func (c *Checkpoint) Get(chain transport.ChainID,
	id transport.MessageID) (*Record, error) {

	var record *Record
	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(chainsBucketKey).Bucket(chainKey(chain))
		if bucket == nil {
			return nil
		}

		v := bucket.Get(id[:])
		if v == nil {
			return nil
		}

		r, err := deserializeRecord(v)
		if err != nil {
			return err
		}
		record = &r

		return nil
	})

	return record, err
}

// Counts returns the number of messages per status handled for chain.
func (c *Checkpoint) Counts(chain transport.ChainID) (map[Status]int,
	error) {

	counts := make(map[Status]int)
	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(chainsBucketKey).Bucket(chainKey(chain))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(_, v []byte) error {
			r, err := deserializeRecord(v)
			if err != nil {
				return err
			}
			counts[r.Status]++

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return counts, nil
}

// Close closes the checkpoint database.
func (c *Checkpoint) Close() error {
	return c.db.Close()
}
