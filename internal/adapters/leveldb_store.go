package adapters

import (
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/exitlimit"
)

var _ ports.StateStore = (*LevelDBStore)(nil)

// key prefixes
var (
	limiterPrefix = []byte("l/")
	statusPrefix  = []byte("s/")
	pendingPrefix = []byte("p/")
)

var (
	writeOpt = opt.WriteOptions{Sync: true}
	readOpt  = opt.ReadOptions{}
)

// LevelDBStore persists limiter states, request statuses and pending batches as
// JSON values in goleveldb.
type LevelDBStore struct {
	mu  sync.Mutex
	stg storage.Storage
	db  *leveldb.DB
}

// OpenLevelDBStore opens or creates the store at path. An empty path gives an
// in-memory store.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	var (
		stg storage.Storage
		err error
	)
	if path == "" {
		stg = storage.NewMemStorage()
	} else if stg, err = storage.OpenFile(path, false); err != nil {
		return nil, errors.Wrap(err, "open state store")
	}

	db, err := leveldb.Open(stg, &opt.Options{
		OpenFilesCacheCapacity: 16,
		BlockCacheCapacity:     8 * opt.MiB,
		WriteBuffer:            4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	})
	if err != nil {
		stg.Close()
		return nil, errors.Wrap(err, "open level db")
	}
	return &LevelDBStore{stg: stg, db: db}, nil
}

// Close closes the database and releases its storage lock. Later operations
// will all fail.
func (s *LevelDBStore) Close() error {
	err := s.db.Close()
	if serr := s.stg.Close(); err == nil && serr != storage.ErrClosed {
		err = serr
	}
	return err
}

func key(prefix, id []byte) []byte {
	return append(append(make([]byte, 0, len(prefix)+len(id)), prefix...), id...)
}

func (s *LevelDBStore) get(k []byte, v interface{}) error {
	data, err := s.db.Get(k, &readOpt)
	if err == leveldb.ErrNotFound {
		return ports.ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "get %q", k)
	}
	return errors.Wrapf(json.Unmarshal(data, v), "decode %q", k)
}

func (s *LevelDBStore) GetLimiterState(name string) (exitlimit.State, error) {
	var st exitlimit.State
	if err := s.get(key(limiterPrefix, []byte(name)), &st); err != nil {
		return exitlimit.State{}, err
	}
	return st, nil
}

func (s *LevelDBStore) GetRequestStatus(hash common.Hash) (*domain.RequestStatus, error) {
	var st domain.RequestStatus
	if err := s.get(key(statusPrefix, hash[:]), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListPendingBatches returns pending batches ordered by hash.
func (s *LevelDBStore) ListPendingBatches() ([]domain.PendingBatch, error) {
	it := s.db.NewIterator(util.BytesPrefix(pendingPrefix), &readOpt)
	defer it.Release()

	var out []domain.PendingBatch
	for it.Next() {
		var b domain.PendingBatch
		if err := json.Unmarshal(it.Value(), &b); err != nil {
			return nil, errors.Wrapf(err, "decode %q", it.Key())
		}
		out = append(out, b)
	}
	return out, errors.Wrap(it.Error(), "iterate pending batches")
}

// Commit writes every change of tx in one batch.
func (s *LevelDBStore) Commit(tx *ports.StoreTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	put := func(k []byte, v interface{}) error {
		data, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "encode %q", k)
		}
		batch.Put(k, data)
		return nil
	}

	for name, st := range tx.Limiters {
		if err := put(key(limiterPrefix, []byte(name)), st); err != nil {
			return err
		}
	}
	for _, st := range tx.Statuses {
		if err := put(key(statusPrefix, st.Hash[:]), st); err != nil {
			return err
		}
	}
	for _, b := range tx.PutPending {
		if err := put(key(pendingPrefix, b.Hash[:]), b); err != nil {
			return err
		}
	}
	for _, h := range tx.DeletePending {
		batch.Delete(key(pendingPrefix, h[:]))
	}

	if batch.Len() == 0 {
		return nil
	}
	return errors.Wrap(s.db.Write(batch, &writeOpt), "commit state")
}
