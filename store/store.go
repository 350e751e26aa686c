// Package store persists committed staking state in BadgerDB.
//
// Layout:
//
//	r/<address>  65-byte stake record
//	b/<address>  8-byte big-endian balance
//	m/height     8-byte big-endian last committed height
//	m/apphash    32-byte app hash at that height
//
// Every Save is a single badger transaction, so a crash leaves either
// the previous or the new height on disk.
package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/blockberries/stakeberry/ledger"
	"github.com/blockberries/stakeberry/types"
)

var (
	prefixRecord  = []byte("r/")
	prefixBalance = []byte("b/")
	keyHeight     = []byte("m/height")
	keyAppHash    = []byte("m/apphash")
)

var (
	// ErrPathRequired is returned when a persistent store has no path.
	ErrPathRequired = errors.New("store: path is required for a persistent store")
	// ErrCorrupt is returned when a stored value cannot be decoded.
	ErrCorrupt = errors.New("store: corrupt entry")
)

// Config holds the BadgerDB settings.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM. Intended for tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives badger's internal logging. Nop disables it.
	Logger zerolog.Logger
}

// DefaultConfig returns a durable configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		Logger:     zerolog.Nop(),
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true, Logger: zerolog.Nop()}
}

// badgerLogger adapts zerolog to badger.Logger.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

// Store is the durable home of committed state. It is safe for
// concurrent use.
type Store struct {
	db     *badger.DB
	logger zerolog.Logger
}

// Open opens (or creates) a store.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, ErrPathRequired
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger.GetLevel() == zerolog.Disabled {
		opts = opts.WithLogger(nil)
	} else {
		opts = opts.WithLogger(badgerLogger{logger: cfg.Logger.With().Str("module", "badger").Logger()})
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &Store{db: db, logger: cfg.Logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Snapshot is one committed state.
type Snapshot struct {
	Height   uint64
	AppHash  types.AppHash
	Accounts *ledger.MemAccounts
}

// Load reads the last committed state. A fresh store yields height 0
// and empty accounts.
func (s *Store) Load() (Snapshot, error) {
	snap := Snapshot{Accounts: ledger.NewMemAccounts()}
	err := s.db.View(func(txn *badger.Txn) error {
		height, err := getUint64(txn, keyHeight)
		if err != nil {
			return err
		}
		snap.Height = height

		hash, err := getValue(txn, keyAppHash)
		if err != nil {
			return err
		}
		if hash != nil {
			if len(hash) != len(snap.AppHash) {
				return fmt.Errorf("%w: app hash has %d bytes", ErrCorrupt, len(hash))
			}
			copy(snap.AppHash[:], hash)
		}

		if err := scan(txn, prefixRecord, func(addr ledger.Address, v []byte) error {
			var rec ledger.StakeRecord
			if err := rec.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("%w: record %s: %v", ErrCorrupt, addr, err)
			}
			snap.Accounts.SetRecord(addr, rec)
			return nil
		}); err != nil {
			return err
		}
		return scan(txn, prefixBalance, func(addr ledger.Address, v []byte) error {
			if len(v) != 8 {
				return fmt.Errorf("%w: balance %s has %d bytes", ErrCorrupt, addr, len(v))
			}
			snap.Accounts.SetBalance(addr, binary.BigEndian.Uint64(v))
			return nil
		})
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Save persists next in one transaction. Only entries that differ from
// prev are written; a nil prev rewrites everything and removes entries
// absent from next.
func (s *Store) Save(next Snapshot, prev *ledger.MemAccounts) error {
	start := time.Now()
	var written int
	err := s.db.Update(func(txn *badger.Txn) error {
		if prev == nil {
			if err := dropMissing(txn, next.Accounts); err != nil {
				return err
			}
			prev = ledger.NewMemAccounts()
		}

		for addr, rec := range next.Accounts.Records {
			if old, ok := prev.Records[addr]; ok && old == rec {
				continue
			}
			if err := txn.Set(key(prefixRecord, addr), rec.Bytes()); err != nil {
				return err
			}
			written++
		}
		for addr := range prev.Records {
			if _, ok := next.Accounts.Records[addr]; !ok {
				if err := txn.Delete(key(prefixRecord, addr)); err != nil {
					return err
				}
				written++
			}
		}

		for addr, bal := range next.Accounts.Balances {
			if old, ok := prev.Balances[addr]; ok && old == bal {
				continue
			}
			if err := txn.Set(key(prefixBalance, addr), encodeUint64(bal)); err != nil {
				return err
			}
			written++
		}
		for addr := range prev.Balances {
			if _, ok := next.Accounts.Balances[addr]; !ok {
				if err := txn.Delete(key(prefixBalance, addr)); err != nil {
					return err
				}
				written++
			}
		}

		if err := txn.Set(keyHeight, encodeUint64(next.Height)); err != nil {
			return err
		}
		return txn.Set(keyAppHash, next.AppHash[:])
	})
	if err != nil {
		return fmt.Errorf("store: save height %d: %w", next.Height, err)
	}
	s.logger.Debug().
		Uint64("height", next.Height).
		Int("entries", written).
		Dur("took", time.Since(start)).
		Msg("state persisted")
	return nil
}

// RunGC triggers value log garbage collection every interval until ctx
// is done. It is a no-op for in-memory stores.
func (s *Store) RunGC(ctx context.Context, interval time.Duration, ratio float64) error {
	if s.db.Opts().InMemory || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn().Err(err).Msg("value log gc failed")
			}
		}
	}
}

// dropMissing deletes stored records and balances absent from acc.
func dropMissing(txn *badger.Txn, acc *ledger.MemAccounts) error {
	var stale [][]byte
	collect := func(prefix []byte, keep func(ledger.Address) bool) error {
		return scan(txn, prefix, func(addr ledger.Address, _ []byte) error {
			if !keep(addr) {
				stale = append(stale, key(prefix, addr))
			}
			return nil
		})
	}
	if err := collect(prefixRecord, func(a ledger.Address) bool {
		_, ok := acc.Records[a]
		return ok
	}); err != nil {
		return err
	}
	if err := collect(prefixBalance, func(a ledger.Address) bool {
		_, ok := acc.Balances[a]
		return ok
	}); err != nil {
		return err
	}
	for _, k := range stale {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func scan(txn *badger.Txn, prefix []byte, fn func(ledger.Address, []byte) error) error {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		k := item.Key()
		if len(k) != len(prefix)+ledger.AddressSize {
			return fmt.Errorf("%w: key %q", ErrCorrupt, k)
		}
		var addr ledger.Address
		copy(addr[:], k[len(prefix):])
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(addr, v); err != nil {
			return err
		}
	}
	return nil
}

func getValue(txn *badger.Txn, k []byte) ([]byte, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func getUint64(txn *badger.Txn, k []byte) (uint64, error) {
	v, err := getValue(txn, k)
	if err != nil || v == nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("%w: %s has %d bytes", ErrCorrupt, k, len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

func key(prefix []byte, addr ledger.Address) []byte {
	k := make([]byte, 0, len(prefix)+len(addr))
	k = append(k, prefix...)
	return append(k, addr[:]...)
}

func encodeUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}
