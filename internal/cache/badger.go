package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hanpama/apqgate/internal/apq"
)

const keyPrefix = "apq/"

// Badger persists queries on disk so a restart does not force every client
// through a PersistedQueryNotFound round trip.
type Badger struct {
	db  *badger.DB
	ttl time.Duration
}

var _ Store = (*Badger)(nil)

// OpenBadger opens (or creates) a store in dir. An empty dir keeps the data in
// memory.
func OpenBadger(dir string, ttl time.Duration, logger *zap.Logger) (*Badger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger.Sugar()})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "cache: open badger at %q", dir)
	}
	return &Badger{db: db, ttl: ttl}, nil
}

func (b *Badger) Get(ctx context.Context, hash string, _ apq.CacheOptions) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + hash))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "cache: get %s", hash)
	}
	return string(val), true, nil
}

func (b *Badger) Put(ctx context.Context, hash, query string, opts apq.CacheOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := badger.NewEntry([]byte(keyPrefix+hash), []byte(query))
	if ttl := ttlFor(opts, b.ttl); ttl > 0 {
		e = e.WithTTL(ttl)
	}
	err := b.db.Update(func(txn *badger.Txn) error { return txn.SetEntry(e) })
	return errors.Wrapf(err, "cache: put %s", hash)
}

func (b *Badger) Close() error { return b.db.Close() }

type badgerLogger struct{ s *zap.SugaredLogger }

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.s.Infof(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.s.Debugf(f, v...) }
