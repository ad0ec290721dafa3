package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
)

// Records live under emb/<batch>/<id>. A batch becomes visible once its
// commit marker batch/<batch> exists, so batches too large for one badger
// transaction still appear all at once.
var (
	badgerPrefix = []byte("emb/")
	batchPrefix  = []byte("batch/")
)

// BadgerStore keeps embeddings as JSON records in a Badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens the database in dir. An empty dir runs in memory.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, dbError("open", fmt.Errorf("failed to open Badger database: %w", err))
	}
	GetLogger().Debug("Badger vector store opened",
		logger.String("dir", dir),
		logger.Bool("in_memory", dir == ""))
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Insert(ctx context.Context, embedding []float32, meta Metadata) (string, error) {
	ids, err := b.InsertBatch(ctx, []Record{{Embedding: embedding, Metadata: meta}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertBatch writes records across as many transactions as needed and
// then commits the batch marker. Records of a batch whose marker was never
// written are dropped.
func (b *BadgerStore) InsertBatch(ctx context.Context, records []Record) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	recs, ids := prepareRecords(records)
	batch := uuid.NewString()

	txn := b.db.NewTransaction(true)
	set := func(key, val []byte) error {
		err := txn.Set(key, val)
		if !errors.Is(err, badger.ErrTxnTooBig) {
			return err
		}
		if err := txn.Commit(); err != nil {
			return err
		}
		txn = b.db.NewTransaction(true)
		return txn.Set(key, val)
	}

	for _, rec := range recs {
		val, err := json.Marshal(rec)
		if err == nil {
			err = set(recordKey(batch, rec.ID), val)
		}
		if err != nil {
			txn.Discard()
			b.dropBatch(batch)
			return nil, dbError("insert", err)
		}
	}
	// The marker goes in its own transaction so it is written only after
	// every record is durable.
	if err := txn.Commit(); err != nil {
		b.dropBatch(batch)
		return nil, dbError("insert", err)
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(batchKey(batch), nil)
	})
	if err != nil {
		b.dropBatch(batch)
		return nil, dbError("insert", err)
	}
	return ids, nil
}

// dropBatch removes the records of an uncommitted batch. Records it misses
// stay invisible without their marker.
func (b *BadgerStore) dropBatch(batch string) {
	prefix := append(append(slices.Clone(badgerPrefix), batch...), '/')
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := wb.Delete(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		err = wb.Flush()
	}
	if err != nil {
		GetLogger().Warn("failed to drop uncommitted batch",
			logger.String("batch", batch),
			logger.Error(err))
	}
}

func (b *BadgerStore) Search(ctx context.Context, query []float32, k int, metric Metric) ([]Match, error) {
	if err := validateQuery(query, k); err != nil {
		return nil, err
	}
	r := newRanker(query, k, metric)
	err := b.scan(ctx, func(rec Record) error { return r.add(rec) })
	if err != nil {
		return nil, err
	}
	return r.results(), nil
}

func (b *BadgerStore) Count(ctx context.Context) (int, error) {
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		return visibleRecords(ctx, txn, false, func(*badger.Item) error {
			n++
			return nil
		})
	})
	if err != nil {
		return 0, dbError("count", err)
	}
	return n, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

// scan decodes every committed record in key order.
func (b *BadgerStore) scan(ctx context.Context, fn func(Record) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		return visibleRecords(ctx, txn, true, func(item *badger.Item) error {
			var rec Record
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return dbError("decode", err)
			}
			return fn(rec)
		})
	})
}

// visibleRecords calls fn for every record whose batch is committed.
func visibleRecords(ctx context.Context, txn *badger.Txn, values bool, fn func(*badger.Item) error) error {
	committed := make(map[string]struct{})
	opts := badger.DefaultIteratorOptions
	opts.Prefix = batchPrefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	for it.Seek(batchPrefix); it.ValidForPrefix(batchPrefix); it.Next() {
		committed[string(it.Item().Key()[len(batchPrefix):])] = struct{}{}
	}
	it.Close()

	opts = badger.DefaultIteratorOptions
	opts.Prefix = badgerPrefix
	opts.PrefetchValues = values
	it = txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(badgerPrefix); it.ValidForPrefix(badgerPrefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, _, ok := bytes.Cut(it.Item().Key()[len(badgerPrefix):], []byte("/"))
		if !ok {
			continue
		}
		if _, ok := committed[string(batch)]; !ok {
			continue
		}
		if err := fn(it.Item()); err != nil {
			return err
		}
	}
	return nil
}

func recordKey(batch, id string) []byte {
	key := append(slices.Clone(badgerPrefix), batch...)
	key = append(key, '/')
	return append(key, id...)
}

func batchKey(batch string) []byte {
	return append(slices.Clone(batchPrefix), batch...)
}

// badgerLogger routes badger warnings and errors to the datastore logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...any) {
	GetLogger().Error("badger: " + fmt.Sprintf(f, v...))
}

func (badgerLogger) Warningf(f string, v ...any) {
	GetLogger().Warn("badger: " + fmt.Sprintf(f, v...))
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
