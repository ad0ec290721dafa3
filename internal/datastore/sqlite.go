package datastore

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
)

const (
	// searchBatchSize is how many rows a search loads at a time.
	searchBatchSize = 500
	// insertBatchSize is how many rows go into one INSERT statement.
	insertBatchSize = 200
)

// Embedding is the SQLite row of one stored vector.
type Embedding struct {
	ID         string `gorm:"primaryKey;size:36"`
	Source     string `gorm:"index"`
	ChunkIndex int
	Start      float64
	End        float64
	Dim        int
	Vector     []byte // little-endian float32
	CreatedAt  time.Time
}

// SQLiteStore persists embeddings in a SQLite database through gorm.
type SQLiteStore struct {
	DB *gorm.DB
}

// OpenSQLite opens or creates the database at path and migrates its schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.ConfigurationError("datastore", fmt.Errorf("sqlite store requires a database path"))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, dbError("open", fmt.Errorf("failed to create database directory: %w", err))
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return nil, dbError("open", fmt.Errorf("failed to open SQLite database: %w", err))
	}
	if err := db.AutoMigrate(&Embedding{}); err != nil {
		return nil, dbError("migrate", fmt.Errorf("failed to auto-migrate SQLite database: %w", err))
	}

	GetLogger().Debug("SQLite vector store opened", logger.String("path", path))
	return &SQLiteStore{DB: db}, nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return gormlogger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

func (s *SQLiteStore) Insert(ctx context.Context, embedding []float32, meta Metadata) (string, error) {
	ids, err := s.InsertBatch(ctx, []Record{{Embedding: embedding, Metadata: meta}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertBatch writes records in a single transaction.
func (s *SQLiteStore) InsertBatch(ctx context.Context, records []Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	recs, ids := prepareRecords(records)
	rows := make([]Embedding, len(recs))
	for i, rec := range recs {
		rows[i] = Embedding{
			ID:         rec.ID,
			Source:     rec.Source,
			ChunkIndex: rec.ChunkIndex,
			Start:      rec.Start,
			End:        rec.End,
			Dim:        len(rec.Embedding),
			Vector:     encodeVector(rec.Embedding),
		}
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, insertBatchSize).Error
	})
	if err != nil {
		return nil, dbError("insert", err)
	}
	return ids, nil
}

func (s *SQLiteStore) Search(ctx context.Context, query []float32, k int, metric Metric) ([]Match, error) {
	if err := validateQuery(query, k); err != nil {
		return nil, err
	}

	r := newRanker(query, k, metric)
	var (
		rows   []Embedding
		addErr error
	)
	res := s.DB.WithContext(ctx).FindInBatches(&rows, searchBatchSize, func(_ *gorm.DB, _ int) error {
		for _, row := range rows {
			vec, err := decodeVector(row.Vector, row.Dim)
			if err != nil {
				addErr = err
				return err
			}
			if err := r.add(Record{ID: row.ID, Embedding: vec, Metadata: row.metadata()}); err != nil {
				addErr = err
				return err
			}
		}
		return nil
	})
	if addErr != nil {
		return nil, addErr
	}
	if res.Error != nil {
		return nil, dbError("search", res.Error)
	}
	return r.results(), nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.DB.WithContext(ctx).Model(&Embedding{}).Count(&n).Error; err != nil {
		return 0, dbError("count", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return dbError("close", err)
	}
	return sqlDB.Close()
}

func (e Embedding) metadata() Metadata {
	return Metadata{Source: e.Source, ChunkIndex: e.ChunkIndex, Start: e.Start, End: e.End}
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte, dim int) ([]float32, error) {
	if len(b) != 4*dim {
		return nil, dbError("decode", fmt.Errorf("vector blob of %d bytes does not hold %d floats", len(b), dim))
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
