// Package datastore persists evaluation reports and game results with GORM
// on SQLite or MySQL.
package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wolfhowl/bioacoustics/internal/conf"
	"github.com/wolfhowl/bioacoustics/internal/errors"
	"github.com/wolfhowl/bioacoustics/internal/evaluate"
	"github.com/wolfhowl/bioacoustics/internal/logger"
	"github.com/wolfhowl/bioacoustics/internal/observability/metrics"
)

const slowQueryThreshold = 200 * time.Millisecond

// migrate creates or updates the schema. Tests replace it to force failures.
var migrate = func(db *gorm.DB) error {
	return db.AutoMigrate(&EvaluationRun{}, &GameResult{})
}

var (
	// ErrRunExists is returned when a report with the same ID is already stored
	ErrRunExists = errors.NewStd("evaluation run already stored")
	// ErrNoDatabase is returned when neither sqlite nor mysql is enabled
	ErrNoDatabase = errors.NewStd("no database enabled in output settings")
)

// Store is an open database
type Store struct {
	db       *gorm.DB
	dbType   string
	recorder metrics.Recorder
	logger   logger.Logger
}

// Open connects to the database selected in settings; MySQL wins when both
// are enabled. rec may be nil.
func Open(settings *conf.OutputSettings, rec metrics.Recorder) (*Store, error) {
	switch {
	case settings.MySQL.Enabled:
		return OpenMySQL(MySQLDSN(settings), rec)
	case settings.SQLite.Enabled:
		return OpenSQLite(settings.SQLite.Path, rec)
	default:
		return nil, errors.New(ErrNoDatabase).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// MySQLDSN builds the connection string from settings.
func MySQLDSN(settings *conf.OutputSettings) string {
	m := settings.MySQL
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}

// OpenSQLite opens or creates a SQLite database. ":memory:" gives a private
// in-memory database.
func OpenSQLite(path string, rec metrics.Recorder) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.New(err).
					Component("datastore").
					Category(errors.CategoryFileIO).
					FileContext(dir, 0).
					Build()
			}
		}
	}
	return open(sqlite.Open(path), "sqlite", path, rec)
}

// OpenMySQL connects to MySQL with a DSN.
func OpenMySQL(dsn string, rec metrics.Recorder) (*Store, error) {
	return open(mysql.Open(dsn), "mysql", redactDSN(dsn), rec)
}

func open(dialector gorm.Dialector, dbType, target string, rec metrics.Recorder) (*Store, error) {
	log := GetLogger().With(logger.String("db_type", dbType))
	start := time.Now()

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Context("target", target).
			Build()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "connection-pool")
	}
	if dbType == "sqlite" {
		// one connection keeps :memory: databases shared and avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	}
	if err := migrate(db); err != nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Warn("failed to close database after migration error", logger.Error(cerr))
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto-migrate").
			Context("db_type", dbType).
			Build()
	}

	log.Debug("database ready",
		logger.String("target", target),
		logger.Duration("elapsed", time.Since(start)))
	return &Store{db: db, dbType: dbType, recorder: metrics.OrNoop(rec), logger: log}, nil
}

// redactDSN hides the password of a MySQL DSN.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	colon := strings.Index(dsn, ":")
	if at < 0 || colon < 0 || colon > at {
		return dsn
	}
	return dsn[:colon+1] + "***" + dsn[at:]
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return dbError(err, "close")
	}
	return sqlDB.Close()
}

// SaveEvaluation stores a report under r.ID, assigning a fresh UUID when
// the ID is empty, and returns the ID. A stored run is never replaced.
func (s *Store) SaveEvaluation(ctx context.Context, r *evaluate.Report) (string, error) {
	start := time.Now()
	if err := r.Validate(); err != nil {
		return "", err
	}

	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	stored := *r
	stored.ID = id
	row, err := newEvaluationRun(id, &stored)
	if err != nil {
		return "", dbError(err, "encode-report")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&EvaluationRun{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrRunExists
		}
		return tx.Create(row).Error
	})
	if err != nil {
		s.recorder.RecordOperation(metrics.OpPersist, metrics.StatusError)
		if errors.Is(err, ErrRunExists) {
			return "", errors.New(fmt.Errorf("%w: %s", ErrRunExists, id)).
				Component("datastore").
				Category(errors.CategoryConflict).
				Build()
		}
		return "", dbError(err, "save-evaluation")
	}

	r.ID = id
	s.recorder.RecordOperation(metrics.OpPersist, metrics.StatusSuccess)
	s.recorder.RecordDuration(metrics.OpPersist, time.Since(start).Seconds())
	s.logger.Info("evaluation stored",
		logger.String("id", id),
		logger.String("family", r.Family),
		logger.String("head", r.Head),
		logger.Float64("accuracy", r.Accuracy))
	return id, nil
}

// ListEvaluations returns the newest runs first. limit <= 0 returns all.
func (s *Store) ListEvaluations(ctx context.Context, limit int) ([]EvaluationRun, error) {
	var runs []EvaluationRun
	q := s.db.WithContext(ctx).Omit("report_json").Order("created_at DESC, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, dbError(err, "list-evaluations")
	}
	return runs, nil
}

// GetEvaluation returns the run whose ID equals or uniquely starts with id.
func (s *Store) GetEvaluation(ctx context.Context, id string) (*EvaluationRun, error) {
	if id == "" || strings.ContainsAny(id, `%_\`) {
		return nil, errors.Newf("invalid run id %q", id).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	var runs []EvaluationRun
	err := s.db.WithContext(ctx).
		Where("id = ? OR id LIKE ?", id, id+"%").
		Order("id").
		Limit(2).
		Find(&runs).Error
	if err != nil {
		return nil, dbError(err, "get-evaluation")
	}

	switch {
	case len(runs) == 0:
		return nil, errors.Newf("evaluation run %s not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	case len(runs) > 1 && runs[0].ID != id:
		return nil, errors.Newf("run id prefix %s is ambiguous", id).
			Component("datastore").
			Category(errors.CategoryConflict).
			Build()
	}
	return &runs[0], nil
}

// SaveGameResult stores a game round and returns its ID.
func (s *Store) SaveGameResult(ctx context.Context, g *GameResult) (string, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(g).Error; err != nil {
		s.recorder.RecordOperation(metrics.OpPersist, metrics.StatusError)
		return "", dbError(err, "save-game-result")
	}
	s.recorder.RecordOperation(metrics.OpPersist, metrics.StatusSuccess)
	s.logger.Info("game result stored",
		logger.String("id", g.ID),
		logger.Int("correct", g.Correct),
		logger.Int("clips", g.Clips))
	return g.ID, nil
}

// ListGameResults returns the newest results first. limit <= 0 returns all.
func (s *Store) ListGameResults(ctx context.Context, limit int) ([]GameResult, error) {
	var results []GameResult
	q := s.db.WithContext(ctx).Order("created_at DESC, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, dbError(err, "list-game-results")
	}
	return results, nil
}

func dbError(err error, op string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}

// GetLogger returns the datastore logger
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}
