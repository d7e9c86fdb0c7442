package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calendarservice/pkg/apperr"
	"calendarservice/pkg/config"
	"calendarservice/pkg/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CredentialStore keeps one OAuth credential per identity.
type CredentialStore interface {
	// Get returns apperr.ErrCredentialNotFound when no record exists for identity.
	Get(ctx context.Context, identity string) (*oauth2.Token, error)
	// Upsert writes access token and expiry together. An empty refresh token keeps the stored one.
	Upsert(ctx context.Context, identity string, token *oauth2.Token) error
}

var _ CredentialStore = (*GormStore)(nil)

type GormStore struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
func Open(cfg config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.PostgresDSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: logger.New(gormLogWriter{}, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}
	if cfg.DBDriver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&models.Credential{}); err != nil {
		return nil, fmt.Errorf("failed to migrate credentials: %w", err)
	}
	return db, nil
}

func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, identity string) (*oauth2.Token, error) {
	const op = "store.Get"
	if identity == "" {
		return nil, apperr.ClientInput(op, apperr.ErrEmptyIdentity)
	}

	var cred models.Credential
	err := s.db.WithContext(ctx).Where("identity = ?", identity).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, apperr.ErrCredentialNotFound)
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return cred.Token(), nil
}

func (s *GormStore) Upsert(ctx context.Context, identity string, token *oauth2.Token) error {
	const op = "store.Upsert"
	if identity == "" {
		return apperr.ClientInput(op, apperr.ErrEmptyIdentity)
	}
	if token == nil || token.AccessToken == "" {
		return apperr.ClientInput(op, apperr.ErrNoAccessToken)
	}

	assign := map[string]interface{}{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
		"expiry":       token.Expiry,
	}
	if token.RefreshToken != "" {
		assign["refresh_token"] = token.RefreshToken
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cred models.Credential
		return tx.Where(models.Credential{Identity: identity}).Assign(assign).FirstOrCreate(&cred).Error
	})
	if err != nil {
		return apperr.Storage(op, err)
	}
	return nil
}

type gormLogWriter struct{}

func (gormLogWriter) Printf(format string, args ...interface{}) {
	log.Warn().Str("component", "gorm").Msgf(format, args...)
}
