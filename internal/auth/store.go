package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/inertia-live/inertia-go/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var ErrTokenNotFound = errors.New("token not found")

// TokenStore persists credentials between runs, one record per profile.
type TokenStore interface {
	Load(profile string) (*domain.TokenRecord, error)
	Save(rec *domain.TokenRecord) error
	Delete(profile string) error
}

type GormTokenStore struct{ db *gorm.DB }

func OpenStore(path string) (*GormTokenStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}
	if err := db.AutoMigrate(&domain.TokenRecord{}); err != nil {
		return nil, fmt.Errorf("migrate token store: %w", err)
	}
	return &GormTokenStore{db: db}, nil
}

func (s *GormTokenStore) Load(profile string) (*domain.TokenRecord, error) {
	var rec domain.TokenRecord
	err := s.db.Where("profile = ?", profile).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *GormTokenStore) Save(rec *domain.TokenRecord) error {
	var existing domain.TokenRecord
	err := s.db.Where("profile = ?", rec.Profile).First(&existing).Error
	switch {
	case err == nil:
		rec.ID = existing.ID
		return s.db.Save(rec).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.Create(rec).Error
	default:
		return err
	}
}

func (s *GormTokenStore) Delete(profile string) error {
	return s.db.Where("profile = ?", profile).Delete(&domain.TokenRecord{}).Error
}

// MemoryTokenStore keeps credentials for the process lifetime only. Used for
// ephemeral logins and in tests.
type MemoryTokenStore struct {
	mu      sync.Mutex
	records map[string]domain.TokenRecord
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{records: make(map[string]domain.TokenRecord)}
}

func (s *MemoryTokenStore) Load(profile string) (*domain.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[profile]
	if !ok {
		return nil, ErrTokenNotFound
	}
	out := rec
	return &out, nil
}

func (s *MemoryTokenStore) Save(rec *domain.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Profile] = *rec
	return nil
}

func (s *MemoryTokenStore) Delete(profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, profile)
	return nil
}
