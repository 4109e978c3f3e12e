package settings

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wagering_service/internal/wagering"
)

var ErrSettingsNotFound = errors.New("platform settings not found")

type Repository interface {
	Load(ctx context.Context) (wagering.Settings, error)
	Save(ctx context.Context, s wagering.Settings) error
	// SeedIfMissing inserts s only when no row exists and reports whether it
	// did.
	SeedIfMissing(ctx context.Context, s wagering.Settings) (bool, error)
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Load(ctx context.Context) (wagering.Settings, error) {
	var row PlatformSettings
	err := r.db.WithContext(ctx).Where("id = ?", singletonID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wagering.Settings{}, ErrSettingsNotFound
		}
		return wagering.Settings{}, err
	}
	return row.toDomain(), nil
}

func (r *GormRepository) Save(ctx context.Context, s wagering.Settings) error {
	row := fromDomain(s)
	row.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(&row).Error
}

func (r *GormRepository) SeedIfMissing(ctx context.Context, s wagering.Settings) (bool, error) {
	row := fromDomain(s)
	row.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MemoryRepository keeps the settings row in process.
type MemoryRepository struct {
	mu  sync.RWMutex
	row *wagering.Settings
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Load(_ context.Context) (wagering.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.row == nil {
		return wagering.Settings{}, ErrSettingsNotFound
	}
	return *r.row, nil
}

func (r *MemoryRepository) Save(_ context.Context, s wagering.Settings) error {
	r.mu.Lock()
	r.row = &s
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) SeedIfMissing(_ context.Context, s wagering.Settings) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.row != nil {
		return false, nil
	}
	r.row = &s
	return true, nil
}
