package integrations

import (
	"context"

	"gorm.io/gorm"

	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"

	"github.com/brightpath-io/activity-sync/pkg/db/models"
)

// Repository defines persistence operations for integration configurations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, cfg *models.IntegrationConfig) (*models.IntegrationConfig, error)
	FindByID(ctx context.Context, id int64) (*models.IntegrationConfig, error)
	FindDefault(ctx context.Context) (*models.IntegrationConfig, error)
	List(ctx context.Context) ([]models.IntegrationConfig, error)
	Save(ctx context.Context, cfg *models.IntegrationConfig) error
	ClearDefault(ctx context.Context) error
	MarkDefault(ctx context.Context, id int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an integrations repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, cfg *models.IntegrationConfig) (*models.IntegrationConfig, error) {
	if err := r.db.WithContext(ctx).Create(cfg).Error; err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.IntegrationConfig, error) {
	var cfg models.IntegrationConfig
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *repository) FindDefault(ctx context.Context) (*models.IntegrationConfig, error) {
	var cfg models.IntegrationConfig
	err := r.db.WithContext(ctx).
		Where("is_default = ?", true).
		First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *repository) List(ctx context.Context) ([]models.IntegrationConfig, error) {
	var configs []models.IntegrationConfig
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *repository) Save(ctx context.Context, cfg *models.IntegrationConfig) error {
	return r.db.WithContext(ctx).Save(cfg).Error
}

func (r *repository) ClearDefault(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Model(&models.IntegrationConfig{}).
		Where("is_default = ?", true).
		Update("is_default", false).Error
}

func (r *repository) MarkDefault(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.IntegrationConfig{}).
		Where("id = ?", id).
		Update("is_default", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "integration config not found")
	}
	return nil
}
