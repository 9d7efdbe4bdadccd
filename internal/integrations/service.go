package integrations

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"

	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes integration configuration management. The default config
// is what the sync engine resolves on every run; swapping it is
// transactional so there is never zero or two defaults mid-flight.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.IntegrationConfig, error)
	GetByID(ctx context.Context, id int64) (*models.IntegrationConfig, error)
	GetDefault(ctx context.Context) (*models.IntegrationConfig, error)
	List(ctx context.Context) ([]models.IntegrationConfig, error)
	SetDefault(ctx context.Context, id int64) error
}

// CreateInput carries the fields for a new integration target.
type CreateInput struct {
	Name                  string
	BaseURL               string
	Login                 string
	Password              string
	TimeoutSeconds        int
	MaxAttempts           int
	RetryPolicy           enums.RetryPolicy
	RetryBaseDelaySeconds int
	MakeDefault           bool
}

// ServiceParams collects the dependencies for the integrations service.
type ServiceParams struct {
	Repo Repository
	Tx   txRunner
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds the integrations service, validating required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("integrations repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: params.Repo, tx: params.Tx}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.IntegrationConfig, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "config name required")
	}
	if strings.TrimSpace(input.BaseURL) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "base url required")
	}
	if strings.TrimSpace(input.Login) == "" || input.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credentials required")
	}
	if input.RetryPolicy != "" && !input.RetryPolicy.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid retry policy")
	}

	cfg := &models.IntegrationConfig{
		Name:                  input.Name,
		BaseURL:               strings.TrimRight(input.BaseURL, "/"),
		Login:                 input.Login,
		Password:              input.Password,
		TimeoutSeconds:        input.TimeoutSeconds,
		MaxAttempts:           input.MaxAttempts,
		RetryPolicy:           input.RetryPolicy,
		RetryBaseDelaySeconds: input.RetryBaseDelaySeconds,
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryPolicy == "" {
		cfg.RetryPolicy = enums.RetryPolicyExponential
	}
	if cfg.RetryBaseDelaySeconds <= 0 {
		cfg.RetryBaseDelaySeconds = 60
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if input.MakeDefault {
			if err := repo.ClearDefault(ctx); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default config")
			}
			cfg.IsDefault = true
		}
		_, err := repo.Create(ctx, cfg)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create config")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *service) GetByID(ctx context.Context, id int64) (*models.IntegrationConfig, error) {
	cfg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "integration config not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load config")
	}
	return cfg, nil
}

func (s *service) GetDefault(ctx context.Context) (*models.IntegrationConfig, error) {
	cfg, err := s.repo.FindDefault(ctx)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no default integration config")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load default config")
	}
	return cfg, nil
}

func (s *service) List(ctx context.Context) ([]models.IntegrationConfig, error) {
	configs, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list configs")
	}
	return configs, nil
}

// SetDefault swaps the default flag in one transaction so concurrent readers
// never observe two defaults.
func (s *service) SetDefault(ctx context.Context, id int64) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.ClearDefault(ctx); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default config")
		}
		if err := repo.MarkDefault(ctx, id); err != nil {
			if pkgerrors.As(err) != nil {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark default config")
		}
		return nil
	})
}
