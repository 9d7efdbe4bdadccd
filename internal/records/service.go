package records

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgerrors "github.com/brightpath-io/activity-sync/pkg/errors"

	"github.com/brightpath-io/activity-sync/pkg/db"
	"github.com/brightpath-io/activity-sync/pkg/db/models"
	"github.com/brightpath-io/activity-sync/pkg/enums"
	"github.com/brightpath-io/activity-sync/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// editRetries bounds how often an edit is re-applied after the sync engine
// commits a transition between the read and the guarded write.
const editRetries = 3

// Scheduler queues a deferred synchronization for a locally edited record.
// Scheduling happens after the local write commits; a full queue or stopped
// scheduler must not fail the edit.
type Scheduler interface {
	ScheduleDeferred(ctx context.Context, code string, operation enums.SyncOperation) bool
}

// Service defines local lifecycle operations on activities. Every mutating
// operation resets the record to pending and queues a deferred sync; the
// synchronization engine owns all other status transitions.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Activity, error)
	Update(ctx context.Context, code string, input UpdateInput) (*models.Activity, error)
	Deactivate(ctx context.Context, code string) (*models.Activity, error)
	Get(ctx context.Context, code string) (*models.Activity, error)
	ListByStatus(ctx context.Context, status enums.SyncStatus, limit, offset int) ([]models.Activity, error)
	Statistics(ctx context.Context) (StatusCounts, error)
}

// CreateInput carries the payload fields for a new activity.
type CreateInput struct {
	Code        string
	Name        string
	Description *string
	UnitValue   decimal.Decimal
}

// UpdateInput carries the payload fields a local edit may change. Nil
// pointers leave the field untouched.
type UpdateInput struct {
	Name        *string
	Description *string
	UnitValue   *decimal.Decimal
	Active      *bool
}

// ServiceParams collects the dependencies for the records service.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Scheduler Scheduler
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	scheduler Scheduler
	logger    *logger.Logger
}

// NewService builds the records service, validating required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("records repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Scheduler == nil {
		return nil, fmt.Errorf("sync scheduler required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		scheduler: params.Scheduler,
		logger:    params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Activity, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "activity code required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "activity name required")
	}
	if input.UnitValue.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit value must not be negative")
	}

	activity := &models.Activity{
		Code:        code,
		Name:        input.Name,
		Description: input.Description,
		UnitValue:   input.UnitValue,
		Active:      true,
		SyncStatus:  enums.SyncStatusPending,
		Version:     1,
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.repo.WithTx(tx).Create(ctx, activity)
		return err
	}); err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		if db.IsUniqueViolation(err, "activities_code_key") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "activity code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create activity")
	}

	s.schedule(ctx, activity.Code, enums.OperationCreate)
	return activity, nil
}

func (s *service) Update(ctx context.Context, code string, input UpdateInput) (*models.Activity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "activity code required")
	}
	if input.UnitValue != nil && input.UnitValue.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit value must not be negative")
	}

	var updated *models.Activity
	var err error
	for attempt := 0; attempt < editRetries; attempt++ {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			activity, err := repo.FindByCode(ctx, code)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return pkgerrors.New(pkgerrors.CodeNotFound, "activity not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load activity")
			}
			if activity.SyncStatus == enums.SyncStatusCancelled {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled activity cannot be edited")
			}

			if input.Name != nil {
				activity.Name = *input.Name
			}
			if input.Description != nil {
				activity.Description = input.Description
			}
			if input.UnitValue != nil {
				activity.UnitValue = *input.UnitValue
			}
			if input.Active != nil {
				activity.Active = *input.Active
			}

			// A payload edit makes the remote copy stale regardless of the
			// current status, so the record re-enters the queue.
			expectedVersion := activity.Version
			activity.SyncStatus = enums.SyncStatusPending
			activity.SyncAttemptCount = 0
			activity.LastSyncError = nil
			activity.Version++

			if err := repo.SaveIf(ctx, activity, expectedVersion); err != nil {
				if pkgerrors.As(err) != nil {
					return err
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save activity")
			}
			updated = activity
			return nil
		})
		// The engine committed a transition between the read and the write;
		// re-read and reapply the edit on the fresh row.
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeConflict {
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	s.schedule(ctx, updated.Code, enums.OperationUpdate)
	return updated, nil
}

func (s *service) Deactivate(ctx context.Context, code string) (*models.Activity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "activity code required")
	}

	var updated *models.Activity
	var alreadyInactive bool
	var err error
	for attempt := 0; attempt < editRetries; attempt++ {
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			activity, err := repo.FindByCode(ctx, code)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return pkgerrors.New(pkgerrors.CodeNotFound, "activity not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load activity")
			}
			if !activity.Active {
				updated = activity
				alreadyInactive = true
				return nil
			}

			expectedVersion := activity.Version
			activity.Active = false
			activity.SyncStatus = enums.SyncStatusPending
			activity.SyncAttemptCount = 0
			activity.LastSyncError = nil
			activity.Version++

			if err := repo.SaveIf(ctx, activity, expectedVersion); err != nil {
				if pkgerrors.As(err) != nil {
					return err
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save activity")
			}
			updated = activity
			return nil
		})
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeConflict {
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	if !alreadyInactive {
		s.schedule(ctx, updated.Code, enums.OperationDelete)
	}
	return updated, nil
}

func (s *service) Get(ctx context.Context, code string) (*models.Activity, error) {
	activity, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "activity not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load activity")
	}
	return activity, nil
}

func (s *service) ListByStatus(ctx context.Context, status enums.SyncStatus, limit, offset int) ([]models.Activity, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid sync status")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	activities, err := s.repo.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list activities")
	}
	return activities, nil
}

func (s *service) Statistics(ctx context.Context) (StatusCounts, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count activities")
	}
	return counts, nil
}

func (s *service) schedule(ctx context.Context, code string, operation enums.SyncOperation) {
	if !s.scheduler.ScheduleDeferred(ctx, code, operation) {
		s.logger.Warn(s.logger.WithActivityCode(ctx, code), "deferred sync not queued, sweep will pick the record up")
	}
}
