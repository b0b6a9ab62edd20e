package store

import (
	"context"
	"time"

	"github.com/hubexhq/hubex/internal/hberrors"
	"github.com/hubexhq/hubex/internal/store/model"
	"github.com/hubexhq/hubex/internal/util"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Task interface {
	Create(ctx context.Context, task *model.Task) (*model.Task, bool, error)
	Get(ctx context.Context, id int64) (*model.Task, error)
	ListByClient(ctx context.Context, clientID int64, statuses []string, limit int) ([]model.Task, error)
	Current(ctx context.Context, clientID int64) (*model.Task, error)
	Poll(ctx context.Context, clientID int64, contextID *int64, limit int, leaseSeconds int) ([]model.Task, error)
	Renew(ctx context.Context, id int64, clientID int64, leaseSeconds int, leaseToken *string) (*model.Task, error)
	Complete(ctx context.Context, id int64, clientID int64, status string, result []byte, taskErr *string, leaseToken string) (*model.Task, error)
	Cancel(ctx context.Context, id int64, force bool) (*model.Task, error)
	BusyClientIDs(ctx context.Context, clientIDs []int64) (map[int64]bool, error)
	HasLiveLease(ctx context.Context, clientID int64) (bool, error)
	HeartbeatContext(ctx context.Context, clientID int64, contextKey string, capabilities, meta []byte) (*model.ExecutionContext, error)
	ContextID(ctx context.Context, clientID int64, contextKey string) (*int64, error)
	InitialMigration() error
}

type TaskStore struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

var _ Task = (*TaskStore)(nil)

func NewTask(db *gorm.DB, log logrus.FieldLogger) Task {
	return &TaskStore{db: db, log: log}
}

func (s *TaskStore) InitialMigration() error {
	if err := s.db.AutoMigrate(&model.ExecutionContext{}, &model.Task{}); err != nil {
		return err
	}

	// Enqueue idempotency rides on a partial unique index; rows without a
	// key never collide.
	return s.db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_tasks_client_idempotency ON tasks (client_id, idempotency_key) WHERE idempotency_key IS NOT NULL",
	).Error
}

// Create enqueues a task. When an idempotency key is supplied and a task with
// the same (client, key) already exists, that task is returned unchanged and
// the bool result is false.
func (s *TaskStore) Create(ctx context.Context, task *model.Task) (*model.Task, bool, error) {
	if task.IdempotencyKey != nil {
		var existing model.Task
		result := s.db.WithContext(ctx).
			Where("client_id = ? AND idempotency_key = ?", task.ClientID, *task.IdempotencyKey).
			First(&existing)
		if result.Error == nil {
			return &existing, false, nil
		}
		if hberrors.ErrorFromGormError(result.Error) != hberrors.ErrResourceNotFound {
			return nil, false, hberrors.ErrorFromGormError(result.Error)
		}
	}

	task.Status = model.TaskStatusQueued
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		mapped := hberrors.ErrorFromGormError(err)
		if mapped == hberrors.ErrDuplicateKey && task.IdempotencyKey != nil {
			// Lost the race; fetch the winner.
			var existing model.Task
			result := s.db.WithContext(ctx).
				Where("client_id = ? AND idempotency_key = ?", task.ClientID, *task.IdempotencyKey).
				First(&existing)
			if result.Error != nil {
				return nil, false, hberrors.ErrorFromGormError(result.Error)
			}
			return &existing, false, nil
		}
		return nil, false, mapped
	}
	return task, true, nil
}

func (s *TaskStore) Get(ctx context.Context, id int64) (*model.Task, error) {
	var task model.Task
	result := s.db.WithContext(ctx).First(&task, id)
	if result.Error != nil {
		if hberrors.ErrorFromGormError(result.Error) == hberrors.ErrResourceNotFound {
			return nil, hberrors.ErrTaskNotFound
		}
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &task, nil
}

func (s *TaskStore) ListByClient(ctx context.Context, clientID int64, statuses []string, limit int) ([]model.Task, error) {
	var tasks []model.Task
	query := s.db.WithContext(ctx).Where("client_id = ?", clientID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Order("created_at DESC, id DESC").Find(&tasks); result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return tasks, nil
}

// Current returns the in-flight task whose lease is still live, or nil.
func (s *TaskStore) Current(ctx context.Context, clientID int64) (*model.Task, error) {
	var task model.Task
	result := s.db.WithContext(ctx).
		Where("client_id = ? AND status = ? AND lease_expires_at > ?", clientID, model.TaskStatusInFlight, time.Now().UTC()).
		Order("claimed_at DESC").
		First(&task)
	if result.Error != nil {
		if hberrors.ErrorFromGormError(result.Error) == hberrors.ErrResourceNotFound {
			return nil, nil
		}
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &task, nil
}

// Poll claims up to limit tasks for a device under one transaction. Queued
// tasks and in-flight tasks whose lease has lapsed are both eligible, so
// expired leases are reclaimed here with no background timer. SKIP LOCKED
// keeps concurrent pollers off each other's candidate rows.
func (s *TaskStore) Poll(ctx context.Context, clientID int64, contextID *int64, limit int, leaseSeconds int) ([]model.Task, error) {
	if limit < 1 {
		limit = 1
	} else if limit > 50 {
		limit = 50
	}
	if leaseSeconds < 5 {
		leaseSeconds = 5
	} else if leaseSeconds > 600 {
		leaseSeconds = 600
	}

	var claimed []model.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		query := tx.
			Where("client_id = ?", clientID).
			Where("status = ? OR (status = ? AND lease_expires_at < ?)",
				model.TaskStatusQueued, model.TaskStatusInFlight, now).
			Order("priority DESC, created_at ASC").
			Limit(limit)
		if contextID != nil {
			query = query.Where("execution_context_id = ?", *contextID)
		}

		var candidates []model.Task
		if result := forUpdateSkipLocked(query).Find(&candidates); result.Error != nil {
			return hberrors.ErrorFromGormError(result.Error)
		}

		leaseExpiry := now.Add(time.Duration(leaseSeconds) * time.Second)
		for i := range candidates {
			leaseToken, err := util.NewLeaseToken()
			if err != nil {
				return err
			}
			updates := map[string]any{
				"status":           model.TaskStatusInFlight,
				"claimed_at":       now,
				"lease_expires_at": leaseExpiry,
				"lease_token":      leaseToken,
			}
			if err := tx.Model(&model.Task{}).Where("id = ?", candidates[i].ID).Updates(updates).Error; err != nil {
				return hberrors.ErrorFromGormError(err)
			}
			candidates[i].Status = model.TaskStatusInFlight
			candidates[i].ClaimedAt = &now
			candidates[i].LeaseExpiresAt = &leaseExpiry
			candidates[i].LeaseToken = &leaseToken
		}
		claimed = candidates
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *TaskStore) Renew(ctx context.Context, id int64, clientID int64, leaseSeconds int, leaseToken *string) (*model.Task, error) {
	if leaseSeconds < 5 {
		leaseSeconds = 5
	} else if leaseSeconds > 600 {
		leaseSeconds = 600
	}

	var task model.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := forUpdate(tx).Where("id = ? AND client_id = ?", id, clientID).First(&task)
		if result.Error != nil {
			if hberrors.ErrorFromGormError(result.Error) == hberrors.ErrResourceNotFound {
				return hberrors.ErrTaskNotFound
			}
			return hberrors.ErrorFromGormError(result.Error)
		}
		now := time.Now().UTC()
		if task.Status != model.TaskStatusInFlight {
			return hberrors.ErrTaskNotInFlight
		}
		if task.LeaseExpiresAt == nil || !task.LeaseExpiresAt.After(now) {
			return hberrors.ErrTaskLeaseExpired
		}
		if leaseToken != nil && (task.LeaseToken == nil || *task.LeaseToken != *leaseToken) {
			return hberrors.ErrTaskLeaseTokenMismatch
		}

		leaseExpiry := now.Add(time.Duration(leaseSeconds) * time.Second)
		if err := tx.Model(&model.Task{}).Where("id = ?", task.ID).
			Update("lease_expires_at", leaseExpiry).Error; err != nil {
			return hberrors.ErrorFromGormError(err)
		}
		task.LeaseExpiresAt = &leaseExpiry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskStore) Complete(ctx context.Context, id int64, clientID int64, status string, result []byte, taskErr *string, leaseToken string) (*model.Task, error) {
	var task model.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := forUpdate(tx).Where("id = ? AND client_id = ?", id, clientID).First(&task)
		if res.Error != nil {
			if hberrors.ErrorFromGormError(res.Error) == hberrors.ErrResourceNotFound {
				return hberrors.ErrTaskNotFound
			}
			return hberrors.ErrorFromGormError(res.Error)
		}
		now := time.Now().UTC()
		if task.Status != model.TaskStatusInFlight {
			if task.CompletedAt != nil {
				return hberrors.ErrTaskTerminal
			}
			return hberrors.ErrTaskNotInFlight
		}
		if task.LeaseExpiresAt == nil || !task.LeaseExpiresAt.After(now) {
			return hberrors.ErrTaskLeaseExpired
		}
		if leaseToken == "" {
			return hberrors.ErrTaskLeaseTokenRequired
		}
		if task.LeaseToken == nil || *task.LeaseToken != leaseToken {
			return hberrors.ErrTaskLeaseTokenMismatch
		}

		updates := map[string]any{
			"status":       status,
			"completed_at": now,
			"error":        taskErr,
		}
		if result != nil {
			updates["result"] = model.JSON(result)
			task.Result = model.JSON(result)
		}
		if err := tx.Model(&model.Task{}).Where("id = ?", task.ID).Updates(updates).Error; err != nil {
			return hberrors.ErrorFromGormError(err)
		}
		task.Status = status
		task.CompletedAt = &now
		task.Error = taskErr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Cancel moves a task to canceled. Queued tasks cancel freely; an in-flight
// task requires force. Terminal tasks never change.
func (s *TaskStore) Cancel(ctx context.Context, id int64, force bool) (*model.Task, error) {
	var task model.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := forUpdate(tx).Where("id = ?", id).First(&task)
		if result.Error != nil {
			if hberrors.ErrorFromGormError(result.Error) == hberrors.ErrResourceNotFound {
				return hberrors.ErrTaskNotFound
			}
			return hberrors.ErrorFromGormError(result.Error)
		}
		switch task.Status {
		case model.TaskStatusQueued:
		case model.TaskStatusInFlight:
			if !force {
				return hberrors.ErrTaskCancelNeedsForce
			}
		default:
			return hberrors.ErrTaskTerminal
		}

		now := time.Now().UTC()
		if err := tx.Model(&model.Task{}).Where("id = ?", task.ID).
			Updates(map[string]any{"status": model.TaskStatusCanceled, "completed_at": now}).Error; err != nil {
			return hberrors.ErrorFromGormError(err)
		}
		task.Status = model.TaskStatusCanceled
		task.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// BusyClientIDs reports which devices currently hold an in-flight task with a
// live lease. Feeds the derived state in the device list view.
func (s *TaskStore) BusyClientIDs(ctx context.Context, clientIDs []int64) (map[int64]bool, error) {
	busy := make(map[int64]bool, len(clientIDs))
	if len(clientIDs) == 0 {
		return busy, nil
	}
	var ids []int64
	result := s.db.WithContext(ctx).Model(&model.Task{}).
		Where("client_id IN ? AND status = ? AND lease_expires_at > ?", clientIDs, model.TaskStatusInFlight, time.Now().UTC()).
		Distinct().
		Pluck("client_id", &ids)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	for _, id := range ids {
		busy[id] = true
	}
	return busy, nil
}

func (s *TaskStore) HasLiveLease(ctx context.Context, clientID int64) (bool, error) {
	busy, err := s.BusyClientIDs(ctx, []int64{clientID})
	if err != nil {
		return false, err
	}
	return busy[clientID], nil
}

// HeartbeatContext upserts the named execution context and refreshes its
// capabilities, meta and last_seen_at.
func (s *TaskStore) HeartbeatContext(ctx context.Context, clientID int64, contextKey string, capabilities, meta []byte) (*model.ExecutionContext, error) {
	if capabilities == nil {
		capabilities = []byte("{}")
	}
	if meta == nil {
		meta = []byte("{}")
	}
	now := time.Now().UTC()

	var ec model.ExecutionContext
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := forUpdate(tx).
			Where("client_id = ? AND context_key = ?", clientID, contextKey).
			First(&ec)
		if result.Error != nil {
			if hberrors.ErrorFromGormError(result.Error) != hberrors.ErrResourceNotFound {
				return hberrors.ErrorFromGormError(result.Error)
			}
			ec = model.ExecutionContext{
				ClientID:     clientID,
				ContextKey:   contextKey,
				Capabilities: model.JSON(capabilities),
				Meta:         model.JSON(meta),
				LastSeenAt:   &now,
			}
			return hberrors.ErrorFromGormError(tx.Create(&ec).Error)
		}

		updates := map[string]any{
			"capabilities": model.JSON(capabilities),
			"meta":         model.JSON(meta),
			"last_seen_at": now,
		}
		if err := tx.Model(&model.ExecutionContext{}).Where("id = ?", ec.ID).Updates(updates).Error; err != nil {
			return hberrors.ErrorFromGormError(err)
		}
		ec.Capabilities = model.JSON(capabilities)
		ec.Meta = model.JSON(meta)
		ec.LastSeenAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ec, nil
}

func (s *TaskStore) ContextID(ctx context.Context, clientID int64, contextKey string) (*int64, error) {
	var ec model.ExecutionContext
	result := s.db.WithContext(ctx).
		Where("client_id = ? AND context_key = ?", clientID, contextKey).
		First(&ec)
	if result.Error != nil {
		return nil, hberrors.ErrorFromGormError(result.Error)
	}
	return &ec.ID, nil
}
