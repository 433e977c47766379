// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"gorm.io/gorm"

	"github.com/taskwire/taskwire"
)

// TaskModel is the GORM row shape for a task record. Message history and
// artifacts are stored as JSON columns so the schema stays stable as the
// protocol types evolve.
type TaskModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	State     string `gorm:"size:32;index"`
	Messages  []byte `gorm:"type:json"`
	Artifacts []byte `gorm:"type:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements the GORM table name convention.
func (TaskModel) TableName() string { return "tasks" }

func newTaskModel(task *taskwire.Task) (*TaskModel, error) {
	messages, err := json.Marshal(task.Messages)
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}
	artifacts, err := json.Marshal(task.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("marshal artifacts: %w", err)
	}
	return &TaskModel{
		ID:        task.ID,
		State:     string(task.State),
		Messages:  messages,
		Artifacts: artifacts,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}, nil
}

// ToTask converts the row back into a protocol task record.
func (m *TaskModel) ToTask() (*taskwire.Task, error) {
	task := &taskwire.Task{
		ID:        m.ID,
		State:     taskwire.TaskState(m.State),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if len(m.Messages) > 0 {
		if err := json.Unmarshal(m.Messages, &task.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal messages: %w", err)
		}
	}
	if len(m.Artifacts) > 0 {
		if err := json.Unmarshal(m.Artifacts, &task.Artifacts); err != nil {
			return nil, fmt.Errorf("unmarshal artifacts: %w", err)
		}
	}
	return task, nil
}

// DBStore is a GORM-backed Store for workers that must survive restarts.
// Mutations run read-modify-write inside a transaction so the single-writer
// transition discipline holds across connections.
type DBStore struct {
	db *gorm.DB
}

var _ Store = (*DBStore)(nil)

// NewDBStore creates a DBStore and migrates the tasks table.
func NewDBStore(ctx context.Context, db *gorm.DB) (*DBStore, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if err := db.WithContext(ctx).AutoMigrate(&TaskModel{}); err != nil {
		return nil, NewStoreError("migrate", "", err)
	}
	return &DBStore{db: db}, nil
}

// Create implements Store.
func (s *DBStore) Create(ctx context.Context, taskID string) (*taskwire.Task, error) {
	if taskID == "" {
		return nil, NewStoreError("create", taskID, errEmptyTaskID)
	}

	var out *taskwire.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model TaskModel
		err := tx.Where("id = ?", taskID).First(&model).Error
		switch {
		case err == nil:
			existing, convErr := model.ToTask()
			if convErr != nil {
				return NewStoreError("create", taskID, convErr)
			}
			out = existing
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			task := taskwire.NewTask(taskID)
			newModel, convErr := newTaskModel(task)
			if convErr != nil {
				return NewStoreError("create", taskID, convErr)
			}
			if err := tx.Create(newModel).Error; err != nil {
				return NewStoreError("create", taskID, err)
			}
			out = task
			return nil
		default:
			return NewStoreError("create", taskID, err)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get implements Store.
func (s *DBStore) Get(ctx context.Context, taskID string) (*taskwire.Task, error) {
	if taskID == "" {
		return nil, NewStoreError("get", taskID, errEmptyTaskID)
	}

	var model TaskModel
	if err := s.db.WithContext(ctx).Where("id = ?", taskID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &taskwire.TaskNotFoundError{TaskID: taskID}
		}
		return nil, NewStoreError("get", taskID, err)
	}
	task, err := model.ToTask()
	if err != nil {
		return nil, NewStoreError("get", taskID, err)
	}
	return task, nil
}

// Delete implements Store.
func (s *DBStore) Delete(ctx context.Context, taskID string) error {
	if taskID == "" {
		return NewStoreError("delete", taskID, errEmptyTaskID)
	}

	result := s.db.WithContext(ctx).Where("id = ?", taskID).Delete(&TaskModel{})
	if result.Error != nil {
		return NewStoreError("delete", taskID, result.Error)
	}
	if result.RowsAffected == 0 {
		return &taskwire.TaskNotFoundError{TaskID: taskID}
	}
	return nil
}

// UpdateState implements Store.
func (s *DBStore) UpdateState(ctx context.Context, taskID string, state taskwire.TaskState) (*taskwire.Task, error) {
	return s.mutate(ctx, "update_state", taskID, func(task *taskwire.Task) error {
		return task.Transition(state)
	})
}

// AppendMessage implements Store.
func (s *DBStore) AppendMessage(ctx context.Context, taskID string, msg taskwire.Message) (*taskwire.Task, error) {
	return s.mutate(ctx, "append_message", taskID, func(task *taskwire.Task) error {
		task.AppendMessage(msg)
		return nil
	})
}

// PublishArtifact implements Store.
func (s *DBStore) PublishArtifact(ctx context.Context, taskID string, artifact taskwire.Artifact) (*taskwire.Task, error) {
	return s.mutate(ctx, "publish_artifact", taskID, func(task *taskwire.Task) error {
		task.UpsertArtifact(artifact)
		return nil
	})
}

// mutate runs a read-modify-write cycle on one record inside a transaction.
// Errors returned by fn (notably *taskwire.InvalidTransitionError) abort the
// transaction and propagate unchanged.
func (s *DBStore) mutate(ctx context.Context, op, taskID string, fn func(*taskwire.Task) error) (*taskwire.Task, error) {
	var out *taskwire.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model TaskModel
		if err := tx.Where("id = ?", taskID).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &taskwire.TaskNotFoundError{TaskID: taskID}
			}
			return NewStoreError(op, taskID, err)
		}

		task, err := model.ToTask()
		if err != nil {
			return NewStoreError(op, taskID, err)
		}
		if err := fn(task); err != nil {
			return err
		}

		updated, err := newTaskModel(task)
		if err != nil {
			return NewStoreError(op, taskID, err)
		}
		if err := tx.Save(updated).Error; err != nil {
			return NewStoreError(op, taskID, err)
		}
		out = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List implements Store.
func (s *DBStore) List(ctx context.Context, limit, offset int) ([]*taskwire.Task, error) {
	db := s.db.WithContext(ctx).Order("id")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}

	var models []TaskModel
	if err := db.Find(&models).Error; err != nil {
		return nil, NewStoreError("list", "", err)
	}

	tasks := make([]*taskwire.Task, len(models))
	for i := range models {
		task, err := models[i].ToTask()
		if err != nil {
			return nil, NewStoreError("list", models[i].ID, err)
		}
		tasks[i] = task
	}
	return tasks, nil
}

// Close implements Store. The underlying connection pool is owned by the
// caller that opened the *gorm.DB.
func (s *DBStore) Close(ctx context.Context) error {
	return nil
}
