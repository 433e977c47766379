// Copyright 2025 The Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"slices"
	"sync"

	"github.com/taskwire/taskwire"
)

// MemoryStore is an in-memory Store. Records are lost when the process
// stops. One mutex serializes every map mutation; read paths take the same
// lock because Get must snapshot the record atomically with respect to
// writers.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*taskwire.Task
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*taskwire.Task),
	}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, taskID string) (*taskwire.Task, error) {
	if taskID == "" {
		return nil, NewStoreError("create", taskID, errEmptyTaskID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tasks[taskID]; ok {
		return existing.Clone(), nil
	}

	task := taskwire.NewTask(taskID)
	s.tasks[taskID] = task
	return task.Clone(), nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, taskID string) (*taskwire.Task, error) {
	if taskID == "" {
		return nil, NewStoreError("get", taskID, errEmptyTaskID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, &taskwire.TaskNotFoundError{TaskID: taskID}
	}
	return task.Clone(), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, taskID string) error {
	if taskID == "" {
		return NewStoreError("delete", taskID, errEmptyTaskID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; !ok {
		return &taskwire.TaskNotFoundError{TaskID: taskID}
	}
	delete(s.tasks, taskID)
	return nil
}

// UpdateState implements Store.
func (s *MemoryStore) UpdateState(ctx context.Context, taskID string, state taskwire.TaskState) (*taskwire.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, &taskwire.TaskNotFoundError{TaskID: taskID}
	}
	if err := task.Transition(state); err != nil {
		return nil, err
	}
	return task.Clone(), nil
}

// AppendMessage implements Store.
func (s *MemoryStore) AppendMessage(ctx context.Context, taskID string, msg taskwire.Message) (*taskwire.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, &taskwire.TaskNotFoundError{TaskID: taskID}
	}
	task.AppendMessage(msg)
	return task.Clone(), nil
}

// PublishArtifact implements Store.
func (s *MemoryStore) PublishArtifact(ctx context.Context, taskID string, artifact taskwire.Artifact) (*taskwire.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, &taskwire.TaskNotFoundError{TaskID: taskID}
	}
	task.UpsertArtifact(artifact)
	return task.Clone(), nil
}

// List implements Store. Records come back in ID order so pagination is
// stable across calls.
func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]*taskwire.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	if offset < 0 {
		offset = 0
	}
	if offset > len(ids) {
		offset = len(ids)
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	tasks := make([]*taskwire.Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, s.tasks[id].Clone())
	}
	return tasks, nil
}

// Close implements Store.
func (s *MemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*taskwire.Task)
	return nil
}

// Size returns the number of stored records. Useful for tests.
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
