// Copyright 2026 miludeerforest
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package results

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryStore 内存实现，开发与测试用
type memoryStore struct {
	mu      sync.RWMutex
	batches map[string]*BatchRecord
	stories map[string]*StoryRecord
}

// NewMemoryStore 创建内存版结果存储
func NewMemoryStore() Store {
	return &memoryStore{
		batches: make(map[string]*BatchRecord),
		stories: make(map[string]*StoryRecord),
	}
}

func (s *memoryStore) SaveBatch(ctx context.Context, rec *BatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.Items = append(cp.Items[:0:0], rec.Items...)
	s.batches[cp.ID] = &cp
	return nil
}

func (s *memoryStore) GetBatch(ctx context.Context, id string) (*BatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memoryStore) ListBatches(ctx context.Context, limit int) ([]*BatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*BatchRecord, 0, len(s.batches))
	for _, rec := range s.batches {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) SaveStory(ctx context.Context, rec *StoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.stories[cp.JobID] = &cp
	return nil
}

func (s *memoryStore) ListStories(ctx context.Context, limit int) ([]*StoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*StoryRecord, 0, len(s.stories))
	for _, rec := range s.stories {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) Close() {}
