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

// Package results 持久化跑空批次与完成任务的结果，供面板回看历史。
package results

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/miludeerforest/abp-studio-sub001/internal/batch"
	"github.com/miludeerforest/abp-studio-sub001/pkg/config"
)

var (
	// ErrBatchNotFound 批次记录不存在
	ErrBatchNotFound = errors.New("results: batch not found")
)

// BatchRecord 一次批处理运行的落账结果
type BatchRecord struct {
	ID        string       `json:"id"`
	Kind      string       `json:"kind"`
	Counts    batch.Counts `json:"counts"`
	Items     []batch.Item `json:"items"`
	CreatedAt time.Time    `json:"created_at"`
}

// StoryRecord 一次 story 任务的终态记录
type StoryRecord struct {
	JobID     string    `json:"job_id"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Phase     string    `json:"phase,omitempty"`
	ResultRef string    `json:"result_ref,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store 结果存储接口
type Store interface {
	// SaveBatch 保存（或覆盖）批次结果
	SaveBatch(ctx context.Context, rec *BatchRecord) error
	// GetBatch 读取批次结果；不存在返回 ErrBatchNotFound
	GetBatch(ctx context.Context, id string) (*BatchRecord, error)
	// ListBatches 按时间倒序列出最近 limit 条批次结果
	ListBatches(ctx context.Context, limit int) ([]*BatchRecord, error)
	// SaveStory 保存（或覆盖）story 终态记录
	SaveStory(ctx context.Context, rec *StoryRecord) error
	// ListStories 按时间倒序列出最近 limit 条 story 记录
	ListStories(ctx context.Context, limit int) ([]*StoryRecord, error)
	// Close 释放底层连接
	Close()
}

// NewStore 根据配置创建结果存储
func NewStore(ctx context.Context, cfg config.ResultsConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("results: postgres requires dsn")
		}
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("results: unsupported type: %s", cfg.Type)
	}
}
