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

// Package studio 面板应用服务：持有活动批次与 story 轮询器，
// 对接上游客户端、结果存储与状态缓存。HTTP 层只依赖本包。
package studio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/miludeerforest/abp-studio-sub001/internal/batch"
	"github.com/miludeerforest/abp-studio-sub001/internal/poll"
	"github.com/miludeerforest/abp-studio-sub001/internal/remote"
	"github.com/miludeerforest/abp-studio-sub001/internal/storage/cache"
	"github.com/miludeerforest/abp-studio-sub001/internal/storage/results"
	"github.com/miludeerforest/abp-studio-sub001/pkg/log"
	"github.com/miludeerforest/abp-studio-sub001/pkg/tracing"
)

var (
	// ErrBatchNotFound 批次不存在（或已被清除）
	ErrBatchNotFound = errors.New("studio: batch not found")
	// ErrStoryNotFound story 任务不存在
	ErrStoryNotFound = errors.New("studio: story job not found")
)

// storyStatusKeyPrefix 缓存键前缀；值为 poll.Snapshot
const storyStatusKeyPrefix = "story:status:"

// storyStatusTTL 缓存过期时间
const storyStatusTTL = 10 * time.Minute

// persistTimeout 回调内落账的超时
const persistTimeout = 10 * time.Second

// RemoteAPI 上游生成服务能力（由 remote.Client 实现；测试注入 stub）
type RemoteAPI interface {
	Analyze(ctx context.Context, req remote.AnalyzeRequest) (*remote.AnalyzeResult, error)
	StartStory(ctx context.Context, req remote.StoryRequest) (string, error)
	StoryStatus(ctx context.Context, jobID string) (*poll.JobStatus, error)
}

// Config 服务配置
type Config struct {
	Batch batch.Config
	Poll  poll.Config
}

// Service 面板应用服务
type Service struct {
	mu      sync.Mutex
	logger  *log.Logger
	remote  RemoteAPI
	results results.Store
	cache   cache.Store
	config  Config

	batches map[string]*batchEntry
	stories map[string]*storyEntry
}

type batchEntry struct {
	id        string
	kind      string
	processor *batch.Processor
}

type storyEntry struct {
	jobID  string
	title  string
	poller *poll.Poller
}

// NewService 创建服务
func NewService(logger *log.Logger, remoteAPI RemoteAPI, resultsStore results.Store, cacheStore cache.Store, config Config) *Service {
	return &Service{
		logger:  logger,
		remote:  remoteAPI,
		results: resultsStore,
		cache:   cacheStore,
		config:  config,
		batches: make(map[string]*batchEntry),
		stories: make(map[string]*storyEntry),
	}
}

// CreateBatch 从提交序的输入构建批次；返回批次 ID 与初始快照。
// 批次跑空时整批落账到结果存储。
func (s *Service) CreateBatch(kind string, inputs []any) (string, batch.Snapshot) {
	items := make([]*batch.Item, 0, len(inputs))
	for _, input := range inputs {
		items = append(items, batch.NewItem(kind, input))
	}
	id := "batch-" + uuid.New().String()

	op := func(ctx context.Context, it *batch.Item) (any, error) {
		ctx, span := tracing.StartSpan(ctx, "batch.analyze",
			attribute.String("item.id", it.ID), attribute.String("item.kind", it.Kind))
		defer span.End()
		res, err := s.remote.Analyze(ctx, remote.AnalyzeRequest{Kind: it.Kind, Input: it.Input})
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	proc := batch.NewProcessor(items, op, s.config.Batch)
	proc.SetOnDrained(func(counts batch.Counts) {
		s.persistBatch(id, kind, proc)
	})

	s.mu.Lock()
	s.batches[id] = &batchEntry{id: id, kind: kind, processor: proc}
	s.mu.Unlock()
	return id, proc.Snapshot()
}

// persistBatch 批次跑空后的落账；失败只记日志，不影响面板状态
func (s *Service) persistBatch(id, kind string, proc *batch.Processor) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	snap := proc.Snapshot()
	rec := &results.BatchRecord{
		ID:        id,
		Kind:      kind,
		Counts:    snap.Counts,
		Items:     snap.Items,
		CreatedAt: time.Now(),
	}
	if err := s.results.SaveBatch(ctx, rec); err != nil {
		s.logger.Error("保存批次结果失败", "batch_id", id, "error", err)
		return
	}
	s.logger.Info("批次已跑空并落账", "batch_id", id,
		"completed", snap.Counts.Completed, "failed", snap.Counts.Failed)
}

// StartBatch 启动（或恢复）批次
func (s *Service) StartBatch(ctx context.Context, id string) (batch.Snapshot, error) {
	proc, err := s.processor(id)
	if err != nil {
		return batch.Snapshot{}, err
	}
	proc.Start(context.WithoutCancel(ctx))
	return proc.Snapshot(), nil
}

// PauseBatch 暂停批次新派发；在途操作不受影响
func (s *Service) PauseBatch(id string) (batch.Snapshot, error) {
	proc, err := s.processor(id)
	if err != nil {
		return batch.Snapshot{}, err
	}
	proc.Pause()
	return proc.Snapshot(), nil
}

// ResumeBatch 恢复批次派发
func (s *Service) ResumeBatch(ctx context.Context, id string) (batch.Snapshot, error) {
	proc, err := s.processor(id)
	if err != nil {
		return batch.Snapshot{}, err
	}
	proc.Resume(context.WithoutCancel(ctx))
	return proc.Snapshot(), nil
}

// RetryItem 单独重试批次内一个 Failed 单元
func (s *Service) RetryItem(ctx context.Context, id, itemID string) (batch.Snapshot, error) {
	proc, err := s.processor(id)
	if err != nil {
		return batch.Snapshot{}, err
	}
	if err := proc.RetryOne(context.WithoutCancel(ctx), itemID); err != nil {
		return batch.Snapshot{}, err
	}
	return proc.Snapshot(), nil
}

// BatchSnapshot 批次实时快照
func (s *Service) BatchSnapshot(id string) (batch.Snapshot, error) {
	proc, err := s.processor(id)
	if err != nil {
		return batch.Snapshot{}, err
	}
	return proc.Snapshot(), nil
}

// BatchResult 读取已落账的批次结果
func (s *Service) BatchResult(ctx context.Context, id string) (*results.BatchRecord, error) {
	return s.results.GetBatch(ctx, id)
}

// ListBatchResults 最近的批次落账记录
func (s *Service) ListBatchResults(ctx context.Context, limit int) ([]*results.BatchRecord, error) {
	return s.results.ListBatches(ctx, limit)
}

func (s *Service) processor(id string) (*batch.Processor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return entry.processor, nil
}

// StartStory 启动服务端 story 生成任务并开始轮询其状态。
// 每次状态更新写入缓存；到达 Completed/Failed 终态时落账。
func (s *Service) StartStory(ctx context.Context, req remote.StoryRequest) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "story.start")
	defer span.End()
	jobID, err := s.remote.StartStory(ctx, req)
	if err != nil {
		return "", err
	}

	poller := poll.NewPoller(s.config.Poll)
	title := req.Title
	poller.SetOnUpdate(func(snap poll.Snapshot) {
		s.recordStoryUpdate(jobID, title, snap)
	})
	s.mu.Lock()
	s.stories[jobID] = &storyEntry{jobID: jobID, title: title, poller: poller}
	s.mu.Unlock()

	// 轮询生命周期独立于发起请求
	poller.Start(context.Background(), jobID, s.remote.StoryStatus)
	s.logger.Info("story 任务已启动", "job_id", jobID)
	return jobID, nil
}

// recordStoryUpdate 轮询回调：缓存最新快照，终态时写结果存储
func (s *Service) recordStoryUpdate(jobID, title string, snap poll.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, storyStatusKeyPrefix+jobID, snap, storyStatusTTL); err != nil {
		s.logger.Warn("缓存 story 状态失败", "job_id", jobID, "error", err)
	}
	if snap.Status == nil || !snap.Status.State.Terminal() {
		return
	}
	rec := &results.StoryRecord{
		JobID:     jobID,
		Title:     title,
		State:     string(snap.Status.State),
		Phase:     snap.Status.Phase,
		ResultRef: snap.Status.ResultRef,
		Error:     snap.Status.ErrorMessage,
		CreatedAt: time.Now(),
	}
	if err := s.results.SaveStory(ctx, rec); err != nil {
		s.logger.Error("保存 story 结果失败", "job_id", jobID, "error", err)
	}
}

// StorySnapshot 任务监控快照：优先取活动轮询器，其次回退缓存
func (s *Service) StorySnapshot(ctx context.Context, jobID string) (poll.Snapshot, error) {
	s.mu.Lock()
	entry, ok := s.stories[jobID]
	s.mu.Unlock()
	if ok {
		return entry.poller.Snapshot(), nil
	}
	var snap poll.Snapshot
	if err := s.cache.Get(ctx, storyStatusKeyPrefix+jobID, &snap); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return poll.Snapshot{}, ErrStoryNotFound
		}
		return poll.Snapshot{}, err
	}
	return snap, nil
}

// StopStory 停止轮询并丢弃轮询器（调用方离开页面）；任务本身继续在服务端运行
func (s *Service) StopStory(jobID string) error {
	s.mu.Lock()
	entry, ok := s.stories[jobID]
	if ok {
		delete(s.stories, jobID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrStoryNotFound
	}
	entry.poller.Stop()
	s.logger.Info("story 轮询已停止", "job_id", jobID)
	return nil
}

// ListStoryResults 最近的 story 落账记录
func (s *Service) ListStoryResults(ctx context.Context, limit int) ([]*results.StoryRecord, error) {
	return s.results.ListStories(ctx, limit)
}

// Close 停止所有轮询器
func (s *Service) Close() {
	s.mu.Lock()
	entries := make([]*storyEntry, 0, len(s.stories))
	for _, e := range s.stories {
		entries = append(entries, e)
	}
	s.stories = make(map[string]*storyEntry)
	s.mu.Unlock()
	for _, e := range entries {
		e.poller.Stop()
	}
}
