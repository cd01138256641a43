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

package studio

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miludeerforest/abp-studio-sub001/internal/batch"
	"github.com/miludeerforest/abp-studio-sub001/internal/poll"
	"github.com/miludeerforest/abp-studio-sub001/internal/remote"
	"github.com/miludeerforest/abp-studio-sub001/internal/storage/cache"
	"github.com/miludeerforest/abp-studio-sub001/internal/storage/results"
	"github.com/miludeerforest/abp-studio-sub001/pkg/log"
)

// stubRemote 可编程的上游 stub
type stubRemote struct {
	analyzeErr  error
	storyStatus atomic.Value // *poll.JobStatus
	statusErr   atomic.Value // error
	statusCalls int32
}

func (s *stubRemote) Analyze(ctx context.Context, req remote.AnalyzeRequest) (*remote.AnalyzeResult, error) {
	if s.analyzeErr != nil {
		return nil, s.analyzeErr
	}
	return &remote.AnalyzeResult{Summary: "summary"}, nil
}

func (s *stubRemote) StartStory(ctx context.Context, req remote.StoryRequest) (string, error) {
	if req.Prompt == "" {
		return "", errors.New("prompt required")
	}
	return "job-test-1", nil
}

func (s *stubRemote) StoryStatus(ctx context.Context, jobID string) (*poll.JobStatus, error) {
	atomic.AddInt32(&s.statusCalls, 1)
	if err, _ := s.statusErr.Load().(error); err != nil {
		return nil, err
	}
	st, _ := s.storyStatus.Load().(*poll.JobStatus)
	if st == nil {
		return &poll.JobStatus{JobID: jobID, State: poll.StateRunning}, nil
	}
	cp := *st
	cp.JobID = jobID
	return &cp, nil
}

func newTestService(t *testing.T, stub *stubRemote) (*Service, results.Store, cache.Store) {
	t.Helper()
	logger, err := log.NewLogger(&log.Config{Level: "error"})
	require.NoError(t, err)
	resultsStore := results.NewMemoryStore()
	cacheStore := cache.NewMemoryStore()
	svc := NewService(logger, stub, resultsStore, cacheStore, Config{
		Batch: batch.Config{MaxConcurrency: 2},
		Poll: poll.Config{
			DefaultInterval:   5 * time.Millisecond,
			MediumInterval:    3 * time.Millisecond,
			ShortInterval:     time.Millisecond,
			MediumRatio:       0.5,
			ShortRatio:        0.8,
			DegradedThreshold: 3,
		},
	})
	t.Cleanup(svc.Close)
	return svc, resultsStore, cacheStore
}

func TestServiceBatchLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t, &stubRemote{})

	id, snap := svc.CreateBatch("text_analysis", []any{"a", "b", "c"})
	assert.NotEmpty(t, id)
	assert.Equal(t, 3, snap.Counts.Pending)
	assert.False(t, snap.Drained)

	_, err := svc.StartBatch(context.Background(), id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := svc.BatchSnapshot(id)
		return err == nil && s.Drained
	}, 5*time.Second, 10*time.Millisecond)

	s, err := svc.BatchSnapshot(id)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Counts.Completed)

	// 跑空后整批落账
	require.Eventually(t, func() bool {
		_, err := svc.BatchResult(context.Background(), id)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	rec, err := svc.BatchResult(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, 3, rec.Counts.Completed)
	assert.Len(t, rec.Items, 3)

	list, err := svc.ListBatchResults(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestServiceBatchNotFound(t *testing.T) {
	svc, _, _ := newTestService(t, &stubRemote{})

	_, err := svc.StartBatch(context.Background(), "batch-missing")
	assert.ErrorIs(t, err, ErrBatchNotFound)
	_, err = svc.PauseBatch("batch-missing")
	assert.ErrorIs(t, err, ErrBatchNotFound)
	_, err = svc.ResumeBatch(context.Background(), "batch-missing")
	assert.ErrorIs(t, err, ErrBatchNotFound)
	_, err = svc.RetryItem(context.Background(), "batch-missing", "item-x")
	assert.ErrorIs(t, err, ErrBatchNotFound)
	_, err = svc.BatchSnapshot("batch-missing")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestServiceRetryItemErrors(t *testing.T) {
	svc, _, _ := newTestService(t, &stubRemote{analyzeErr: errors.New("upstream down")})

	id, _ := svc.CreateBatch("text_analysis", []any{"a"})
	_, err := svc.StartBatch(context.Background(), id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := svc.BatchSnapshot(id)
		return err == nil && s.Counts.Failed == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err = svc.RetryItem(context.Background(), id, "item-missing")
	assert.ErrorIs(t, err, batch.ErrItemNotFound)

	snap, _ := svc.BatchSnapshot(id)
	_, err = svc.RetryItem(context.Background(), id, snap.Items[0].ID)
	assert.NoError(t, err)
}

func TestServiceStoryLifecycle(t *testing.T) {
	stub := &stubRemote{}
	stub.storyStatus.Store(&poll.JobStatus{CompletedUnits: 1, TotalUnits: 4, State: poll.StateRunning})
	svc, _, cacheStore := newTestService(t, stub)

	jobID, err := svc.StartStory(context.Background(), remote.StoryRequest{Title: "trip", Prompt: "make a story"})
	require.NoError(t, err)
	assert.Equal(t, "job-test-1", jobID)

	// 每次更新写缓存
	require.Eventually(t, func() bool {
		var snap poll.Snapshot
		return cacheStore.Get(context.Background(), "story:status:"+jobID, &snap) == nil
	}, 5*time.Second, 10*time.Millisecond)

	// 到终态：轮询自停，结果落账
	stub.storyStatus.Store(&poll.JobStatus{CompletedUnits: 4, TotalUnits: 4, State: poll.StateCompleted, ResultRef: "video-1"})
	require.Eventually(t, func() bool {
		recs, err := svc.ListStoryResults(context.Background(), 10)
		return err == nil && len(recs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	recs, err := svc.ListStoryResults(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, jobID, recs[0].JobID)
	assert.Equal(t, "trip", recs[0].Title)
	assert.Equal(t, string(poll.StateCompleted), recs[0].State)
	assert.Equal(t, "video-1", recs[0].ResultRef)

	snap, err := svc.StorySnapshot(context.Background(), jobID)
	require.NoError(t, err)
	assert.True(t, snap.Stopped)
	require.NotNil(t, snap.Status)
	assert.Equal(t, poll.StateCompleted, snap.Status.State)
}

func TestServiceStopStory(t *testing.T) {
	stub := &stubRemote{}
	svc, _, _ := newTestService(t, stub)

	jobID, err := svc.StartStory(context.Background(), remote.StoryRequest{Prompt: "p"})
	require.NoError(t, err)

	require.NoError(t, svc.StopStory(jobID))
	// 轮询器已被丢弃
	assert.ErrorIs(t, svc.StopStory(jobID), ErrStoryNotFound)

	// 停止后不再拉取
	calls := atomic.LoadInt32(&stub.statusCalls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt32(&stub.statusCalls))
}

func TestServiceStorySnapshotFallsBackToCache(t *testing.T) {
	stub := &stubRemote{}
	stub.storyStatus.Store(&poll.JobStatus{CompletedUnits: 2, TotalUnits: 4, State: poll.StateRunning})
	svc, _, cacheStore := newTestService(t, stub)

	jobID, err := svc.StartStory(context.Background(), remote.StoryRequest{Prompt: "p"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		var snap poll.Snapshot
		return cacheStore.Get(context.Background(), "story:status:"+jobID, &snap) == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.StopStory(jobID))
	snap, err := svc.StorySnapshot(context.Background(), jobID)
	require.NoError(t, err)
	require.NotNil(t, snap.Status)
	assert.Equal(t, 2, snap.Status.CompletedUnits)

	_, err = svc.StorySnapshot(context.Background(), "job-unknown")
	assert.ErrorIs(t, err, ErrStoryNotFound)
}
