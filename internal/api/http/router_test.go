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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"github.com/miludeerforest/abp-studio-sub001/internal/batch"
	"github.com/miludeerforest/abp-studio-sub001/internal/poll"
	"github.com/miludeerforest/abp-studio-sub001/internal/remote"
	"github.com/miludeerforest/abp-studio-sub001/internal/storage/cache"
	"github.com/miludeerforest/abp-studio-sub001/internal/storage/results"
	"github.com/miludeerforest/abp-studio-sub001/internal/studio"
	"github.com/miludeerforest/abp-studio-sub001/pkg/log"

	"github.com/miludeerforest/abp-studio-sub001/internal/api/http/middleware"
)

// stubRemote 上游 stub：分析即成功，story 任务两次拉取后完成
type stubRemote struct {
	calls int32
}

func (s *stubRemote) Analyze(ctx context.Context, req remote.AnalyzeRequest) (*remote.AnalyzeResult, error) {
	return &remote.AnalyzeResult{Summary: "ok"}, nil
}

func (s *stubRemote) StartStory(ctx context.Context, req remote.StoryRequest) (string, error) {
	return "job-http-1", nil
}

func (s *stubRemote) StoryStatus(ctx context.Context, jobID string) (*poll.JobStatus, error) {
	s.calls++
	if s.calls < 2 {
		return &poll.JobStatus{JobID: jobID, CompletedUnits: 1, TotalUnits: 2, State: poll.StateRunning}, nil
	}
	return &poll.JobStatus{JobID: jobID, CompletedUnits: 2, TotalUnits: 2, State: poll.StateCompleted, ResultRef: "video-1"}, nil
}

func buildServerForTest(t *testing.T) *server.Hertz {
	t.Helper()
	logger, err := log.NewLogger(&log.Config{Level: "error"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	svc := studio.NewService(logger, &stubRemote{}, results.NewMemoryStore(), cache.NewMemoryStore(), studio.Config{
		Batch: batch.Config{MaxConcurrency: 2},
		Poll:  poll.Config{DefaultInterval: 5 * time.Millisecond},
	})
	t.Cleanup(svc.Close)
	r := NewRouter(NewHandler(svc), middleware.NewMiddleware())
	return r.Build(":0")
}

func performJSON(s *server.Hertz, method, path string, body []byte) *ut.ResponseRecorder {
	return ut.PerformRequest(s.Engine, method, path, &ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
}

func TestRouterHealth(t *testing.T) {
	s := buildServerForTest(t)
	w := performJSON(s, "GET", "/api/health", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("GET /api/health status = %d, want 200", got)
	}
}

func TestRouterBatchFlow(t *testing.T) {
	s := buildServerForTest(t)

	body := []byte(`{"kind":"text_analysis","inputs":["a","b"]}`)
	w := performJSON(s, "POST", "/api/batches", body)
	if got := w.Result().StatusCode(); got != 201 {
		t.Fatalf("POST /api/batches status = %d, want 201: %s", got, w.Result().Body())
	}
	var created struct {
		BatchID string `json:"batch_id"`
	}
	if err := json.Unmarshal(w.Result().Body(), &created); err != nil || created.BatchID == "" {
		t.Fatalf("bad create response: %s", w.Result().Body())
	}

	w = performJSON(s, "POST", "/api/batches/"+created.BatchID+"/start", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("POST start status = %d, want 200", got)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		w = performJSON(s, "GET", "/api/batches/"+created.BatchID, nil)
		if got := w.Result().StatusCode(); got != 200 {
			t.Fatalf("GET batch status = %d, want 200", got)
		}
		var out struct {
			Snapshot batch.Snapshot `json:"snapshot"`
		}
		if err := json.Unmarshal(w.Result().Body(), &out); err != nil {
			t.Fatalf("bad snapshot response: %v", err)
		}
		if out.Snapshot.Drained {
			if out.Snapshot.Counts.Completed != 2 {
				t.Fatalf("completed = %d, want 2", out.Snapshot.Counts.Completed)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("batch did not drain in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// 跑空后结果可回看
	deadline = time.Now().Add(5 * time.Second)
	for {
		w = performJSON(s, "GET", "/api/batches/"+created.BatchID+"/result", nil)
		if w.Result().StatusCode() == 200 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("GET result status = %d, want 200", w.Result().StatusCode())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRouterBatchValidation(t *testing.T) {
	s := buildServerForTest(t)

	w := performJSON(s, "POST", "/api/batches", []byte(`{"kind":"text_analysis","inputs":[]}`))
	if got := w.Result().StatusCode(); got != 400 {
		t.Fatalf("empty inputs status = %d, want 400", got)
	}

	w = performJSON(s, "GET", "/api/batches/batch-missing", nil)
	if got := w.Result().StatusCode(); got != 404 {
		t.Fatalf("unknown batch status = %d, want 404", got)
	}

	w = performJSON(s, "POST", "/api/batches/batch-missing/items/item-x/retry", nil)
	if got := w.Result().StatusCode(); got != 404 {
		t.Fatalf("retry on unknown batch status = %d, want 404", got)
	}
}

func TestRouterStoryFlow(t *testing.T) {
	s := buildServerForTest(t)

	w := performJSON(s, "POST", "/api/story/generate", []byte(`{"title":"trip","prompt":"make it"}`))
	if got := w.Result().StatusCode(); got != 202 {
		t.Fatalf("POST /api/story/generate status = %d, want 202: %s", got, w.Result().Body())
	}
	var created struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(w.Result().Body(), &created); err != nil || created.JobID == "" {
		t.Fatalf("bad generate response: %s", w.Result().Body())
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		w = performJSON(s, "GET", "/api/story/jobs/"+created.JobID, nil)
		if got := w.Result().StatusCode(); got != 200 {
			t.Fatalf("GET story job status = %d, want 200", got)
		}
		var snap poll.Snapshot
		if err := json.Unmarshal(w.Result().Body(), &snap); err != nil {
			t.Fatalf("bad story snapshot: %v", err)
		}
		if snap.Stopped {
			if snap.Status == nil || snap.Status.State != poll.StateCompleted {
				t.Fatalf("terminal snapshot = %+v, want completed", snap)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("story job did not complete in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	w = performJSON(s, "POST", "/api/story/jobs/"+created.JobID+"/stop", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("POST stop status = %d, want 200", got)
	}
}

func TestRouterStoryValidation(t *testing.T) {
	s := buildServerForTest(t)

	w := performJSON(s, "POST", "/api/story/generate", []byte(`{"title":"no prompt"}`))
	if got := w.Result().StatusCode(); got != 400 {
		t.Fatalf("missing prompt status = %d, want 400", got)
	}

	w = performJSON(s, "GET", "/api/story/jobs/job-missing", nil)
	if got := w.Result().StatusCode(); got != 404 {
		t.Fatalf("unknown job status = %d, want 404", got)
	}

	w = performJSON(s, "POST", "/api/story/jobs/job-missing/stop", nil)
	if got := w.Result().StatusCode(); got != 404 {
		t.Fatalf("stop unknown job status = %d, want 404", got)
	}
}

func TestRouterSystemMetrics(t *testing.T) {
	s := buildServerForTest(t)

	w := performJSON(s, "GET", "/api/system/metrics", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("GET /api/system/metrics status = %d, want 200", got)
	}
	if body := w.Result().Body(); !bytes.Contains(body, []byte("abp_batch_inflight")) {
		t.Fatalf("metrics body missing abp_batch_inflight: %s", body)
	}
}

func TestRouterResultsEndpoints(t *testing.T) {
	s := buildServerForTest(t)

	w := performJSON(s, "GET", "/api/results/batches", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("GET /api/results/batches status = %d, want 200", got)
	}
	w = performJSON(s, "GET", "/api/results/stories?limit=5", nil)
	if got := w.Result().StatusCode(); got != 200 {
		t.Fatalf("GET /api/results/stories status = %d, want 200", got)
	}
}
