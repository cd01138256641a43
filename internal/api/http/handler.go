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

// Package http 浏览器面板的 HTTP 接口层，只依赖 studio.Service。
package http

import (
	"context"
	"errors"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/miludeerforest/abp-studio-sub001/internal/batch"
	"github.com/miludeerforest/abp-studio-sub001/internal/remote"
	"github.com/miludeerforest/abp-studio-sub001/internal/storage/results"
	"github.com/miludeerforest/abp-studio-sub001/internal/studio"
	"github.com/miludeerforest/abp-studio-sub001/pkg/metrics"
)

// Handler HTTP 处理器
type Handler struct {
	service *studio.Service
}

// NewHandler 创建 HTTP 处理器
func NewHandler(service *studio.Service) *Handler {
	return &Handler{service: service}
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]string{"status": "ok"})
}

// CreateBatch 创建批次（不自动启动）
// POST /api/batches
func (h *Handler) CreateBatch(c context.Context, ctx *app.RequestContext) {
	var req struct {
		Kind   string `json:"kind"`
		Inputs []any  `json:"inputs"`
	}
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "invalid request",
		})
		return
	}
	if len(req.Inputs) == 0 {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "inputs is required",
		})
		return
	}
	id, snap := h.service.CreateBatch(req.Kind, req.Inputs)
	ctx.JSON(consts.StatusCreated, map[string]any{
		"batch_id": id,
		"snapshot": snap,
	})
}

// StartBatch 启动批次
// POST /api/batches/:id/start
func (h *Handler) StartBatch(c context.Context, ctx *app.RequestContext) {
	h.batchAction(c, ctx, func(id string) (batch.Snapshot, error) {
		return h.service.StartBatch(c, id)
	})
}

// PauseBatch 暂停批次
// POST /api/batches/:id/pause
func (h *Handler) PauseBatch(c context.Context, ctx *app.RequestContext) {
	h.batchAction(c, ctx, h.service.PauseBatch)
}

// ResumeBatch 恢复批次
// POST /api/batches/:id/resume
func (h *Handler) ResumeBatch(c context.Context, ctx *app.RequestContext) {
	h.batchAction(c, ctx, func(id string) (batch.Snapshot, error) {
		return h.service.ResumeBatch(c, id)
	})
}

// GetBatch 批次实时快照
// GET /api/batches/:id
func (h *Handler) GetBatch(c context.Context, ctx *app.RequestContext) {
	h.batchAction(c, ctx, h.service.BatchSnapshot)
}

// batchAction 按 :id 执行批次操作并返回最新快照
func (h *Handler) batchAction(c context.Context, ctx *app.RequestContext, fn func(id string) (batch.Snapshot, error)) {
	id := ctx.Param("id")
	if id == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "batch id is required"})
		return
	}
	snap, err := fn(id)
	if err != nil {
		h.writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{
		"batch_id": id,
		"snapshot": snap,
	})
}

// RetryItem 重试批次内单个失败单元
// POST /api/batches/:id/items/:itemID/retry
func (h *Handler) RetryItem(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	itemID := ctx.Param("itemID")
	if id == "" || itemID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "batch id and item id are required"})
		return
	}
	snap, err := h.service.RetryItem(c, id, itemID)
	if err != nil {
		h.writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{
		"batch_id": id,
		"snapshot": snap,
	})
}

// GetBatchResult 读取已落账的批次结果
// GET /api/batches/:id/result
func (h *Handler) GetBatchResult(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	if id == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "batch id is required"})
		return
	}
	rec, err := h.service.BatchResult(c, id)
	if err != nil {
		h.writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, rec)
}

// ListBatchResults 最近的批次落账记录
// GET /api/results/batches
func (h *Handler) ListBatchResults(c context.Context, ctx *app.RequestContext) {
	limit := ctx.DefaultQuery("limit", "")
	recs, err := h.service.ListBatchResults(c, parseLimit(limit))
	if err != nil {
		h.writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"batches": recs})
}

// GenerateStory 启动 story 生成任务并开始轮询
// POST /api/story/generate
func (h *Handler) GenerateStory(c context.Context, ctx *app.RequestContext) {
	var req struct {
		Title    string   `json:"title"`
		Prompt   string   `json:"prompt"`
		MediaIDs []string `json:"media_ids"`
	}
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "invalid request",
		})
		return
	}
	if req.Prompt == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "prompt is required",
		})
		return
	}
	jobID, err := h.service.StartStory(c, remote.StoryRequest{
		Title:    req.Title,
		Prompt:   req.Prompt,
		MediaIDs: req.MediaIDs,
	})
	if err != nil {
		hlog.CtxErrorf(c, "failed to start story job: %v", err)
		ctx.JSON(consts.StatusBadGateway, map[string]string{
			"error": "failed to start story job",
		})
		return
	}
	ctx.JSON(consts.StatusAccepted, map[string]string{"job_id": jobID})
}

// GetStoryJob story 任务监控快照（含链路健康度）
// GET /api/story/jobs/:id
func (h *Handler) GetStoryJob(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("id")
	if jobID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}
	snap, err := h.service.StorySnapshot(c, jobID)
	if err != nil {
		h.writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, snap)
}

// StopStoryJob 停止对任务的轮询
// POST /api/story/jobs/:id/stop
func (h *Handler) StopStoryJob(c context.Context, ctx *app.RequestContext) {
	jobID := ctx.Param("id")
	if jobID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "job id is required"})
		return
	}
	if err := h.service.StopStory(jobID); err != nil {
		h.writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]string{"job_id": jobID, "status": "stopped"})
}

// ListStoryResults 最近的 story 落账记录
// GET /api/results/stories
func (h *Handler) ListStoryResults(c context.Context, ctx *app.RequestContext) {
	limit := ctx.DefaultQuery("limit", "")
	recs, err := h.service.ListStoryResults(c, parseLimit(limit))
	if err != nil {
		h.writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{"stories": recs})
}

// SystemMetrics Prometheus 文本格式指标
// GET /api/system/metrics
func (h *Handler) SystemMetrics(c context.Context, ctx *app.RequestContext) {
	var buf metricsBuffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "failed to gather metrics",
		})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.data)
}

// metricsBuffer 收集 expfmt 编码输出
type metricsBuffer struct {
	data []byte
}

func (b *metricsBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

// writeError 业务错误到 HTTP 状态码映射
func (h *Handler) writeError(c context.Context, ctx *app.RequestContext, err error) {
	switch {
	case errors.Is(err, studio.ErrBatchNotFound),
		errors.Is(err, studio.ErrStoryNotFound),
		errors.Is(err, results.ErrBatchNotFound),
		errors.Is(err, batch.ErrItemNotFound):
		ctx.JSON(consts.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, batch.ErrNotFailed):
		ctx.JSON(consts.StatusConflict, map[string]string{"error": err.Error()})
	default:
		hlog.CtxErrorf(c, "request failed: %v", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func parseLimit(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	if n > 1000 {
		return 1000
	}
	return n
}
