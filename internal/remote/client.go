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

// Package remote 封装上游内容生成服务的 HTTP 调用；协议内容对本服务不透明，
// 这里只提供批处理器与轮询器需要的三个能力：单元分析、启动 story 任务、拉取任务状态。
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/miludeerforest/abp-studio-sub001/internal/poll"
)

// Config 上游服务配置
type Config struct {
	BaseURL       string
	Timeout       time.Duration // <=0 默认 30s
	APIKey        string
	RPS           float64
	Burst         int
	MaxConcurrent int
}

// Client 上游服务客户端
type Client struct {
	http    *resty.Client
	limiter *OpLimiter
}

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		c.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	return &Client{
		http:    c,
		limiter: NewOpLimiter(cfg.RPS, cfg.Burst, cfg.MaxConcurrent),
	}
}

// AnalyzeRequest 单元分析请求；Input 原样透传给上游
type AnalyzeRequest struct {
	Kind  string `json:"kind"` // text_analysis | image_analysis 等
	Input any    `json:"input"`
}

// AnalyzeResult 单元分析结果；Raw 保留上游原始响应供前端展示
type AnalyzeResult struct {
	Summary string          `json:"summary"`
	Labels  []string        `json:"labels,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// Analyze 执行一次分析操作（批处理器的注入操作）
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.limiter.Release()

	var out AnalyzeResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/v1/analyze")
	if err != nil {
		return nil, fmt.Errorf("remote: analyze: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("remote: analyze: %s", resp.String())
	}
	return &out, nil
}

// StoryRequest story 视频生成任务请求
type StoryRequest struct {
	Title    string   `json:"title"`
	Prompt   string   `json:"prompt"`
	MediaIDs []string `json:"media_ids,omitempty"`
}

// StartStory 启动服务端 story 生成任务，返回 jobID
func (c *Client) StartStory(ctx context.Context, req StoryRequest) (string, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return "", err
	}
	defer c.limiter.Release()

	var out struct {
		JobID string `json:"job_id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/v1/story/generate")
	if err != nil {
		return "", fmt.Errorf("remote: start story: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusAccepted {
		return "", fmt.Errorf("remote: start story: %s", resp.String())
	}
	if out.JobID == "" {
		return "", fmt.Errorf("remote: start story: empty job_id in response")
	}
	return out.JobID, nil
}

// StoryStatus 拉取 story 任务状态（轮询器的注入 FetchFunc）。
// 返回 error 一律视为监控链路故障；任务失败由响应体的 state=failed 表达。
func (c *Client) StoryStatus(ctx context.Context, jobID string) (*poll.JobStatus, error) {
	var out poll.JobStatus
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/story/jobs/" + jobID)
	if err != nil {
		return nil, fmt.Errorf("remote: story status: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("remote: story status: %s", resp.String())
	}
	out.JobID = jobID
	return &out, nil
}
