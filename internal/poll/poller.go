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

package poll

import (
	"context"
	"sync"
	"time"

	"github.com/miludeerforest/abp-studio-sub001/pkg/metrics"
)

// FetchFunc 拉取任务状态（由应用层注入，如 remote.Client.StoryStatus）。
// 返回 error 表示监控链路故障（传输错误或非成功响应），不代表任务失败。
type FetchFunc func(ctx context.Context, jobID string) (*JobStatus, error)

// Config 轮询配置；阈值可配置，默认取自上游面板的经验值
type Config struct {
	DefaultInterval   time.Duration // 默认（最长）间隔
	MediumInterval    time.Duration // 进度超过 MediumRatio 后的间隔
	ShortInterval     time.Duration // 进度超过 ShortRatio 后的间隔
	MediumRatio       float64
	ShortRatio        float64
	DegradedThreshold int // 连续失败达此值置 degraded
}

// DefaultConfig 默认轮询配置
func DefaultConfig() Config {
	return Config{
		DefaultInterval:   5 * time.Second,
		MediumInterval:    2 * time.Second,
		ShortInterval:     800 * time.Millisecond,
		MediumRatio:       0.5,
		ShortRatio:        0.8,
		DegradedThreshold: 3,
	}
}

// normalize 补全零值配置
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = def.DefaultInterval
	}
	if c.MediumInterval <= 0 {
		c.MediumInterval = def.MediumInterval
	}
	if c.ShortInterval <= 0 {
		c.ShortInterval = def.ShortInterval
	}
	if c.MediumRatio <= 0 {
		c.MediumRatio = def.MediumRatio
	}
	if c.ShortRatio <= 0 {
		c.ShortRatio = def.ShortRatio
	}
	if c.DegradedThreshold <= 0 {
		c.DegradedThreshold = def.DegradedThreshold
	}
	return c
}

// Poller 自适应任务轮询器：顺序拉取单个服务端任务的状态，依据进度比收紧节奏，
// 用连续失败计数识别监控链路劣化。拉取失败不终止轮询，只有终态响应或 Stop 结束循环。
type Poller struct {
	mu       sync.Mutex
	config   Config
	jobID    string
	fetch    FetchFunc
	status   *JobStatus
	failures int
	degraded bool
	stopped  bool
	started  bool
	onUpdate func(Snapshot)

	stopCh chan struct{}
}

// NewPoller 创建轮询器
func NewPoller(config Config) *Poller {
	return &Poller{
		config: config.normalize(),
		stopCh: make(chan struct{}),
	}
}

// SetOnUpdate 设置状态更新回调（每次拉取结束后携带最新快照，锁外调用）
func (p *Poller) SetOnUpdate(fn func(Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = fn
}

// Start 开始轮询；重复调用为 no-op。首次拉取前进度未知，使用默认间隔。
func (p *Poller) Start(ctx context.Context, jobID string, fetch FetchFunc) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.jobID = jobID
	p.fetch = fetch
	p.mu.Unlock()

	go p.loop(ctx)
}

// Stop 无条件停止轮询（调用方离开页面等场景）；幂等，不等待在途拉取，
// 其结果会被丢弃，不再更新任何可见状态。
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	if p.degraded {
		p.degraded = false
		metrics.PollDegraded.Dec()
	}
	close(p.stopCh)
}

// Snapshot 返回只读快照
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Poller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Degraded:            p.degraded,
		ConsecutiveFailures: p.failures,
		Stopped:             p.stopped,
	}
	if p.status != nil {
		st := *p.status
		snap.Status = &st
	}
	return snap
}

// loop 单 goroutine 顺序轮询：等待间隔 → 拉取 → 落账 → 重新定间隔。
// 同一任务的两次拉取绝不重叠。
func (p *Poller) loop(ctx context.Context) {
	timer := time.NewTimer(p.nextInterval())
	defer timer.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			p.markStopped()
			return
		case <-timer.C:
		}

		status, err := p.fetch(ctx, p.jobID)
		if terminal := p.record(status, err); terminal {
			return
		}
		timer.Reset(p.nextInterval())
	}
}

// record 应用一次拉取结果；返回是否到达终态。
// 失败只推进连续失败计数（链路信号）；任务失败仅由 State=Failed 表达。
func (p *Poller) record(status *JobStatus, err error) bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return true
	}
	if err != nil {
		metrics.PollFetchTotal.WithLabelValues("error").Inc()
		p.failures++
		if p.failures >= p.config.DegradedThreshold && !p.degraded {
			p.degraded = true
			metrics.PollDegraded.Inc()
		}
	} else {
		metrics.PollFetchTotal.WithLabelValues("ok").Inc()
		p.failures = 0
		if p.degraded {
			p.degraded = false
			metrics.PollDegraded.Dec()
		}
		p.status = status
	}
	terminal := err == nil && status != nil && status.State.Terminal()
	if terminal {
		p.stopped = true
	}
	snap := p.snapshotLocked()
	onUpdate := p.onUpdate
	p.mu.Unlock()

	if onUpdate != nil {
		onUpdate(snap)
	}
	return terminal
}

// markStopped 仅置位（ctx 取消路径），不重复 close stopCh
func (p *Poller) markStopped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		if p.degraded {
			p.degraded = false
			metrics.PollDegraded.Dec()
		}
	}
}

// nextInterval 按最近已知进度比选择下一次间隔；进度未知用默认间隔
func (p *Poller) nextInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status == nil {
		return p.config.DefaultInterval
	}
	ratio := p.status.Progress()
	switch {
	case ratio > p.config.ShortRatio:
		return p.config.ShortInterval
	case ratio > p.config.MediumRatio:
		return p.config.MediumInterval
	default:
		return p.config.DefaultInterval
	}
}
