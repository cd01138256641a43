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

package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/miludeerforest/abp-studio-sub001/pkg/metrics"
)

var (
	// ErrItemNotFound 单元不存在
	ErrItemNotFound = errors.New("batch: item not found")
	// ErrNotFailed 仅 Failed 状态的单元可单独重试
	ErrNotFailed = errors.New("batch: item is not in failed status")
)

// Operation 执行单个工作单元的远程操作（由应用层注入，如 remote.Client.Analyze）
type Operation func(ctx context.Context, item *Item) (any, error)

// Config 处理器配置
type Config struct {
	MaxConcurrency int // 批内并发上限 K，<=0 表示 2
}

const defaultMaxConcurrency = 2

// Processor 有界并发批处理器：按提交序派发 Pending/Failed 单元，
// 任一单元结清后立即补位，而不是等整轮结束。
// 全部可变状态由单把锁保护；结清按单元身份落点，乱序完成互不覆盖。
type Processor struct {
	mu    sync.Mutex
	op    Operation
	limit int

	items []*Item
	byID  map[string]*Item

	// 本轮 run 的派发队列（run 启动时从 Pending/Failed 构建，保持提交序）
	queue  []*Item
	cursor int

	inFlight     int
	paused       bool
	drainedFired bool
	// run 代数：Start 构建新队列时递增；旧 run 的迟到结清不得再改状态
	run int

	onSettled func(Item)
	onDrained func(Counts)
}

// NewProcessor 创建处理器；items 为提交序的工作单元，op 为注入的远程操作
func NewProcessor(items []*Item, op Operation, config Config) *Processor {
	limit := config.MaxConcurrency
	if limit <= 0 {
		limit = defaultMaxConcurrency
	}
	byID := make(map[string]*Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	return &Processor{
		op:    op,
		limit: limit,
		items: items,
		byID:  byID,
	}
}

// SetOnSettled 设置单元结清回调（锁外调用，收到的是值拷贝）
func (p *Processor) SetOnSettled(fn func(Item)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSettled = fn
}

// SetOnDrained 设置批次跑空回调（队列耗尽且 inFlight==0 时触发一次）
func (p *Processor) SetOnDrained(fn func(Counts)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDrained = fn
}

// Start 开始处理：若上一轮已跑空则从当前 Pending/Failed 单元构建新队列；
// 若仍在进行中，等价于 Resume（幂等，仅重新触发派发）。Completed 单元不会被重跑。
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.activeLocked() {
		p.paused = false
		p.dispatchLocked(ctx)
		return
	}
	queue := make([]*Item, 0, len(p.items))
	for _, it := range p.items {
		if it.Status == StatusPending || it.Status == StatusFailed {
			queue = append(queue, it)
		}
	}
	p.queue = queue
	p.cursor = 0
	p.run++
	p.paused = false
	p.drainedFired = false
	p.dispatchLocked(ctx)
}

// Pause 暂停新派发；在途操作不会被取消，结清后也不再补位
func (p *Processor) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume 恢复派发；未暂停时为 no-op（仅重新触发一次派发）
func (p *Processor) Resume(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.dispatchLocked(ctx)
}

// RetryOne 单独重试一个 Failed 单元：绕过队列与并发窗口，立即调用操作。
// 不影响其他单元状态与 pending 计数。
func (p *Processor) RetryOne(ctx context.Context, id string) error {
	p.mu.Lock()
	it, ok := p.byID[id]
	if !ok {
		p.mu.Unlock()
		return ErrItemNotFound
	}
	if it.Status != StatusFailed {
		p.mu.Unlock()
		return ErrNotFailed
	}
	it.Status = StatusProcessing
	it.Error = ""
	p.inFlight++
	p.drainedFired = false
	run := p.run
	p.mu.Unlock()

	metrics.BatchInFlight.Inc()
	go p.invoke(ctx, it, run)
	return nil
}

// Snapshot 返回批次只读快照
func (p *Processor) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := make([]Item, len(p.items))
	for i, it := range p.items {
		items[i] = *it
	}
	return Snapshot{
		Items:   items,
		Counts:  p.countsLocked(),
		Paused:  p.paused,
		Drained: p.drainedLocked(),
	}
}

// Counts 返回当前各状态计数
func (p *Processor) Counts() Counts {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countsLocked()
}

// activeLocked 队列尚未耗尽或仍有在途操作
func (p *Processor) activeLocked() bool {
	return p.cursor < len(p.queue) || p.inFlight > 0
}

// drainedLocked 跑空判定：队列耗尽且无在途操作（且本轮确实启动过）
func (p *Processor) drainedLocked() bool {
	return p.run > 0 && p.cursor >= len(p.queue) && p.inFlight == 0
}

func (p *Processor) countsLocked() Counts {
	c := Counts{Total: len(p.items)}
	for _, it := range p.items {
		switch it.Status {
		case StatusPending:
			c.Pending++
		case StatusProcessing:
			c.Processing++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// dispatchLocked 派发循环：窗口有空位且未暂停时，按提交序取下一个可执行单元。
// 队列成员在 run 启动后可能已被单独重试，跳过已非 Pending/Failed 的单元。
func (p *Processor) dispatchLocked(ctx context.Context) {
	for !p.paused && p.inFlight < p.limit && p.cursor < len(p.queue) {
		it := p.queue[p.cursor]
		p.cursor++
		if it.Status != StatusPending && it.Status != StatusFailed {
			continue
		}
		it.Status = StatusProcessing
		it.Error = ""
		p.inFlight++
		metrics.BatchInFlight.Inc()
		go p.invoke(ctx, it, p.run)
	}
}

// invoke 在独立 goroutine 中执行远程操作并结清
func (p *Processor) invoke(ctx context.Context, it *Item, run int) {
	start := time.Now()
	out, err := p.op(ctx, it)
	metrics.BatchItemDuration.WithLabelValues(it.Kind).Observe(time.Since(start).Seconds())
	p.settle(ctx, it, out, err, run)
}

// settle 结清单元：只改这一个单元（按指针身份），递减 inFlight，未暂停则立即补位。
// run 不匹配说明该回调属于已被替换的旧轮次，直接丢弃。
func (p *Processor) settle(ctx context.Context, it *Item, out any, err error, run int) {
	p.mu.Lock()
	if run != p.run {
		p.mu.Unlock()
		metrics.BatchInFlight.Dec()
		return
	}
	if err != nil {
		it.Status = StatusFailed
		it.Error = err.Error()
		it.Output = nil
		metrics.BatchItemsTotal.WithLabelValues("failed").Inc()
	} else {
		it.Status = StatusCompleted
		it.Output = out
		it.Error = ""
		metrics.BatchItemsTotal.WithLabelValues("completed").Inc()
	}
	p.inFlight--
	settled := *it
	if !p.paused {
		p.dispatchLocked(ctx)
	}
	var fireDrained bool
	var counts Counts
	if p.drainedLocked() && !p.drainedFired {
		p.drainedFired = true
		fireDrained = true
		counts = p.countsLocked()
	}
	onSettled := p.onSettled
	onDrained := p.onDrained
	p.mu.Unlock()

	metrics.BatchInFlight.Dec()
	if onSettled != nil {
		onSettled(settled)
	}
	if fireDrained {
		metrics.BatchDrainedTotal.Inc()
		if onDrained != nil {
			onDrained(counts)
		}
	}
}
