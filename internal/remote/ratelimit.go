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

package remote

import (
	"context"

	"golang.org/x/time/rate"
)

// OpLimiter 对上游服务的调用限流：RPS + 并发双重控制。
// 与批处理器的并发窗口相互独立，批内 K 只约束单个批次。
type OpLimiter struct {
	requestLimiter *rate.Limiter // RPS 限流器
	semaphore      chan struct{} // 并发控制，nil 表示不限制
}

// NewOpLimiter 创建限流器；rps<=0 表示不限速，maxConcurrent<=0 表示不限并发
func NewOpLimiter(rps float64, burst, maxConcurrent int) *OpLimiter {
	l := &OpLimiter{}
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		l.requestLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if maxConcurrent > 0 {
		l.semaphore = make(chan struct{}, maxConcurrent)
	}
	return l
}

// Acquire 占用一次调用额度；ctx 取消时提前返回
func (l *OpLimiter) Acquire(ctx context.Context) error {
	if l.semaphore != nil {
		select {
		case l.semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if l.requestLimiter != nil {
		if err := l.requestLimiter.Wait(ctx); err != nil {
			if l.semaphore != nil {
				<-l.semaphore
			}
			return err
		}
	}
	return nil
}

// Release 释放并发额度，与 Acquire 成对调用
func (l *OpLimiter) Release() {
	if l.semaphore != nil {
		<-l.semaphore
	}
}
