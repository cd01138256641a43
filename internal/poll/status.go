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

// State 服务端任务状态，由远端状态响应驱动
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal Completed/Failed 为终态
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// JobStatus 服务端任务状态快照；Phase 为管线阶段标签（analyzing/generating/merging 等），
// 仅用于展示，处理逻辑不解释其内容
type JobStatus struct {
	JobID          string `json:"job_id"`
	Phase          string `json:"phase"`
	CompletedUnits int    `json:"completed_units"`
	TotalUnits     int    `json:"total_units"`
	State          State  `json:"state"`
	ResultRef      string `json:"result_ref,omitempty"`    // 仅 Completed 时存在
	ErrorMessage   string `json:"error_message,omitempty"` // 仅 Failed 时存在
}

// Progress 进度比 completedUnits / max(totalUnits, 1)
func (s *JobStatus) Progress() float64 {
	total := s.TotalUnits
	if total < 1 {
		total = 1
	}
	return float64(s.CompletedUnits) / float64(total)
}

// Snapshot 轮询器只读快照：最近一次成功拉取的状态 + 链路健康度。
// Degraded 只说明监控链路不健康，不代表任务失败。
type Snapshot struct {
	Status              *JobStatus `json:"status,omitempty"`
	Degraded            bool       `json:"degraded"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Stopped             bool       `json:"stopped"`
}
