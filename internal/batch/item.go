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
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Status 工作单元状态
type Status int

const (
	StatusPending Status = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON 对外序列化为状态名
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "pending":
		*s = StatusPending
	case "processing":
		*s = StatusProcessing
	case "completed":
		*s = StatusCompleted
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown status: %s", name)
	}
	return nil
}

// Item 批处理工作单元：一次远程操作的输入与结果
type Item struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`   // 操作类别（text_analysis / image_analysis 等），仅用于展示与指标
	Input  any    `json:"input"`  // 远程操作消费的载荷，对处理器不透明
	Status Status `json:"status"`
	Output any    `json:"output,omitempty"` // 仅 Completed 时存在，形态由操作定义
	Error  string `json:"error,omitempty"`  // 仅 Failed 时存在
}

// NewItem 创建一个 Pending 状态的工作单元
func NewItem(kind string, input any) *Item {
	return &Item{
		ID:     "item-" + uuid.New().String(),
		Kind:   kind,
		Input:  input,
		Status: StatusPending,
	}
}

// Counts 各状态单元数量汇总
type Counts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Snapshot 批次只读快照，供调用方展示
type Snapshot struct {
	Items   []Item `json:"items"`
	Counts  Counts `json:"counts"`
	Paused  bool   `json:"paused"`
	Drained bool   `json:"drained"`
}
