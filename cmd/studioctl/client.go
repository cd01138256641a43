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

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("STUDIO_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient() *resty.Client {
	return resty.New().
		SetBaseURL(apiBaseURL()).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
}

func createBatch(kind string, inputs []string) (string, error) {
	body := map[string]any{"kind": kind, "inputs": inputs}
	var out struct {
		BatchID string `json:"batch_id"`
	}
	resp, err := newClient().R().
		SetBody(body).
		SetResult(&out).
		Post("/api/batches")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusCreated {
		return "", fmt.Errorf("POST /api/batches: %s", resp.String())
	}
	return out.BatchID, nil
}

func startBatch(id string) error {
	resp, err := newClient().R().Post("/api/batches/" + id + "/start")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("POST start: %s", resp.String())
	}
	return nil
}

func batchAction(id, action string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Post("/api/batches/" + id + "/" + action)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("POST %s: %s", action, resp.String())
	}
	return out, nil
}

func batchSnapshot(id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/batches/" + id)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/batches/%s: %s", id, resp.String())
	}
	return out, nil
}

func retryItem(id, itemID string) error {
	resp, err := newClient().R().
		Post("/api/batches/" + id + "/items/" + itemID + "/retry")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("POST retry: %s", resp.String())
	}
	return nil
}

func generateStory(prompt string) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}
	resp, err := newClient().R().
		SetBody(map[string]string{"prompt": prompt}).
		SetResult(&out).
		Post("/api/story/generate")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() != http.StatusAccepted {
		return "", fmt.Errorf("POST /api/story/generate: %s", resp.String())
	}
	return out.JobID, nil
}

func storyStatus(jobID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/story/jobs/" + jobID)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/story/jobs/%s: %s", jobID, resp.String())
	}
	return out, nil
}

func stopStory(jobID string) error {
	resp, err := newClient().R().Post("/api/story/jobs/" + jobID + "/stop")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("POST stop: %s", resp.String())
	}
	return nil
}

func listBatchResults() ([]map[string]interface{}, error) {
	var out struct {
		Batches []map[string]interface{} `json:"batches"`
	}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/results/batches")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/results/batches: %s", resp.String())
	}
	return out.Batches, nil
}

func listStoryResults() ([]map[string]interface{}, error) {
	var out struct {
		Stories []map[string]interface{} `json:"stories"`
	}
	resp, err := newClient().R().
		SetResult(&out).
		Get("/api/results/stories")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET /api/results/stories: %s", resp.String())
	}
	return out.Stories, nil
}

// printSnapshot 打印批次快照概要
func printSnapshot(out map[string]interface{}) {
	snap, _ := out["snapshot"].(map[string]interface{})
	if snap == nil {
		fmt.Println(out)
		return
	}
	if counts, ok := snap["counts"].(map[string]interface{}); ok {
		fmt.Printf("total=%v pending=%v processing=%v completed=%v failed=%v\n",
			counts["total"], counts["pending"], counts["processing"],
			counts["completed"], counts["failed"])
	}
	fmt.Printf("paused=%v drained=%v\n", snap["paused"], snap["drained"])
	if items, ok := snap["items"].([]interface{}); ok {
		for _, raw := range items {
			it, _ := raw.(map[string]interface{})
			if it == nil {
				continue
			}
			line := fmt.Sprintf("%v\t%v", it["id"], it["status"])
			if e, ok := it["error"].(string); ok && e != "" {
				line += "\t" + e
			}
			fmt.Println(line)
		}
	}
}

// printStorySnapshot 打印 story 任务快照概要
func printStorySnapshot(out map[string]interface{}) {
	if status, ok := out["status"].(map[string]interface{}); ok {
		fmt.Printf("state=%v phase=%v progress=%v/%v\n",
			status["state"], status["phase"],
			status["completed_units"], status["total_units"])
		if ref, ok := status["result_ref"].(string); ok && ref != "" {
			fmt.Printf("result_ref=%s\n", ref)
		}
		if msg, ok := status["error_message"].(string); ok && msg != "" {
			fmt.Printf("error=%s\n", msg)
		}
	}
	fmt.Printf("degraded=%v stopped=%v\n", out["degraded"], out["stopped"])
}
