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

package results

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miludeerforest/abp-studio-sub001/internal/batch"
)

// pgStore PostgreSQL 实现
type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore 创建基于 PostgreSQL 的结果存储；首次连接时确保表结构存在
func NewPostgresStore(ctx context.Context, dsn string) (Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &pgStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *pgStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS batch_results (
    id         TEXT PRIMARY KEY,
    kind       TEXT NOT NULL DEFAULT '',
    counts     JSONB NOT NULL,
    items      JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS story_results (
    job_id     TEXT PRIMARY KEY,
    title      TEXT NOT NULL DEFAULT '',
    state      TEXT NOT NULL,
    phase      TEXT NOT NULL DEFAULT '',
    result_ref TEXT NOT NULL DEFAULT '',
    error      TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	return err
}

// Close 关闭连接池
func (s *pgStore) Close() {
	s.pool.Close()
}

func (s *pgStore) SaveBatch(ctx context.Context, rec *BatchRecord) error {
	counts, err := json.Marshal(rec.Counts)
	if err != nil {
		return err
	}
	items, err := json.Marshal(rec.Items)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO batch_results (id, kind, counts, items, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET kind = $2, counts = $3, items = $4`,
		rec.ID, rec.Kind, counts, items, createdAt)
	return err
}

func (s *pgStore) GetBatch(ctx context.Context, id string) (*BatchRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, kind, counts, items, created_at FROM batch_results WHERE id = $1`, id)
	rec, err := scanBatchRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *pgStore) ListBatches(ctx context.Context, limit int) ([]*BatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, counts, items, created_at FROM batch_results ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*BatchRecord
	for rows.Next() {
		rec, err := scanBatchRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *pgStore) SaveStory(ctx context.Context, rec *StoryRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO story_results (job_id, title, state, phase, result_ref, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (job_id) DO UPDATE SET title = $2, state = $3, phase = $4, result_ref = $5, error = $6`,
		rec.JobID, rec.Title, rec.State, rec.Phase, rec.ResultRef, rec.Error, createdAt)
	return err
}

func (s *pgStore) ListStories(ctx context.Context, limit int) ([]*StoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, title, state, phase, result_ref, error, created_at FROM story_results ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*StoryRecord
	for rows.Next() {
		var rec StoryRecord
		if err := rows.Scan(&rec.JobID, &rec.Title, &rec.State, &rec.Phase, &rec.ResultRef, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// scanBatchRecord 从行中还原 BatchRecord（counts/items 为 JSONB）
func scanBatchRecord(row pgx.Row) (*BatchRecord, error) {
	var rec BatchRecord
	var counts, items []byte
	if err := row.Scan(&rec.ID, &rec.Kind, &counts, &items, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(counts, &rec.Counts); err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &rec.Items); err != nil {
			return nil, err
		}
	}
	if rec.Items == nil {
		rec.Items = []batch.Item{}
	}
	return &rec, nil
}
