// Copyright 2026 miludeerforest

package secrets

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/miludeerforest/abp-studio-sub001/pkg/errors"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "remote_api_key", "k1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "remote_api_key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "k1" {
		t.Fatalf("Get = %q, want k1", got)
	}

	keys, err := s.List(ctx, "remote_")
	if err != nil || len(keys) != 1 {
		t.Fatalf("List = %v, %v", keys, err)
	}

	if err := s.Delete(ctx, "remote_api_key"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "remote_api_key"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("Get after Delete = %v, want ErrNotFound", err)
	}
}

func TestEnvStore(t *testing.T) {
	s := NewEnvStore()
	ctx := context.Background()

	t.Setenv("ABP_TEST_SECRET", "from-env")
	got, err := s.Get(ctx, "ABP_TEST_SECRET")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "from-env" {
		t.Fatalf("Get = %q", got)
	}

	if _, err := s.Get(ctx, "ABP_TEST_SECRET_MISSING"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("Get of unset variable = %v, want ErrNotFound", err)
	}
}

func TestNewStoreProviderSelection(t *testing.T) {
	s, err := NewStore(Config{Provider: "memory"})
	if err != nil {
		t.Fatalf("NewStore(memory): %v", err)
	}
	if _, ok := s.(*memoryStore); !ok {
		t.Fatalf("NewStore(memory) = %T", s)
	}

	// 未知 provider 回落到 env
	s, err = NewStore(Config{Provider: ""})
	if err != nil {
		t.Fatalf("NewStore(default): %v", err)
	}
	if _, ok := s.(*envStore); !ok {
		t.Fatalf("NewStore(default) = %T", s)
	}
}
