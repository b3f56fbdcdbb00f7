// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmorrell/rollcall/internal/logging"
)

type countingService struct {
	runs atomic.Int32
}

func (s *countingService) Serve(ctx context.Context) error {
	s.runs.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return "countingService" }

func TestTree_RunsServices(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), DefaultTreeConfig())

	engineSvc := &countingService{}
	apiSvc := &countingService{}
	tree.AddEngineService(engineSvc)
	tree.AddAPIService(apiSvc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.After(2 * time.Second)
	for engineSvc.runs.Load() == 0 || apiSvc.runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("services not started: engine=%d api=%d", engineSvc.runs.Load(), apiSvc.runs.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancellation")
	}
}

func TestTree_AppliesDefaults(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), TreeConfig{})
	if tree.root == nil || tree.engine == nil || tree.messaging == nil || tree.api == nil {
		t.Fatal("tree layers not initialized")
	}
}
