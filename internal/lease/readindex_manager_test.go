// Copyright 2025 The axfor Authors
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

package lease

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

// TestReadIndexManager_Creation tests creating a new ReadIndex manager
func TestReadIndexManager_Creation(t *testing.T) {
	rm := NewReadIndexManager(nil, zap.NewNop()) // nil = 总是启用

	if rm == nil {
		t.Fatal("NewReadIndexManager returned nil")
	}

	if rm.pendingReads == nil {
		t.Error("pendingReads map should be initialized")
	}

	if rm.GetPendingCount() != 0 {
		t.Error("Should have 0 pending reads initially")
	}
}

// TestReadIndexManager_ImmediateRead tests reading with already applied index
func TestReadIndexManager_ImmediateRead(t *testing.T) {
	rm := NewReadIndexManager(nil, zap.NewNop()) // nil = 总是启用

	// Set last applied index
	rm.NotifyApplied(10)

	// Request read with index <= lastApplied
	ctx := context.Background()
	readIndex, err := rm.RequestReadIndex(ctx, 5)

	if err != nil {
		t.Fatalf("RequestReadIndex failed: %v", err)
	}

	if readIndex != 5 {
		t.Errorf("readIndex should be 5, got %d", readIndex)
	}

	// Should not have pending reads
	if rm.GetPendingCount() != 0 {
		t.Error("Should have 0 pending reads for already applied index")
	}
}

// TestReadIndexManager_WaitForApply tests waiting for index to be applied
func TestReadIndexManager_WaitForApply(t *testing.T) {
	rm := NewReadIndexManager(nil, zap.NewNop()) // nil = 总是启用

	// Set initial applied index
	rm.NotifyApplied(5)

	// Request read with higher index
	readIndex := uint64(10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Launch read request in goroutine
	resultC := make(chan struct {
		index uint64
		err   error
	}, 1)

	go func() {
		index, err := rm.RequestReadIndex(ctx, readIndex)
		resultC <- struct {
			index uint64
			err   error
		}{index, err}
	}()

	// Wait a bit to ensure request is registered
	time.Sleep(50 * time.Millisecond)

	// Should have 1 pending read
	if rm.GetPendingCount() != 1 {
		t.Errorf("Should have 1 pending read, got %d", rm.GetPendingCount())
	}

	// Notify that index 10 is applied
	rm.NotifyApplied(10)

	// Wait for result
	select {
	case result := <-resultC:
		if result.err != nil {
			t.Fatalf("RequestReadIndex failed: %v", result.err)
		}
		if result.index != readIndex {
			t.Errorf("readIndex should be %d, got %d", readIndex, result.index)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for read result")
	}

	// Should have 0 pending reads now
	if rm.GetPendingCount() != 0 {
		t.Errorf("Should have 0 pending reads after notify, got %d", rm.GetPendingCount())
	}
}

// TestReadIndexManager_MultiplePendingReads tests multiple concurrent reads
func TestReadIndexManager_MultiplePendingReads(t *testing.T) {
	rm := NewReadIndexManager(nil, zap.NewNop()) // nil = 总是启用

	// Set initial applied index
	rm.NotifyApplied(5)

	// Launch multiple read requests
	numReads := 10
	resultCs := make([]chan struct {
		index uint64
		err   error
	}, numReads)

	for i := 0; i < numReads; i++ {
		resultCs[i] = make(chan struct {
			index uint64
			err   error
		}, 1)

		readIndex := uint64(10 + i)
		ctx := context.Background()

		go func(idx int, rIdx uint64, resultC chan struct {
			index uint64
			err   error
		}) {
			index, err := rm.RequestReadIndex(ctx, rIdx)
			resultC <- struct {
				index uint64
				err   error
			}{index, err}
		}(i, readIndex, resultCs[i])
	}

	// Wait for all requests to be registered
	time.Sleep(100 * time.Millisecond)

	// Should have numReads pending
	pendingCount := rm.GetPendingCount()
	if pendingCount != numReads {
		t.Errorf("Should have %d pending reads, got %d", numReads, pendingCount)
	}

	// Notify applied index that covers all reads
	rm.NotifyApplied(20)

	// Wait for all results
	for i := 0; i < numReads; i++ {
		select {
		case result := <-resultCs[i]:
			if result.err != nil {
				t.Errorf("Read %d failed: %v", i, result.err)
			}
		case <-time.After(1 * time.Second):
			t.Errorf("Timeout waiting for read %d", i)
		}
	}

	// Should have 0 pending reads now
	if rm.GetPendingCount() != 0 {
		t.Errorf("Should have 0 pending reads after notify, got %d", rm.GetPendingCount())
	}
}

// TestReadIndexManager_PartialNotify tests partial notification of pending reads
func TestReadIndexManager_PartialNotify(t *testing.T) {
	rm := NewReadIndexManager(nil, zap.NewNop()) // nil = 总是启用

	// Launch 3 read requests with different indexes
	resultCs := make([]chan struct {
		index uint64
		err   error
	}, 3)
	readIndexes := []uint64{10, 15, 20}

	for i, readIndex := range readIndexes {
		resultCs[i] = make(chan struct {
			index uint64
			err   error
		}, 1)

		ctx := context.Background()

		go func(idx int, rIdx uint64, resultC chan struct {
			index uint64
			err   error
		}) {
			index, err := rm.RequestReadIndex(ctx, rIdx)
			resultC <- struct {
				index uint64
				err   error
			}{index, err}
		}(i, readIndex, resultCs[i])
	}

	// Wait for registration
	time.Sleep(100 * time.Millisecond)

	// Should have 3 pending
	if rm.GetPendingCount() != 3 {
		t.Fatalf("Should have 3 pending reads, got %d", rm.GetPendingCount())
	}

	// Notify applied=12 (should only confirm readIndex=10)
	rm.NotifyApplied(12)

	// Wait for first result
	select {
	case result := <-resultCs[0]:
		if result.err != nil {
			t.Errorf("Read 0 failed: %v", result.err)
		}
		if result.index != 10 {
			t.Errorf("Read 0 index should be 10, got %d", result.index)
		}
	case <-time.After(500 * time.Millisecond):
		t.Error("Timeout waiting for read 0")
	}

	// Should have 2 pending reads
	if rm.GetPendingCount() != 2 {
		t.Errorf("Should have 2 pending reads, got %d", rm.GetPendingCount())
	}

	// Notify applied=20 (should confirm remaining reads)
	rm.NotifyApplied(20)

	// Wait for remaining results
	for i := 1; i < 3; i++ {
		select {
		case result := <-resultCs[i]:
			if result.err != nil {
				t.Errorf("Read %d failed: %v", i, result.err)
			}
		case <-time.After(500 * time.Millisecond):
			t.Errorf("Timeout waiting for read %d", i)
		}
	}

	// Should have 0 pending reads
	if rm.GetPendingCount() != 0 {
		t.Errorf("Should have 0 pending reads, got %d", rm.GetPendingCount())
	}
}

// TestReadIndexManager_Timeout tests read request timeout
func TestReadIndexManager_Timeout(t *testing.T) {
	rm := NewReadIndexManager(nil, zap.NewNop()) // nil = 总是启用

	// Request read with short timeout
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	readIndex := uint64(100)

	_, err := rm.RequestReadIndex(ctx, readIndex)

	if err == nil {
		t.Error("RequestReadIndex should timeout")
	}

	// Should have 0 pending reads (cleaned up on timeout)
	if rm.GetPendingCount() != 0 {
		t.Errorf("Should have 0 pending reads after timeout, got %d", rm.GetPendingCount())
	}
}

// TestReadIndexManager_RecordFastPath tests fast path recording
func TestReadIndexManager_RecordFastPath(t *testing.T) {
	rm := NewReadIndexManager(nil, zap.NewNop()) // nil = 总是启用

	// Record 5 fast path reads
	for i := 0; i < 5; i++ {
		rm.RecordFastPathRead()
	}

	stats := rm.Stats()
	if stats.FastPathReads != 5 {
		t.Errorf("FastPathReads should be 5, got %d", stats.FastPathReads)
	}

	// Fast path rate should be 100% (no slow path reads yet)
	if stats.FastPathRate != 1.0 {
		t.Errorf("FastPathRate should be 1.0, got %f", stats.FastPathRate)
	}
}

// TestReadIndexManager_RecordForwarded tests forwarded read recording
func TestReadIndexManager_RecordForwarded(t *testing.T) {
	rm := NewReadIndexManager(nil, zap.NewNop()) // nil = 总是启用

	// Record 3 forwarded reads
	for i := 0; i < 3; i++ {
		rm.RecordForwardedRead()
	}

	stats := rm.Stats()
	if stats.ForwardedReads != 3 {
		t.Errorf("ForwardedReads should be 3, got %d", stats.ForwardedReads)
	}
}

// TestReadIndexManager_Stats tests statistics calculation
func TestReadIndexManager_Stats(t *testing.T) {
	rm := NewReadIndexManager(nil, zap.NewNop()) // nil = 总是启用

	// Initial stats
	stats := rm.Stats()
	if stats.TotalRequests != 0 {
		t.Error("TotalRequests should be 0 initially")
	}
	if stats.LastAppliedIndex != 0 {
		t.Error("LastAppliedIndex should be 0 initially")
	}

	// Record some fast path reads
	rm.RecordFastPathRead()
	rm.RecordFastPathRead()

	// Make some slow path requests
	ctx := context.Background()
	go func() { rm.RequestReadIndex(ctx, 10) }()
	go func() { rm.RequestReadIndex(ctx, 20) }()

	time.Sleep(50 * time.Millisecond)

	// Record forwarded read
	rm.RecordForwardedRead()

	// Check stats
	stats = rm.Stats()

	if stats.FastPathReads != 2 {
		t.Errorf("FastPathReads should be 2, got %d", stats.FastPathReads)
	}

	if stats.SlowPathReads != 2 {
		t.Errorf("SlowPathReads should be 2, got %d", stats.SlowPathReads)
	}

	if stats.ForwardedReads != 1 {
		t.Errorf("ForwardedReads should be 1, got %d", stats.ForwardedReads)
	}

	if stats.PendingReads != 2 {
		t.Errorf("PendingReads should be 2, got %d", stats.PendingReads)
	}

	// Total counts only RequestReadIndex calls (slow path); fast-path and
	// forwarded reads are not included
	expectedTotal := int64(2)
	if stats.TotalRequests != expectedTotal {
		t.Errorf("TotalRequests should be %d, got %d", expectedTotal, stats.TotalRequests)
	}

	// Fast path rate = 2 fast / (2 fast + 2 slow) = 0.5
	expectedRate := 0.5
	if stats.FastPathRate != expectedRate {
		t.Errorf("FastPathRate should be %f, got %f", expectedRate, stats.FastPathRate)
	}

	// Notify applied
	rm.NotifyApplied(25)

	// Check updated stats
	stats = rm.Stats()
	if stats.LastAppliedIndex != 25 {
		t.Errorf("LastAppliedIndex should be 25, got %d", stats.LastAppliedIndex)
	}

	if stats.PendingReads != 0 {
		t.Errorf("PendingReads should be 0 after notify, got %d", stats.PendingReads)
	}
}

// TestReadIndexManager_MixedWorkload tests a mix of fast and slow path reads
func TestReadIndexManager_MixedWorkload(t *testing.T) {
	rm := NewReadIndexManager(nil, zap.NewNop()) // nil = 总是启用

	// Set initial applied index
	rm.NotifyApplied(10)

	// Fast path: immediate reads (already applied)
	for i := 0; i < 50; i++ {
		rm.RecordFastPathRead()
	}

	// Slow path: wait for apply
	numSlowReads := 30
	resultCs := make([]chan struct {
		index uint64
		err   error
	}, numSlowReads)

	for i := 0; i < numSlowReads; i++ {
		resultCs[i] = make(chan struct {
			index uint64
			err   error
		}, 1)

		readIndex := uint64(20 + i)
		ctx := context.Background()

		go func(idx int, rIdx uint64, resultC chan struct {
			index uint64
			err   error
		}) {
			index, err := rm.RequestReadIndex(ctx, rIdx)
			resultC <- struct {
				index uint64
				err   error
			}{index, err}
		}(i, readIndex, resultCs[i])
	}

	// Forwarded reads
	for i := 0; i < 20; i++ {
		rm.RecordForwardedRead()
	}

	// Wait for slow reads to register
	time.Sleep(100 * time.Millisecond)

	// Notify applied
	rm.NotifyApplied(100)

	// Wait for slow reads to complete
	for i := 0; i < numSlowReads; i++ {
		select {
		case <-resultCs[i]:
			// Success
		case <-time.After(1 * time.Second):
			t.Errorf("Timeout waiting for slow read %d", i)
		}
	}

	// Check final stats
	stats := rm.Stats()

	expectedFast := int64(50)
	if stats.FastPathReads != expectedFast {
		t.Errorf("FastPathReads should be %d, got %d", expectedFast, stats.FastPathReads)
	}

	expectedSlow := int64(numSlowReads)
	if stats.SlowPathReads != expectedSlow {
		t.Errorf("SlowPathReads should be %d, got %d", expectedSlow, stats.SlowPathReads)
	}

	expectedForwarded := int64(20)
	if stats.ForwardedReads != expectedForwarded {
		t.Errorf("ForwardedReads should be %d, got %d", expectedForwarded, stats.ForwardedReads)
	}

	// TotalRequests counts only RequestReadIndex calls (30 here);
	// FastPathRate = fast / (fast + slow) = 50 / 80 = 0.625, with
	// forwarded reads excluded.

	t.Logf("Final stats: Total=%d, Fast=%d, Slow=%d, Forwarded=%d, Rate=%.2f",
		stats.TotalRequests, stats.FastPathReads, stats.SlowPathReads,
		stats.ForwardedReads, stats.FastPathRate)
}

// TestGenerateRequestID tests request ID generation uniqueness
func TestGenerateRequestID(t *testing.T) {
	// Generate multiple IDs
	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := generateRequestID()
		if ids[id] {
			t.Errorf("Duplicate request ID generated: %s", id)
		}
		ids[id] = true
	}

	// All IDs should be unique
	if len(ids) != 1000 {
		t.Errorf("Expected 1000 unique IDs, got %d", len(ids))
	}
}
