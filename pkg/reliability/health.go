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

package reliability

import (
	"context"
	"sync"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthChecker reports whether one subsystem is serving.
type HealthChecker interface {
	Check(ctx context.Context) error
	Name() string
}

// HealthManager aggregates HealthCheckers behind the standard gRPC health
// service.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	server   *health.Server
}

// NewHealthManager builds an empty health manager.
func NewHealthManager() *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		server:   health.NewServer(),
	}
}

// RegisterChecker adds checker under its own name.
func (hm *HealthManager) RegisterChecker(checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[checker.Name()] = checker
}

// Check runs serviceName's checker, or every registered checker when
// serviceName is empty.
func (hm *HealthManager) Check(ctx context.Context, serviceName string) healthpb.HealthCheckResponse_ServingStatus {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	if serviceName != "" {
		if checker, exists := hm.checkers[serviceName]; exists {
			if err := checker.Check(ctx); err != nil {
				return healthpb.HealthCheckResponse_NOT_SERVING
			}
			return healthpb.HealthCheckResponse_SERVING
		}
		return healthpb.HealthCheckResponse_SERVICE_UNKNOWN
	}

	for _, checker := range hm.checkers {
		if err := checker.Check(ctx); err != nil {
			return healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	return healthpb.HealthCheckResponse_SERVING
}

// SetServingStatus pushes an explicit status for service to the gRPC health
// server (bypassing the registered checkers).
func (hm *HealthManager) SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus) {
	hm.server.SetServingStatus(service, status)
}

// GetServer returns the underlying gRPC health server for registration.
func (hm *HealthManager) GetServer() *health.Server {
	return hm.server
}

// StorageHealthChecker wraps a probe against the engine (RocksDB handle
// liveness, disk space).
type StorageHealthChecker struct {
	name  string
	check func(ctx context.Context) error
}

// NewStorageHealthChecker builds a StorageHealthChecker.
func NewStorageHealthChecker(name string, checkFunc func(ctx context.Context) error) *StorageHealthChecker {
	return &StorageHealthChecker{name: name, check: checkFunc}
}

func (s *StorageHealthChecker) Name() string { return s.name }

func (s *StorageHealthChecker) Check(ctx context.Context) error { return s.check(ctx) }

// RaftHealthChecker wraps a probe against the raft layer (leader presence,
// applied-index lag across regions).
type RaftHealthChecker struct {
	name  string
	check func(ctx context.Context) error
}

// NewRaftHealthChecker builds a RaftHealthChecker.
func NewRaftHealthChecker(name string, checkFunc func(ctx context.Context) error) *RaftHealthChecker {
	return &RaftHealthChecker{name: name, check: checkFunc}
}

func (r *RaftHealthChecker) Name() string { return r.name }

func (r *RaftHealthChecker) Check(ctx context.Context) error { return r.check(ctx) }

// SchedulerHealthChecker wraps a probe against the command scheduler
// (pending-queue depth, worker liveness).
type SchedulerHealthChecker struct {
	name  string
	check func(ctx context.Context) error
}

// NewSchedulerHealthChecker builds a SchedulerHealthChecker.
func NewSchedulerHealthChecker(name string, checkFunc func(ctx context.Context) error) *SchedulerHealthChecker {
	return &SchedulerHealthChecker{name: name, check: checkFunc}
}

func (s *SchedulerHealthChecker) Name() string { return s.name }

func (s *SchedulerHealthChecker) Check(ctx context.Context) error { return s.check(ctx) }
