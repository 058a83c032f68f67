package interfaces

import (
	"context"

	"github.com/aluware/blocklager/internal/config"
	"github.com/aluware/blocklager/internal/crane"
	"github.com/aluware/blocklager/internal/intake"
	"github.com/aluware/blocklager/internal/scheduler"
	"github.com/aluware/blocklager/internal/yard"
	"github.com/google/uuid"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State          string `json:"state"`
	AutoProcessing bool   `json:"auto_processing"`
	Blocked        bool   `json:"blocked"`
	BlockedReason  string `json:"blocked_reason,omitempty"`
	PendingOrders  int    `json:"pending_orders"`
	YardCount      int    `json:"yard_count"`
}

type LifecycleManager interface {
	Config() *config.Config
	Index() *yard.AllocationIndex
	Scheduler() *scheduler.Scheduler
	Intake() *intake.Service
	CraneGateway() *crane.Gateway

	// MergeYards and SplitYard mutate the catalog and persist the
	// outcome. Callers must not mutate the raw index directly, the
	// database would drift from memory.
	MergeYards(ctx context.Context, aID, bID uuid.UUID) (yard.Stockyard, error)
	SplitYard(ctx context.Context, id uuid.UUID) ([]yard.Stockyard, error)

	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
