package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aluware/blocklager/internal/api/rest"
	"github.com/aluware/blocklager/internal/api/websocket"
	"github.com/aluware/blocklager/internal/config"
	"github.com/aluware/blocklager/internal/crane"
	"github.com/aluware/blocklager/internal/events"
	"github.com/aluware/blocklager/internal/intake"
	"github.com/aluware/blocklager/internal/interfaces"
	"github.com/aluware/blocklager/internal/layout"
	"github.com/aluware/blocklager/internal/scheduler"
	"github.com/aluware/blocklager/internal/transport"
	"github.com/aluware/blocklager/internal/yard"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Storage is what the lifecycle needs from the persistence layer: the
// catalog and restore reads plus the write sets of the scheduler and
// the intake service. The postgres client satisfies it.
type Storage interface {
	LoadStockyards(ctx context.Context) ([]*yard.Stockyard, error)
	SaveStockyard(ctx context.Context, s *yard.Stockyard) error
	ApplyMerge(ctx context.Context, merged *yard.Stockyard, removedID uuid.UUID) error
	ApplySplit(ctx context.Context, first, second *yard.Stockyard) error
	LoadIngots(ctx context.Context) ([]*yard.Ingot, error)
	LoadOpenOrders(ctx context.Context) ([]*transport.Order, error)

	scheduler.Store
	intake.Store
}

// LifecycleManager wires the yard index, crane gateway, scheduler and
// intake service together and owns their startup and shutdown order.
type LifecycleManager struct {
	config  *config.Config
	storage Storage
	logger  *zap.Logger

	index     *yard.AllocationIndex
	bus       *events.Bus
	gateway   *crane.Gateway
	scheduler *scheduler.Scheduler
	intake    *intake.Service

	restServer *rest.Server
	wsHub      *websocket.Hub

	stateMu      sync.RWMutex
	currentState SystemState

	schedCancel context.CancelFunc

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(
	store Storage,
	cfg *config.Config,
	logger *zap.Logger,
) *LifecycleManager {
	index := yard.NewAllocationIndex(cfg.Yard.ShortMaxLengthMm, logger)
	bus := events.NewBus()

	// Ohne PLC-Anbindung werden Telegramme nur geloggt
	gateway := crane.NewGateway(&crane.LogSender{Logger: logger}, cfg.Crane.FeedbackBuffer, logger)

	sched := scheduler.New(index, gateway, store, bus, cfg.Crane.FeedbackTimeout, logger)
	intakeSvc := intake.NewService(index, sched, store, bus, logger)

	return &LifecycleManager{
		config:       cfg,
		storage:      store,
		logger:       logger,
		index:        index,
		bus:          bus,
		gateway:      gateway,
		scheduler:    sched,
		intake:       intakeSvc,
		wsHub:        websocket.NewHub(logger),
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
}

// Start brings the whole system up: restore yard and orders from the
// database, start the websocket hub, the dispatch loop and the REST
// server.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting Blocklager core")

	lm.setState(StateInitializing)

	if err := lm.restoreYard(); err != nil {
		lm.setError(fmt.Errorf("failed to restore yard: %w", err))
		return err
	}
	if err := lm.restoreIngots(); err != nil {
		lm.setError(fmt.Errorf("failed to restore ingots: %w", err))
		return err
	}
	if err := lm.restoreOrders(); err != nil {
		lm.logger.Warn("Failed to restore open orders", zap.Error(err))
		// Continue anyway, not critical
	}

	go lm.wsHub.Run()
	lm.bus.SubscribeAll(lm.broadcastEvent)

	runCtx, cancel := context.WithCancel(context.Background())
	lm.schedCancel = cancel
	go lm.scheduler.Run(runCtx)

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	if lm.config.Scheduler.AutoStart {
		lm.scheduler.Start()
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("yard_count", len(lm.index.List())),
		zap.Bool("auto_processing", lm.scheduler.IsEnabled()))

	return nil
}

// restoreYard loads the stockyards from the database. An empty database
// is seeded from the configured layout file.
func (lm *LifecycleManager) restoreYard() error {
	ctx := context.Background()

	slots, err := lm.storage.LoadStockyards(ctx)
	if err != nil {
		return err
	}

	if len(slots) == 0 {
		lm.logger.Info("No stockyards in database, seeding from layout",
			zap.String("layout", lm.config.Yard.LayoutName))

		loader, err := layout.NewLoader(lm.config.Yard.SearchPaths, lm.logger)
		if err != nil {
			return err
		}
		def, err := loader.Load(lm.config.Yard.LayoutName)
		if err != nil {
			return err
		}
		if err := loader.Apply(def, lm.index); err != nil {
			return err
		}
		for _, s := range lm.index.List() {
			slot := s
			if err := lm.storage.SaveStockyard(ctx, &slot); err != nil {
				return err
			}
		}
		return nil
	}

	for _, s := range slots {
		if err := lm.index.AddSlot(s); err != nil {
			return err
		}
	}

	lm.logger.Info("Stockyards restored from database", zap.Int("count", len(slots)))
	return nil
}

// restoreIngots rebuilds the piles. LoadIngots returns the ingots
// ordered by slot and pile position, so pushing in order reproduces
// the stacking.
func (lm *LifecycleManager) restoreIngots() error {
	ctx := context.Background()

	ingots, err := lm.storage.LoadIngots(ctx)
	if err != nil {
		return err
	}

	for _, ing := range ingots {
		lm.intake.RegisterIngot(ing)
		if ing.StockyardID == nil {
			continue
		}
		if _, err := lm.index.Push(*ing.StockyardID, ing); err != nil {
			lm.logger.Error("Failed to restore ingot onto pile",
				zap.String("ingot_no", ing.IngotNo),
				zap.Error(err))
		}
	}

	lm.logger.Info("Ingots restored from database", zap.Int("count", len(ingots)))
	return nil
}

// restoreOrders re-enqueues pending orders with their destination
// reservations. Orders that were in flight when the process died
// cannot be resumed safely: they are failed, and because the crane may
// still hold their ingot the scheduler starts in the blocked state.
func (lm *LifecycleManager) restoreOrders() error {
	ctx := context.Background()

	orders, err := lm.storage.LoadOpenOrders(ctx)
	if err != nil {
		return err
	}

	interrupted := 0
	for _, o := range orders {
		if o.Status == transport.StatusPending {
			if err := lm.index.Reserve(o.ToYardID); err != nil {
				lm.logger.Warn("Could not re-reserve order destination",
					zap.String("transport_no", o.TransportNo),
					zap.Error(err))
			}
			lm.scheduler.Enqueue(o)
			continue
		}

		lm.logger.Warn("Order was in flight at restart, marking failed",
			zap.String("transport_no", o.TransportNo),
			zap.String("status", string(o.Status)))

		m := transport.NewStateMachine(o)
		m.Fail("interrupted by system restart")
		interrupted++
		if err := lm.storage.SaveOrder(ctx, o); err != nil {
			lm.logger.Error("Failed to persist interrupted order",
				zap.String("transport_no", o.TransportNo),
				zap.Error(err))
		}
	}

	if interrupted > 0 {
		// Kranzustand nach Absturz unbekannt, erst der Bediener gibt frei
		lm.scheduler.Block(fmt.Sprintf(
			"%d order(s) interrupted in flight by restart, crane load condition unknown",
			interrupted))
	}

	return nil
}

// broadcastEvent forwards domain events onto the websocket hub.
func (lm *LifecycleManager) broadcastEvent(e events.Event) {
	var msgType websocket.MessageType
	switch e.Type {
	case events.OrderStateChanged:
		msgType = websocket.MessageTypeOrderState
	case events.IngotPickedUp:
		msgType = websocket.MessageTypeIngotPickedUp
	case events.IngotMoved, events.IngotModified:
		msgType = websocket.MessageTypeIngotMoved
	case events.ShipmentCompleted:
		msgType = websocket.MessageTypeShipment
	case events.CraneFeedbackAck:
		msgType = websocket.MessageTypeCraneFeedback
	case events.SchedulerChanged:
		msgType = websocket.MessageTypeSchedulerState
	default:
		return
	}

	lm.wsHub.Broadcast(websocket.NewMessage(msgType, e))
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub)
	return lm.restServer.Start()
}

// Shutdown gracefully shuts down the system.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)

		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	// 1. Keine neuen Auftraege mehr starten
	lm.scheduler.Stop()

	if lm.schedCancel != nil {
		lm.schedCancel()
	}

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rest api shutdown failed: %w", err)
		}
	}

	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("State transition not allowed", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.stateMu.Unlock()
}

// interfaces.LifecycleManager

func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) Index() *yard.AllocationIndex {
	return lm.index
}

func (lm *LifecycleManager) Scheduler() *scheduler.Scheduler {
	return lm.scheduler
}

func (lm *LifecycleManager) Intake() *intake.Service {
	return lm.intake
}

func (lm *LifecycleManager) CraneGateway() *crane.Gateway {
	return lm.gateway
}

// MergeYards merges two slots in the catalog and persists the result.
func (lm *LifecycleManager) MergeYards(ctx context.Context, aID, bID uuid.UUID) (yard.Stockyard, error) {
	merged, err := lm.index.Merge(aID, bID)
	if err != nil {
		return yard.Stockyard{}, err
	}

	removedID := bID
	if merged.ID == bID {
		removedID = aID
	}
	if err := lm.storage.ApplyMerge(ctx, &merged, removedID); err != nil {
		lm.logger.Error("Failed to persist yard merge",
			zap.String("yard_number", merged.YardNumber), zap.Error(err))
	}
	return merged, nil
}

// SplitYard splits a long slot and persists both halves.
func (lm *LifecycleManager) SplitYard(ctx context.Context, id uuid.UUID) ([]yard.Stockyard, error) {
	halves, err := lm.index.Split(id)
	if err != nil {
		return nil, err
	}

	if err := lm.storage.ApplySplit(ctx, &halves[0], &halves[1]); err != nil {
		lm.logger.Error("Failed to persist yard split",
			zap.String("yard_number", halves[0].YardNumber), zap.Error(err))
	}
	return halves, nil
}

func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	lm.stateMu.RUnlock()

	blocked, reason := lm.scheduler.IsBlocked()

	return interfaces.SystemStatus{
		State:          state.String(),
		AutoProcessing: lm.scheduler.IsEnabled(),
		Blocked:        blocked,
		BlockedReason:  reason,
		PendingOrders:  lm.scheduler.PendingOrderCount(),
		YardCount:      len(lm.index.List()),
	}
}
