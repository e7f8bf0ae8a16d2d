package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"wasmlab-server/models"
	"wasmlab-server/wasmvm"
)

// TriggerRunner invokes one module on a ticker. Every tick starts a run; a
// run that finds the module still busy is recorded as busy and not retried.
type TriggerRunner struct {
	modules  *ModuleService
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	trigger models.SimulationTrigger

	stopCh   chan struct{}
	stopOnce sync.Once
	loopWg   sync.WaitGroup
	runWg    sync.WaitGroup
}

func NewTriggerRunner(trigger models.SimulationTrigger, interval time.Duration, modules *ModuleService, logger *zap.Logger) *TriggerRunner {
	return &TriggerRunner{
		modules:  modules,
		interval: interval,
		logger:   logger.With(zap.String("trigger_id", trigger.ID)),
		trigger:  trigger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the ticker loop. onGone runs when the loop ends because the
// module was deleted.
func (r *TriggerRunner) Start(onGone func()) {
	r.loopWg.Add(1)
	go func() {
		defer r.loopWg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := r.modules.GetModule(context.Background(), r.trigger.Project, r.trigger.ModuleID); errors.Is(err, ErrModuleNotFound) {
					r.record(models.StatusFail, err.Error())
					r.logger.Info("trigger module deleted, stopping")
					r.close()
					if onGone != nil {
						onGone()
					}
					return
				}
				r.runWg.Add(1)
				go func() {
					defer r.runWg.Done()
					r.execute(context.Background())
				}()
			case <-r.stopCh:
				return
			}
		}
	}()
}

func (r *TriggerRunner) close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Stop ends the loop and waits for in-flight runs
func (r *TriggerRunner) Stop() {
	r.close()
	r.loopWg.Wait()
	r.runWg.Wait()
}

func (r *TriggerRunner) Snapshot() models.SimulationTrigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.trigger
	if t.LastRunAt != nil {
		at := *t.LastRunAt
		t.LastRunAt = &at
	}
	return t
}

func (r *TriggerRunner) execute(ctx context.Context) {
	t := r.Snapshot()
	_, err := r.modules.Invoke(ctx, t.Project, t.ModuleID, nil, string(t.Payload))

	var trap *wasmvm.TrapError
	switch {
	case err == nil:
		r.record(models.StatusSuccess, "")
	case errors.As(err, &trap):
		r.record(models.StatusTrap, trap.Error())
	case errors.Is(err, wasmvm.ErrBusy):
		r.record(models.StatusBusy, err.Error())
	case errors.Is(err, ErrInvokeTimeout):
		r.record(models.StatusTimeout, err.Error())
	default:
		r.logger.Warn("trigger run failed", zap.Error(err))
		r.record(models.StatusFail, err.Error())
	}
}

func (r *TriggerRunner) record(status, errMsg string) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trigger.Runs++
	r.trigger.LastStatus = status
	r.trigger.LastError = errMsg
	r.trigger.LastRunAt = &now
}
