package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wasmlab-server/models"
)

var ErrTriggerNotFound = errors.New("trigger not found")

const MinTriggerInterval = 100 * time.Millisecond

// TriggerService keeps the simulation triggers of every project. Triggers
// live in memory and stop with the process.
type TriggerService struct {
	modules *ModuleService
	logger  *zap.Logger

	mu       sync.Mutex
	triggers map[string]*TriggerRunner
	closed   bool
}

func NewTriggerService(modules *ModuleService, logger *zap.Logger) *TriggerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriggerService{
		modules:  modules,
		logger:   logger,
		triggers: make(map[string]*TriggerRunner),
	}
}

// StartTrigger registers a trigger invoking the module every interval
func (s *TriggerService) StartTrigger(ctx context.Context, project, moduleID string, req *models.CreateTriggerRequest) (*models.SimulationTrigger, error) {
	interval, err := time.ParseDuration(req.Interval)
	if err != nil {
		return nil, fmt.Errorf("%w: interval: %v", ErrInvalidRequest, err)
	}
	if interval < MinTriggerInterval {
		return nil, fmt.Errorf("%w: interval must be at least %v", ErrInvalidRequest, MinTriggerInterval)
	}
	if _, err := s.modules.GetModule(ctx, project, moduleID); err != nil {
		return nil, err
	}
	payload := emptyPayload
	if len(req.Payload) > 0 {
		if payload, err = compactPayload(req.Payload); err != nil {
			return nil, err
		}
	}

	trigger := models.SimulationTrigger{
		ID:        uuid.New().String(),
		Project:   project,
		ModuleID:  moduleID,
		Interval:  interval.String(),
		Payload:   json.RawMessage(payload),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("trigger service is closed")
	}
	runner := NewTriggerRunner(trigger, interval, s.modules, s.logger)
	s.triggers[trigger.ID] = runner
	runner.Start(func() { s.forget(trigger.ID) })

	s.logger.Info("trigger started",
		zap.String("project", project),
		zap.String("module_id", moduleID),
		zap.String("trigger_id", trigger.ID),
		zap.Duration("interval", interval))
	return &trigger, nil
}

// forget drops a runner that stopped on its own
func (s *TriggerService) forget(id string) {
	s.mu.Lock()
	delete(s.triggers, id)
	s.mu.Unlock()
}

// ListTriggers returns the triggers of a project
func (s *TriggerService) ListTriggers(ctx context.Context, project string) []models.SimulationTrigger {
	s.mu.Lock()
	runners := make([]*TriggerRunner, 0, len(s.triggers))
	for _, r := range s.triggers {
		runners = append(runners, r)
	}
	s.mu.Unlock()

	out := make([]models.SimulationTrigger, 0, len(runners))
	for _, r := range runners {
		t := r.Snapshot()
		if t.Project == project {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// StopTrigger stops a trigger and waits for its in-flight runs
func (s *TriggerService) StopTrigger(ctx context.Context, project, id string) error {
	s.mu.Lock()
	r, ok := s.triggers[id]
	if ok && r.Snapshot().Project != project {
		ok = false
	}
	if ok {
		delete(s.triggers, id)
	}
	s.mu.Unlock()
	if !ok {
		return ErrTriggerNotFound
	}
	r.Stop()
	s.logger.Info("trigger stopped", zap.String("project", project), zap.String("trigger_id", id))
	return nil
}

// Close stops every trigger
func (s *TriggerService) Close() {
	s.mu.Lock()
	s.closed = true
	runners := s.triggers
	s.triggers = make(map[string]*TriggerRunner)
	s.mu.Unlock()
	for _, r := range runners {
		r.Stop()
	}
}
