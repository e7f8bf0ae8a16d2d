package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wasmlab-server/models"
	"wasmlab-server/services"
	"wasmlab-server/wasmvm"
)

// Executor runs queued invocations. Every request loads a fresh handle, so
// consumers never contend on one module.
type Executor struct {
	projects *services.ProjectService
	storage  services.StorageService
	timeout  time.Duration
	logger   *zap.Logger
}

func NewExecutor(projects *services.ProjectService, storage services.StorageService, timeout time.Duration, logger *zap.Logger) *Executor {
	return &Executor{projects: projects, storage: storage, timeout: timeout, logger: logger}
}

type outcome struct {
	res *wasmvm.Result
	err error
}

// Execute runs one request and never fails: every problem is reported in the
// result.
func (e *Executor) Execute(ctx context.Context, req *models.ExecutionRequest) *models.ExecutionResult {
	start := time.Now()
	result := &models.ExecutionResult{InvocationID: req.InvocationID, Status: models.StatusSuccess}
	fail := func(err error) *models.ExecutionResult {
		result.Status = models.StatusFail
		result.ErrorMessage = err.Error()
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	p, err := e.projects.Get(ctx, req.Project)
	if err != nil {
		return fail(err)
	}
	binary, err := e.storage.Get(ctx, req.BinaryKey)
	if err != nil {
		return fail(fmt.Errorf("load binary %s: %w", req.BinaryKey, err))
	}
	handle, err := p.Runtime.Load(ctx, binary, req.EntryPoint)
	if err != nil {
		return fail(err)
	}

	done := make(chan outcome, 1)
	go func() {
		defer handle.Close(context.Background())
		res, err := handle.Invoke(ctx, req.RecordID, req.Payload)
		done <- outcome{res: res, err: err}
	}()

	// Wait with timeout
	var timeout <-chan time.Time
	if e.timeout > 0 {
		timer := time.NewTimer(e.timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case out := <-done:
		if out.res != nil {
			result.ExitCode = out.res.Status
			result.Entries = out.res.Entries
			result.Calls = out.res.Calls
			result.Trap = out.res.Trap
			result.Dropped = out.res.Dropped
		}
		var trap *wasmvm.TrapError
		switch {
		case out.err == nil:
		case errors.As(out.err, &trap):
			result.Status = models.StatusTrap
			result.ErrorMessage = trap.Error()
		default:
			return fail(out.err)
		}
	case <-timeout:
		result.Status = models.StatusTimeout
		result.ErrorMessage = fmt.Sprintf("execution timed out after %v", e.timeout)
	}
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}
