package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wasmlab-server/models"
	"wasmlab-server/wasmvm"
)

var (
	ErrModuleNotFound     = errors.New("module not found")
	ErrInvocationNotFound = errors.New("invocation not found")
	ErrQueueUnavailable   = errors.New("invocation queue is not configured")
	ErrInvokeTimeout      = errors.New("invocation timed out")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNoCompiler         = errors.New("no compiler configured")
)

const emptyPayload = "{}"

type ModuleConfig struct {
	Queue         string
	EntryPoint    string
	InvokeTimeout time.Duration
}

type loadedModule struct {
	module  models.GuestModule
	handle  *wasmvm.Handle
	session *wasmvm.SessionLog
}

// ModuleService owns the guest modules of every project: their artifacts,
// their loaded sandbox handles and their session IO logs.
type ModuleService struct {
	projects *ProjectService
	compiler *CompilerService
	storage  StorageService
	payloads PayloadCache
	redis    *RedisService
	cfg      ModuleConfig
	logger   *zap.Logger

	mu          sync.RWMutex
	modules     map[string]*loadedModule
	invocations map[string]*models.Invocation

	nextRID atomic.Int32
}

// NewModuleService wires the module lifecycle. compiler may be nil when only
// binaries are uploaded; redis may be nil, queued invocations are then
// unavailable.
func NewModuleService(projects *ProjectService, compiler *CompilerService, storage StorageService, payloads PayloadCache, redis *RedisService, cfg ModuleConfig, logger *zap.Logger) *ModuleService {
	if cfg.EntryPoint == "" {
		cfg.EntryPoint = wasmvm.DefaultEntryPoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if payloads == nil {
		payloads = NewMemoryPayloadCache()
	}
	return &ModuleService{
		projects:    projects,
		compiler:    compiler,
		storage:     storage,
		payloads:    payloads,
		redis:       redis,
		cfg:         cfg,
		logger:      logger,
		modules:     make(map[string]*loadedModule),
		invocations: make(map[string]*models.Invocation),
	}
}

func moduleKey(project, id string) string {
	return project + "/" + id
}

// CreateModule compiles (or accepts) a binary, links it, and stores its
// artifacts. Compile and link failures are returned as *CompileError and
// *wasmvm.LinkError and nothing is stored.
func (s *ModuleService) CreateModule(ctx context.Context, project string, req *models.CreateModuleRequest) (*models.GuestModule, error) {
	if req.Name == "" && req.FileKey == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if (req.Source == "") == (len(req.Binary) == 0) {
		return nil, fmt.Errorf("%w: exactly one of source and binary is required", ErrInvalidRequest)
	}
	p, err := s.projects.Get(ctx, project)
	if err != nil {
		return nil, err
	}

	binary, diagnostics := req.Binary, ""
	if req.Source != "" {
		res, err := s.compile(ctx, req.Source)
		if err != nil {
			return nil, err
		}
		binary, diagnostics = res.Binary, res.Diagnostics
	}

	entryPoint := req.EntryPoint
	if entryPoint == "" {
		entryPoint = s.cfg.EntryPoint
	}
	handle, err := p.Runtime.Load(ctx, binary, entryPoint)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	m := models.GuestModule{
		ID:          uuid.New().String(),
		Project:     project,
		Name:        req.Name,
		FileKey:     req.FileKey,
		EntryPoint:  entryPoint,
		Source:      req.Source,
		Binary:      binary,
		Size:        len(binary),
		Diagnostics: diagnostics,
		ABIVersion:  wasmvm.ABIVersion,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if m.Name == "" {
		m.Name = m.FileKey
	}
	if m.FileKey == "" {
		m.FileKey = m.Name
	}
	if err := s.saveArtifacts(ctx, &m); err != nil {
		_ = handle.Close(ctx)
		return nil, err
	}

	s.mu.Lock()
	s.modules[moduleKey(project, m.ID)] = &loadedModule{module: m, handle: handle, session: wasmvm.NewSessionLog()}
	s.mu.Unlock()

	s.logger.Info("module created",
		zap.String("project", project),
		zap.String("module_id", m.ID),
		zap.String("file_key", m.FileKey),
		zap.Int("size", m.Size))
	return &m, nil
}

func (s *ModuleService) compile(ctx context.Context, source string) (*CompileResult, error) {
	if s.compiler == nil {
		return nil, ErrNoCompiler
	}
	res := s.compiler.Compile(ctx, source)
	if res.Err != nil {
		return nil, res.Err
	}
	return res, nil
}

func (s *ModuleService) saveArtifacts(ctx context.Context, m *models.GuestModule) error {
	if m.Source != "" {
		m.SourceKey = SourceKey(m.Project, m.ID)
		if err := s.storage.Save(ctx, m.SourceKey, []byte(m.Source), ContentTypeSource); err != nil {
			return fmt.Errorf("save source: %w", err)
		}
	}
	m.BinaryKey = BinaryKey(m.Project, m.ID)
	if err := s.storage.Save(ctx, m.BinaryKey, m.Binary, ContentTypeWasm); err != nil {
		return fmt.Errorf("save binary: %w", err)
	}
	return nil
}

// Recompile replaces a module's source and binary. On failure the previous
// binary stays loaded.
func (s *ModuleService) Recompile(ctx context.Context, project, id string, req *models.UpdateModuleRequest) (*models.GuestModule, error) {
	if req.Source == "" {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidRequest)
	}
	lm, err := s.lookup(project, id)
	if err != nil {
		return nil, err
	}
	p, err := s.projects.Get(ctx, project)
	if err != nil {
		return nil, err
	}
	res, err := s.compile(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	m := lm.module
	s.mu.RUnlock()
	if req.EntryPoint != "" {
		m.EntryPoint = req.EntryPoint
	}
	handle, err := p.Runtime.Load(ctx, res.Binary, m.EntryPoint)
	if err != nil {
		return nil, err
	}

	m.Source = req.Source
	m.Binary = res.Binary
	m.Size = len(res.Binary)
	m.Diagnostics = res.Diagnostics
	m.UpdatedAt = time.Now().UTC()
	if err := s.saveArtifacts(ctx, &m); err != nil {
		_ = handle.Close(ctx)
		return nil, err
	}

	s.mu.Lock()
	old := lm.handle
	lm.module = m
	lm.handle = handle
	s.mu.Unlock()
	_ = old.Close(ctx)

	s.logger.Info("module recompiled", zap.String("project", project), zap.String("module_id", id), zap.Int("size", m.Size))
	return &m, nil
}

// DeleteModule discards the binary, its artifacts, its cached payload and its
// session log
func (s *ModuleService) DeleteModule(ctx context.Context, project, id string) error {
	key := moduleKey(project, id)
	s.mu.Lock()
	lm, ok := s.modules[key]
	if ok {
		delete(s.modules, key)
	}
	s.mu.Unlock()
	if !ok {
		return ErrModuleNotFound
	}

	_ = lm.handle.Close(ctx)
	lm.session.Reset()
	var errs []error
	if lm.module.SourceKey != "" {
		errs = append(errs, s.storage.Delete(ctx, lm.module.SourceKey))
	}
	errs = append(errs, s.storage.Delete(ctx, lm.module.BinaryKey))
	if !s.fileKeyInUse(project, lm.module.FileKey) {
		errs = append(errs, s.payloads.Delete(ctx, payloadCacheKey(project, lm.module.FileKey)))
	}
	s.logger.Info("module deleted", zap.String("project", project), zap.String("module_id", id))
	return errors.Join(errs...)
}

func (s *ModuleService) fileKeyInUse(project, fileKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, lm := range s.modules {
		if lm.module.Project == project && lm.module.FileKey == fileKey {
			return true
		}
	}
	return false
}

func (s *ModuleService) lookup(project, id string) (*loadedModule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lm, ok := s.modules[moduleKey(project, id)]
	if !ok {
		return nil, ErrModuleNotFound
	}
	return lm, nil
}

// GetModule retrieves a module by ID
func (s *ModuleService) GetModule(ctx context.Context, project, id string) (*models.GuestModule, error) {
	lm, err := s.lookup(project, id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	m := lm.module
	s.mu.RUnlock()
	return &m, nil
}

// ListModules returns a project's modules ordered by name
func (s *ModuleService) ListModules(ctx context.Context, project string) ([]models.GuestModuleListItem, error) {
	if err := ValidateProjectName(project); err != nil {
		return nil, err
	}
	s.mu.RLock()
	items := make([]models.GuestModuleListItem, 0)
	for _, lm := range s.modules {
		if lm.module.Project != project {
			continue
		}
		items = append(items, models.GuestModuleListItem{
			ID:         lm.module.ID,
			Name:       lm.module.Name,
			FileKey:    lm.module.FileKey,
			EntryPoint: lm.module.EntryPoint,
			Size:       lm.module.Size,
			UpdatedAt:  lm.module.UpdatedAt,
		})
	}
	s.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// NextRecordID hands out record ids for invocations that did not bring one
func (s *ModuleService) NextRecordID() int32 {
	return s.nextRID.Add(1)
}

// Invoke runs a module synchronously and appends its IO to the module's
// session log. A trap returns the partial result together with a
// *wasmvm.TrapError.
func (s *ModuleService) Invoke(ctx context.Context, project, id string, recordID *int32, payload string) (*wasmvm.Result, error) {
	lm, err := s.lookup(project, id)
	if err != nil {
		return nil, err
	}
	rid := s.NextRecordID()
	if recordID != nil {
		rid = *recordID
	}
	s.mu.RLock()
	handle := lm.handle
	s.mu.RUnlock()
	return s.invokeWithTimeout(ctx, handle, lm.session, rid, payload)
}

type invokeOutcome struct {
	res *wasmvm.Result
	err error
}

// invokeWithTimeout stops waiting after the configured timeout. The guest
// keeps running to completion; its IO still lands in the session log.
func (s *ModuleService) invokeWithTimeout(ctx context.Context, handle *wasmvm.Handle, session *wasmvm.SessionLog, rid int32, payload string) (*wasmvm.Result, error) {
	done := make(chan invokeOutcome, 1)
	go func() {
		res, err := handle.Invoke(context.WithoutCancel(ctx), rid, payload)
		if res != nil {
			session.Append(res)
		}
		done <- invokeOutcome{res: res, err: err}
	}()

	if s.cfg.InvokeTimeout <= 0 {
		out := <-done
		return out.res, out.err
	}
	timer := time.NewTimer(s.cfg.InvokeTimeout)
	defer timer.Stop()
	select {
	case out := <-done:
		return out.res, out.err
	case <-timer.C:
		s.logger.Warn("invocation timed out", zap.Int32("record_id", rid), zap.Duration("timeout", s.cfg.InvokeTimeout))
		return nil, fmt.Errorf("%w after %v", ErrInvokeTimeout, s.cfg.InvokeTimeout)
	}
}

// Debug runs a module with the given payload, or with the payload last used
// for its file. The payload used is cached for the next run.
func (s *ModuleService) Debug(ctx context.Context, project, id string, req *models.DebugRequest) (*models.InvokeResponse, error) {
	lm, err := s.lookup(project, id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	fileKey := lm.module.FileKey
	s.mu.RUnlock()
	cacheKey := payloadCacheKey(project, fileKey)

	var payload string
	if len(req.Payload) > 0 {
		payload, err = compactPayload(req.Payload)
		if err != nil {
			return nil, err
		}
	} else {
		cached, found, err := s.payloads.Get(ctx, cacheKey)
		if err != nil {
			return nil, err
		}
		payload = emptyPayload
		if found {
			payload = cached
		}
	}
	if err := s.payloads.Put(ctx, cacheKey, payload); err != nil {
		s.logger.Warn("failed to cache payload", zap.String("file_key", fileKey), zap.Error(err))
	}

	res, err := s.Invoke(ctx, project, id, req.RecordID, payload)
	var trap *wasmvm.TrapError
	if err != nil && !errors.As(err, &trap) {
		return nil, err
	}
	return models.NewInvokeResponse(id, json.RawMessage(payload), res), nil
}

func compactPayload(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("%w: payload is not valid JSON", ErrInvalidRequest)
	}
	return buf.String(), nil
}

func payloadCacheKey(project, fileKey string) string {
	return project + ":" + fileKey
}

// CachedPayload returns the payload the next debug run of the module would
// use
func (s *ModuleService) CachedPayload(ctx context.Context, project, id string) (*models.CachedPayload, error) {
	lm, err := s.lookup(project, id)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	fileKey := lm.module.FileKey
	s.mu.RUnlock()
	cached, found, err := s.payloads.Get(ctx, payloadCacheKey(project, fileKey))
	if err != nil {
		return nil, err
	}
	if !found {
		cached = emptyPayload
	}
	return &models.CachedPayload{FileKey: fileKey, Payload: json.RawMessage(cached)}, nil
}

// Logs returns the module's session IO log
func (s *ModuleService) Logs(ctx context.Context, project, id string) ([]models.IORun, error) {
	lm, err := s.lookup(project, id)
	if err != nil {
		return nil, err
	}
	return lm.session.Snapshot(), nil
}

func (s *ModuleService) ResetLogs(ctx context.Context, project, id string) error {
	lm, err := s.lookup(project, id)
	if err != nil {
		return err
	}
	lm.session.Reset()
	return nil
}

// InvokeAsync pushes an execution request to the worker queue
func (s *ModuleService) InvokeAsync(ctx context.Context, project, id string, req *models.InvokeRequest) (*models.Invocation, error) {
	if s.redis == nil {
		return nil, ErrQueueUnavailable
	}
	m, err := s.GetModule(ctx, project, id)
	if err != nil {
		return nil, err
	}
	payload := emptyPayload
	if len(req.Payload) > 0 {
		if payload, err = compactPayload(req.Payload); err != nil {
			return nil, err
		}
	}
	rid := s.NextRecordID()
	if req.RecordID != nil {
		rid = *req.RecordID
	}

	inv := &models.Invocation{
		ID:        uuid.New().String(),
		Project:   project,
		ModuleID:  id,
		RecordID:  rid,
		Payload:   json.RawMessage(payload),
		Status:    models.StatusPending,
		InvokedAt: time.Now().UTC(),
	}
	execReq := &models.ExecutionRequest{
		InvocationID: inv.ID,
		Project:      project,
		ModuleID:     id,
		BinaryKey:    m.BinaryKey,
		EntryPoint:   m.EntryPoint,
		RecordID:     rid,
		Payload:      payload,
	}
	if err := s.redis.PushExecutionRequest(ctx, s.cfg.Queue, execReq); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.invocations[inv.ID] = inv
	s.mu.Unlock()
	copied := *inv
	return &copied, nil
}

// GetInvocationResult polls Redis for a queued invocation's result
func (s *ModuleService) GetInvocationResult(ctx context.Context, project, invocationID string) (*models.Invocation, error) {
	s.mu.RLock()
	inv, ok := s.invocations[invocationID]
	var snapshot models.Invocation
	if ok {
		snapshot = *inv
	}
	s.mu.RUnlock()
	if !ok || snapshot.Project != project {
		return nil, ErrInvocationNotFound
	}

	// If already completed, return the recorded result
	if snapshot.Status != models.StatusPending {
		return &snapshot, nil
	}
	if s.redis == nil {
		return nil, ErrQueueUnavailable
	}

	result, err := s.redis.GetResult(ctx, invocationID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &snapshot, nil
	}

	s.mu.Lock()
	inv.Status = result.Status
	inv.Result = result
	snapshot = *inv
	s.mu.Unlock()
	return &snapshot, nil
}

// Close releases every loaded handle
func (s *ModuleService) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, lm := range s.modules {
		_ = lm.handle.Close(ctx)
		delete(s.modules, key)
	}
}
