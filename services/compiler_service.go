package services

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed sdk/prelude.ts
var Prelude string

const DefaultCompileTimeout = 60 * time.Second

// Fixed compiler options. Maximum optimization, the stub runtime (bump
// allocator, no GC), debug info, and abort() compiled out so the only
// imports are the host ABI.
var compilerFlags = []string{
	"--optimizeLevel", "3",
	"--shrinkLevel", "0",
	"--runtime", "stub",
	"--debug",
	"--use", "abort=",
}

// CompileError carries the aggregated compiler diagnostics
type CompileError struct {
	Message     string
	Diagnostics string
}

func (e *CompileError) Error() string {
	return "compile error: " + e.Message
}

// CompileResult is the outcome of one compile. Binary is nil iff Err is set.
type CompileResult struct {
	Binary      []byte
	Text        string
	Diagnostics string
	Err         *CompileError
}

// CompilerService wraps the AssemblyScript compiler CLI
type CompilerService struct {
	ascPath string
	workDir string
	timeout time.Duration
	logger  *zap.Logger
}

func NewCompilerService(ascPath, workDir string, timeout time.Duration, logger *zap.Logger) *CompilerService {
	if ascPath == "" {
		ascPath = "asc"
	}
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "wasmlab-compile")
	}
	if timeout <= 0 {
		timeout = DefaultCompileTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompilerService{ascPath: ascPath, workDir: workDir, timeout: timeout, logger: logger}
}

// Compile turns guest source into a wasm binary. It never returns an error
// value of its own: every failure is reported through CompileResult.Err.
func (s *CompilerService) Compile(ctx context.Context, source string) *CompileResult {
	fail := func(format string, args ...any) *CompileResult {
		msg := fmt.Sprintf(format, args...)
		return &CompileResult{Diagnostics: msg, Err: &CompileError{Message: msg, Diagnostics: msg}}
	}

	// Create temporary work directory
	dir := filepath.Join(s.workDir, uuid.New().String())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail("failed to create work directory: %v", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.ts")
	if err := os.WriteFile(input, []byte(Prelude+source), 0644); err != nil {
		return fail("failed to write source file: %v", err)
	}
	outWasm := filepath.Join(dir, "out.wasm")
	outText := filepath.Join(dir, "out.wat")

	args := append([]string{input, "-o", outWasm, "-t", outText}, compilerFlags...)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, s.ascPath, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	diagnostics := strings.TrimSpace(stderr.String())

	if ctx.Err() == context.DeadlineExceeded {
		s.logger.Warn("compile timed out", zap.Duration("timeout", s.timeout))
		return fail("compile timed out after %v", s.timeout)
	}

	binary, readErr := os.ReadFile(outWasm)
	if runErr != nil || readErr != nil {
		msg := aggregateErrors(diagnostics)
		if msg == "" {
			switch {
			case runErr != nil:
				msg = runErr.Error()
			case errors.Is(readErr, fs.ErrNotExist):
				msg = "compiler produced no binary"
			default:
				msg = readErr.Error()
			}
		}
		s.logger.Debug("compile failed", zap.String("error", msg))
		return &CompileResult{Diagnostics: diagnostics, Err: &CompileError{Message: msg, Diagnostics: diagnostics}}
	}

	text, _ := os.ReadFile(outText)
	s.logger.Debug("compiled module",
		zap.Int("size", len(binary)),
		zap.Duration("took", time.Since(start)))
	return &CompileResult{Binary: binary, Text: string(text), Diagnostics: diagnostics}
}

// aggregateErrors keeps the diagnostic blocks that report an ERROR
func aggregateErrors(diagnostics string) string {
	var blocks []string
	for _, block := range strings.Split(strings.ReplaceAll(diagnostics, "\r\n", "\n"), "\n\n") {
		if strings.Contains(block, "ERROR") {
			blocks = append(blocks, strings.TrimSpace(block))
		}
	}
	return strings.Join(blocks, "\n\n")
}
