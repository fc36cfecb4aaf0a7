package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"codedojo/internal/catalog"
	"codedojo/internal/grading"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultMaxOutput = 1 << 20
)

// Manager runs test cases in a local Python interpreter, one process per case.
type Manager struct {
	mode      string
	timeout   time.Duration
	maxOutput int64
	env       []string

	mu     sync.Mutex
	engine EngineInfo
}

func NewManager(opts Options) *Manager {
	if opts.Mode == "" {
		opts.Mode = "auto"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxOutput <= 0 {
		opts.MaxOutput = defaultMaxOutput
	}
	if opts.Env == nil {
		opts.Env = scrubEnv(os.Environ())
	}
	return &Manager{mode: opts.Mode, timeout: opts.Timeout, maxOutput: opts.MaxOutput, env: opts.Env}
}

func (m *Manager) Detect(ctx context.Context, forceInterpreter string) (EngineInfo, error) {
	candidates := []string{"python3", "python"}
	switch {
	case forceInterpreter != "":
		candidates = []string{forceInterpreter}
	case m.mode != "auto":
		candidates = []string{m.mode}
	}

	var errs []error
	for _, name := range candidates {
		info, err := probe(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.mu.Lock()
		m.engine = info
		m.mu.Unlock()
		return info, nil
	}
	return EngineInfo{}, fmt.Errorf("no python interpreter available: %w", errors.Join(errs...))
}

func probe(ctx context.Context, name string) (EngineInfo, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return EngineInfo{}, fmt.Errorf("%s not found in PATH", name)
	}
	out, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	if err != nil {
		return EngineInfo{}, fmt.Errorf("%s --version failed: %s", name, strings.TrimSpace(string(out)))
	}
	version := strings.TrimSpace(string(out))
	if !strings.HasPrefix(version, "Python 3") {
		return EngineInfo{}, fmt.Errorf("%s is %q, need Python 3", name, version)
	}
	return EngineInfo{Name: name, Path: path, Version: version}, nil
}

// RunCase never returns an error: every failure becomes an error result so
// the caller can stream it like any other case.
func (m *Manager) RunCase(ctx context.Context, code string, tc catalog.TestCase) grading.TestResult {
	res := grading.TestResult{
		Input:    rawJSON(tc.Input),
		Expected: rawJSON(tc.Expected),
	}

	m.mu.Lock()
	engine := m.engine
	m.mu.Unlock()
	if engine.Path == "" {
		info, err := m.Detect(ctx, "")
		if err != nil {
			res.Status = grading.StatusError
			res.Message = err.Error()
			return res
		}
		engine = info
	}

	input := tc.Input
	if input == nil {
		input = []any{}
	}
	payload, err := json.Marshal(caseRequest{Code: code, Input: input, Expected: tc.Expected})
	if err != nil {
		res.Status = grading.StatusError
		res.Message = fmt.Sprintf("encode test case: %v", err)
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, engine.Path, "-I", "-c", harness)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = m.env
	var stdout, stderr limitedBuffer
	stdout.max, stderr.max = m.maxOutput, m.maxOutput
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.Status = grading.StatusError
		res.Message = fmt.Sprintf("Execution timed out after %s", m.timeout)
		return res
	}
	if ctx.Err() != nil {
		res.Status = grading.StatusError
		res.Message = ctx.Err().Error()
		return res
	}

	var reply caseReply
	if err := json.Unmarshal(stdout.Bytes(), &reply); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" && runErr != nil {
			msg = runErr.Error()
		}
		if msg == "" {
			msg = "harness produced no result"
		}
		res.Status = grading.StatusError
		res.Message = "Error during execution:\n\n" + msg
		return res
	}
	res.Status = grading.Status(reply.Status)
	res.Message = reply.Message
	res.Actual = rawJSON(reply.Actual)
	return res
}

func rawJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// scrubEnv drops variables that carry backend secrets.
func scrubEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if strings.Contains(strings.ToUpper(name), "API_KEY") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

type limitedBuffer struct {
	bytes.Buffer
	max int64
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.max - int64(b.Len())
	if room <= 0 {
		return len(p), nil
	}
	if int64(len(p)) > room {
		_, _ = b.Buffer.Write(p[:room])
		return len(p), nil
	}
	return b.Buffer.Write(p)
}

var _ io.Writer = (*limitedBuffer)(nil)
