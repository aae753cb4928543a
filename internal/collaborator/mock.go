package collaborator

import (
	"context"
	"fmt"
	"sync"
)

// MockTextModel is a call-recording fake TextModel for tests.
type MockTextModel struct {
	mu        sync.Mutex
	Responses []*CompletionResult
	Errors    []error
	Calls     []Message
	next      int
}

// NewMockTextModel creates an empty MockTextModel.
func NewMockTextModel() *MockTextModel {
	return &MockTextModel{}
}

// GenerateChat implements TextModel.
func (m *MockTextModel) GenerateChat(ctx context.Context, system, user string, opts CompletionOptions) (*CompletionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, Message{Role: "user", Content: user})

	if m.next < len(m.Errors) && m.Errors[m.next] != nil {
		err := m.Errors[m.next]
		m.next++
		return nil, err
	}
	if m.next < len(m.Responses) {
		resp := m.Responses[m.next]
		m.next++
		return resp, nil
	}
	return &CompletionResult{Text: user, Usage: Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
}

// CallCount returns the number of GenerateChat invocations observed.
func (m *MockTextModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockVisionComparator is a scripted fake VisionComparator for ranking
// tests: callers queue verdicts keyed by an ordered pair of image refs.
type MockVisionComparator struct {
	mu       sync.Mutex
	Verdicts map[string]*Verdict
	Errors   map[string]error
	Calls    []struct{ A, B string }
	Default  *Verdict
}

// NewMockVisionComparator creates an empty MockVisionComparator.
func NewMockVisionComparator() *MockVisionComparator {
	return &MockVisionComparator{
		Verdicts: make(map[string]*Verdict),
		Errors:   make(map[string]error),
	}
}

func pairKey(a, b string) string { return a + "|" + b }

// SetVerdict scripts the verdict returned for the ordered pair (a, b).
func (m *MockVisionComparator) SetVerdict(a, b string, v *Verdict) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Verdicts[pairKey(a, b)] = v
}

// SetError scripts an error returned for the ordered pair (a, b).
func (m *MockVisionComparator) SetError(a, b string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[pairKey(a, b)] = err
}

// Compare implements VisionComparator.
func (m *MockVisionComparator) Compare(ctx context.Context, imageARef, imageBRef, prompt string) (*Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, struct{ A, B string }{imageARef, imageBRef})

	key := pairKey(imageARef, imageBRef)
	if err, ok := m.Errors[key]; ok {
		return nil, err
	}
	if v, ok := m.Verdicts[key]; ok {
		cp := *v
		return &cp, nil
	}
	if m.Default != nil {
		cp := *m.Default
		return &cp, nil
	}
	return nil, fmt.Errorf("mock vision comparator: no verdict scripted for %s vs %s", imageARef, imageBRef)
}

// CallCount returns the number of Compare invocations observed.
func (m *MockVisionComparator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockImageGenerator is a call-recording fake ImageGenerator for tests.
type MockImageGenerator struct {
	mu       sync.Mutex
	NextRef  func(callIndex int) string
	Errors   []error
	Prompts  []string
	next     int
}

// NewMockImageGenerator creates a MockImageGenerator producing
// deterministic image refs of the form "mock-image-<n>.png".
func NewMockImageGenerator() *MockImageGenerator {
	return &MockImageGenerator{
		NextRef: func(i int) string { return fmt.Sprintf("mock-image-%d.png", i) },
	}
}

// Generate implements ImageGenerator.
func (m *MockImageGenerator) Generate(ctx context.Context, prompt string, opts ImageGenerationOptions) (*GeneratedImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)
	idx := m.next
	m.next++

	if idx < len(m.Errors) && m.Errors[idx] != nil {
		return nil, m.Errors[idx]
	}
	return &GeneratedImage{ImageRef: m.NextRef(idx)}, nil
}

// MockServiceManager is a fake ServiceManager with settable state.
type MockServiceManager struct {
	mu        sync.Mutex
	Running   map[string]bool
	URLs      map[string]string
	StopLocks map[string]bool
}

// NewMockServiceManager creates a MockServiceManager with all services
// reporting as running and unlocked.
func NewMockServiceManager() *MockServiceManager {
	return &MockServiceManager{
		Running:   make(map[string]bool),
		URLs:      make(map[string]string),
		StopLocks: make(map[string]bool),
	}
}

func (m *MockServiceManager) IsServiceRunning(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	running, ok := m.Running[name]
	if !ok {
		return true, nil
	}
	return running, nil
}

func (m *MockServiceManager) GetServiceURL(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if url, ok := m.URLs[name]; ok {
		return url, nil
	}
	return "http://localhost:0", nil
}

func (m *MockServiceManager) HasStopLock(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StopLocks[name], nil
}

// SetRunning sets the liveness state reported for name.
func (m *MockServiceManager) SetRunning(name string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Running[name] = running
}

// SetStopLock sets the stop-lock state reported for name.
func (m *MockServiceManager) SetStopLock(name string, locked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopLocks[name] = locked
}

// MockRestarter is a call-recording fake Restarter.
type MockRestarter struct {
	mu      sync.Mutex
	Calls   []string
	Err     error
	OnRestart func(name string)
}

func (m *MockRestarter) Restart(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, name)
	if m.OnRestart != nil {
		m.OnRestart(name)
	}
	return m.Err
}

// CallCount returns the number of Restart invocations observed.
func (m *MockRestarter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockGpuPhaseCoordinator runs fn immediately without any serialization;
// sufficient for tests that don't exercise cross-service VRAM contention.
type MockGpuPhaseCoordinator struct{}

func (MockGpuPhaseCoordinator) WithOperation(ctx context.Context, service string, fn func(ctx context.Context) (any, error)) (any, error) {
	return fn(ctx)
}
