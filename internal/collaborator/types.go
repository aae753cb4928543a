// Package collaborator defines the small polymorphic interfaces the core
// speaks through to reach local GPU-backed services and process
// supervision. Concrete implementations live in other packages
// (OpenAI-compatible text models, Gemini-style vision comparators and
// Bedrock image generators in internal/providers; the port-record and
// Redis stop-lock service manager in internal/servicemgr); this package
// holds only the interfaces and test fakes. The orchestrator and ranking
// engine depend only on the interfaces, wired in by constructor injection.
package collaborator

import "context"

// Message is a single chat message passed to a TextModel.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// CompletionOptions carries the pass-through generation parameters a
// provider accepts.
type CompletionOptions struct {
	Temperature    float64        `json:"temperature,omitempty"`
	TopP           float64        `json:"top_p,omitempty"`
	TopK           int            `json:"top_k,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Stop           []string       `json:"stop,omitempty"`
	ResponseFormat string         `json:"response_format,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Usage reports token accounting for a single call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResult is the response shape of a TextModel call.
type CompletionResult struct {
	Text  string `json:"text"`
	Usage Usage  `json:"usage"`
}

// TextModel is the collaborator used to refine prompts and combine the
// what/how sub-prompts into a single generation prompt.
type TextModel interface {
	// GenerateChat sends a system+user turn and returns the generated text.
	// Implementations must raise a connection-class error (see
	// internal/supervisor) when the underlying service is unreachable.
	GenerateChat(ctx context.Context, system, user string, opts CompletionOptions) (*CompletionResult, error)
}

// Rank holds per-factor ordinal ranks (1 or 2) assigned to one side of a
// pairwise comparison.
type Rank struct {
	Alignment float64 `json:"alignment"`
	Aesthetics float64 `json:"aesthetics"`
}

// Choice is the comparator's pick between the two operands of a
// comparison, or a declared tie.
type Choice string

const (
	ChoiceA   Choice = "A"
	ChoiceB   Choice = "B"
	ChoiceTie Choice = "TIE"
)

// Verdict is the structured result of one pairwise image comparison.
type Verdict struct {
	Choice               Choice  `json:"choice"`
	Explanation          string  `json:"explanation"`
	Confidence           float64 `json:"confidence"`
	RankA                Rank    `json:"rank_a"`
	RankB                Rank    `json:"rank_b"`
	WinnerStrengths      []string `json:"winner_strengths"`
	LoserWeaknesses      []string `json:"loser_weaknesses"`
	ImprovementSuggestion string  `json:"improvement_suggestion"`
}

// VisionComparator is the collaborator used to judge two candidate images
// against the user prompt.
type VisionComparator interface {
	// Compare returns a Verdict for imageARef vs imageBRef under prompt.
	// imageA/imageBRef are local filesystem paths.
	Compare(ctx context.Context, imageARef, imageBRef, prompt string) (*Verdict, error)
}

// ImageGenerationOptions are pass-through, provider-specific generation
// parameters (size, steps, guidance scale, seed, ...).
type ImageGenerationOptions struct {
	Extra map[string]any `json:"extra,omitempty"`
}

// GeneratedImage is the result of one image-generation call.
type GeneratedImage struct {
	ImageRef string         `json:"image_ref"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ImageGenerator is the collaborator that turns a combined prompt into an
// image. Providers may poll internally and may silently rephrase the
// prompt on content-moderation refusals; that retry policy is out of the
// core's scope.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, opts ImageGenerationOptions) (*GeneratedImage, error)
}

// ServiceManager answers process-liveness and service-location questions
// for a named local service. It is implemented outside the core (e.g. by a
// process supervisor that writes PID/port files); the core only consumes
// it through this interface.
type ServiceManager interface {
	// IsServiceRunning reports whether the named service's process is
	// currently alive, via a PID check on its port/record file.
	IsServiceRunning(ctx context.Context, name string) (bool, error)

	// GetServiceURL reads the service's current base URL from its port
	// record. Called after a successful restart to refresh a provider's
	// client configuration.
	GetServiceURL(ctx context.Context, name string) (string, error)

	// HasStopLock reports whether an operator has set a stop-lock flag
	// for the named service, suppressing automatic restart.
	HasStopLock(ctx context.Context, name string) (bool, error)
}

// Restarter starts (or restarts) a named service's process. It is an
// optional collaborator: a ServiceConnection with no restarter installed
// can only ever fail terminally on a dead service, never restart it.
type Restarter interface {
	// Restart starts the named service and returns once the process is
	// confirmed alive, or an error.
	Restart(ctx context.Context, name string) error
}

// GpuPhaseCoordinator serializes access to services that share VRAM and
// cannot coexist. Callers wrap a phase of work for a given service name in
// fn; the coordinator may unload a previously loaded model before running
// fn and guarantees fn runs exclusively with respect to other services.
type GpuPhaseCoordinator interface {
	WithOperation(ctx context.Context, service string, fn func(ctx context.Context) (any, error)) (any, error)
}

// URLRefresher is implemented by a provider that needs to be told its
// backing service's URL changed after a restart.
type URLRefresher interface {
	RefreshURL(ctx context.Context, url string) error
}
