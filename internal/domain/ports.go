package domain

import "time"

// RateLimiter admits or denies batches against the five configured tiers
// and records completions. Implemented by internal/ratelimiter.
//
//go:generate mockery --name=RateLimiter --with-expecter --filename=rate_limiter_mock.go
type RateLimiter interface {
	Check(ctx Context, n int) (Decision, error)
	Record(ctx Context, n int, kind TaskKind, taskIDs []string) error
	Usage(ctx Context) (map[RateLimitPeriod]TierUsage, error)
	Prune(ctx Context) (int64, error)
}

// Decision is the outcome of a rate-limiter admission check.
type Decision struct {
	Allowed bool
	Tier    RateLimitPeriod // populated when Allowed is false
	Usage   map[RateLimitPeriod]TierUsage
}

// TierUsage is the usage snapshot for one tier.
type TierUsage struct {
	Current   int64
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// LLMGateway is the unified interface over the cloud/local/hybrid
// language-model backends. Implemented by internal/llm.
//
//go:generate mockery --name=LLMGateway --with-expecter --filename=llm_gateway_mock.go
type LLMGateway interface {
	CreateEmbedding(ctx Context, model, text string) (EmbeddingResult, error)
	ChatCompletion(ctx Context, model string, messages []ChatMessage, maxTokens int) (ChatResult, error)
	Generate(ctx Context, model, prompt string, maxTokens int) (ChatResult, error)
	SupportsModel(model string) bool
}

// ChatMessage is one role-tagged message in a chat completion request.
type ChatMessage struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Usage reports token accounting for a single model call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// EmbeddingResult is the outcome of a create_embedding call.
type EmbeddingResult struct {
	Embedding []float32
	Model     string
	Usage     Usage
}

// ChatResult is the outcome of a chat_completion or generate call.
type ChatResult struct {
	Content string
	Model   string
	Usage   Usage
}

// KGEnricher resolves entity mentions to KGEntity values. Implemented by
// internal/kg.
//
//go:generate mockery --name=KGEnricher --with-expecter --filename=kg_enricher_mock.go
type KGEnricher interface {
	// EnrichMentions resolves a batch of name mentions to KGEntity values,
	// filtered to the allowed instance-of set. The result slice has the
	// same length and order as mentions; unmatched entries are nil.
	EnrichMentions(ctx Context, mentions []Mention, allowedInstanceOf []string) ([]*KGEntity, error)
	// FetchByID resolves a single already-known KG identifier directly.
	FetchByID(ctx Context, id string) (*KGEntity, error)
}

// Mention is one in-text entity reference awaiting KG resolution.
type Mention struct {
	Name        string
	MentionedAs string
}

// ControlPlaneClient pulls pending tasks and reports outcomes. Implemented
// by internal/controlplane.
//
//go:generate mockery --name=ControlPlaneClient --with-expecter --filename=control_plane_client_mock.go
type ControlPlaneClient interface {
	GetPending(ctx Context, limit int) ([]Task, error)
	UpdateStatus(ctx Context, result TaskResult) (bool, error)
}

// Processor is one kind-specific pipeline in the registry.
//
//go:generate mockery --name=Processor --with-expecter --filename=processor_mock.go
type Processor interface {
	CanProcess(task Task) bool
	Process(ctx Context, task Task) TaskResult
}
