// Package market implements the consensus-engine core: per-run round
// control, per-provider clients, convergence detection and arbiter
// synthesis, as described for components B through I.
package market

import (
	"time"

	"github.com/google/uuid"
)

// ProviderTag is the closed set of supported remote model providers.
type ProviderTag string

const (
	ProviderOpenAI    ProviderTag = "openai"
	ProviderAnthropic ProviderTag = "anthropic"
	ProviderGemini    ProviderTag = "gemini"
)

// RunStatus is a run's terminal or in-flight status.
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
)

// AnswerStatus is the outcome tag on one normalized provider response.
type AnswerStatus string

const (
	AnswerOK         AnswerStatus = "ok"
	AnswerError      AnswerStatus = "error"
	AnswerTimeout    AnswerStatus = "timeout"
	AnswerParseError AnswerStatus = "parse_error"
)

// Thread is one conversational channel keyed by an external chat id.
type Thread struct {
	ID                   uuid.UUID
	ChatID               int64
	ArbiterOverrideTag   ProviderTag
	ArbiterOverrideModel string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Usage carries token and cost accounting for one provider call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	CostUSD      float64
}

// Citation is an optional supporting reference attached to an answer.
type Citation struct {
	Title *string `json:"title"`
	URL   *string `json:"url"`
}

// ProviderAnswer is one normalized response from one provider in one round.
type ProviderAnswer struct {
	ID         uuid.UUID
	RunID      uuid.UUID
	Round      int
	Provider   ProviderTag
	Model      string
	Status     AnswerStatus
	Answer     string
	Confidence *float64
	KeyClaims  []string
	Assumptions []string
	Citations  []Citation
	Usage      Usage
	LatencyMS  int64
	Err        *Error
	RawResponse string // retained only when debug mode is on
	CreatedAt  time.Time
}

// ClaimRef pairs a provider with one of its claims, used in arbiter
// conflict records.
type ClaimRef struct {
	Provider ProviderTag `json:"provider"`
	Claim    string      `json:"claim"`
}

// Conflict is one unresolved or resolved point of disagreement the
// arbiter identified across providers.
type Conflict struct {
	Topic      string     `json:"topic"`
	Claims     []ClaimRef `json:"claims"`
	Resolution string     `json:"resolution"`
	Status     string     `json:"status"` // RESOLVED | UNRESOLVED
	Confidence float64    `json:"confidence"`
}

// FactEntry is one row of the arbiter's fact table.
type FactEntry struct {
	Claim      string        `json:"claim"`
	Support    []ProviderTag `json:"support"`
	Confidence float64       `json:"confidence"`
}

// ArbiterOutput is the single synthesis record for a run.
type ArbiterOutput struct {
	ID                uuid.UUID
	RunID             uuid.UUID
	ArbiterProvider   ProviderTag
	ArbiterModel      string
	FinalAnswer       *string
	Agreements        []string
	Conflicts         []Conflict
	FactTable         []FactEntry
	NextQuestions     []string
	OverallConfidence float64
	ArbiterFailed     bool
	LatencyMS         int64
	CostUSD           float64
	CreatedAt         time.Time
}

// Run is one execution of the market for one question.
type Run struct {
	ID                  uuid.UUID
	ThreadID            uuid.UUID
	Question            string
	Status              RunStatus
	RoundsCompleted     int
	ConvergenceAchieved bool
	TotalLatencyMS      int64
	TotalCostUSD        float64
	CreatedAt           time.Time
	UpdatedAt           time.Time

	Answers []ProviderAnswer
	Arbiter *ArbiterOutput
}

// RunOptions are the caller-overridable knobs for one Run invocation.
type RunOptions struct {
	MaxRounds    int
	ArbiterSpec  *ArbiterSpec
}

// ArbiterSpec names a provider+model pair to use as the arbiter.
type ArbiterSpec struct {
	Provider ProviderTag
	Model    string
}

// ProviderConfig is the process-wide, immutable-after-init configuration
// for one provider tag.
type ProviderConfig struct {
	Tag             ProviderTag
	Enabled         bool
	Models          []string
	DefaultModel    string
	BaseURL         string
	APIKey          string
	RateLimitCount  int
	RateLimitPeriod time.Duration
	TimeoutMS       int
}
