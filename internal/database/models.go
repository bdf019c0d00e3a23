package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ThreadModel is the GORM row for one conversational channel.
type ThreadModel struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChatID               int64     `gorm:"uniqueIndex;not null"`
	ArbiterOverrideTag   string
	ArbiterOverrideModel string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// TableName pins the thread table to the name the migrations create.
func (ThreadModel) TableName() string { return "threads" }

// RunModel is the GORM row for one market execution.
type RunModel struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	ThreadID            uuid.UUID `gorm:"type:uuid;index;not null"`
	Question            string    `gorm:"type:text;not null"`
	Status              string    `gorm:"index;not null"`
	RoundsCompleted     int
	ConvergenceAchieved bool
	TotalLatencyMS      int64
	TotalCostUSD        float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName pins the run table to the name the migrations create.
func (RunModel) TableName() string { return "runs" }

// ProviderAnswerModel is the GORM row for one round's response from one
// provider.
type ProviderAnswerModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	RunID        uuid.UUID `gorm:"type:uuid;index;not null"`
	Round        int       `gorm:"index;not null"`
	Provider     string    `gorm:"not null"`
	Model        string
	Status       string `gorm:"not null"`
	Answer       string `gorm:"type:text"`
	Confidence   *float64
	KeyClaims    JSONStringSlice `gorm:"type:jsonb"`
	Assumptions  JSONStringSlice `gorm:"type:jsonb"`
	Citations    JSONRaw         `gorm:"type:jsonb"`
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	CostUSD      float64
	LatencyMS    int64
	ErrorKind    string
	ErrorMessage string `gorm:"type:text"`
	RawResponse  string `gorm:"type:text"`
	CreatedAt    time.Time
}

// TableName pins the provider-answer table to the migrations' name.
func (ProviderAnswerModel) TableName() string { return "provider_answers" }

// ArbiterOutputModel is the GORM row for a run's single synthesis record.
type ArbiterOutputModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	RunID             uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	ArbiterProvider   string
	ArbiterModel      string
	FinalAnswer       *string `gorm:"type:text"`
	Agreements        JSONStringSlice `gorm:"type:jsonb"`
	Conflicts         JSONRaw         `gorm:"type:jsonb"`
	FactTable         JSONRaw         `gorm:"type:jsonb"`
	NextQuestions     JSONStringSlice `gorm:"type:jsonb"`
	OverallConfidence float64
	ArbiterFailed     bool
	LatencyMS         int64
	CostUSD           float64
	CreatedAt         time.Time
}

// TableName pins the arbiter-output table to "dredd_outputs", the name
// the original tool called its synthesis step.
func (ArbiterOutputModel) TableName() string { return "dredd_outputs" }

// AutoMigrateMarket runs GORM's auto-migration for the four market
// tables. Production deployments should prefer the golang-migrate
// migrations in cmd/marketd instead; this is kept for tests and local
// development against sqlite.
func AutoMigrateMarket(db *gorm.DB) error {
	return db.AutoMigrate(&ThreadModel{}, &RunModel{}, &ProviderAnswerModel{}, &ArbiterOutputModel{})
}
