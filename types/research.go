package types

import "time"

// SessionStatus is the lifecycle state of a research session.
type SessionStatus string

const (
	SessionInitialized SessionStatus = "initialized"
	SessionRunning      SessionStatus = "running"
	SessionPaused       SessionStatus = "paused"
	SessionCompleted    SessionStatus = "completed"
	SessionFailed       SessionStatus = "failed"
	SessionCancelled    SessionStatus = "cancelled"
	SessionRejected     SessionStatus = "rejected"
)

// ResearchMode controls whether the orchestrator pauses at checkpoints for
// human approval.
type ResearchMode string

const (
	ModeAuto       ResearchMode = "auto"
	ModeSupervised ResearchMode = "supervised"
)

// SourceType classifies where a Source was retrieved from.
type SourceType string

const (
	SourceWeb          SourceType = "web"
	SourceNews         SourceType = "news"
	SourceAcademic     SourceType = "academic"
	SourceEncyclopedia SourceType = "encyclopedia"
	SourceOther        SourceType = "other"
)

// CredibilityLabel is the bucketed credibility rating assigned to a
// Finding after verification.
type CredibilityLabel string

const (
	CredibilityHigh    CredibilityLabel = "high"
	CredibilityMedium  CredibilityLabel = "medium"
	CredibilityLow     CredibilityLabel = "low"
	CredibilityUnknown CredibilityLabel = "unknown"
)

// StageState tracks one pipeline stage's own progress within a session.
type StageState struct {
	Status   string `json:"status"` // idle|running|completed|failed|degraded
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// SessionParams are the user-supplied knobs for a research run.
type SessionParams struct {
	FocusAreas          []string     `json:"focus_areas,omitempty"`
	ProviderPreferences []string     `json:"provider_preferences,omitempty"`
	MaxSources          int          `json:"max_sources"`
	Mode                ResearchMode `json:"mode"`
	ReportFormat        string       `json:"report_format"` // markdown|html|pdf
	CitationStyle       string       `json:"citation_style"` // APA|MLA|Chicago
	Deep                bool         `json:"deep"`
}

// Session is the top-level record of one research run.
type Session struct {
	ID              string                `json:"id"`
	Query           string                `json:"query"`
	Params          SessionParams         `json:"params"`
	Status          SessionStatus         `json:"status"`
	Phase           string                `json:"phase"`
	StageStatus     map[string]StageState `json:"stage_status"`
	OverallProgress int                   `json:"overall_progress"`
	CreatedAt       time.Time             `json:"created_at"`
	StartedAt       time.Time             `json:"started_at,omitempty"`
	CompletedAt     time.Time             `json:"completed_at,omitempty"`
	Error           string                `json:"error,omitempty"`
}

// SourceRef is a lightweight pointer from a Finding back to a Source.
type SourceRef struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Source is one retrieved document/result.
type Source struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	Title       string         `json:"title"`
	URL         string         `json:"url"`
	Snippet     string         `json:"snippet"`
	Provider    string         `json:"provider"`
	Type        SourceType     `json:"type"`
	Author      string         `json:"author,omitempty"`
	PublishedAt time.Time      `json:"published_at,omitempty"`
	Credibility float64        `json:"credibility"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Finding is one extracted claim, cross-referenced against its sources.
type Finding struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"session_id"`
	Content     string           `json:"content"`
	Credibility CredibilityLabel `json:"credibility"`
	SourceRefs  []SourceRef      `json:"source_refs"`
	Agent       string           `json:"agent"`
}

// ProgressEvent is one point-in-time progress notification published to
// the progress bus.
type ProgressEvent struct {
	SessionID       string    `json:"session_id"`
	Agent           string    `json:"agent"`
	Status          string    `json:"status"`
	Progress        int       `json:"progress"`
	OverallProgress int       `json:"overall_progress"`
	Message         string    `json:"message,omitempty"`
	Err             string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Pipeline artifact keys stored in the persistence store's pipeline-data
// bucket, keyed by session id.
const (
	ArtifactOrganizedFindings = "organized_findings"
	ArtifactPatterns          = "patterns"
	ArtifactKeyInsights       = "key_insights"
	ArtifactContradictions    = "contradictions"
	ArtifactValidatedFindings = "validated_findings"
	ArtifactConfidenceSummary = "confidence_summary"
	ArtifactBiasAnalysis      = "bias_analysis"
	ArtifactReport            = "report"
)

// StageWeights are the fixed contributions of each stage to overall
// progress. They must sum to 100.
var StageWeights = map[string]int{
	"clarify":  10,
	"retrieve": 30,
	"analyze":  25,
	"verify":   20,
	"report":   15,
}

// ConfidenceSummary is the Verify stage's headline output.
type ConfidenceSummary struct {
	Overall            float64 `json:"overall"`
	Label              string  `json:"label"` // high|medium|low
	FindingConfidence  float64 `json:"finding_confidence"`
	SourceCredibility  float64 `json:"source_credibility"`
	StatsAccuracy      float64 `json:"stats_accuracy"`
	Note               string  `json:"note,omitempty"`
}

// BiasAnalysis is the Verify stage's sampled source-bias summary.
type BiasAnalysis struct {
	SampledSources int     `json:"sampled_sources"`
	AverageBias    float64 `json:"average_bias"`
	Level          string  `json:"level"` // low|moderate|high
	Recommendation string  `json:"recommendation,omitempty"`
}

// Report is the final Report-stage artifact.
type Report struct {
	SessionID    string   `json:"session_id"`
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	Sections     []string `json:"sections"`
	Markdown     string   `json:"markdown"`
	HTML         string   `json:"html,omitempty"`
	Citations    []string `json:"citations"`
	QualityScore float64  `json:"quality_score"`
}
