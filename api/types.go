// Package api provides API types and documentation for ResearchFlow.
package api

import "time"

// =============================================================================
// Envelope Types
// =============================================================================

// Response is the canonical API response envelope every handler writes.
// @Description Standard API response envelope
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo carries the machine-readable error code alongside a
// human-readable message.
// @Description API error detail
type ErrorInfo struct {
	Code       string `json:"code" example:"INVALID_REQUEST"`
	Message    string `json:"message" example:"query is required"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"`
}

// =============================================================================
// Research Session Types
// =============================================================================

// CreateSessionRequest starts a new research session.
// @Description Research session creation request
type CreateSessionRequest struct {
	// Query is the research question.
	Query string `json:"query" example:"What is the current state of fusion energy research?" binding:"required"`
	// FocusAreas narrows retrieval and analysis toward specific sub-topics.
	FocusAreas []string `json:"focus_areas,omitempty"`
	// ProviderPreferences restricts which search providers are fanned out to.
	ProviderPreferences []string `json:"provider_preferences,omitempty"`
	// MaxSources bounds how many sources Retrieve keeps after filtering.
	MaxSources int `json:"max_sources,omitempty" example:"30"`
	// Mode is "auto" (run to completion) or "supervised" (pause at checkpoints).
	Mode string `json:"mode,omitempty" example:"auto"`
	// ReportFormat is markdown, html, or pdf.
	ReportFormat string `json:"report_format,omitempty" example:"markdown"`
	// CitationStyle is APA, MLA, or Chicago.
	CitationStyle string `json:"citation_style,omitempty" example:"APA"`
	// Deep widens query-variant and extraction-batch limits for a slower,
	// more thorough run.
	Deep bool `json:"deep,omitempty"`
}

// SessionResponse reports a session's current lifecycle state.
// @Description Research session status
type SessionResponse struct {
	ID              string    `json:"id"`
	Query           string    `json:"query"`
	Status          string    `json:"status"`
	Phase           string     `json:"phase"`
	OverallProgress int        `json:"overall_progress"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// ProgressEventDTO is a single progress notification delivered over SSE.
// @Description Progress event
type ProgressEventDTO struct {
	SessionID       string    `json:"session_id"`
	Stage           string    `json:"stage"`
	Status          string    `json:"status"`
	StageProgress   int       `json:"stage_progress"`
	OverallProgress int       `json:"overall_progress"`
	Message         string    `json:"message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// CheckpointDecisionRequest submits a supervised-mode checkpoint decision.
// @Description Checkpoint approval decision
type CheckpointDecisionRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// ReportResponse is the final research report.
// @Description Completed research report
type ReportResponse struct {
	SessionID     string    `json:"session_id"`
	Markdown      string    `json:"markdown"`
	Summary       string    `json:"summary"`
	QualityScore  float64   `json:"quality_score"`
	SourceCount   int       `json:"source_count"`
	FindingCount  int       `json:"finding_count"`
	GeneratedAt   time.Time `json:"generated_at"`
	CitationStyle string    `json:"citation_style"`
}
