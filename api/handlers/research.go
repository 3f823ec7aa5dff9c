package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/researchflow/researchflow/api"
	"github.com/researchflow/researchflow/internal/orchestrator"
	"github.com/researchflow/researchflow/internal/pool"
	"github.com/researchflow/researchflow/internal/progress"
	"github.com/researchflow/researchflow/internal/store"
	"github.com/researchflow/researchflow/types"
)

// =============================================================================
// 🔭 Research Session Handler
// =============================================================================

// ResearchHandler exposes the session lifecycle (submit, inspect, stream
// progress, decide checkpoints, cancel, fetch the final report) over HTTP.
// The orchestrator itself runs each session to completion in a background
// goroutine; handlers only read and write through the store and the
// progress bus.
type ResearchHandler struct {
	store        store.Store
	bus          *progress.Bus
	orchestrator *orchestrator.Orchestrator
	broker       *CheckpointBroker
	defaults     types.SessionParams
	logger       *zap.Logger
}

// NewResearchHandler wires a ResearchHandler against its dependencies.
func NewResearchHandler(s store.Store, bus *progress.Bus, orch *orchestrator.Orchestrator, broker *CheckpointBroker, defaults types.SessionParams, logger *zap.Logger) *ResearchHandler {
	return &ResearchHandler{
		store:        s,
		bus:          bus,
		orchestrator: orch,
		broker:       broker,
		defaults:     defaults,
		logger:       logger.With(zap.String("component", "research_handler")),
	}
}

// HandleCreate starts a new research session and returns immediately with
// its initial state; the pipeline runs asynchronously.
//
// @Summary Start a research session
// @Tags research
// @Accept json
// @Produce json
// @Success 202 {object} api.SessionResponse
// @Router /v1/sessions [post]
func (h *ResearchHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Query == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "query is required", h.logger)
		return
	}

	params := h.defaults
	if len(req.FocusAreas) > 0 {
		params.FocusAreas = req.FocusAreas
	}
	if len(req.ProviderPreferences) > 0 {
		params.ProviderPreferences = req.ProviderPreferences
	}
	if req.MaxSources > 0 {
		params.MaxSources = req.MaxSources
	}
	if req.Mode != "" {
		params.Mode = types.ResearchMode(req.Mode)
	}
	if req.ReportFormat != "" {
		params.ReportFormat = req.ReportFormat
	}
	if req.CitationStyle != "" {
		params.CitationStyle = req.CitationStyle
	}
	params.Deep = req.Deep

	session := &types.Session{
		ID:          uuid.NewString(),
		Query:       req.Query,
		Params:      params,
		Status:      types.SessionInitialized,
		StageStatus: make(map[string]types.StageState),
		CreatedAt:   time.Now(),
	}

	if err := h.store.CreateSession(r.Context(), session); err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "failed to create session", h.logger)
		return
	}

	go h.run(session)

	WriteJSON(w, http.StatusAccepted, api.Response{
		Success:   true,
		Data:      toSessionResponse(session),
		Timestamp: time.Now(),
	})
}

// run executes the pipeline in the background, detached from the request
// that submitted it.
func (h *ResearchHandler) run(session *types.Session) {
	ctx := context.Background()
	if _, err := h.orchestrator.Execute(ctx, session); err != nil {
		h.logger.Error("session execution failed", zap.String("session_id", session.ID), zap.Error(err))
	}
}

// HandleGet returns a session's current lifecycle state.
//
// @Summary Get session status
// @Tags research
// @Produce json
// @Success 200 {object} api.SessionResponse
// @Router /v1/sessions/{id} [get]
func (h *ResearchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	WriteSuccess(w, toSessionResponse(session))
}

// HandleCancel requests cooperative cancellation of a running session.
//
// @Summary Cancel a session
// @Tags research
// @Produce json
// @Success 202 {object} api.Response
// @Router /v1/sessions/{id}/cancel [post]
func (h *ResearchHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.Cancel(r.PathValue("id"))
	w.WriteHeader(http.StatusAccepted)
}

// HandleReport returns the completed report for a session.
//
// @Summary Get the final report
// @Tags research
// @Produce json
// @Success 200 {object} api.ReportResponse
// @Router /v1/sessions/{id}/report [get]
func (h *ResearchHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.PathValue("id")

	report, err := h.store.GetReport(ctx, sessionID)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	session, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	sources, _ := h.store.GetSources(ctx, sessionID)
	findings, _ := h.store.GetFindings(ctx, sessionID)

	WriteSuccess(w, api.ReportResponse{
		SessionID:     report.SessionID,
		Markdown:      report.Markdown,
		Summary:       report.Summary,
		QualityScore:  report.QualityScore,
		SourceCount:   len(sources),
		FindingCount:  len(findings),
		GeneratedAt:   session.CompletedAt,
		CitationStyle: session.Params.CitationStyle,
	})
}

// HandleProgress streams progress events for a session as server-sent
// events until the client disconnects or the session finishes.
//
// @Summary Stream session progress
// @Tags research
// @Produce text/event-stream
// @Router /v1/sessions/{id}/progress [get]
func (h *ResearchHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "streaming unsupported", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.bus.Subscribe(sessionID)
	defer h.bus.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			buf := pool.ByteBufferPool.Get()
			if err := json.NewEncoder(buf).Encode(toProgressDTO(event)); err != nil {
				pool.ByteBufferPool.Put(buf)
				continue
			}
			fmt.Fprintf(w, "data: %s\n", buf.String())
			pool.ByteBufferPool.Put(buf)
			flusher.Flush()
			if event.Status == string(types.SessionCompleted) || event.Status == string(types.SessionFailed) ||
				event.Status == string(types.SessionCancelled) || event.Status == string(types.SessionRejected) {
				return
			}
		}
	}
}

// HandleDecision submits a supervised-mode checkpoint decision.
//
// @Summary Decide a supervised-mode checkpoint
// @Tags research
// @Accept json
// @Produce json
// @Success 202 {object} api.Response
// @Router /v1/sessions/{id}/checkpoints/{checkpoint}/decision [post]
func (h *ResearchHandler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	var req api.CheckpointDecisionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	h.broker.Decide(r.PathValue("id"), r.PathValue("checkpoint"), orchestrator.ApprovalDecision{
		Approved: req.Approved,
		Reason:   req.Reason,
	})
	w.WriteHeader(http.StatusAccepted)
}

func (h *ResearchHandler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "session not found", h.logger)
		return
	}
	WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "store error", h.logger)
}

func toSessionResponse(s *types.Session) api.SessionResponse {
	resp := api.SessionResponse{
		ID:              s.ID,
		Query:           s.Query,
		Status:          string(s.Status),
		Phase:           s.Phase,
		OverallProgress: s.OverallProgress,
		CreatedAt:       s.CreatedAt,
		Error:           s.Error,
	}
	if !s.StartedAt.IsZero() {
		resp.StartedAt = &s.StartedAt
	}
	if !s.CompletedAt.IsZero() {
		resp.CompletedAt = &s.CompletedAt
	}
	return resp
}

func toProgressDTO(e types.ProgressEvent) api.ProgressEventDTO {
	return api.ProgressEventDTO{
		SessionID:       e.SessionID,
		Stage:           e.Agent,
		Status:          e.Status,
		StageProgress:   e.Progress,
		OverallProgress: e.OverallProgress,
		Message:         e.Message,
		Timestamp:       e.Timestamp,
	}
}

// =============================================================================
// 🚦 CheckpointBroker — HTTP-backed orchestrator.HumanInput
// =============================================================================

// CheckpointBroker fans out supervised-mode checkpoint decisions submitted
// over HTTP to whichever goroutine in the orchestrator is waiting on them.
// It implements orchestrator.HumanInput.
type CheckpointBroker struct {
	mu      sync.Mutex
	pending map[string]chan orchestrator.ApprovalDecision
}

// NewCheckpointBroker builds an empty broker.
func NewCheckpointBroker() *CheckpointBroker {
	return &CheckpointBroker{pending: make(map[string]chan orchestrator.ApprovalDecision)}
}

// RequestApproval implements orchestrator.HumanInput. The returned channel
// receives exactly one decision, submitted via Decide, then the broker
// forgets the checkpoint.
func (b *CheckpointBroker) RequestApproval(ctx context.Context, sessionID, checkpoint string) (<-chan orchestrator.ApprovalDecision, error) {
	ch := make(chan orchestrator.ApprovalDecision, 1)
	key := brokerKey(sessionID, checkpoint)

	b.mu.Lock()
	b.pending[key] = ch
	b.mu.Unlock()

	return ch, nil
}

// Decide delivers a decision for a pending checkpoint. A decision submitted
// for a checkpoint nobody is waiting on (already auto-continued, or a typo
// in the checkpoint name) is silently dropped.
func (b *CheckpointBroker) Decide(sessionID, checkpoint string, decision orchestrator.ApprovalDecision) {
	key := brokerKey(sessionID, checkpoint)

	b.mu.Lock()
	ch, ok := b.pending[key]
	if ok {
		delete(b.pending, key)
	}
	b.mu.Unlock()

	if ok {
		ch <- decision
	}
}

func brokerKey(sessionID, checkpoint string) string {
	return sessionID + ":" + checkpoint
}
