// Package orchestrator drives the fixed five-stage research pipeline —
// Clarify, Retrieve, Analyze, Verify, Report — against a durable store and
// a progress bus, with supervised-mode checkpoints and cooperative
// cancellation.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/researchflow/researchflow/internal/ctxkeys"
	"github.com/researchflow/researchflow/internal/llmclient"
	"github.com/researchflow/researchflow/internal/progress"
	"github.com/researchflow/researchflow/internal/retrieval"
	"github.com/researchflow/researchflow/internal/store"
	"github.com/researchflow/researchflow/types"
)

// ModelConfig names the model used by each stage that talks to an LLM.
type ModelConfig struct {
	Clarify string
	Analyze string
	Verify  string
	Report  string
}

// Config bounds the orchestrator's stage timeouts.
type Config struct {
	StageTimeout time.Duration
	Models       ModelConfig
}

// DefaultConfig matches the original system's per-agent timeout default.
func DefaultConfig() Config {
	return Config{StageTimeout: 120 * time.Second}
}

// Orchestrator executes research sessions end to end.
type Orchestrator struct {
	store     store.Store
	bus       *progress.Bus
	retrieval *retrieval.Stage
	llm       llmclient.Client
	human     HumanInput
	models    ModelConfig
	cfg       Config
	logger    *zap.Logger

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	cancelOnce map[string]*sync.Once
}

// New builds an Orchestrator.
func New(s store.Store, bus *progress.Bus, retrievalStage *retrieval.Stage, llm llmclient.Client, human HumanInput, cfg Config, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:      s,
		bus:        bus,
		retrieval:  retrievalStage,
		llm:        llm,
		human:      human,
		models:     cfg.Models,
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "orchestrator")),
		cancels:    make(map[string]context.CancelFunc),
		cancelOnce: make(map[string]*sync.Once),
	}
}

// Cancel requests cooperative cancellation of a running session. Idempotent:
// a second call for the same session id is a no-op.
func (o *Orchestrator) Cancel(sessionID string) {
	o.mu.Lock()
	cancel, ok := o.cancels[sessionID]
	once := o.cancelOnce[sessionID]
	o.mu.Unlock()
	if !ok {
		return
	}
	once.Do(cancel)
}

// Execute runs the full pipeline for session, mutating and persisting its
// state as each stage completes. The returned session reflects its final
// status even when a stage failed.
func (o *Orchestrator) Execute(ctx context.Context, session *types.Session) (*types.Session, error) {
	sessionCtx, cancel := context.WithCancel(ctx)
	sessionCtx = ctxkeys.WithRunID(sessionCtx, session.ID)
	o.mu.Lock()
	o.cancels[session.ID] = cancel
	o.cancelOnce[session.ID] = &sync.Once{}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.cancels, session.ID)
		delete(o.cancelOnce, session.ID)
		o.mu.Unlock()
		cancel()
	}()

	session.Status = types.SessionRunning
	session.StartedAt = currentTime()
	session.StageStatus = map[string]types.StageState{}
	tracker := &progressTracker{}

	if err := o.store.UpdateSession(sessionCtx, session); err != nil {
		return session, &StageError{Stage: "init", Kind: StoreFail, Err: err}
	}

	type stageFunc struct {
		name       string
		run        func(context.Context, *types.Session) error
		checkpoint bool
	}
	stages := []stageFunc{
		{"clarify", o.runClarify, false},
		{"retrieve", o.runRetrieve, true},
		{"analyze", o.runAnalyze, true},
		{"verify", o.runVerify, false},
		{"report", o.runReport, false},
	}

	for _, stage := range stages {
		if sessionCtx.Err() != nil {
			return o.finishCancelled(sessionCtx, session)
		}

		o.updateStageProgress(session, stage.name, 0, "starting")
		o.publish(sessionCtx, session, tracker, stage.name, "running", "")

		stageCtx, stageCancel := context.WithTimeout(sessionCtx, o.cfg.StageTimeout)
		err := stage.run(stageCtx, session)
		stageCancel()

		if err != nil {
			if IsCancelled(err) {
				return o.finishCancelled(sessionCtx, session)
			}
			if IsDegraded(err) {
				o.updateStageProgress(session, stage.name, 100, "degraded")
				o.publish(sessionCtx, session, tracker, stage.name, "degraded", err.Error())
				continue // Verify degrades but the pipeline still proceeds to Report
			}
			return o.finishFailed(sessionCtx, session, err)
		}

		o.updateStageProgress(session, stage.name, 100, "completed")
		o.publish(sessionCtx, session, tracker, stage.name, "completed", "")

		if err := o.store.UpdateSession(sessionCtx, session); err != nil {
			return o.finishFailed(sessionCtx, session, &StageError{Stage: stage.name, Kind: StoreFail, Err: err})
		}

		if stage.checkpoint && session.Params.Mode == types.ModeSupervised {
			approved, err := o.runCheckpoint(sessionCtx, session, stage.name)
			if err != nil {
				return o.finishCancelled(sessionCtx, session)
			}
			if !approved {
				return o.finishRejected(sessionCtx, session, stage.name)
			}
		}
	}

	session.Status = types.SessionCompleted
	session.CompletedAt = currentTime()
	session.OverallProgress = 100
	if err := o.store.UpdateSession(sessionCtx, session); err != nil {
		return session, &StageError{Stage: "report", Kind: StoreFail, Err: err}
	}
	o.publish(sessionCtx, session, tracker, "report", "completed", "")
	return session, nil
}

// runCheckpoint publishes awaiting_approval and blocks on the human
// collaborator, with the documented grace-period auto-continue fallback.
func (o *Orchestrator) runCheckpoint(ctx context.Context, session *types.Session, afterStage string) (bool, error) {
	session.Status = types.SessionPaused
	session.Phase = "awaiting_approval"
	if err := o.store.UpdateSession(ctx, session); err != nil {
		runID, _ := ctxkeys.RunID(ctx)
		o.logger.Warn("failed to persist paused state for checkpoint", zap.String("run_id", runID), zap.Error(err))
	}
	o.bus.Publish(ctx, types.ProgressEvent{
		SessionID: session.ID, Agent: afterStage, Status: "awaiting_approval",
		OverallProgress: session.OverallProgress, Timestamp: currentTime(),
	})

	if o.human == nil {
		session.Status = types.SessionRunning
		session.Phase = afterStage
		return true, nil
	}

	decisions, err := o.human.RequestApproval(ctx, session.ID, afterStage)
	if err != nil {
		return false, err
	}
	decision, err := awaitApproval(ctx, decisions)
	if err != nil {
		return false, err
	}

	session.Status = types.SessionRunning
	session.Phase = afterStage
	return decision.Approved, nil
}

func (o *Orchestrator) finishCancelled(ctx context.Context, session *types.Session) (*types.Session, error) {
	session.Status = types.SessionCancelled
	session.CompletedAt = currentTime()
	_ = o.store.UpdateSession(context.Background(), session) // best-effort: sessionCtx may already be cancelled
	o.bus.Publish(context.Background(), types.ProgressEvent{
		SessionID: session.ID, Status: "cancelled", OverallProgress: session.OverallProgress, Timestamp: currentTime(),
	})
	return session, &StageError{Stage: session.Phase, Kind: Cancelled, Err: errCancelled}
}

func (o *Orchestrator) finishRejected(ctx context.Context, session *types.Session, atStage string) (*types.Session, error) {
	session.Status = types.SessionRejected
	session.CompletedAt = currentTime()
	session.Error = "rejected at " + atStage + " checkpoint"
	_ = o.store.UpdateSession(ctx, session)
	o.bus.Publish(ctx, types.ProgressEvent{
		SessionID: session.ID, Agent: atStage, Status: "rejected",
		OverallProgress: session.OverallProgress, Timestamp: currentTime(),
	})
	return session, nil
}

func (o *Orchestrator) finishFailed(ctx context.Context, session *types.Session, cause error) (*types.Session, error) {
	session.Status = types.SessionFailed
	session.CompletedAt = currentTime()
	session.Error = cause.Error()
	_ = o.store.UpdateSession(ctx, session)
	o.bus.Publish(ctx, types.ProgressEvent{
		SessionID: session.ID, Status: "failed", Err: cause.Error(),
		OverallProgress: session.OverallProgress, Timestamp: currentTime(),
	})
	return session, cause
}

func (o *Orchestrator) updateStageProgress(session *types.Session, stage string, progressPct int, message string) {
	if session.StageStatus == nil {
		session.StageStatus = map[string]types.StageState{}
	}
	status := "running"
	if progressPct >= 100 {
		status = "completed"
	}
	if message == "degraded" {
		status = "degraded"
	}
	session.StageStatus[stage] = types.StageState{Status: status, Progress: progressPct, Message: message}
	session.Phase = stage
}

func (o *Orchestrator) publish(ctx context.Context, session *types.Session, tracker *progressTracker, stage, status, errMsg string) {
	session.OverallProgress = tracker.Overall(session.StageStatus)
	o.bus.Publish(ctx, types.ProgressEvent{
		SessionID:       session.ID,
		Agent:           stage,
		Status:          status,
		Progress:        session.StageStatus[stage].Progress,
		OverallProgress: session.OverallProgress,
		Err:             errMsg,
		Timestamp:       currentTime(),
	})
}

// currentTime is indirected so tests can stub it if needed; production
// always uses the wall clock.
var currentTime = time.Now
