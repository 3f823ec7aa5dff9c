// Package store defines the persistence contract the orchestrator and its
// stages use to hand work off between themselves: every stage reads its
// inputs from the store by session id and writes its outputs before
// returning, rather than passing payloads in memory.
package store

import (
	"context"
	"errors"

	"github.com/researchflow/researchflow/types"
)

// ErrNotFound is returned when a lookup finds no matching record.
var ErrNotFound = errors.New("store: not found")

// Store is the full persistence contract. Implementations must be safe for
// concurrent use by multiple sessions.
type Store interface {
	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, id string) (*types.Session, error)
	UpdateSession(ctx context.Context, session *types.Session) error

	AddSources(ctx context.Context, sessionID string, sources []types.Source) error
	GetSources(ctx context.Context, sessionID string) ([]types.Source, error)

	AddFindings(ctx context.Context, sessionID string, findings []types.Finding) error
	GetFindings(ctx context.Context, sessionID string) ([]types.Finding, error)

	SetPipelineData(ctx context.Context, sessionID, key string, value any) error
	GetPipelineData(ctx context.Context, sessionID, key string, dest any) (bool, error)

	SaveReport(ctx context.Context, report *types.Report) error
	GetReport(ctx context.Context, sessionID string) (*types.Report, error)
}
