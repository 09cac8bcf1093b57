// Package store defines the transactional persistence surface the control
// plane needs (spec §6 "Persisted state layout"). The spec deliberately
// does not prescribe a storage engine; Store is the narrow interface every
// other package programs against, with internal/store/postgres providing
// the production implementation and Memory providing an in-process fake for
// tests.
package store

import (
	"context"
	"errors"

	"github.com/livepeer-forks/ingestctl/internal/domain"
)

// ErrNotFound is returned by single-row getters when no row matches.
var ErrNotFound = errors.New("store: not found")

// Store is the full persistence surface required by the orchestrator,
// executor, dispatcher, recovery workers and circuit breaker registry.
type Store interface {
	// Request
	CreateRequest(ctx context.Context, req domain.Request) error
	GetRequest(ctx context.Context, id string) (domain.Request, bool, error)
	UpdateRequest(ctx context.Context, req domain.Request) error

	// ProcessingItem
	CreateProcessingItem(ctx context.Context, item domain.ProcessingItem) error
	GetProcessingItem(ctx context.Context, id string) (domain.ProcessingItem, bool, error)
	UpdateProcessingItem(ctx context.Context, item domain.ProcessingItem) error
	ListItemsByRequest(ctx context.Context, requestID string) ([]domain.ProcessingItem, error)
	ListItemsByStatus(ctx context.Context, status domain.ProcessingStatus) ([]domain.ProcessingItem, error)

	// PipelineExecution
	CreateExecution(ctx context.Context, exec domain.PipelineExecution) error
	GetExecution(ctx context.Context, id string) (domain.PipelineExecution, bool, error)
	UpdateExecution(ctx context.Context, exec domain.PipelineExecution) error
	GetActiveExecutionForItem(ctx context.Context, itemID string) (domain.PipelineExecution, bool, error)

	// EncoderAssignment
	CreateAssignment(ctx context.Context, a domain.EncoderAssignment) error
	GetAssignment(ctx context.Context, id string) (domain.EncoderAssignment, bool, error)
	GetAssignmentByJobID(ctx context.Context, jobID string) (domain.EncoderAssignment, bool, error)
	GetActiveAssignmentByInputPath(ctx context.Context, inputPath string) (domain.EncoderAssignment, bool, error)
	UpdateAssignment(ctx context.Context, a domain.EncoderAssignment) error
	ListAssignmentsByStatus(ctx context.Context, status domain.AssignmentStatus) ([]domain.EncoderAssignment, error)

	// RemoteEncoder
	UpsertEncoder(ctx context.Context, e domain.RemoteEncoder) error
	GetEncoder(ctx context.Context, id string) (domain.RemoteEncoder, bool, error)
	ListEncoders(ctx context.Context) ([]domain.RemoteEncoder, error)

	// CircuitBreaker (also satisfies internal/breaker.Store)
	UpsertCircuitBreaker(ctx context.Context, row domain.CircuitBreakerRow) error
	GetCircuitBreaker(ctx context.Context, service string) (domain.CircuitBreakerRow, bool, error)

	// Download
	UpsertDownload(ctx context.Context, d domain.Download) error
	GetDownloadByHash(ctx context.Context, hash string) (domain.Download, bool, error)
	FindDownloadByParsedName(ctx context.Context, title string, year int, season int) (domain.Download, bool, error)

	// LibraryItem
	UpsertLibraryItem(ctx context.Context, li domain.LibraryItem) error
	GetLibraryItem(ctx context.Context, tmdbID string, kind domain.MediaKind, serverID string) (domain.LibraryItem, bool, error)

	// ActivityLog
	AppendActivity(ctx context.Context, entry domain.ActivityLogEntry) error
}
