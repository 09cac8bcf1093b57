// Package domain holds the persisted entities shared across the control
// plane: requests, processing items, pipeline templates/executions, encoder
// assignments and the remote encoder pool view.
package domain

import "time"

// MediaKind distinguishes a movie request from a TV request.
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindTV    MediaKind = "tv"
)

// RequestStatus is the coarse, top-level status of a Request.
type RequestStatus string

const (
	RequestPending            RequestStatus = "pending"
	RequestRunning            RequestStatus = "running"
	RequestQualityUnavailable RequestStatus = "quality_unavailable"
	RequestCompleted          RequestStatus = "completed"
	RequestFailed             RequestStatus = "failed"
	RequestCancelled          RequestStatus = "cancelled"
)

func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestCompleted, RequestFailed, RequestCancelled:
		return true
	default:
		return false
	}
}

// ProcessingStatus is the granular, per-item status machine (C1).
type ProcessingStatus string

const (
	StatusPending     ProcessingStatus = "pending"
	StatusSearching   ProcessingStatus = "searching"
	StatusFound       ProcessingStatus = "found"
	StatusDownloading ProcessingStatus = "downloading"
	StatusDownloaded  ProcessingStatus = "downloaded"
	StatusEncoding    ProcessingStatus = "encoding"
	StatusEncoded     ProcessingStatus = "encoded"
	StatusDelivering  ProcessingStatus = "delivering"
	StatusCompleted   ProcessingStatus = "completed"
	StatusSkipped     ProcessingStatus = "skipped"
	StatusFailed      ProcessingStatus = "failed"
	StatusCancelled   ProcessingStatus = "cancelled"
)

// orderedForward lists the granular statuses in the order invariant 1
// requires forward progress to follow. Index position is used by the state
// machine to decide whether a transition is "forward" (same or increasing
// index) vs. a regression.
var orderedForward = []ProcessingStatus{
	StatusPending,
	StatusSearching,
	StatusFound,
	StatusDownloading,
	StatusDownloaded,
	StatusEncoding,
	StatusEncoded,
	StatusDelivering,
	StatusCompleted,
}

// ForwardOrder exposes orderedForward read-only for the state machine
// package without creating an import cycle back into domain.
func ForwardOrder() []ProcessingStatus {
	out := make([]ProcessingStatus, len(orderedForward))
	copy(out, orderedForward)
	return out
}

// ItemType distinguishes a movie item from a single TV episode item.
type ItemType string

const (
	ItemMovie   ItemType = "movie"
	ItemEpisode ItemType = "episode"
)

// DeliveryTarget is one destination server a Request asks to deliver to.
type DeliveryTarget struct {
	ServerID         string `json:"serverId"`
	MinResolution    string `json:"minResolution"`
	PreferredCodec   string `json:"preferredCodec,omitempty"`
	RequestScanAfter bool   `json:"requestScanAfter,omitempty"`
}

// Request is a user intent: one movie, or one TV show (composed of many
// ProcessingItems, one per requested episode).
type Request struct {
	ID               string           `json:"id"`
	Kind             MediaKind        `json:"kind"`
	ExternalID       string           `json:"externalId"`
	Title            string           `json:"title"`
	Year             int              `json:"year"`
	RequestedSeasons []int            `json:"requestedSeasons,omitempty"`
	Targets          []DeliveryTarget `json:"targets"`
	Status           RequestStatus    `json:"status"`
	StatusLabel      string           `json:"statusLabel,omitempty"`
	Progress         float64          `json:"progress"`
	CurrentStep      string           `json:"currentStep,omitempty"`
	Error            string           `json:"error,omitempty"`
	AvailableReleases []Release       `json:"availableReleases,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// ProcessingItem is the atomic unit of pipeline work: a movie, or one
// episode of a TV show.
type ProcessingItem struct {
	ID             string           `json:"id"`
	RequestID      string           `json:"requestId"`
	Type           ItemType         `json:"type"`
	Season         int              `json:"season,omitempty"`
	Episode        int              `json:"episode,omitempty"`
	Status         ProcessingStatus `json:"status"`
	Attempts       int              `json:"attempts"`
	MaxAttempts    int              `json:"maxAttempts"`
	CurrentStep    string           `json:"currentStep,omitempty"`
	LastError      string           `json:"lastError,omitempty"`
	NextRetryAt    *time.Time       `json:"nextRetryAt,omitempty"`
	SkipUntil      *time.Time       `json:"skipUntil,omitempty"`
	Progress       float64          `json:"progress"`
	DownloadID     string           `json:"downloadId,omitempty"`
	EncodingJobID  string           `json:"encodingJobId,omitempty"`
	SourceFilePath string           `json:"sourceFilePath,omitempty"`
	StepContext    StepContext      `json:"stepContext"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// Release is one candidate the search step found or stored as an
// alternative when no release met quality requirements.
type Release struct {
	Title          string    `json:"title"`
	TorrentHash    string    `json:"torrentHash"`
	Resolution     string    `json:"resolution"`
	Codec          string    `json:"codec"`
	SizeBytes      int64     `json:"sizeBytes"`
	Seeders        int       `json:"seeders"`
	PublishDate    time.Time `json:"publishDate"`
	MeetsQuality   bool      `json:"meetsQuality"`
}

// SearchContext is the reserved "search" sub-object of StepContext.
type SearchContext struct {
	SelectedRelease   *Release `json:"selectedRelease,omitempty"`
	ExistingDownload  *Release `json:"existingDownload,omitempty"`
}

// DownloadContext is the reserved "download" sub-object of StepContext.
type DownloadContext struct {
	TorrentHash    string `json:"torrentHash,omitempty"`
	SourceFilePath string `json:"sourceFilePath,omitempty"`
}

// EncodedFile describes one output produced by the encode step, ready for
// delivery to one or more target servers.
type EncodedFile struct {
	Path            string   `json:"path"`
	Resolution      string   `json:"resolution"`
	Codec           string   `json:"codec"`
	TargetServerIDs []string `json:"targetServerIds"`
	Season          int      `json:"season,omitempty"`
	Episode         int      `json:"episode,omitempty"`
	EpisodeID       string   `json:"episodeId,omitempty"`
	EpisodeTitle    string   `json:"episodeTitle,omitempty"`
}

// EncodeContext is the reserved "encode" sub-object of StepContext.
type EncodeContext struct {
	EncodedFiles []EncodedFile `json:"encodedFiles,omitempty"`
}

// DeliverContext is the reserved "deliver" sub-object of StepContext.
type DeliverContext struct {
	DeliveredServers []string `json:"deliveredServers,omitempty"`
	FailedServers    []string `json:"failedServers,omitempty"`
	Recovered        []string `json:"recovered,omitempty"`
}

// ApprovalContext is the reserved "approval" sub-object of StepContext.
type ApprovalContext struct {
	ApprovalID string `json:"approvalId,omitempty"`
	Granted    bool   `json:"granted,omitempty"`
}

// StepContext is the per-execution blackboard (C3). It carries typed
// reserved sub-objects plus an open map for anything else a step wants to
// stash. Reserved keys are set exactly once, by their owning step, and are
// read-only to every step that runs afterward (invariant 3).
type StepContext struct {
	Search   *SearchContext   `json:"search,omitempty"`
	Download *DownloadContext `json:"download,omitempty"`
	Encode   *EncodeContext   `json:"encode,omitempty"`
	Deliver  *DeliverContext  `json:"deliver,omitempty"`
	Approval *ApprovalContext `json:"approval,omitempty"`
	Extra    map[string]any   `json:"extra,omitempty"`
}

// ExecutionStatus is the status of one PipelineExecution traversal.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// PipelineExecution is one in-flight traversal of a template for a request
// or one of its episode branches.
type PipelineExecution struct {
	ID                string          `json:"id"`
	RequestID         string          `json:"requestId"`
	ItemID            string          `json:"itemId"`
	TemplateID        string          `json:"templateId"`
	ParentExecutionID string          `json:"parentExecutionId,omitempty"`
	Status            ExecutionStatus `json:"status"`
	CurrentStepPath   []int           `json:"currentStepPath"`
	Context           StepContext     `json:"context"`
	PauseCorrelation  string          `json:"pauseCorrelation,omitempty"`
	StartedAt         time.Time       `json:"startedAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// AssignmentStatus is the lifecycle of one EncoderAssignment (C9).
type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentEncoding  AssignmentStatus = "encoding"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentFailed    AssignmentStatus = "failed"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// EncoderAssignment is one transcoding job's lifecycle on the dispatch
// side.
type EncoderAssignment struct {
	ID                string           `json:"id"`
	JobID             string           `json:"jobId"`
	EncoderID         string           `json:"encoderId,omitempty"`
	InputPath         string           `json:"inputPath"`
	OutputPath        string           `json:"outputPath"`
	ProfileID         string           `json:"profileId"`
	Status            AssignmentStatus `json:"status"`
	Attempt           int              `json:"attempt"`
	MaxAttempts       int              `json:"maxAttempts"`
	Progress          float64          `json:"progress"`
	FPS               float64          `json:"fps,omitempty"`
	Speed             float64          `json:"speed,omitempty"`
	ETA               int              `json:"eta,omitempty"`
	OutputSize        int64            `json:"outputSize,omitempty"`
	CompressionRatio  float64          `json:"compressionRatio,omitempty"`
	EncodeDuration    float64          `json:"encodeDuration,omitempty"`
	Error             string           `json:"error,omitempty"`
	AssignedAt        *time.Time       `json:"assignedAt,omitempty"`
	StartedAt         *time.Time       `json:"startedAt,omitempty"`
	CompletedAt       *time.Time       `json:"completedAt,omitempty"`
	LastProgressAt    *time.Time       `json:"lastProgressAt,omitempty"`
}

// EncoderStatus is the connectivity/activity state of a RemoteEncoder.
type EncoderStatus string

const (
	EncoderIdle     EncoderStatus = "idle"
	EncoderEncoding EncoderStatus = "encoding"
	EncoderOffline  EncoderStatus = "offline"
)

// RemoteEncoder is the persisted view of one worker.
type RemoteEncoder struct {
	EncoderID      string        `json:"encoderId"`
	GPUDevice      string        `json:"gpuDevice"`
	MaxConcurrent  int           `json:"maxConcurrent"`
	CurrentJobs    int           `json:"currentJobs"`
	Status         EncoderStatus `json:"status"`
	Hostname       string        `json:"hostname"`
	Version        string        `json:"version"`
	TotalCompleted int           `json:"totalCompleted"`
	TotalFailed    int           `json:"totalFailed"`
	LastHeartbeat  time.Time     `json:"lastHeartbeat"`
}

// SpareCapacity is MaxConcurrent - CurrentJobs, floored at 0.
func (r RemoteEncoder) SpareCapacity() int {
	spare := r.MaxConcurrent - r.CurrentJobs
	if spare < 0 {
		return 0
	}
	return spare
}

// BreakerState is the CLOSED/OPEN/HALF_OPEN state of a CircuitBreaker (C8).
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreakerRow is the persisted form of one service's breaker state.
type CircuitBreakerRow struct {
	Service     string       `json:"service"`
	State       BreakerState `json:"state"`
	Failures    int          `json:"failures"`
	LastFailure *time.Time   `json:"lastFailure,omitempty"`
	OpensAt     *time.Time   `json:"opensAt,omitempty"`
}

// Download is the torrent-side bookkeeping row.
type Download struct {
	ID             string    `json:"id"`
	TorrentHash    string    `json:"torrentHash"`
	RequestID      string    `json:"requestId"`
	Title          string    `json:"title"`
	Year           int       `json:"year"`
	Season         int       `json:"season,omitempty"`
	PercentDone    float64   `json:"percentDone"`
	SourceFilePath string    `json:"sourceFilePath,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// LibraryItem records one delivered (tmdbId, kind, serverId) tuple.
type LibraryItem struct {
	TMDBID    string    `json:"tmdbId"`
	Kind      MediaKind `json:"kind"`
	ServerID  string    `json:"serverId"`
	Quality   string    `json:"quality"`
	AddedAt   time.Time `json:"addedAt"`
	SyncedAt  time.Time `json:"syncedAt"`
}

// ActivityLogEntry is one append-only audit record.
type ActivityLogEntry struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId"`
	ItemID    string    `json:"itemId,omitempty"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
