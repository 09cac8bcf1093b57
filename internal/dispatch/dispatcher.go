package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/livepeer-forks/ingestctl/internal/config"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/ingesterr"
	"github.com/livepeer-forks/ingestctl/internal/logx"
	"github.com/livepeer-forks/ingestctl/internal/metrics"
	"github.com/livepeer-forks/ingestctl/internal/store"
)

// Callback is how the dispatcher hands control back to the orchestrator
// when a job finishes: the encode step suspended with correlation=jobID, and
// these calls resume that execution (§9's "typed tasks + events").
type Callback interface {
	OnJobComplete(ctx context.Context, jobID string, a domain.EncoderAssignment) error
	OnJobFailed(ctx context.Context, jobID string, errMsg string) error
}

// conn is one connected encoder's send side. The transport layer (server.go)
// owns the actual network connection; the dispatcher only needs a way to
// push outbound frames and know when the connection is gone.
type conn struct {
	encoderID string
	send      chan any
	closed    chan struct{}
}

// Dispatcher is C9: capacity-aware assignment, idempotent enqueue/coalescing,
// throttled progress, stall detection and path translation.
type Dispatcher struct {
	Store      store.Store
	Metrics    *metrics.Metrics
	Translator *Translator
	Clock      clock.Clock
	// Profiles resolves a profileID into the full encode profile serialized
	// onto job:assign (§6); set by the caller after construction since the
	// profile map is loaded independently of the store/metrics/translator.
	Profiles map[string]Profile

	mu          sync.Mutex
	conns       map[string]*conn        // encoderID -> connection
	chained     map[string][]string     // physical assignment id -> chained logical jobIDs
	byInputPath map[string]string       // inputPath -> assignment id, for dedup
	callback    Callback

	progress  *Cache[ProgressEntry]
	startedAt *Cache[time.Time]
}

func NewDispatcher(st store.Store, m *metrics.Metrics, translator *Translator, cb Callback) *Dispatcher {
	return &Dispatcher{
		Store:       st,
		Metrics:     m,
		Translator:  translator,
		Clock:       clock.New(),
		conns:       map[string]*conn{},
		chained:     map[string][]string{},
		byInputPath: map[string]string{},
		callback:    cb,
		progress:    NewCache[ProgressEntry](),
		startedAt:   NewCache[time.Time](),
	}
}

// RegisterConnection records a newly connected worker and sends `registered`.
func (d *Dispatcher) RegisterConnection(ctx context.Context, msg RegisterMsg, send chan any) error {
	d.mu.Lock()
	d.conns[msg.EncoderID] = &conn{encoderID: msg.EncoderID, send: send, closed: make(chan struct{})}
	d.mu.Unlock()

	err := d.Store.UpsertEncoder(ctx, domain.RemoteEncoder{
		EncoderID:     msg.EncoderID,
		GPUDevice:     msg.GPUDevice,
		MaxConcurrent: msg.MaxConcurrent,
		CurrentJobs:   msg.CurrentJobs,
		Status:        domain.EncoderIdle,
		Hostname:      msg.Hostname,
		Version:       msg.Version,
		LastHeartbeat: d.Clock.Now(),
	})
	if err != nil {
		return err
	}
	if d.Metrics != nil {
		d.Metrics.Dispatch.ConnectedEncoders.Inc()
	}
	send <- RegisteredMsg{Type: "registered"}
	logx.LogNoID("encoder registered", "encoderId", msg.EncoderID, "maxConcurrent", msg.MaxConcurrent)
	return d.Sweep(ctx)
}

// Heartbeat refreshes an encoder's lastHeartbeat and replies pong.
func (d *Dispatcher) Heartbeat(ctx context.Context, msg HeartbeatMsg, send chan any) error {
	enc, ok, err := d.Store.GetEncoder(ctx, msg.EncoderID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "unknown encoder "+msg.EncoderID)
	}
	enc.CurrentJobs = msg.CurrentJobs
	enc.LastHeartbeat = d.Clock.Now()
	if err := d.Store.UpsertEncoder(ctx, enc); err != nil {
		return err
	}
	send <- PongMsg{Type: "pong", Timestamp: d.Clock.Now().Unix()}
	return nil
}

// QueueEncodingJob is the idempotent enqueue entry point (§4.5). jobID is
// the logical ProcessingItem.encodingJobId; multiple jobIDs for the same
// inputPath are chained onto one physical EncoderAssignment.
func (d *Dispatcher) QueueEncodingJob(ctx context.Context, jobID, inputPath, outputPath, profileID string) error {
	d.mu.Lock()
	if existingID, ok := d.byInputPath[inputPath]; ok {
		d.chained[existingID] = append(d.chained[existingID], jobID)
		d.mu.Unlock()
		logx.Log(jobID, "chained onto existing encoder assignment", "inputPath", inputPath, "assignmentId", existingID)
		return nil
	}
	d.mu.Unlock()

	if existing, ok, err := d.Store.GetActiveAssignmentByInputPath(ctx, inputPath); err == nil && ok {
		d.mu.Lock()
		d.byInputPath[inputPath] = existing.ID
		d.chained[existing.ID] = append(d.chained[existing.ID], jobID)
		d.mu.Unlock()
		return nil
	}

	a := domain.EncoderAssignment{
		ID:          uuid.NewString(),
		JobID:       jobID,
		InputPath:   inputPath,
		OutputPath:  outputPath,
		ProfileID:   profileID,
		Status:      domain.AssignmentPending,
		MaxAttempts: config.DefaultMaxAttempts,
	}
	if enc, ok := d.bestEncoder(); ok {
		a.EncoderID = enc
	}
	if err := d.Store.CreateAssignment(ctx, a); err != nil {
		return err
	}
	d.mu.Lock()
	d.byInputPath[inputPath] = a.ID
	d.chained[a.ID] = []string{jobID}
	d.mu.Unlock()
	return d.Sweep(ctx)
}

// bestEncoder picks an arbitrary connected encoder as an enqueue-time hint;
// Sweep re-evaluates real spare capacity from the store and will move the
// assignment to a better encoder if this one turns out to be full (§4.5
// step 2's "enqueue against an arbitrary connected one" fallback).
func (d *Dispatcher) bestEncoder() (string, bool) {
	d.mu.Lock()
	ids := make([]string, 0, len(d.conns))
	for id := range d.conns {
		ids = append(ids, id)
	}
	d.mu.Unlock()
	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)
	return ids[0], true
}

// Sweep iterates pending assignments oldest-first, assigning capacity where
// possible (§4.5 "Assignment sweep").
func (d *Dispatcher) Sweep(ctx context.Context) error {
	pending, err := d.Store.ListAssignmentsByStatus(ctx, domain.AssignmentPending)
	if err != nil {
		return err
	}
	encoders, err := d.Store.ListEncoders(ctx)
	if err != nil {
		return err
	}
	capacity := map[string]int{}
	totalCompleted := map[string]int{}
	for _, e := range encoders {
		if _, connected := d.connected(e.EncoderID); connected && e.Status != domain.EncoderOffline {
			capacity[e.EncoderID] = e.SpareCapacity()
			totalCompleted[e.EncoderID] = e.TotalCompleted
		}
	}

	for _, a := range pending {
		target := a.EncoderID
		if target == "" || capacity[target] <= 0 {
			target = pickEncoder(capacity, totalCompleted, target)
		}
		if target == "" {
			continue // no connected encoder at all; leave pending
		}
		c, ok := d.connected(target)
		if !ok {
			continue
		}
		now := d.Clock.Now()
		a.EncoderID = target
		a.Status = domain.AssignmentEncoding
		a.AssignedAt = &now
		a.StartedAt = &now
		if err := d.Store.UpdateAssignment(ctx, a); err != nil {
			logx.LogError(a.JobID, "failed to persist assignment", err)
			continue
		}
		capacity[target]--
		d.startedAt.Store(a.JobID, now)

		remoteIn := a.InputPath
		remoteOut := a.OutputPath
		if d.Translator != nil {
			remoteIn = d.Translator.ToRemote(a.InputPath)
			remoteOut = d.Translator.ToRemote(a.OutputPath)
		}
		c.send <- JobAssignMsg{
			Type:       "job:assign",
			JobID:      a.JobID,
			InputPath:  remoteIn,
			OutputPath: remoteOut,
			ProfileID:  a.ProfileID,
			Profile:    d.Profiles[a.ProfileID],
		}
		logx.Log(a.JobID, "assignment sent", "encoderId", target, "inputPath", a.InputPath)
	}
	return nil
}

func pickEncoder(capacity, totalCompleted map[string]int, exclude string) string {
	best := ""
	bestCap, bestCompleted := -1, -1
	for id, spare := range capacity {
		if id == exclude {
			continue
		}
		if spare > bestCap || (spare == bestCap && totalCompleted[id] > bestCompleted) {
			best, bestCap, bestCompleted = id, spare, totalCompleted[id]
		}
	}
	if best == "" {
		// No encoder with spare capacity; fall back to any connected one.
		for id := range capacity {
			return id
		}
	}
	return best
}

func (d *Dispatcher) connected(encoderID string) (*conn, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.conns[encoderID]
	return c, ok
}

// OnProgress updates the in-memory progress cache (§4.5, throttled persist
// handled by the periodic flush task in scheduler).
func (d *Dispatcher) OnProgress(ctx context.Context, msg JobProgressMsg) {
	entry := ProgressEntry{Progress: msg.Progress, ETA: msg.ETA, LastProgressAt: d.Clock.Now().UnixNano()}
	if msg.FPS != nil {
		entry.FPS = *msg.FPS
	}
	if msg.Speed != nil {
		entry.Speed = *msg.Speed
	}
	if prev, ok := d.progress.Get(msg.JobID); ok {
		entry.LastWrittenAt = prev.LastWrittenAt
	}
	d.progress.Store(msg.JobID, entry)
}

// FlushProgress persists progress entries dirty for at least
// config.ProgressWriteInterval; called by the scheduler every
// config.ProgressFlushInterval.
func (d *Dispatcher) FlushProgress(ctx context.Context) {
	now := d.Clock.Now().UnixNano()
	interval := config.ProgressWriteInterval.Nanoseconds()
	for jobID, entry := range d.progress.Snapshot() {
		if !entry.Dirty(now, interval) {
			continue
		}
		a, ok, err := d.Store.GetAssignmentByJobID(ctx, jobID)
		if err != nil || !ok {
			continue
		}
		a.Progress = entry.Progress
		a.FPS = entry.FPS
		a.Speed = entry.Speed
		a.ETA = entry.ETA
		lastAt := time.Unix(0, entry.LastProgressAt)
		a.LastProgressAt = &lastAt
		if err := d.Store.UpdateAssignment(ctx, a); err != nil {
			logx.LogError(jobID, "failed to flush progress", err)
			continue
		}
		entry.LastWrittenAt = now
		d.progress.Store(jobID, entry)
		if d.Metrics != nil {
			d.Metrics.Dispatch.ProgressWrites.Inc()
		}
	}
}

// OnComplete handles job:complete (§4.5 "Completion").
func (d *Dispatcher) OnComplete(ctx context.Context, msg JobCompleteMsg) error {
	a, ok, err := d.Store.GetAssignmentByJobID(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "assignment not found for job "+msg.JobID)
	}
	now := d.Clock.Now()
	a.Status = domain.AssignmentCompleted
	a.OutputSize = msg.OutputSize
	a.CompressionRatio = msg.CompressionRatio
	a.EncodeDuration = msg.Duration
	a.Progress = 100
	a.CompletedAt = &now
	if err := d.Store.UpdateAssignment(ctx, a); err != nil {
		return err
	}
	if enc, ok, err := d.Store.GetEncoder(ctx, a.EncoderID); err == nil && ok {
		enc.TotalCompleted++
		if enc.CurrentJobs > 0 {
			enc.CurrentJobs--
		}
		_ = d.Store.UpsertEncoder(ctx, enc)
	}
	d.progress.Delete(msg.JobID)
	d.startedAt.Delete(msg.JobID)

	jobIDs := d.releaseChain(a.InputPath, a.ID)
	var firstErr error
	for _, jobID := range jobIDs {
		if d.callback != nil {
			if err := d.callback.OnJobComplete(ctx, jobID, a); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// OnFailed handles job:failed (§4.5 "Failure & retry").
func (d *Dispatcher) OnFailed(ctx context.Context, msg JobFailedMsg) error {
	a, ok, err := d.Store.GetAssignmentByJobID(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if !ok {
		return ingesterr.New(ingesterr.NotFound, "assignment not found for job "+msg.JobID)
	}
	if enc, ok, err := d.Store.GetEncoder(ctx, a.EncoderID); err == nil && ok && enc.CurrentJobs > 0 {
		enc.CurrentJobs--
		_ = d.Store.UpsertEncoder(ctx, enc)
	}

	retriable := msg.Retriable
	if msg.Error == "input file not found" {
		retriable = false // §4.5: re-check is the server's job; the dispatcher trusts the worker's second opinion here
	}

	if retriable && a.Attempt < a.MaxAttempts {
		a.Attempt++
		a.Status = domain.AssignmentPending
		a.Progress = 0
		if err := d.Store.UpdateAssignment(ctx, a); err != nil {
			return err
		}
		d.progress.Delete(msg.JobID)
		return d.Sweep(ctx)
	}

	a.Status = domain.AssignmentFailed
	a.Error = msg.Error
	if err := d.Store.UpdateAssignment(ctx, a); err != nil {
		return err
	}
	if enc, ok, err := d.Store.GetEncoder(ctx, a.EncoderID); err == nil && ok {
		enc.TotalFailed++
		_ = d.Store.UpsertEncoder(ctx, enc)
	}
	jobIDs := d.releaseChain(a.InputPath, a.ID)
	var firstErr error
	for _, jobID := range jobIDs {
		if d.callback != nil {
			if err := d.callback.OnJobFailed(ctx, jobID, msg.Error); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (d *Dispatcher) releaseChain(inputPath, assignmentID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	jobIDs := d.chained[assignmentID]
	delete(d.chained, assignmentID)
	delete(d.byInputPath, inputPath)
	return jobIDs
}

// Disconnect marks an encoder offline and reassigns or fails its jobs
// (§4.5 "Worker disconnect").
func (d *Dispatcher) Disconnect(ctx context.Context, encoderID string) error {
	d.mu.Lock()
	delete(d.conns, encoderID)
	d.mu.Unlock()
	if d.Metrics != nil {
		d.Metrics.Dispatch.ConnectedEncoders.Dec()
	}

	enc, ok, err := d.Store.GetEncoder(ctx, encoderID)
	if err != nil {
		return err
	}
	if ok {
		enc.Status = domain.EncoderOffline
		enc.CurrentJobs = 0
		if err := d.Store.UpsertEncoder(ctx, enc); err != nil {
			return err
		}
	}

	owned, err := d.Store.ListAssignmentsByStatus(ctx, domain.AssignmentEncoding)
	if err != nil {
		return err
	}
	for _, a := range owned {
		if a.EncoderID != encoderID {
			continue
		}
		if a.Attempt < a.MaxAttempts {
			a.Attempt++
			a.Status = domain.AssignmentPending
			a.EncoderID = ""
			a.Progress = 0
		} else {
			a.Status = domain.AssignmentFailed
			a.Error = "encoder disconnected, attempts exhausted"
		}
		if err := d.Store.UpdateAssignment(ctx, a); err != nil {
			logx.LogError(a.JobID, "failed to update assignment on disconnect", err)
		}
	}
	logx.LogNoID("encoder disconnected", "encoderId", encoderID)
	return d.Sweep(ctx)
}

// Broadcast sends msg to every currently-connected encoder, used by the
// shutdown sequence to announce server:shutdown before connections are torn
// down. Best-effort: a full send channel is skipped rather than blocking
// shutdown on a slow or wedged worker.
func (d *Dispatcher) Broadcast(msg any) {
	d.mu.Lock()
	conns := make([]*conn, 0, len(d.conns))
	for _, c := range d.conns {
		conns = append(conns, c)
	}
	d.mu.Unlock()
	for _, c := range conns {
		select {
		case c.send <- msg:
		default:
			logx.LogNoID("dropped broadcast to slow encoder", "encoderId", c.encoderID)
		}
	}
}

// CloseAll forgets every tracked connection without touching their store
// rows, used once a shutdown broadcast has gone out and the listener itself
// is being torn down.
func (d *Dispatcher) CloseAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, c := range d.conns {
		close(c.closed)
		delete(d.conns, id)
	}
}

// CancelJob sends job:cancel and marks the assignment cancelled.
func (d *Dispatcher) CancelJob(ctx context.Context, jobID, reason string) error {
	a, ok, err := d.Store.GetAssignmentByJobID(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if c, connected := d.connected(a.EncoderID); connected {
		c.send <- JobCancelMsg{Type: "job:cancel", JobID: jobID, Reason: reason}
	}
	a.Status = domain.AssignmentCancelled
	return d.Store.UpdateAssignment(ctx, a)
}

// DetectStalls implements §4.5 "Stall detection": heartbeat timeout and
// progress-stall timeout, run by the scheduler every config.HeartbeatInterval.
func (d *Dispatcher) DetectStalls(ctx context.Context) error {
	encoders, err := d.Store.ListEncoders(ctx)
	if err != nil {
		return err
	}
	now := d.Clock.Now()
	for _, e := range encoders {
		if e.Status == domain.EncoderOffline {
			continue
		}
		if now.Sub(e.LastHeartbeat) > config.HeartbeatTimeout {
			if err := d.Disconnect(ctx, e.EncoderID); err != nil {
				logx.LogError(e.EncoderID, "failed to disconnect stalled encoder", err)
			}
		}
	}

	encoding, err := d.Store.ListAssignmentsByStatus(ctx, domain.AssignmentEncoding)
	if err != nil {
		return err
	}
	for _, a := range encoding {
		stalled, countsAsAttempt := d.isStalled(a, now)
		if !stalled {
			continue
		}
		if d.Metrics != nil {
			d.Metrics.Dispatch.Stalls.Inc()
		}
		if c, connected := d.connected(a.EncoderID); connected {
			c.send <- JobCancelMsg{Type: "job:cancel", JobID: a.JobID, Reason: "stalled"}
		}
		if countsAsAttempt {
			a.Attempt++
		}
		a.Status = domain.AssignmentPending
		a.Progress = 0
		a.EncoderID = ""
		if err := d.Store.UpdateAssignment(ctx, a); err != nil {
			logx.LogError(a.JobID, "failed to reset stalled assignment", err)
			continue
		}
		d.progress.Delete(a.JobID)
	}
	return d.Sweep(ctx)
}

func (d *Dispatcher) isStalled(a domain.EncoderAssignment, now time.Time) (stalled, countsAsAttempt bool) {
	entry, hasProgress := d.progress.Get(a.JobID)
	if hasProgress {
		elapsed := now.Sub(time.Unix(0, entry.LastProgressAt))
		return elapsed > config.JobStallTimeout, true
	}
	if a.StartedAt == nil {
		return false, false
	}
	elapsed := now.Sub(*a.StartedAt)
	return elapsed > 2*config.JobStallTimeout, false
}
