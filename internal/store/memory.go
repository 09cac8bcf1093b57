package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/livepeer-forks/ingestctl/internal/domain"
)

// Memory is an in-process Store used by unit tests across the repository,
// following the teacher's preference for lightweight fakes
// (clients/mist_client_mock.go) over a real database in tests.
type Memory struct {
	mu          sync.Mutex
	requests    map[string]domain.Request
	items       map[string]domain.ProcessingItem
	executions  map[string]domain.PipelineExecution
	assignments map[string]domain.EncoderAssignment
	encoders    map[string]domain.RemoteEncoder
	breakers    map[string]domain.CircuitBreakerRow
	downloads   map[string]domain.Download
	library     map[string]domain.LibraryItem
	activity    []domain.ActivityLogEntry
}

// NewMemory builds an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		requests:    map[string]domain.Request{},
		items:       map[string]domain.ProcessingItem{},
		executions:  map[string]domain.PipelineExecution{},
		assignments: map[string]domain.EncoderAssignment{},
		encoders:    map[string]domain.RemoteEncoder{},
		breakers:    map[string]domain.CircuitBreakerRow{},
		downloads:   map[string]domain.Download{},
		library:     map[string]domain.LibraryItem{},
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) CreateRequest(ctx context.Context, req domain.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = req
	return nil
}

func (m *Memory) GetRequest(ctx context.Context, id string) (domain.Request, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	return r, ok, nil
}

func (m *Memory) UpdateRequest(ctx context.Context, req domain.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[req.ID]; !ok {
		return ErrNotFound
	}
	m.requests[req.ID] = req
	return nil
}

func (m *Memory) CreateProcessingItem(ctx context.Context, item domain.ProcessingItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
	return nil
}

func (m *Memory) GetProcessingItem(ctx context.Context, id string) (domain.ProcessingItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	return it, ok, nil
}

func (m *Memory) UpdateProcessingItem(ctx context.Context, item domain.ProcessingItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; !ok {
		return ErrNotFound
	}
	m.items[item.ID] = item
	return nil
}

func (m *Memory) ListItemsByRequest(ctx context.Context, requestID string) ([]domain.ProcessingItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ProcessingItem
	for _, it := range m.items {
		if it.RequestID == requestID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *Memory) ListItemsByStatus(ctx context.Context, status domain.ProcessingStatus) ([]domain.ProcessingItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ProcessingItem
	for _, it := range m.items {
		if it.Status == status {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *Memory) CreateExecution(ctx context.Context, exec domain.PipelineExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[exec.ID] = exec
	return nil
}

func (m *Memory) GetExecution(ctx context.Context, id string) (domain.PipelineExecution, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	return e, ok, nil
}

func (m *Memory) UpdateExecution(ctx context.Context, exec domain.PipelineExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.executions[exec.ID]; !ok {
		return ErrNotFound
	}
	m.executions[exec.ID] = exec
	return nil
}

func (m *Memory) GetActiveExecutionForItem(ctx context.Context, itemID string) (domain.PipelineExecution, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.executions {
		if e.ItemID == itemID && e.Status == domain.ExecutionRunning || e.ItemID == itemID && e.Status == domain.ExecutionPaused {
			return e, true, nil
		}
	}
	return domain.PipelineExecution{}, false, nil
}

func (m *Memory) CreateAssignment(ctx context.Context, a domain.EncoderAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.assignments[a.ID] = a
	return nil
}

func (m *Memory) GetAssignment(ctx context.Context, id string) (domain.EncoderAssignment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	return a, ok, nil
}

func (m *Memory) GetAssignmentByJobID(ctx context.Context, jobID string) (domain.EncoderAssignment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.JobID == jobID {
			return a, true, nil
		}
	}
	return domain.EncoderAssignment{}, false, nil
}

func (m *Memory) GetActiveAssignmentByInputPath(ctx context.Context, inputPath string) (domain.EncoderAssignment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.InputPath == inputPath && (a.Status == domain.AssignmentPending || a.Status == domain.AssignmentEncoding) {
			return a, true, nil
		}
	}
	return domain.EncoderAssignment{}, false, nil
}

func (m *Memory) UpdateAssignment(ctx context.Context, a domain.EncoderAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assignments[a.ID]; !ok {
		return ErrNotFound
	}
	m.assignments[a.ID] = a
	return nil
}

func (m *Memory) ListAssignmentsByStatus(ctx context.Context, status domain.AssignmentStatus) ([]domain.EncoderAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EncoderAssignment
	for _, a := range m.assignments {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) UpsertEncoder(ctx context.Context, e domain.RemoteEncoder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.encoders[e.EncoderID] = e
	return nil
}

func (m *Memory) GetEncoder(ctx context.Context, id string) (domain.RemoteEncoder, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.encoders[id]
	return e, ok, nil
}

func (m *Memory) ListEncoders(ctx context.Context) ([]domain.RemoteEncoder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RemoteEncoder
	for _, e := range m.encoders {
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) UpsertCircuitBreaker(ctx context.Context, row domain.CircuitBreakerRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers[row.Service] = row
	return nil
}

func (m *Memory) GetCircuitBreaker(ctx context.Context, service string) (domain.CircuitBreakerRow, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.breakers[service]
	return row, ok, nil
}

func (m *Memory) UpsertDownload(ctx context.Context, d domain.Download) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads[d.TorrentHash] = d
	return nil
}

func (m *Memory) GetDownloadByHash(ctx context.Context, hash string) (domain.Download, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.downloads[hash]
	return d, ok, nil
}

func (m *Memory) FindDownloadByParsedName(ctx context.Context, title string, year int, season int) (domain.Download, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.downloads {
		if normalizedEqual(d.Title, title) && d.Year == year && (season == 0 || d.Season == season) {
			return d, true, nil
		}
	}
	return domain.Download{}, false, nil
}

func (m *Memory) UpsertLibraryItem(ctx context.Context, li domain.LibraryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := li.TMDBID + "|" + string(li.Kind) + "|" + li.ServerID
	if existing, ok := m.library[key]; ok {
		li.AddedAt = existing.AddedAt
	}
	m.library[key] = li
	return nil
}

func (m *Memory) GetLibraryItem(ctx context.Context, tmdbID string, kind domain.MediaKind, serverID string) (domain.LibraryItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	li, ok := m.library[tmdbID+"|"+string(kind)+"|"+serverID]
	return li, ok, nil
}

func (m *Memory) AppendActivity(ctx context.Context, entry domain.ActivityLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	m.activity = append(m.activity, entry)
	return nil
}

// Activity exposes the recorded log for test assertions.
func (m *Memory) Activity() []domain.ActivityLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ActivityLogEntry, len(m.activity))
	copy(out, m.activity)
	return out
}

func normalizedEqual(a, b string) bool {
	return normalize(a) == normalize(b)
}

func normalize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			out = append(out, r)
		} else if r >= 'A' && r <= 'Z' {
			out = append(out, r+32)
		}
	}
	return string(out)
}
