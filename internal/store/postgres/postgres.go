// Package postgres implements internal/store.Store on top of
// database/sql + github.com/lib/pq, following the teacher's
// sql.Open("postgres", ...) idiom (pipeline/coordinator.go, main.go)
// rather than an ORM.
package postgres

import (
	"context"
	_ "embed"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"
	"github.com/livepeer-forks/ingestctl/internal/domain"
	"github.com/livepeer-forks/ingestctl/internal/store"
)

//go:embed schema.sql
var schema string

// Postgres implements store.Store.
type Postgres struct {
	db *sql.DB
}

var _ store.Store = (*Postgres)(nil)

// Open connects to connStr and applies the embedded schema.
func Open(connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func marshal(v any) ([]byte, error) { return json.Marshal(v) }

func unmarshal[T any](data []byte, into *T) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, into)
}

func (p *Postgres) CreateRequest(ctx context.Context, req domain.Request) error {
	seasons, err := marshal(req.RequestedSeasons)
	if err != nil {
		return err
	}
	targets, err := marshal(req.Targets)
	if err != nil {
		return err
	}
	releases, err := marshal(req.AvailableReleases)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO requests (id, kind, external_id, title, year, requested_seasons, targets, status, status_label, progress, current_step, error, available_releases, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		req.ID, req.Kind, req.ExternalID, req.Title, req.Year, seasons, targets, req.Status, req.StatusLabel, req.Progress, req.CurrentStep, req.Error, releases, req.CreatedAt, req.UpdatedAt,
	)
	return err
}

func (p *Postgres) GetRequest(ctx context.Context, id string) (domain.Request, bool, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, kind, external_id, title, year, requested_seasons, targets, status, status_label, progress, current_step, error, available_releases, created_at, updated_at
		FROM requests WHERE id = $1`, id)
	var req domain.Request
	var seasons, targets, releases []byte
	var statusLabel sql.NullString
	err := row.Scan(&req.ID, &req.Kind, &req.ExternalID, &req.Title, &req.Year, &seasons, &targets, &req.Status, &statusLabel, &req.Progress, &req.CurrentStep, &req.Error, &releases, &req.CreatedAt, &req.UpdatedAt)
	req.StatusLabel = statusLabel.String
	if err == sql.ErrNoRows {
		return domain.Request{}, false, nil
	}
	if err != nil {
		return domain.Request{}, false, err
	}
	if err := unmarshal(seasons, &req.RequestedSeasons); err != nil {
		return domain.Request{}, false, err
	}
	if err := unmarshal(targets, &req.Targets); err != nil {
		return domain.Request{}, false, err
	}
	if err := unmarshal(releases, &req.AvailableReleases); err != nil {
		return domain.Request{}, false, err
	}
	return req, true, nil
}

func (p *Postgres) UpdateRequest(ctx context.Context, req domain.Request) error {
	seasons, err := marshal(req.RequestedSeasons)
	if err != nil {
		return err
	}
	targets, err := marshal(req.Targets)
	if err != nil {
		return err
	}
	releases, err := marshal(req.AvailableReleases)
	if err != nil {
		return err
	}
	req.UpdatedAt = time.Now()
	res, err := p.db.ExecContext(ctx, `
		UPDATE requests SET kind=$2, external_id=$3, title=$4, year=$5, requested_seasons=$6, targets=$7, status=$8, status_label=$9, progress=$10, current_step=$11, error=$12, available_releases=$13, updated_at=$14
		WHERE id=$1`,
		req.ID, req.Kind, req.ExternalID, req.Title, req.Year, seasons, targets, req.Status, req.StatusLabel, req.Progress, req.CurrentStep, req.Error, releases, req.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateProcessingItem(ctx context.Context, item domain.ProcessingItem) error {
	ctxBlob, err := marshal(item.StepContext)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO processing_items (id, request_id, type, season, episode, status, attempts, max_attempts, current_step, last_error, next_retry_at, skip_until, progress, download_id, encoding_job_id, source_file_path, step_context, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		item.ID, item.RequestID, item.Type, nullableInt(item.Season), nullableInt(item.Episode), item.Status, item.Attempts, item.MaxAttempts, item.CurrentStep, item.LastError, item.NextRetryAt, item.SkipUntil, item.Progress, item.DownloadID, item.EncodingJobID, item.SourceFilePath, ctxBlob, item.CreatedAt, item.UpdatedAt,
	)
	return err
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func (p *Postgres) scanItem(row *sql.Row) (domain.ProcessingItem, bool, error) {
	var it domain.ProcessingItem
	var season, episode sql.NullInt64
	var ctxBlob []byte
	err := row.Scan(&it.ID, &it.RequestID, &it.Type, &season, &episode, &it.Status, &it.Attempts, &it.MaxAttempts, &it.CurrentStep, &it.LastError, &it.NextRetryAt, &it.SkipUntil, &it.Progress, &it.DownloadID, &it.EncodingJobID, &it.SourceFilePath, &ctxBlob, &it.CreatedAt, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.ProcessingItem{}, false, nil
	}
	if err != nil {
		return domain.ProcessingItem{}, false, err
	}
	it.Season = int(season.Int64)
	it.Episode = int(episode.Int64)
	if err := unmarshal(ctxBlob, &it.StepContext); err != nil {
		return domain.ProcessingItem{}, false, err
	}
	return it, true, nil
}

const itemColumns = `id, request_id, type, season, episode, status, attempts, max_attempts, current_step, last_error, next_retry_at, skip_until, progress, download_id, encoding_job_id, source_file_path, step_context, created_at, updated_at`

func (p *Postgres) GetProcessingItem(ctx context.Context, id string) (domain.ProcessingItem, bool, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM processing_items WHERE id=$1`, id)
	return p.scanItem(row)
}

func (p *Postgres) UpdateProcessingItem(ctx context.Context, item domain.ProcessingItem) error {
	ctxBlob, err := marshal(item.StepContext)
	if err != nil {
		return err
	}
	item.UpdatedAt = time.Now()
	res, err := p.db.ExecContext(ctx, `
		UPDATE processing_items SET status=$2, attempts=$3, max_attempts=$4, current_step=$5, last_error=$6, next_retry_at=$7, skip_until=$8, progress=$9, download_id=$10, encoding_job_id=$11, source_file_path=$12, step_context=$13, updated_at=$14
		WHERE id=$1`,
		item.ID, item.Status, item.Attempts, item.MaxAttempts, item.CurrentStep, item.LastError, item.NextRetryAt, item.SkipUntil, item.Progress, item.DownloadID, item.EncodingJobID, item.SourceFilePath, ctxBlob, item.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (p *Postgres) queryItems(ctx context.Context, query string, args ...any) ([]domain.ProcessingItem, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ProcessingItem
	for rows.Next() {
		var it domain.ProcessingItem
		var season, episode sql.NullInt64
		var ctxBlob []byte
		if err := rows.Scan(&it.ID, &it.RequestID, &it.Type, &season, &episode, &it.Status, &it.Attempts, &it.MaxAttempts, &it.CurrentStep, &it.LastError, &it.NextRetryAt, &it.SkipUntil, &it.Progress, &it.DownloadID, &it.EncodingJobID, &it.SourceFilePath, &ctxBlob, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		it.Season = int(season.Int64)
		it.Episode = int(episode.Int64)
		if err := unmarshal(ctxBlob, &it.StepContext); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *Postgres) ListItemsByRequest(ctx context.Context, requestID string) ([]domain.ProcessingItem, error) {
	return p.queryItems(ctx, `SELECT `+itemColumns+` FROM processing_items WHERE request_id=$1`, requestID)
}

func (p *Postgres) ListItemsByStatus(ctx context.Context, status domain.ProcessingStatus) ([]domain.ProcessingItem, error) {
	return p.queryItems(ctx, `SELECT `+itemColumns+` FROM processing_items WHERE status=$1`, status)
}

func (p *Postgres) CreateExecution(ctx context.Context, exec domain.PipelineExecution) error {
	path, err := marshal(exec.CurrentStepPath)
	if err != nil {
		return err
	}
	blob, err := marshal(exec.Context)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO pipeline_executions (id, request_id, item_id, template_id, parent_execution_id, status, current_step_path, context, pause_correlation, started_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		exec.ID, exec.RequestID, exec.ItemID, exec.TemplateID, exec.ParentExecutionID, exec.Status, path, blob, exec.PauseCorrelation, exec.StartedAt, exec.UpdatedAt,
	)
	return err
}

const execColumns = `id, request_id, item_id, template_id, parent_execution_id, status, current_step_path, context, pause_correlation, started_at, updated_at`

func (p *Postgres) scanExecution(row *sql.Row) (domain.PipelineExecution, bool, error) {
	var e domain.PipelineExecution
	var path, blob []byte
	err := row.Scan(&e.ID, &e.RequestID, &e.ItemID, &e.TemplateID, &e.ParentExecutionID, &e.Status, &path, &blob, &e.PauseCorrelation, &e.StartedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.PipelineExecution{}, false, nil
	}
	if err != nil {
		return domain.PipelineExecution{}, false, err
	}
	if err := unmarshal(path, &e.CurrentStepPath); err != nil {
		return domain.PipelineExecution{}, false, err
	}
	if err := unmarshal(blob, &e.Context); err != nil {
		return domain.PipelineExecution{}, false, err
	}
	return e, true, nil
}

func (p *Postgres) GetExecution(ctx context.Context, id string) (domain.PipelineExecution, bool, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+execColumns+` FROM pipeline_executions WHERE id=$1`, id)
	return p.scanExecution(row)
}

func (p *Postgres) UpdateExecution(ctx context.Context, exec domain.PipelineExecution) error {
	path, err := marshal(exec.CurrentStepPath)
	if err != nil {
		return err
	}
	blob, err := marshal(exec.Context)
	if err != nil {
		return err
	}
	exec.UpdatedAt = time.Now()
	res, err := p.db.ExecContext(ctx, `
		UPDATE pipeline_executions SET status=$2, current_step_path=$3, context=$4, pause_correlation=$5, updated_at=$6
		WHERE id=$1`,
		exec.ID, exec.Status, path, blob, exec.PauseCorrelation, exec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (p *Postgres) GetActiveExecutionForItem(ctx context.Context, itemID string) (domain.PipelineExecution, bool, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+execColumns+` FROM pipeline_executions WHERE item_id=$1 AND status IN ('running','paused') ORDER BY started_at DESC LIMIT 1`, itemID)
	return p.scanExecution(row)
}

const assignmentColumns = `id, job_id, encoder_id, input_path, output_path, profile_id, status, attempt, max_attempts, progress, fps, speed, eta, output_size, compression_ratio, encode_duration, error, assigned_at, started_at, completed_at, last_progress_at`

func (p *Postgres) scanAssignment(row *sql.Row) (domain.EncoderAssignment, bool, error) {
	var a domain.EncoderAssignment
	var encoderID, errStr sql.NullString
	var fps, speed, ratio, dur sql.NullFloat64
	var eta sql.NullInt64
	var outputSize sql.NullInt64
	err := row.Scan(&a.ID, &a.JobID, &encoderID, &a.InputPath, &a.OutputPath, &a.ProfileID, &a.Status, &a.Attempt, &a.MaxAttempts, &a.Progress, &fps, &speed, &eta, &outputSize, &ratio, &dur, &errStr, &a.AssignedAt, &a.StartedAt, &a.CompletedAt, &a.LastProgressAt)
	if err == sql.ErrNoRows {
		return domain.EncoderAssignment{}, false, nil
	}
	if err != nil {
		return domain.EncoderAssignment{}, false, err
	}
	a.EncoderID = encoderID.String
	a.Error = errStr.String
	a.FPS = fps.Float64
	a.Speed = speed.Float64
	a.ETA = int(eta.Int64)
	a.OutputSize = outputSize.Int64
	a.CompressionRatio = ratio.Float64
	a.EncodeDuration = dur.Float64
	return a, true, nil
}

func (p *Postgres) CreateAssignment(ctx context.Context, a domain.EncoderAssignment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO encoder_assignments (`+assignmentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		a.ID, a.JobID, nullString(a.EncoderID), a.InputPath, a.OutputPath, a.ProfileID, a.Status, a.Attempt, a.MaxAttempts, a.Progress, nullFloat(a.FPS), nullFloat(a.Speed), nullInt(a.ETA), nullInt64(a.OutputSize), nullFloat(a.CompressionRatio), nullFloat(a.EncodeDuration), nullString(a.Error), a.AssignedAt, a.StartedAt, a.CompletedAt, a.LastProgressAt,
	)
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}
func nullInt(i int) any {
	if i == 0 {
		return nil
	}
	return i
}
func nullInt64(i int64) any {
	if i == 0 {
		return nil
	}
	return i
}

func (p *Postgres) GetAssignment(ctx context.Context, id string) (domain.EncoderAssignment, bool, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM encoder_assignments WHERE id=$1`, id)
	return p.scanAssignment(row)
}

func (p *Postgres) GetAssignmentByJobID(ctx context.Context, jobID string) (domain.EncoderAssignment, bool, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM encoder_assignments WHERE job_id=$1`, jobID)
	return p.scanAssignment(row)
}

func (p *Postgres) GetActiveAssignmentByInputPath(ctx context.Context, inputPath string) (domain.EncoderAssignment, bool, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM encoder_assignments WHERE input_path=$1 AND status IN ('pending','encoding') LIMIT 1`, inputPath)
	return p.scanAssignment(row)
}

func (p *Postgres) UpdateAssignment(ctx context.Context, a domain.EncoderAssignment) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE encoder_assignments SET encoder_id=$2, status=$3, attempt=$4, progress=$5, fps=$6, speed=$7, eta=$8, output_size=$9, compression_ratio=$10, encode_duration=$11, error=$12, assigned_at=$13, started_at=$14, completed_at=$15, last_progress_at=$16
		WHERE id=$1`,
		a.ID, nullString(a.EncoderID), a.Status, a.Attempt, a.Progress, nullFloat(a.FPS), nullFloat(a.Speed), nullInt(a.ETA), nullInt64(a.OutputSize), nullFloat(a.CompressionRatio), nullFloat(a.EncodeDuration), nullString(a.Error), a.AssignedAt, a.StartedAt, a.CompletedAt, a.LastProgressAt,
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (p *Postgres) ListAssignmentsByStatus(ctx context.Context, status domain.AssignmentStatus) ([]domain.EncoderAssignment, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM encoder_assignments WHERE status=$1 ORDER BY assigned_at ASC NULLS FIRST`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.EncoderAssignment
	for rows.Next() {
		var a domain.EncoderAssignment
		var encoderID, errStr sql.NullString
		var fps, speed, ratio, dur sql.NullFloat64
		var eta sql.NullInt64
		var outputSize sql.NullInt64
		if err := rows.Scan(&a.ID, &a.JobID, &encoderID, &a.InputPath, &a.OutputPath, &a.ProfileID, &a.Status, &a.Attempt, &a.MaxAttempts, &a.Progress, &fps, &speed, &eta, &outputSize, &ratio, &dur, &errStr, &a.AssignedAt, &a.StartedAt, &a.CompletedAt, &a.LastProgressAt); err != nil {
			return nil, err
		}
		a.EncoderID = encoderID.String
		a.Error = errStr.String
		a.FPS = fps.Float64
		a.Speed = speed.Float64
		a.ETA = int(eta.Int64)
		a.OutputSize = outputSize.Int64
		a.CompressionRatio = ratio.Float64
		a.EncodeDuration = dur.Float64
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertEncoder(ctx context.Context, e domain.RemoteEncoder) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO remote_encoders (encoder_id, gpu_device, max_concurrent, current_jobs, status, hostname, version, total_completed, total_failed, last_heartbeat)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (encoder_id) DO UPDATE SET gpu_device=$2, max_concurrent=$3, current_jobs=$4, status=$5, hostname=$6, version=$7, total_completed=$8, total_failed=$9, last_heartbeat=$10`,
		e.EncoderID, e.GPUDevice, e.MaxConcurrent, e.CurrentJobs, e.Status, e.Hostname, e.Version, e.TotalCompleted, e.TotalFailed, e.LastHeartbeat,
	)
	return err
}

func (p *Postgres) GetEncoder(ctx context.Context, id string) (domain.RemoteEncoder, bool, error) {
	row := p.db.QueryRowContext(ctx, `SELECT encoder_id, gpu_device, max_concurrent, current_jobs, status, hostname, version, total_completed, total_failed, last_heartbeat FROM remote_encoders WHERE encoder_id=$1`, id)
	var e domain.RemoteEncoder
	err := row.Scan(&e.EncoderID, &e.GPUDevice, &e.MaxConcurrent, &e.CurrentJobs, &e.Status, &e.Hostname, &e.Version, &e.TotalCompleted, &e.TotalFailed, &e.LastHeartbeat)
	if err == sql.ErrNoRows {
		return domain.RemoteEncoder{}, false, nil
	}
	return e, err == nil, err
}

func (p *Postgres) ListEncoders(ctx context.Context) ([]domain.RemoteEncoder, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT encoder_id, gpu_device, max_concurrent, current_jobs, status, hostname, version, total_completed, total_failed, last_heartbeat FROM remote_encoders`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RemoteEncoder
	for rows.Next() {
		var e domain.RemoteEncoder
		if err := rows.Scan(&e.EncoderID, &e.GPUDevice, &e.MaxConcurrent, &e.CurrentJobs, &e.Status, &e.Hostname, &e.Version, &e.TotalCompleted, &e.TotalFailed, &e.LastHeartbeat); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertCircuitBreaker(ctx context.Context, row domain.CircuitBreakerRow) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO circuit_breakers (service, state, failures, last_failure, opens_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (service) DO UPDATE SET state=$2, failures=$3, last_failure=$4, opens_at=$5`,
		row.Service, row.State, row.Failures, row.LastFailure, row.OpensAt,
	)
	return err
}

func (p *Postgres) GetCircuitBreaker(ctx context.Context, service string) (domain.CircuitBreakerRow, bool, error) {
	row := p.db.QueryRowContext(ctx, `SELECT service, state, failures, last_failure, opens_at FROM circuit_breakers WHERE service=$1`, service)
	var r domain.CircuitBreakerRow
	err := row.Scan(&r.Service, &r.State, &r.Failures, &r.LastFailure, &r.OpensAt)
	if err == sql.ErrNoRows {
		return domain.CircuitBreakerRow{}, false, nil
	}
	return r, err == nil, err
}

func (p *Postgres) UpsertDownload(ctx context.Context, d domain.Download) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO downloads (id, torrent_hash, request_id, title, year, season, percent_done, source_file_path, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (torrent_hash) DO UPDATE SET percent_done=$7, source_file_path=$8`,
		d.ID, d.TorrentHash, d.RequestID, d.Title, d.Year, nullableInt(d.Season), d.PercentDone, d.SourceFilePath, d.CreatedAt,
	)
	return err
}

func (p *Postgres) GetDownloadByHash(ctx context.Context, hash string) (domain.Download, bool, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, torrent_hash, request_id, title, year, season, percent_done, source_file_path, created_at FROM downloads WHERE torrent_hash=$1`, hash)
	var d domain.Download
	var season sql.NullInt64
	err := row.Scan(&d.ID, &d.TorrentHash, &d.RequestID, &d.Title, &d.Year, &season, &d.PercentDone, &d.SourceFilePath, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Download{}, false, nil
	}
	if err != nil {
		return domain.Download{}, false, err
	}
	d.Season = int(season.Int64)
	return d, true, nil
}

func (p *Postgres) FindDownloadByParsedName(ctx context.Context, title string, year int, season int) (domain.Download, bool, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, torrent_hash, request_id, title, year, season, percent_done, source_file_path, created_at
		FROM downloads
		WHERE lower(title)=lower($1) AND year=$2 AND ($3=0 OR season=$3)
		LIMIT 1`, title, year, season)
	var d domain.Download
	var s sql.NullInt64
	err := row.Scan(&d.ID, &d.TorrentHash, &d.RequestID, &d.Title, &d.Year, &s, &d.PercentDone, &d.SourceFilePath, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Download{}, false, nil
	}
	if err != nil {
		return domain.Download{}, false, err
	}
	d.Season = int(s.Int64)
	return d, true, nil
}

func (p *Postgres) UpsertLibraryItem(ctx context.Context, li domain.LibraryItem) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO library_items (tmdb_id, kind, server_id, quality, added_at, synced_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (tmdb_id, kind, server_id) DO UPDATE SET quality=$4, synced_at=$6`,
		li.TMDBID, li.Kind, li.ServerID, li.Quality, li.AddedAt, li.SyncedAt,
	)
	return err
}

func (p *Postgres) GetLibraryItem(ctx context.Context, tmdbID string, kind domain.MediaKind, serverID string) (domain.LibraryItem, bool, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT tmdb_id, kind, server_id, quality, added_at, synced_at
		FROM library_items WHERE tmdb_id=$1 AND kind=$2 AND server_id=$3`, tmdbID, kind, serverID)
	var li domain.LibraryItem
	err := row.Scan(&li.TMDBID, &li.Kind, &li.ServerID, &li.Quality, &li.AddedAt, &li.SyncedAt)
	if err == sql.ErrNoRows {
		return domain.LibraryItem{}, false, nil
	}
	if err != nil {
		return domain.LibraryItem{}, false, err
	}
	return li, true, nil
}

func (p *Postgres) AppendActivity(ctx context.Context, entry domain.ActivityLogEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, request_id, item_id, message, error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.ID, entry.RequestID, entry.ItemID, entry.Message, entry.Error, entry.CreatedAt,
	)
	return err
}
