package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/quarter-scheduler/internal/dto"
	"github.com/noah-isme/quarter-scheduler/internal/models"
	appErrors "github.com/noah-isme/quarter-scheduler/pkg/errors"
	"github.com/noah-isme/quarter-scheduler/pkg/export"
	"github.com/noah-isme/quarter-scheduler/pkg/jobs"
	"github.com/noah-isme/quarter-scheduler/pkg/storage"
)

const exportJobKind = "schedule-export"

type proposalSource interface {
	Proposal(id string) (*dto.GenerateScheduleResponse, bool)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload aggregates resolved download data.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

type exportPayload struct {
	Format   models.ExportFormat
	Schedule dto.GenerateScheduleResponse
}

type exportRecord struct {
	job     models.ExportJob
	relPath string
}

// ExportService renders schedule proposals to CSV or PDF in the background and
// hands out signed download links.
type ExportService struct {
	proposals proposalSource
	storage   fileStorage
	csv       datasetRenderer
	pdf       datasetRenderer
	signer    *storage.SignedURLSigner
	queue     jobDispatcher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig

	mu   sync.RWMutex
	jobs map[string]*exportRecord
	now  func() time.Time
}

// NewExportService constructs an ExportService. The queue is attached later
// because it dispatches back into Process.
func NewExportService(proposals proposalSource, files fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger, cfg ExportConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		proposals: proposals,
		storage:   files,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(1.1, 0.8, 2.4, 0.7, 0.7, 0.7, 1.5, 1.9),
		signer:    signer,
		metrics:   metrics,
		validator: validator.New(),
		logger:    logger,
		cfg:       cfg,
		jobs:      make(map[string]*exportRecord),
		now:       time.Now,
	}
}

// AttachQueue sets the dispatcher used by Request.
func (s *ExportService) AttachQueue(queue jobDispatcher) {
	s.queue = queue
}

// Request snapshots a proposal and queues it for rendering.
func (s *ExportService) Request(ctx context.Context, proposalID string, req dto.ExportScheduleRequest, actor string) (*models.ExportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}
	if s.queue == nil || s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "schedule exports are disabled")
	}
	proposal, ok := s.proposals.Proposal(proposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}

	format := models.ExportFormat(req.Format)
	record := &exportRecord{job: models.ExportJob{
		ID:         uuid.NewString(),
		ProposalID: proposalID,
		Format:     format,
		Status:     models.ExportStatusQueued,
		CreatedBy:  actor,
		CreatedAt:  s.now().UTC(),
	}}
	s.mu.Lock()
	s.jobs[record.job.ID] = record
	s.mu.Unlock()

	err := s.queue.Enqueue(jobs.Job{
		ID:      record.job.ID,
		Kind:    exportJobKind,
		Payload: exportPayload{Format: format, Schedule: *proposal},
	})
	if err != nil {
		s.finish(record.job.ID, "", nil, err)
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to enqueue export job")
	}
	s.metrics.RecordExportJob(format, models.ExportStatusQueued)
	s.logger.Info("export queued", zap.String("export_id", record.job.ID), zap.String("format", string(format)))

	job := record.job
	return &job, nil
}

// Status returns the current state of an export job.
func (s *ExportService) Status(ctx context.Context, id string) (*models.ExportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.jobs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	job := record.job
	return &job, nil
}

// Process renders one queued export. Returned errors are retried by the queue.
func (s *ExportService) Process(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(exportPayload)
	if !ok {
		return fmt.Errorf("export %s: unexpected payload %T", job.ID, job.Payload)
	}
	s.setStatus(job.ID, models.ExportStatusRunning)

	dataset := ScheduleDataset(payload.Schedule)
	var (
		rendered []byte
		err      error
	)
	switch payload.Format {
	case models.ExportFormatCSV:
		rendered, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		rendered, err = s.pdf.Render(dataset)
	default:
		err = fmt.Errorf("unsupported format %s", payload.Format)
	}
	if err != nil {
		return err
	}

	relPath, err := s.storage.Save(exportFilename(job.ID, payload), rendered)
	if err != nil {
		return err
	}
	token, _, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		_ = s.storage.Delete(relPath)
		return err
	}
	resultURL := s.downloadURL(token)
	s.finish(job.ID, relPath, &resultURL, nil)
	s.metrics.RecordExportJob(payload.Format, models.ExportStatusFinished)
	s.logger.Info("export finished",
		zap.String("export_id", job.ID),
		zap.String("path", relPath),
		zap.Int("bytes", len(rendered)),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}

// MarkFailed records a job that exhausted its retries.
func (s *ExportService) MarkFailed(job jobs.Job, err error) {
	s.finish(job.ID, "", nil, err)
	if payload, ok := job.Payload.(exportPayload); ok {
		s.metrics.RecordExportJob(payload.Format, models.ExportStatusFailed)
	}
	s.logger.Warn("export failed", zap.String("export_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
}

// ResolveDownload validates token and opens the stored export file.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	if s.signer == nil || s.storage == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "schedule exports are disabled")
	}
	exportID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link has expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}

	s.mu.RLock()
	record, ok := s.jobs[exportID]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	if record.job.Status != models.ExportStatusFinished || record.relPath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export not ready")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    record.job.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// Cleanup removes exports older than the result TTL from disk and forgets
// their jobs.
func (s *ExportService) Cleanup() {
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	s.mu.Lock()
	for id, record := range s.jobs {
		if record.job.FinishedAt != nil && record.job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
	s.mu.Unlock()

	if s.storage == nil {
		return
	}
	removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
}

// StartCleanup purges expired exports until ctx is cancelled.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

func (s *ExportService) setStatus(id string, status models.ExportStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.jobs[id]; ok {
		record.job.Status = status
	}
}

func (s *ExportService) finish(id, relPath string, resultURL *string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.jobs[id]
	if !ok {
		return
	}
	now := s.now().UTC()
	record.job.FinishedAt = &now
	if cause != nil {
		msg := cause.Error()
		record.job.Status = models.ExportStatusFailed
		record.job.ErrorMessage = &msg
		return
	}
	record.job.Status = models.ExportStatusFinished
	record.job.ResultURL = resultURL
	record.relPath = relPath
}

func (s *ExportService) downloadURL(token string) string {
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/exports/download?token=%s", prefix, url.QueryEscape(token))
}

func exportFilename(id string, payload exportPayload) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("schedules/%s_FY%d_%s.%s", payload.Schedule.Quarter, payload.Schedule.FiscalYear, short, payload.Format)
}

// ScheduleDataset flattens a proposal into export rows with a statistics footer.
func ScheduleDataset(schedule dto.GenerateScheduleResponse) export.Dataset {
	rows := make([][]string, 0, len(schedule.Sessions))
	for _, session := range schedule.Sessions {
		weekday := ""
		if date, err := time.Parse("2006-01-02", session.Date); err == nil {
			weekday = date.Weekday().String()
		}
		rows = append(rows, []string{
			session.Date,
			weekday,
			session.CourseTitle,
			strconv.Itoa(session.SessionNumber),
			session.StartTime,
			session.EndTime,
			session.InstructorName,
			session.InstructorEmail,
		})
	}
	stats := schedule.Statistics
	return export.Dataset{
		Title:   fmt.Sprintf("Course Schedule %s FY%d", schedule.Quarter, schedule.FiscalYear),
		Headers: []string{"Date", "Weekday", "Course", "Session", "Start", "End", "Instructor", "Email"},
		Rows:    rows,
		Footer: []string{
			fmt.Sprintf("Total available slots: %d", stats.TotalAvailableSlots),
			fmt.Sprintf("Scheduled sessions: %d", stats.TotalScheduledSessions),
			fmt.Sprintf("Slots remaining: %d", stats.SlotsAfterScheduling),
			fmt.Sprintf("Utilization: %.2f%%", stats.UtilizationPercentage),
			fmt.Sprintf("Fully booked dates: %d", len(stats.FullyBookedDates)),
		},
	}
}
