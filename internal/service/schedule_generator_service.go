package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/quarter-scheduler/internal/dto"
	"github.com/noah-isme/quarter-scheduler/internal/models"
	"github.com/noah-isme/quarter-scheduler/internal/scheduler"
	"github.com/noah-isme/quarter-scheduler/pkg/cache"
	appErrors "github.com/noah-isme/quarter-scheduler/pkg/errors"
)

type quarterPlanner interface {
	Plan(q scheduler.Quarter, year int, courses []models.Course) (*scheduler.Result, error)
}

type scheduleRunRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, run *models.ScheduleRun) error
	InsertSessions(ctx context.Context, exec sqlx.ExtContext, sessions []models.ScheduleRunSession) error
	List(ctx context.Context, filter models.ScheduleRunFilter) ([]models.ScheduleRun, int, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleRun, error)
	ListSessions(ctx context.Context, runID string) ([]models.ScheduleRunSession, error)
	Delete(ctx context.Context, id string) error
	UpdateInstructor(ctx context.Context, runID string, assignment models.InstructorAssignment) (int64, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type planCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Invalidate(ctx context.Context, pattern string) error
}

const planFingerprintTTL = 30 * 24 * time.Hour

// ScheduleGeneratorConfig governs generator behaviour.
type ScheduleGeneratorConfig struct {
	ProposalTTL time.Duration
	CacheTTL    time.Duration
	MaxCourses  int
	// Fingerprint identifies the engine configuration so cached plans from a
	// differently configured deployment are never reused.
	Fingerprint string
}

// ScheduleGeneratorService runs the quarter allocation engine and manages
// proposals and persisted schedule runs.
type ScheduleGeneratorService struct {
	engine    quarterPlanner
	runs      scheduleRunRepository
	tx        txProvider
	cache     planCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ScheduleGeneratorConfig
	store     *proposalStore
}

// NewScheduleGeneratorService wires scheduler dependencies. runs, tx, cache
// and metrics may be nil; persistence endpoints then report unavailability.
func NewScheduleGeneratorService(
	engine quarterPlanner,
	runs scheduleRunRepository,
	tx txProvider,
	cache planCache,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleGeneratorConfig,
) *ScheduleGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	return &ScheduleGeneratorService{
		engine:    engine,
		runs:      runs,
		tx:        tx,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		store:     newProposalStore(cfg.ProposalTTL),
	}
}

// Generate allocates the request's courses over one quarter and keeps the
// result as a proposal.
func (s *ScheduleGeneratorService) Generate(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateScheduleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule generation payload")
	}
	quarter, err := scheduler.ParseQuarter(req.Quarter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidQuarter.Code, appErrors.ErrInvalidQuarter.Status, appErrors.ErrInvalidQuarter.Message)
	}
	if err := s.checkCourseLimit(req.Courses); err != nil {
		return nil, err
	}

	resp, err := s.plan(ctx, quarter, req.Year, req.Courses)
	if err != nil {
		return nil, err
	}
	s.remember(resp, req.Courses)
	return resp, nil
}

// GenerateYear plans the four quarters of a fiscal year concurrently, one
// engine run per quarter, and merges the results in fiscal order.
func (s *ScheduleGeneratorService) GenerateYear(ctx context.Context, req dto.GenerateYearRequest) (*dto.GenerateYearResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fiscal year payload")
	}
	if err := s.checkCourseLimit(req.Courses); err != nil {
		return nil, err
	}

	results := make([]*dto.GenerateScheduleResponse, len(scheduler.Quarters))
	group, gctx := errgroup.WithContext(ctx)
	for i, quarter := range scheduler.Quarters {
		i, quarter := i, quarter
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			resp, err := s.plan(gctx, quarter, req.Year, req.Courses)
			if err != nil {
				return err
			}
			results[i] = resp
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := &dto.GenerateYearResponse{
		FiscalYear: req.Year,
		Quarters:   make([]dto.GenerateScheduleResponse, 0, len(results)),
		Sessions:   make([]models.ScheduledSession, 0),
	}
	stats := make([]models.Statistics, 0, len(results))
	for _, resp := range results {
		s.remember(resp, req.Courses)
		out.Quarters = append(out.Quarters, *resp)
		out.Sessions = append(out.Sessions, resp.Sessions...)
		stats = append(stats, resp.Statistics)
	}
	out.Statistics = mergeStatistics(stats)
	return out, nil
}

// Proposal returns a stored, unexpired proposal.
func (s *ScheduleGeneratorService) Proposal(id string) (*dto.GenerateScheduleResponse, bool) {
	proposal, ok := s.store.Get(id)
	if !ok {
		return nil, false
	}
	resp := proposal.Response
	return &resp, true
}

// Save persists a proposal and its sessions in one transaction.
func (s *ScheduleGeneratorService) Save(ctx context.Context, req dto.SaveScheduleRequest, actor string) (*models.ScheduleRun, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save schedule payload")
	}
	if err := s.requirePersistence(); err != nil {
		return nil, err
	}
	proposal, ok := s.store.Take(req.ProposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	saved := false
	defer func() {
		if !saved {
			s.store.Restore(proposal)
		}
	}()

	status := models.ScheduleRunStatusDraft
	if req.Publish {
		status = models.ScheduleRunStatusPublished
	}
	resp := proposal.Response
	run := &models.ScheduleRun{
		ID:                     uuid.NewString(),
		Quarter:                resp.Quarter,
		FiscalYear:             resp.FiscalYear,
		Status:                 status,
		TotalAvailableSlots:    resp.Statistics.TotalAvailableSlots,
		TotalScheduledSessions: resp.Statistics.TotalScheduledSessions,
		SlotsAfterScheduling:   resp.Statistics.SlotsAfterScheduling,
		UtilizationPercentage:  resp.Statistics.UtilizationPercentage,
		CreatedBy:              actor,
		CreatedAt:              time.Now().UTC(),
	}
	sessions := make([]models.ScheduleRunSession, 0, len(resp.Sessions))
	for _, session := range resp.Sessions {
		sessions = append(sessions, models.ScheduleRunSession{
			ID:              uuid.NewString(),
			RunID:           run.ID,
			SessionDate:     session.Date,
			CourseTitle:     session.CourseTitle,
			SessionNumber:   session.SessionNumber,
			StartTime:       session.StartTime,
			EndTime:         session.EndTime,
			InstructorName:  session.InstructorName,
			InstructorEmail: session.InstructorEmail,
		})
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.runs.Create(ctx, tx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule run")
	}
	if err = s.runs.InsertSessions(ctx, tx, sessions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist schedule sessions")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule run")
	}

	saved = true
	s.logger.Info("schedule run saved",
		zap.String("run_id", run.ID),
		zap.String("quarter", run.Quarter),
		zap.Int("fiscal_year", run.FiscalYear),
		zap.Int("sessions", len(sessions)),
	)
	return run, nil
}

// List returns persisted runs with pagination metadata.
func (s *ScheduleGeneratorService) List(ctx context.Context, query dto.ScheduleRunQuery) ([]models.ScheduleRun, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule run query")
	}
	if err := s.requirePersistence(); err != nil {
		return nil, nil, err
	}
	filter := models.ScheduleRunFilter{FiscalYear: query.FiscalYear, Page: query.Page, PageSize: query.PageSize}
	if query.Quarter != "" {
		quarter, err := scheduler.ParseQuarter(query.Quarter)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInvalidQuarter.Code, appErrors.ErrInvalidQuarter.Status, appErrors.ErrInvalidQuarter.Message)
		}
		filter.Quarter = string(quarter)
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	runs, total, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule runs")
	}
	return runs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// GetSessions returns the sessions of a stored run ordered by date and time.
func (s *ScheduleGeneratorService) GetSessions(ctx context.Context, runID string) ([]models.ScheduleRunSession, error) {
	if err := s.requirePersistence(); err != nil {
		return nil, err
	}
	if _, err := s.findRun(ctx, runID); err != nil {
		return nil, err
	}
	sessions, err := s.runs.ListSessions(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule sessions")
	}
	return sessions, nil
}

// Delete removes a draft run.
func (s *ScheduleGeneratorService) Delete(ctx context.Context, runID string) error {
	if err := s.requirePersistence(); err != nil {
		return err
	}
	run, err := s.findRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != models.ScheduleRunStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft schedule runs can be deleted")
	}
	if err := s.runs.Delete(ctx, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule run not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule run")
	}
	return nil
}

// AssignInstructor sets instructor details on a course's sessions within a run.
func (s *ScheduleGeneratorService) AssignInstructor(ctx context.Context, runID string, req dto.AssignInstructorRequest) (int64, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instructor assignment")
	}
	if err := s.requirePersistence(); err != nil {
		return 0, err
	}
	if _, err := s.findRun(ctx, runID); err != nil {
		return 0, err
	}
	updated, err := s.runs.UpdateInstructor(ctx, runID, models.InstructorAssignment{
		CourseTitle:     req.CourseTitle,
		SessionNumber:   req.SessionNumber,
		InstructorName:  req.InstructorName,
		InstructorEmail: req.InstructorEmail,
	})
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign instructor")
	}
	if updated == 0 {
		return 0, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no sessions of %q in this run", req.CourseTitle))
	}
	return updated, nil
}

func (s *ScheduleGeneratorService) plan(ctx context.Context, quarter scheduler.Quarter, year int, courses []models.Course) (*dto.GenerateScheduleResponse, error) {
	key := s.cacheKey(quarter, year, courses)
	if s.cache != nil {
		var cached dto.GenerateScheduleResponse
		if s.cache.Get(ctx, key, &cached) {
			cached.Cached = true
			return &cached, nil
		}
	}

	start := time.Now()
	result, err := s.engine.Plan(quarter, year, courses)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrInvalidQuarter):
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidQuarter.Code, appErrors.ErrInvalidQuarter.Status, appErrors.ErrInvalidQuarter.Message)
		case errors.Is(err, scheduler.ErrInvalidYear):
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("year %d is out of range", year))
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "schedule generation failed")
		}
	}
	elapsed := time.Since(start)

	s.metrics.ObserveAllocation(AllocationOutcome{
		Quarter:     string(quarter),
		Duration:    elapsed,
		Sessions:    len(result.Sessions),
		Attempts:    result.Attempts,
		Placements:  result.Placements,
		Rollbacks:   result.Rollbacks,
		Utilization: result.Statistics.UtilizationPercentage,
	})
	s.logger.Info("quarter allocated",
		zap.String("quarter", string(quarter)),
		zap.Int("fiscal_year", year),
		zap.Int("courses", len(courses)),
		zap.Int("sessions", len(result.Sessions)),
		zap.Int("rollbacks", result.Rollbacks),
		zap.Float64("utilization", result.Statistics.UtilizationPercentage),
		zap.Duration("elapsed", elapsed),
	)

	resp := &dto.GenerateScheduleResponse{
		Quarter:      string(quarter),
		FiscalYear:   year,
		Sessions:     result.Sessions,
		Statistics:   result.Statistics,
		CalendarGrid: BuildCalendarGrid(result.Sessions),
		Counters: dto.AllocationCounters{
			Attempts:   result.Attempts,
			Placements: result.Placements,
			Rollbacks:  result.Rollbacks,
		},
	}
	if resp.Sessions == nil {
		resp.Sessions = []models.ScheduledSession{}
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, resp, s.cfg.CacheTTL)
	}
	return resp, nil
}

func (s *ScheduleGeneratorService) remember(resp *dto.GenerateScheduleResponse, courses []models.Course) {
	resp.ProposalID = uuid.NewString()
	s.store.Save(scheduleProposal{
		ID:        resp.ProposalID,
		Response:  *resp,
		Courses:   courses,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *ScheduleGeneratorService) checkCourseLimit(courses []models.Course) error {
	if s.cfg.MaxCourses > 0 && len(courses) > s.cfg.MaxCourses {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d courses per request", s.cfg.MaxCourses))
	}
	return nil
}

func (s *ScheduleGeneratorService) requirePersistence() error {
	if s.runs == nil || s.tx == nil {
		return appErrors.Clone(appErrors.ErrUnavailable, "schedule persistence is disabled")
	}
	return nil
}

func (s *ScheduleGeneratorService) findRun(ctx context.Context, runID string) (*models.ScheduleRun, error) {
	if runID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule run id is required")
	}
	run, err := s.runs.FindByID(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule run")
	}
	return run, nil
}

// cacheKey hashes the course list; order matters because allocation is greedy.
// ResetPlanCache drops cached plans when the stored engine fingerprint differs
// from the current configuration.
func (s *ScheduleGeneratorService) ResetPlanCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	marker := cache.Key("plan-fingerprint")
	var stored string
	if s.cache.Get(ctx, marker, &stored) && stored == s.cfg.Fingerprint {
		return nil
	}
	if err := s.cache.Invalidate(ctx, cache.Key("plan", "*")); err != nil {
		return err
	}
	s.cache.Set(ctx, marker, s.cfg.Fingerprint, planFingerprintTTL)
	s.logger.Info("plan cache reset", zap.String("previous", stored), zap.String("fingerprint", s.cfg.Fingerprint))
	return nil
}

func (s *ScheduleGeneratorService) cacheKey(quarter scheduler.Quarter, year int, courses []models.Course) string {
	payload, _ := json.Marshal(courses)
	sum := sha256.Sum256(append([]byte(s.cfg.Fingerprint+"|"), payload...))
	return cache.Key("plan", string(quarter), strconv.Itoa(year), hex.EncodeToString(sum[:16]))
}

// BuildCalendarGrid indexes sessions by date and start time.
func BuildCalendarGrid(sessions []models.ScheduledSession) dto.CalendarGrid {
	grid := make(dto.CalendarGrid)
	for _, session := range sessions {
		day, ok := grid[session.Date]
		if !ok {
			day = make(map[string][]dto.CalendarEntry)
			grid[session.Date] = day
		}
		day[session.StartTime] = append(day[session.StartTime], dto.CalendarEntry{
			Course:        session.CourseTitle,
			SessionNumber: session.SessionNumber,
		})
	}
	return grid
}

// mergeStatistics sums quarter statistics and recomputes utilization from
// the summed totals.
func mergeStatistics(parts []models.Statistics) models.Statistics {
	merged := models.Statistics{FullyBookedDates: make([]string, 0)}
	for _, part := range parts {
		merged.TotalAvailableSlots += part.TotalAvailableSlots
		merged.TotalScheduledSessions += part.TotalScheduledSessions
		merged.SlotsAfterScheduling += part.SlotsAfterScheduling
		merged.FullyBookedDates = append(merged.FullyBookedDates, part.FullyBookedDates...)
	}
	if merged.TotalAvailableSlots > 0 {
		ratio := float64(merged.TotalScheduledSessions) / float64(merged.TotalAvailableSlots) * 100
		merged.UtilizationPercentage = math.Round(ratio*100) / 100
	}
	return merged
}

type scheduleProposal struct {
	ID        string
	Response  dto.GenerateScheduleResponse
	Courses   []models.Course
	CreatedAt time.Time
}

type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]scheduleProposal
	now   func() time.Time
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]scheduleProposal),
		now:   time.Now,
	}
}

func (s *proposalStore) Save(proposal scheduleProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.items[proposal.ID] = proposal
}

func (s *proposalStore) Get(id string) (scheduleProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return scheduleProposal{}, false
	}
	if s.now().Sub(proposal.CreatedAt) > s.ttl {
		s.Delete(id)
		return scheduleProposal{}, false
	}
	return proposal, true
}

// Take removes and returns an unexpired proposal. Concurrent callers for the
// same id get it at most once.
func (s *proposalStore) Take(id string) (scheduleProposal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proposal, ok := s.items[id]
	if !ok {
		return scheduleProposal{}, false
	}
	delete(s.items, id)
	if s.now().Sub(proposal.CreatedAt) > s.ttl {
		return scheduleProposal{}, false
	}
	return proposal, true
}

// Restore puts back a proposal claimed by Take. Its original creation time
// still bounds its lifetime.
func (s *proposalStore) Restore(proposal scheduleProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[proposal.ID]; !exists {
		s.items[proposal.ID] = proposal
	}
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

func (s *proposalStore) sweepLocked() {
	now := s.now()
	for id, proposal := range s.items {
		if now.Sub(proposal.CreatedAt) > s.ttl {
			delete(s.items, id)
		}
	}
}
