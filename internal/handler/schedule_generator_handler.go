package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/quarter-scheduler/internal/dto"
	"github.com/noah-isme/quarter-scheduler/internal/models"
	"github.com/noah-isme/quarter-scheduler/internal/service"
	appErrors "github.com/noah-isme/quarter-scheduler/pkg/errors"
	"github.com/noah-isme/quarter-scheduler/pkg/response"
)

const maxImportBytes = 2 << 20

type scheduleGenerator interface {
	Generate(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateScheduleResponse, error)
	GenerateYear(ctx context.Context, req dto.GenerateYearRequest) (*dto.GenerateYearResponse, error)
	Proposal(id string) (*dto.GenerateScheduleResponse, bool)
	Save(ctx context.Context, req dto.SaveScheduleRequest, actor string) (*models.ScheduleRun, error)
	List(ctx context.Context, query dto.ScheduleRunQuery) ([]models.ScheduleRun, *models.Pagination, error)
	GetSessions(ctx context.Context, runID string) ([]models.ScheduleRunSession, error)
	Delete(ctx context.Context, runID string) error
	AssignInstructor(ctx context.Context, runID string, req dto.AssignInstructorRequest) (int64, error)
}

type courseImporter interface {
	ParseCSV(r io.Reader) (*dto.ImportCoursesResponse, error)
}

// ScheduleGeneratorHandler exposes scheduler endpoints.
type ScheduleGeneratorHandler struct {
	service  scheduleGenerator
	importer courseImporter
}

// NewScheduleGeneratorHandler constructs the handler.
func NewScheduleGeneratorHandler(svc *service.ScheduleGeneratorService, importer *service.CourseNormalizer) *ScheduleGeneratorHandler {
	return &ScheduleGeneratorHandler{service: svc, importer: importer}
}

// Generate godoc
// @Summary Allocate courses over one fiscal quarter
// @Description Runs the allocation engine and stores the result as a proposal that can later be saved or exported.
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.GenerateScheduleRequest true "Quarter, fiscal year and ordered course list"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedules/generator [post]
func (h *ScheduleGeneratorHandler) Generate(c *gin.Context) {
	var req dto.GenerateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// GenerateYear godoc
// @Summary Allocate courses over all four quarters of a fiscal year
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.GenerateYearRequest true "Fiscal year and ordered course list"
// @Success 200 {object} response.Envelope
// @Router /schedules/generator/year [post]
func (h *ScheduleGeneratorHandler) GenerateYear(c *gin.Context) {
	var req dto.GenerateYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.service.GenerateYear(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Proposal godoc
// @Summary Fetch a stored proposal
// @Tags Scheduler
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/proposals/{id} [get]
func (h *ScheduleGeneratorHandler) Proposal(c *gin.Context) {
	proposal, ok := h.service.Proposal(c.Param("id"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired"))
		return
	}
	response.JSON(c, http.StatusOK, proposal, nil)
}

// ImportCourses godoc
// @Summary Normalize a course spreadsheet
// @Description Accepts a CSV body or a multipart "file" field. Header spellings are matched loosely; rejected rows are reported with their line number.
// @Tags Scheduler
// @Accept text/csv
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /schedules/import [post]
func (h *ScheduleGeneratorHandler) ImportCourses(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	var reader io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			if importTooLarge(err) {
				response.Error(c, importTooLargeError(err))
				return
			}
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart field \"file\" is required"))
			return
		}
		file, err := header.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "cannot read uploaded file"))
			return
		}
		defer file.Close()
		reader = file
	}
	result, err := h.importer.ParseCSV(reader)
	if err != nil {
		if importTooLarge(err) {
			err = importTooLargeError(err)
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{
		"accepted": len(result.Courses),
		"rejected": len(result.Rejected),
	})
}

func importTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func importTooLargeError(err error) error {
	message := fmt.Sprintf("course file exceeds the %d MiB upload limit", maxImportBytes>>20)
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusRequestEntityTooLarge, message)
}

// Save godoc
// @Summary Persist a proposal as a schedule run
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.SaveScheduleRequest true "Save schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /schedules/save [post]
func (h *ScheduleGeneratorHandler) Save(c *gin.Context) {
	var req dto.SaveScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	run, err := h.service.Save(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, run)
}

// List godoc
// @Summary List saved schedule runs
// @Tags Scheduler
// @Produce json
// @Param quarter query string false "Quarter (Q1-Q4)"
// @Param year query int false "Fiscal year"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedule-runs [get]
func (h *ScheduleGeneratorHandler) List(c *gin.Context) {
	var query dto.ScheduleRunQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	runs, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

// Sessions godoc
// @Summary Sessions of a saved schedule run
// @Tags Scheduler
// @Produce json
// @Param id path string true "Schedule run ID"
// @Success 200 {object} response.Envelope
// @Router /schedule-runs/{id}/sessions [get]
func (h *ScheduleGeneratorHandler) Sessions(c *gin.Context) {
	sessions, err := h.service.GetSessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Delete godoc
// @Summary Delete a draft schedule run
// @Tags Scheduler
// @Param id path string true "Schedule run ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /schedule-runs/{id} [delete]
func (h *ScheduleGeneratorHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignInstructor godoc
// @Summary Assign an instructor to a course's sessions
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param id path string true "Schedule run ID"
// @Param payload body dto.AssignInstructorRequest true "Instructor assignment"
// @Success 200 {object} response.Envelope
// @Router /schedule-runs/{id}/sessions/instructor [patch]
func (h *ScheduleGeneratorHandler) AssignInstructor(c *gin.Context) {
	var req dto.AssignInstructorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid instructor payload"))
		return
	}
	updated, err := h.service.AssignInstructor(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}
