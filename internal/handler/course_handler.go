package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/online-course-api/internal/models"
	"github.com/noah-isme/online-course-api/internal/service"
	appErrors "github.com/noah-isme/online-course-api/pkg/errors"
	"github.com/noah-isme/online-course-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, actor *models.JWTClaims, filter models.CourseFilter) ([]models.CourseView, *models.Pagination, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseView, error)
	Create(ctx context.Context, actor *models.JWTClaims, req service.CourseRequest) (*models.CourseView, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req service.CourseRequest) (*models.CourseView, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) error
	Publish(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseView, error)
	Archive(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseView, error)
	ResetToDraft(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseView, error)
	Enroll(ctx context.Context, actor *models.JWTClaims, id string) (*models.Notification, error)
	Unenroll(ctx context.Context, actor *models.JWTClaims, id string) (*models.Notification, error)
	ListEnrollments(ctx context.Context, actor *models.JWTClaims, id string) ([]models.EnrollmentDetail, error)
	SetEnrollmentStatus(ctx context.Context, actor *models.JWTClaims, enrollmentID string, req service.EnrollmentStatusRequest) (*models.Enrollment, error)
}

type rosterExporter interface {
	ExportRoster(ctx context.Context, actor *models.JWTClaims, courseID string, format service.RosterFormat) (*service.RosterFile, error)
}

// CourseHandler exposes the course catalog, workflow and enrollment endpoints.
type CourseHandler struct {
	courses courseService
	rosters rosterExporter
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(courses courseService, rosters rosterExporter) *CourseHandler {
	return &CourseHandler{courses: courses, rosters: rosters}
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Param state query string false "draft, published or archived"
// @Param teacher_id query string false "Teacher ID"
// @Param search query string false "Search by name/description"
// @Param page query int false "Page number"
// @Param limit query int false "Page size (max 100)"
// @Param sort query string false "Sort field (created_at,name,price)"
// @Param order query string false "Sort order (asc/desc)"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	filter := models.CourseFilter{
		State:     models.CourseState(strings.ToLower(strings.TrimSpace(c.Query("state")))),
		TeacherID: strings.TrimSpace(c.Query("teacher_id")),
		Search:    strings.TrimSpace(c.Query("search")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "limit", 20),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	courses, pagination, err := h.courses.List(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get course detail
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

// Create godoc
// @Summary Create course
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.CourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req service.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body service.CourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req service.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	course, err := h.courses.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

// Delete godoc
// @Summary Delete course and its enrollments
// @Tags Courses
// @Param id path string true "Course ID"
// @Success 204
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.courses.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Publish godoc
// @Summary Publish course
// @Tags Course Workflow
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /courses/{id}/publish [post]
func (h *CourseHandler) Publish(c *gin.Context) {
	h.transition(c, h.courses.Publish)
}

// Archive godoc
// @Summary Archive course
// @Tags Course Workflow
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/archive [post]
func (h *CourseHandler) Archive(c *gin.Context) {
	h.transition(c, h.courses.Archive)
}

// ResetToDraft godoc
// @Summary Reset course to draft
// @Tags Course Workflow
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/reset-to-draft [post]
func (h *CourseHandler) ResetToDraft(c *gin.Context) {
	h.transition(c, h.courses.ResetToDraft)
}

func (h *CourseHandler) transition(c *gin.Context, fn func(context.Context, *models.JWTClaims, string) (*models.CourseView, error)) {
	course, err := fn(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

// Enroll godoc
// @Summary Enroll the current user
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /courses/{id}/enroll [post]
func (h *CourseHandler) Enroll(c *gin.Context) {
	h.acknowledge(c, h.courses.Enroll)
}

// Unenroll godoc
// @Summary Unenroll the current user
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/unenroll [post]
func (h *CourseHandler) Unenroll(c *gin.Context) {
	h.acknowledge(c, h.courses.Unenroll)
}

func (h *CourseHandler) acknowledge(c *gin.Context, fn func(context.Context, *models.JWTClaims, string) (*models.Notification, error)) {
	ack, err := fn(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, ack)
}

// ListEnrollments godoc
// @Summary Course roster
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollments [get]
func (h *CourseHandler) ListEnrollments(c *gin.Context) {
	roster, err := h.courses.ListEnrollments(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, roster)
}

// ExportRoster godoc
// @Summary Download course roster
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /courses/{id}/roster [get]
func (h *CourseHandler) ExportRoster(c *gin.Context) {
	file, err := h.rosters.ExportRoster(c.Request.Context(), claimsFromContext(c), c.Param("id"), service.RosterFormat(c.DefaultQuery("format", "csv")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// SetEnrollmentStatus godoc
// @Summary Change enrollment status
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.EnrollmentStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/status [patch]
func (h *CourseHandler) SetEnrollmentStatus(c *gin.Context) {
	var req service.EnrollmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment status payload"))
		return
	}
	enrollment, err := h.courses.SetEnrollmentStatus(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}
