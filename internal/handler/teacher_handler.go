package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/online-course-api/internal/models"
	"github.com/noah-isme/online-course-api/internal/service"
	appErrors "github.com/noah-isme/online-course-api/pkg/errors"
	"github.com/noah-isme/online-course-api/pkg/response"
)

type teacherProfileService interface {
	Profile(ctx context.Context, userID string) (*models.TeacherProfile, error)
	OpenTaughtCourses(ctx context.Context, actor *models.JWTClaims, page, pageSize int) (*service.TaughtCourses, *models.Pagination, error)
	SetTeacherFlag(ctx context.Context, actor *models.JWTClaims, userID string, isTeacher bool) (*models.TeacherProfile, error)
}

// TeacherFlagRequest toggles the teacher flag of a user.
type TeacherFlagRequest struct {
	IsTeacher *bool `json:"is_teacher" binding:"required"`
}

// TeacherHandler wires teacher profile endpoints.
type TeacherHandler struct {
	profiles teacherProfileService
}

// NewTeacherHandler constructs a new TeacherHandler.
func NewTeacherHandler(profiles teacherProfileService) *TeacherHandler {
	return &TeacherHandler{profiles: profiles}
}

// MyCourses godoc
// @Summary Courses taught by the current user
// @Tags Teachers
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teachers/me/courses [get]
func (h *TeacherHandler) MyCourses(c *gin.Context) {
	result, pagination, err := h.profiles.OpenTaughtCourses(c.Request.Context(), claimsFromContext(c), queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, pagination)
}

// Profile godoc
// @Summary User teaching profile
// @Tags Teachers
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/profile [get]
func (h *TeacherHandler) Profile(c *gin.Context) {
	profile, err := h.profiles.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}

// SetTeacherFlag godoc
// @Summary Mark or unmark a user as teacher
// @Tags Teachers
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body TeacherFlagRequest true "Flag payload"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/teacher [put]
func (h *TeacherHandler) SetTeacherFlag(c *gin.Context) {
	var req TeacherFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid teacher flag payload"))
		return
	}
	profile, err := h.profiles.SetTeacherFlag(c.Request.Context(), claimsFromContext(c), c.Param("id"), *req.IsTeacher)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}
