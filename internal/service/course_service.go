package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/online-course-api/internal/models"
	"github.com/noah-isme/online-course-api/internal/repository"
	appErrors "github.com/noah-isme/online-course-api/pkg/errors"
)

// User-facing rule messages.
const (
	msgPublishRequiresPrice = "A paid course must have a price greater than 0 to be published."
	msgSelfEnrollment       = "You can't enroll in your own course"
	msgNotPublished         = "Online course must be published to be enrolled."
	msgCourseFull           = "Cannot enroll in '%s' as it is already full."
	msgDuplicateEnrollment  = "A student can only be enrolled in a course once."
	msgEnrolled             = "You have been enrolled in '%s' course."
	msgUnenrolled           = "You have been unenrolled from '%s' course."
	titleEnrolled           = "Enrollment Successful"
	titleUnenrolled         = "Unenrollment Successful"
)

const courseCachePattern = "courses:*"

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseRow, int, error)
	FindByID(ctx context.Context, id string) (*models.CourseRow, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	UpdateState(ctx context.Context, id string, state models.CourseState) error
	Delete(ctx context.Context, id string) error
}

type courseEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Enrollment, error)
	EnrolledCourseIDs(ctx context.Context, studentID string, courseIDs []string) (map[string]bool, error)
	EnrollmentCounts(ctx context.Context, courseIDs []string) (map[string]int, error)
	CreateWithinCapacity(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CourseRequest is the payload for creating or replacing a course. Derived
// attributes and the publication state are not accepted.
type CourseRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Description string  `json:"description" validate:"required"`
	Price       float64 `json:"price" validate:"gte=0"`
	Currency    string  `json:"currency" validate:"omitempty,iso4217"`
	TeacherID   string  `json:"teacher_id"`
	Capacity    int     `json:"capacity" validate:"gte=0"`
}

// EnrollmentStatusRequest changes the status of an enrollment.
type EnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=enrolled completed cancelled"`
}

// CourseConfig tunes CourseService.
type CourseConfig struct {
	DefaultCurrency string
	CacheTTL        time.Duration
}

// cachedCoursePage holds base course data only. Enrollment counts are loaded
// per request so a page written after an invalidation cannot pin a stale count.
type cachedCoursePage struct {
	Rows  []models.CourseRow `json:"rows"`
	Total int                `json:"total"`
}

// CourseService owns the course workflow, enrollment rules and derived attributes.
type CourseService struct {
	courses     courseRepository
	enrollments courseEnrollmentRepository
	users       userReader
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         CourseConfig
}

// NewCourseService constructs CourseService.
func NewCourseService(courses courseRepository, enrollments courseEnrollmentRepository, users userReader, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg CourseConfig) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	return &CourseService{
		courses:     courses,
		enrollments: enrollments,
		users:       users,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// List returns courses with derived attributes evaluated for actor.
func (s *CourseService) List(ctx context.Context, actor *models.JWTClaims, filter models.CourseFilter) ([]models.CourseView, *models.Pagination, error) {
	if filter.State != "" && !filter.State.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid course state filter")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	filter.Page, filter.PageSize = page, size

	var cached cachedCoursePage
	key := courseListCacheKey(filter)
	hit, _ := s.cache.Get(ctx, key, &cached)
	if !hit {
		rows, total, err := s.courses.List(ctx, filter)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
		}
		cached = cachedCoursePage{Rows: make([]models.CourseRow, len(rows)), Total: total}
		for i, row := range rows {
			row.EnrollmentsCount = 0
			cached.Rows[i] = row
		}
		_ = s.cache.Set(ctx, key, cached, s.cfg.CacheTTL)
	}

	rows, err := s.withEnrollmentCounts(ctx, cached.Rows)
	if err != nil {
		return nil, nil, err
	}
	views, err := s.views(ctx, actor, rows)
	if err != nil {
		return nil, nil, err
	}
	return views, &models.Pagination{Page: page, PageSize: size, TotalCount: cached.Total}, nil
}

// Get returns a single course for actor.
func (s *CourseService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseView, error) {
	row, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, actor, row)
}

// Create registers a new draft course. The teacher defaults to the actor.
func (s *CourseService) Create(ctx context.Context, actor *models.JWTClaims, req CourseRequest) (*models.CourseView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	req = s.normalize(req)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	teacherID, err := s.resolveTeacher(ctx, actor, req.TeacherID)
	if err != nil {
		return nil, err
	}

	course := &models.Course{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Currency:    req.Currency,
		TeacherID:   teacherID,
		Capacity:    req.Capacity,
		State:       models.CourseStateDraft,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.invalidate(ctx)
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("teacher_id", teacherID))
	return s.Get(ctx, actor, course.ID)
}

// Update replaces the editable attributes of a course.
func (s *CourseService) Update(ctx context.Context, actor *models.JWTClaims, id string, req CourseRequest) (*models.CourseView, error) {
	row, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	req = s.normalize(req)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if req.TeacherID == "" {
		req.TeacherID = row.TeacherID
	}
	teacherID := row.TeacherID
	if req.TeacherID != row.TeacherID {
		if teacherID, err = s.resolveTeacher(ctx, actor, req.TeacherID); err != nil {
			return nil, err
		}
	}

	course := row.Course
	course.Name = req.Name
	course.Description = req.Description
	course.Price = req.Price
	course.Currency = req.Currency
	course.TeacherID = teacherID
	course.Capacity = req.Capacity
	if err := s.courses.Update(ctx, &course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.invalidate(ctx)
	return s.Get(ctx, actor, id)
}

// Delete removes a course and, through the store cascade, its enrollments.
func (s *CourseService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if _, err := s.loadManaged(ctx, actor, id); err != nil {
		return err
	}
	if err := s.courses.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.invalidate(ctx)
	s.logger.Info("course deleted", zap.String("course_id", id), zap.String("actor_id", actor.UserID))
	return nil
}

// Publish opens a course for enrollment. A course without a price cannot be published.
func (s *CourseService) Publish(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseView, error) {
	row, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if row.Price <= 0 {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, msgPublishRequiresPrice)
	}
	return s.assignState(ctx, actor, row, models.CourseStatePublished)
}

// Archive closes a course.
func (s *CourseService) Archive(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseView, error) {
	row, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.assignState(ctx, actor, row, models.CourseStateArchived)
}

// ResetToDraft returns a course to draft from any state.
func (s *CourseService) ResetToDraft(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseView, error) {
	row, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.assignState(ctx, actor, row, models.CourseStateDraft)
}

// Enroll registers the actor in a course. Checks run in a fixed order so the
// caller always gets the most specific message: own course, publication, capacity.
func (s *CourseService) Enroll(ctx context.Context, actor *models.JWTClaims, id string) (*models.Notification, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	row, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	if row.TeacherID == actor.UserID {
		return nil, s.rejectEnrollment(row, actor, OutcomeSelfEnrollment, msgSelfEnrollment)
	}
	if row.State != models.CourseStatePublished {
		return nil, s.rejectEnrollment(row, actor, OutcomeUnpublished, msgNotPublished)
	}
	if row.IsFull() {
		return nil, s.rejectEnrollment(row, actor, OutcomeFull, fmt.Sprintf(msgCourseFull, row.Name))
	}

	enrollment := &models.Enrollment{CourseID: row.ID, StudentID: actor.UserID}
	if err := s.enrollments.CreateWithinCapacity(ctx, enrollment); err != nil {
		switch {
		case errors.Is(err, repository.ErrCourseFull):
			return nil, s.rejectEnrollment(row, actor, OutcomeFull, fmt.Sprintf(msgCourseFull, row.Name))
		case errors.Is(err, repository.ErrDuplicateEnrollment):
			s.metrics.RecordEnrollment(OutcomeDuplicate)
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, msgDuplicateEnrollment)
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.metrics.RecordEnrollment(OutcomeEnrolled)
	s.invalidate(ctx)
	s.logger.Info("student enrolled", zap.String("course_id", row.ID), zap.String("student_id", actor.UserID), zap.String("enrollment_id", enrollment.ID))
	ack := models.NewNotification(titleEnrolled, fmt.Sprintf(msgEnrolled, row.Name), models.SeveritySuccess)
	return &ack, nil
}

// Unenroll removes the actor's enrollment. It succeeds when none exists.
func (s *CourseService) Unenroll(ctx context.Context, actor *models.JWTClaims, id string) (*models.Notification, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	row, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.enrollments.FindByCourseAndStudent(ctx, row.ID, actor.UserID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment != nil {
		if err := s.enrollments.Delete(ctx, enrollment.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
		}
		s.metrics.RecordEnrollment(OutcomeUnenrolled)
		s.invalidate(ctx)
		s.logger.Info("student unenrolled", zap.String("course_id", row.ID), zap.String("student_id", actor.UserID))
	}

	ack := models.NewNotification(titleUnenrolled, fmt.Sprintf(msgUnenrolled, row.Name), models.SeverityWarning)
	return &ack, nil
}

// ListEnrollments returns the roster of a course to its teacher or an admin.
func (s *CourseService) ListEnrollments(ctx context.Context, actor *models.JWTClaims, id string) ([]models.EnrollmentDetail, error) {
	if _, err := s.loadManaged(ctx, actor, id); err != nil {
		return nil, err
	}
	roster, err := s.enrollments.ListByCourse(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return roster, nil
}

// SetEnrollmentStatus moves an enrollment between enrolled, completed and cancelled.
func (s *CourseService) SetEnrollmentStatus(ctx context.Context, actor *models.JWTClaims, enrollmentID string, req EnrollmentStatusRequest) (*models.Enrollment, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment status")
	}
	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadManaged(ctx, actor, enrollment.CourseID); err != nil {
		return nil, err
	}
	if err := s.enrollments.UpdateStatus(ctx, enrollment.ID, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	return s.loadEnrollment(ctx, enrollment.ID)
}

func (s *CourseService) assignState(ctx context.Context, actor *models.JWTClaims, row *models.CourseRow, state models.CourseState) (*models.CourseView, error) {
	if err := s.courses.UpdateState(ctx, row.ID, state); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course state")
	}
	s.metrics.RecordStateTransition(string(state))
	s.invalidate(ctx)
	s.logger.Info("course state assigned", zap.String("course_id", row.ID), zap.String("from", string(row.State)), zap.String("to", string(state)))
	updated := *row
	updated.State = state
	return s.view(ctx, actor, &updated)
}

func (s *CourseService) rejectEnrollment(row *models.CourseRow, actor *models.JWTClaims, outcome, message string) error {
	s.metrics.RecordEnrollment(outcome)
	s.logger.Info("enrollment rejected",
		zap.String("course_id", row.ID),
		zap.String("student_id", actor.UserID),
		zap.String("reason", outcome),
	)
	return appErrors.Clone(appErrors.ErrBusinessRule, message)
}

func (s *CourseService) loadCourse(ctx context.Context, id string) (*models.CourseRow, error) {
	row, err := s.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return row, nil
}

// loadManaged loads a course the actor is allowed to manage: its teacher or an admin.
func (s *CourseService) loadManaged(ctx context.Context, actor *models.JWTClaims, id string) (*models.CourseRow, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	row, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && row.TeacherID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the course teacher can manage this course")
	}
	return row, nil
}

func (s *CourseService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// resolveTeacher returns the teacher id for a course; only admins may assign someone else.
func (s *CourseService) resolveTeacher(ctx context.Context, actor *models.JWTClaims, teacherID string) (string, error) {
	if teacherID == "" {
		teacherID = actor.UserID
	}
	if teacherID != actor.UserID && !actor.IsAdmin() {
		return "", appErrors.Clone(appErrors.ErrForbidden, "only admins can assign another teacher")
	}
	user, err := s.users.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrValidation, "teacher not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if !user.IsTeacher {
		return "", appErrors.Clone(appErrors.ErrBusinessRule, "the selected user is not a teacher")
	}
	return user.ID, nil
}

func (s *CourseService) normalize(req CourseRequest) CourseRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.TeacherID = strings.TrimSpace(req.TeacherID)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = s.cfg.DefaultCurrency
	}
	return req
}

func (s *CourseService) view(ctx context.Context, actor *models.JWTClaims, row *models.CourseRow) (*models.CourseView, error) {
	views, err := s.views(ctx, actor, []models.CourseRow{*row})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// withEnrollmentCounts fills the current enrollment count of every row with one query.
func (s *CourseService) withEnrollmentCounts(ctx context.Context, rows []models.CourseRow) ([]models.CourseRow, error) {
	if len(rows) == 0 {
		return rows, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	counts, err := s.enrollments.EnrollmentCounts(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	for i := range rows {
		rows[i].EnrollmentsCount = counts[rows[i].ID]
	}
	return rows, nil
}

// views evaluates derived attributes for every row with one enrollment lookup.
func (s *CourseService) views(ctx context.Context, actor *models.JWTClaims, rows []models.CourseRow) ([]models.CourseView, error) {
	enrolled := map[string]bool{}
	if actor != nil && actor.UserID != "" && len(rows) > 0 {
		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			if row.ID != "" {
				ids = append(ids, row.ID)
			}
		}
		var err error
		if enrolled, err = s.enrollments.EnrolledCourseIDs(ctx, actor.UserID, ids); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve enrollments")
		}
	}
	views := make([]models.CourseView, 0, len(rows))
	for _, row := range rows {
		views = append(views, models.NewCourseView(row, enrolled[row.ID]))
	}
	return views, nil
}

func (s *CourseService) invalidate(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, courseCachePattern)
}

func courseListCacheKey(filter models.CourseFilter) string {
	return fmt.Sprintf("courses:list:%s:%s:%d:%d:%s:%s:%s",
		filter.State, filter.TeacherID, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder, strings.ToLower(strings.TrimSpace(filter.Search)))
}

func requireActor(actor *models.JWTClaims) error {
	if actor == nil || actor.UserID == "" {
		return appErrors.ErrUnauthorized
	}
	return nil
}
