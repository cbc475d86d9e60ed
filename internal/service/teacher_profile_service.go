package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/online-course-api/internal/models"
	appErrors "github.com/noah-isme/online-course-api/pkg/errors"
)

type teacherUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetTeacherFlag(ctx context.Context, id string, isTeacher bool) error
}

type taughtCourseCounter interface {
	CountByTeacher(ctx context.Context, teacherID string) (int, error)
}

type courseLister interface {
	List(ctx context.Context, actor *models.JWTClaims, filter models.CourseFilter) ([]models.CourseView, *models.Pagination, error)
}

// TaughtCourses is the "my courses" view of a teacher.
type TaughtCourses struct {
	Courses          []models.CourseView `json:"courses"`
	DefaultTeacherID string              `json:"default_teacher_id"`
}

// TeacherProfileService exposes the teaching side of a user account.
type TeacherProfileService struct {
	users   teacherUserRepository
	counter taughtCourseCounter
	courses courseLister
	cache   *CacheService
	logger  *zap.Logger
}

// NewTeacherProfileService constructs TeacherProfileService.
func NewTeacherProfileService(users teacherUserRepository, counter taughtCourseCounter, courses courseLister, cache *CacheService, logger *zap.Logger) *TeacherProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherProfileService{users: users, counter: counter, courses: courses, cache: cache, logger: logger}
}

// TaughtCourseCount returns how many courses reference userID as teacher.
func (s *TeacherProfileService) TaughtCourseCount(ctx context.Context, userID string) (int, error) {
	total, err := s.counter.CountByTeacher(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count taught courses")
	}
	return total, nil
}

// Profile returns the user with teaching metadata.
func (s *TeacherProfileService) Profile(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	total, err := s.TaughtCourseCount(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &models.TeacherProfile{User: *user, TaughtCourseCount: total}, nil
}

// OpenTaughtCourses lists every course taught by the actor. New courses created
// from this view default to the actor as teacher.
func (s *TeacherProfileService) OpenTaughtCourses(ctx context.Context, actor *models.JWTClaims, page, pageSize int) (*TaughtCourses, *models.Pagination, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	views, pagination, err := s.courses.List(ctx, actor, models.CourseFilter{
		TeacherID: actor.UserID,
		Page:      page,
		PageSize:  pageSize,
		SortBy:    "name",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, nil, err
	}
	return &TaughtCourses{Courses: views, DefaultTeacherID: actor.UserID}, pagination, nil
}

// SetTeacherFlag marks or unmarks a user as teacher. Admin only.
func (s *TeacherProfileService) SetTeacherFlag(ctx context.Context, actor *models.JWTClaims, userID string, isTeacher bool) (*models.TeacherProfile, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can change teacher status")
	}
	if err := s.users.SetTeacherFlag(ctx, userID, isTeacher); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher status")
	}
	// Cached catalog pages carry teacher names; drop them.
	_ = s.cache.Invalidate(ctx, courseCachePattern)
	s.logger.Info("teacher flag updated", zap.String("user_id", userID), zap.Bool("is_teacher", isTeacher), zap.String("actor_id", actor.UserID))
	return s.Profile(ctx, userID)
}
