package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/online-course-api/internal/models"
	"github.com/noah-isme/online-course-api/internal/repository"
	appErrors "github.com/noah-isme/online-course-api/pkg/errors"
)

// memStore backs the course, enrollment and user mocks with shared state so
// enrollment counts stay consistent across repositories.
type memStore struct {
	courses     map[string]models.Course
	enrollments map[string]models.Enrollment
	users       map[string]*models.User
	seq         int
	listCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		courses:     map[string]models.Course{},
		enrollments: map[string]models.Enrollment{},
		users: map[string]*models.User{
			"teacher": {ID: "teacher", FullName: "Tina Teacher", Role: models.RoleTeacher, IsTeacher: true, Active: true},
			"other":   {ID: "other", FullName: "Oscar Other", Role: models.RoleTeacher, IsTeacher: true, Active: true},
			"admin":   {ID: "admin", FullName: "Ada Admin", Role: models.RoleAdmin, Active: true},
			"a":       {ID: "a", FullName: "Student A", Email: "a@example.com", Role: models.RoleStudent, Active: true},
			"b":       {ID: "b", FullName: "Student B", Email: "b@example.com", Role: models.RoleStudent, Active: true},
			"c":       {ID: "c", FullName: "Student C", Email: "c@example.com", Role: models.RoleStudent, Active: true},
		},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) row(course models.Course) models.CourseRow {
	count := 0
	for _, e := range m.enrollments {
		if e.CourseID == course.ID {
			count++
		}
	}
	name := ""
	if u, ok := m.users[course.TeacherID]; ok {
		name = u.FullName
	}
	return models.CourseRow{Course: course, EnrollmentsCount: count, TeacherName: name}
}

func (m *memStore) addCourse(course models.Course) string {
	if course.ID == "" {
		course.ID = m.nextID("course")
	}
	if course.State == "" {
		course.State = models.CourseStateDraft
	}
	m.courses[course.ID] = course
	return course.ID
}

type memCourseRepo struct{ store *memStore }

func (r *memCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseRow, int, error) {
	r.store.listCalls++
	var rows []models.CourseRow
	for _, c := range r.store.courses {
		if filter.State != "" && c.State != filter.State {
			continue
		}
		if filter.TeacherID != "" && c.TeacherID != filter.TeacherID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Search)) {
			continue
		}
		rows = append(rows, r.store.row(c))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, len(rows), nil
}

func (r *memCourseRepo) FindByID(ctx context.Context, id string) (*models.CourseRow, error) {
	c, ok := r.store.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	row := r.store.row(c)
	return &row, nil
}

func (r *memCourseRepo) Create(ctx context.Context, course *models.Course) error {
	course.ID = r.store.addCourse(*course)
	return nil
}

func (r *memCourseRepo) Update(ctx context.Context, course *models.Course) error {
	current := r.store.courses[course.ID]
	updated := *course
	updated.State = current.State
	r.store.courses[course.ID] = updated
	return nil
}

func (r *memCourseRepo) UpdateState(ctx context.Context, id string, state models.CourseState) error {
	c := r.store.courses[id]
	c.State = state
	r.store.courses[id] = c
	return nil
}

func (r *memCourseRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.store.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.store.courses, id)
	for eid, e := range r.store.enrollments {
		if e.CourseID == id {
			delete(r.store.enrollments, eid)
		}
	}
	return nil
}

func (r *memCourseRepo) CountByTeacher(ctx context.Context, teacherID string) (int, error) {
	total := 0
	for _, c := range r.store.courses {
		if c.TeacherID == teacherID {
			total++
		}
	}
	return total, nil
}

type memEnrollmentRepo struct{ store *memStore }

func (r *memEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	e, ok := r.store.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (r *memEnrollmentRepo) FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	for _, e := range r.store.enrollments {
		if e.CourseID == courseID && e.StudentID == studentID {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memEnrollmentRepo) EnrolledCourseIDs(ctx context.Context, studentID string, courseIDs []string) (map[string]bool, error) {
	wanted := map[string]bool{}
	for _, id := range courseIDs {
		wanted[id] = true
	}
	enrolled := map[string]bool{}
	for _, e := range r.store.enrollments {
		if e.StudentID == studentID && wanted[e.CourseID] {
			enrolled[e.CourseID] = true
		}
	}
	return enrolled, nil
}

func (r *memEnrollmentRepo) EnrollmentCounts(ctx context.Context, courseIDs []string) (map[string]int, error) {
	wanted := map[string]bool{}
	for _, id := range courseIDs {
		wanted[id] = true
	}
	counts := map[string]int{}
	for _, e := range r.store.enrollments {
		if wanted[e.CourseID] {
			counts[e.CourseID]++
		}
	}
	return counts, nil
}

func (r *memEnrollmentRepo) CreateWithinCapacity(ctx context.Context, enrollment *models.Enrollment) error {
	course, ok := r.store.courses[enrollment.CourseID]
	if !ok {
		return sql.ErrNoRows
	}
	row := r.store.row(course)
	if row.IsFull() {
		return repository.ErrCourseFull
	}
	if _, err := r.FindByCourseAndStudent(ctx, enrollment.CourseID, enrollment.StudentID); err == nil {
		return repository.ErrDuplicateEnrollment
	}
	enrollment.ID = r.store.nextID("enrollment")
	enrollment.EnrollmentDate = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	enrollment.Status = models.EnrollmentStatusEnrolled
	r.store.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (r *memEnrollmentRepo) Delete(ctx context.Context, id string) error {
	delete(r.store.enrollments, id)
	return nil
}

func (r *memEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	e, ok := r.store.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = status
	r.store.enrollments[id] = e
	return nil
}

func (r *memEnrollmentRepo) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	var roster []models.EnrollmentDetail
	for _, e := range r.store.enrollments {
		if e.CourseID != courseID {
			continue
		}
		detail := models.EnrollmentDetail{Enrollment: e}
		if u, ok := r.store.users[e.StudentID]; ok {
			detail.StudentName = u.FullName
			detail.StudentEmail = u.Email
		}
		roster = append(roster, detail)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].StudentName < roster[j].StudentName })
	return roster, nil
}

type memUserRepo struct{ store *memStore }

func (r *memUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := r.store.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (r *memUserRepo) SetTeacherFlag(ctx context.Context, id string, isTeacher bool) error {
	u, ok := r.store.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.IsTeacher = isTeacher
	return nil
}

// mapCache is an in-memory CacheRepository.
type mapCache struct {
	items       map[string][]byte
	invalidated []string
}

func newMapCache() *mapCache {
	return &mapCache{items: map[string][]byte{}}
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = raw
	return nil
}

func (c *mapCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
	return nil
}

type courseFixture struct {
	svc     *CourseService
	store   *memStore
	cache   *mapCache
	metrics *MetricsService
}

func newCourseFixture() *courseFixture {
	store := newMemStore()
	cacheRepo := newMapCache()
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, zap.NewNop(), true)
	svc := NewCourseService(
		&memCourseRepo{store: store},
		&memEnrollmentRepo{store: store},
		&memUserRepo{store: store},
		cache,
		metrics,
		validator.New(),
		zap.NewNop(),
		CourseConfig{DefaultCurrency: "USD", CacheTTL: time.Minute},
	)
	return &courseFixture{svc: svc, store: store, cache: cacheRepo, metrics: metrics}
}

func actorFor(id string, role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: role}
}

var (
	teacherActor = actorFor("teacher", models.RoleTeacher)
	adminActor   = actorFor("admin", models.RoleAdmin)
	studentA     = actorFor("a", models.RoleStudent)
	studentB     = actorFor("b", models.RoleStudent)
	studentC     = actorFor("c", models.RoleStudent)
)

func TestCourseServiceCreateDefaults(t *testing.T) {
	f := newCourseFixture()

	view, err := f.svc.Create(context.Background(), teacherActor, CourseRequest{Name: "  Go Basics ", Description: "Intro", Price: 49.5, Capacity: 10})
	require.NoError(t, err)
	assert.Equal(t, "Go Basics", view.Name)
	assert.Equal(t, "teacher", view.TeacherID)
	assert.Equal(t, "Tina Teacher", view.TeacherName)
	assert.Equal(t, "USD", view.Currency)
	assert.Equal(t, models.CourseStateDraft, view.State)
	assert.True(t, view.IsPaid)
	assert.False(t, view.CanEnroll)
	assert.Equal(t, 0, view.EnrollmentsCount)
}

func TestCourseServiceCreateRules(t *testing.T) {
	cases := []struct {
		name  string
		actor *models.JWTClaims
		req   CourseRequest
		code  string
	}{
		{"missing actor", nil, CourseRequest{Name: "x", Description: "y"}, appErrors.ErrUnauthorized.Code},
		{"blank name", teacherActor, CourseRequest{Name: "   ", Description: "y"}, appErrors.ErrValidation.Code},
		{"negative price", teacherActor, CourseRequest{Name: "x", Description: "y", Price: -1}, appErrors.ErrValidation.Code},
		{"negative capacity", teacherActor, CourseRequest{Name: "x", Description: "y", Capacity: -1}, appErrors.ErrValidation.Code},
		{"unknown currency", teacherActor, CourseRequest{Name: "x", Description: "y", Currency: "DOLLARS"}, appErrors.ErrValidation.Code},
		{"student is not a teacher", studentA, CourseRequest{Name: "x", Description: "y"}, appErrors.ErrBusinessRule.Code},
		{"teacher assigning someone else", teacherActor, CourseRequest{Name: "x", Description: "y", TeacherID: "other"}, appErrors.ErrForbidden.Code},
		{"admin assigning unknown teacher", adminActor, CourseRequest{Name: "x", Description: "y", TeacherID: "ghost"}, appErrors.ErrValidation.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newCourseFixture()
			_, err := f.svc.Create(context.Background(), tc.actor, tc.req)
			require.Error(t, err)
			assert.True(t, appErrors.IsCode(err, tc.code), "got %v", err)
			assert.Empty(t, f.store.courses)
		})
	}
}

func TestCourseServiceAdminAssignsTeacher(t *testing.T) {
	f := newCourseFixture()
	view, err := f.svc.Create(context.Background(), adminActor, CourseRequest{Name: "x", Description: "y", TeacherID: "other", Currency: "eur"})
	require.NoError(t, err)
	assert.Equal(t, "other", view.TeacherID)
	assert.Equal(t, "EUR", view.Currency)
}

func TestCourseServicePublishRequiresPrice(t *testing.T) {
	f := newCourseFixture()
	id := f.store.addCourse(models.Course{Name: "Free", Description: "d", Price: 0, TeacherID: "teacher", Currency: "USD"})

	_, err := f.svc.Publish(context.Background(), teacherActor, id)
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrBusinessRule.Code))
	assert.Equal(t, msgPublishRequiresPrice, appErrors.FromError(err).Message)
	assert.Equal(t, models.CourseStateDraft, f.store.courses[id].State)
}

func TestCourseServiceStateTransitions(t *testing.T) {
	f := newCourseFixture()
	ctx := context.Background()
	id := f.store.addCourse(models.Course{Name: "Go", Description: "d", Price: 10, TeacherID: "teacher", Currency: "USD"})

	view, err := f.svc.Publish(ctx, teacherActor, id)
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatePublished, view.State)
	assert.True(t, view.CanEnroll)

	view, err = f.svc.Archive(ctx, teacherActor, id)
	require.NoError(t, err)
	assert.Equal(t, models.CourseStateArchived, view.State)
	assert.False(t, view.CanEnroll)

	view, err = f.svc.ResetToDraft(ctx, adminActor, id)
	require.NoError(t, err)
	assert.Equal(t, models.CourseStateDraft, view.State)
	assert.Equal(t, models.CourseStateDraft, f.store.courses[id].State)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.stateTransitions.WithLabelValues("published")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.stateTransitions.WithLabelValues("archived")))
}

func TestCourseServiceWorkflowRequiresOwnership(t *testing.T) {
	f := newCourseFixture()
	id := f.store.addCourse(models.Course{Name: "Go", Description: "d", Price: 10, TeacherID: "teacher", Currency: "USD"})

	_, err := f.svc.Publish(context.Background(), studentA, id)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
	_, err = f.svc.Archive(context.Background(), actorFor("other", models.RoleTeacher), id)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
	_, err = f.svc.Publish(context.Background(), teacherActor, "missing")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}

func TestCourseServiceEnrollmentScenario(t *testing.T) {
	f := newCourseFixture()
	ctx := context.Background()

	created, err := f.svc.Create(ctx, teacherActor, CourseRequest{Name: "Algorithms", Description: "Sorting and graphs", Price: 99.99, Capacity: 2})
	require.NoError(t, err)
	id := created.ID

	_, err = f.svc.Enroll(ctx, studentA, id)
	require.Error(t, err)
	assert.Equal(t, msgNotPublished, appErrors.FromError(err).Message)

	_, err = f.svc.Publish(ctx, teacherActor, id)
	require.NoError(t, err)

	ack, err := f.svc.Enroll(ctx, studentA, id)
	require.NoError(t, err)
	assert.Equal(t, models.Notification{
		Kind:           models.NotificationKind,
		Title:          "Enrollment Successful",
		Message:        "You have been enrolled in 'Algorithms' course.",
		Severity:       models.SeveritySuccess,
		FollowUpAction: models.FollowUpActionRefresh,
	}, *ack)

	_, err = f.svc.Enroll(ctx, studentB, id)
	require.NoError(t, err)

	view, err := f.svc.Get(ctx, studentC, id)
	require.NoError(t, err)
	assert.Equal(t, 2, view.EnrollmentsCount)
	assert.False(t, view.CanEnroll)
	assert.False(t, view.IsCurrentUserEnrolled)

	_, err = f.svc.Enroll(ctx, studentC, id)
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrBusinessRule.Code))
	assert.Equal(t, "Cannot enroll in 'Algorithms' as it is already full.", appErrors.FromError(err).Message)

	ack, err = f.svc.Unenroll(ctx, studentA, id)
	require.NoError(t, err)
	assert.Equal(t, "You have been unenrolled from 'Algorithms' course.", ack.Message)
	assert.Equal(t, models.SeverityWarning, ack.Severity)

	_, err = f.svc.Enroll(ctx, studentC, id)
	require.NoError(t, err)

	view, err = f.svc.Get(ctx, studentC, id)
	require.NoError(t, err)
	assert.True(t, view.IsCurrentUserEnrolled)
	assert.False(t, view.CanEnroll)
	assert.Equal(t, 2, view.EnrollmentsCount)

	assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.enrollmentResults.WithLabelValues(OutcomeEnrolled)))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.enrollmentResults.WithLabelValues(OutcomeFull)))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.enrollmentResults.WithLabelValues(OutcomeUnpublished)))
}

func TestCourseServiceEnrollOwnCourse(t *testing.T) {
	f := newCourseFixture()
	id := f.store.addCourse(models.Course{Name: "Go", Description: "d", Price: 10, TeacherID: "teacher", State: models.CourseStatePublished})

	_, err := f.svc.Enroll(context.Background(), teacherActor, id)
	require.Error(t, err)
	assert.Equal(t, msgSelfEnrollment, appErrors.FromError(err).Message)
	assert.Empty(t, f.store.enrollments)
}

func TestCourseServiceEnrollCheckOrder(t *testing.T) {
	f := newCourseFixture()
	// Own, unpublished and full at once: the ownership message wins.
	id := f.store.addCourse(models.Course{Name: "Go", Description: "d", Price: 10, TeacherID: "teacher", Capacity: 1})
	f.store.enrollments["e0"] = models.Enrollment{ID: "e0", CourseID: id, StudentID: "b"}

	_, err := f.svc.Enroll(context.Background(), teacherActor, id)
	assert.Equal(t, msgSelfEnrollment, appErrors.FromError(err).Message)

	_, err = f.svc.Enroll(context.Background(), studentA, id)
	assert.Equal(t, msgNotPublished, appErrors.FromError(err).Message)
}

func TestCourseServiceEnrollUnlimitedCapacity(t *testing.T) {
	f := newCourseFixture()
	id := f.store.addCourse(models.Course{Name: "Open", Description: "d", Price: 1, TeacherID: "teacher", Capacity: 0, State: models.CourseStatePublished})

	for _, actor := range []*models.JWTClaims{studentA, studentB, studentC} {
		_, err := f.svc.Enroll(context.Background(), actor, id)
		require.NoError(t, err)
	}
	view, err := f.svc.Get(context.Background(), adminActor, id)
	require.NoError(t, err)
	assert.Equal(t, 3, view.EnrollmentsCount)
	assert.True(t, view.CanEnroll)
}

func TestCourseServiceEnrollDuplicate(t *testing.T) {
	f := newCourseFixture()
	id := f.store.addCourse(models.Course{Name: "Go", Description: "d", Price: 10, TeacherID: "teacher", State: models.CourseStatePublished})

	_, err := f.svc.Enroll(context.Background(), studentA, id)
	require.NoError(t, err)
	_, err = f.svc.Enroll(context.Background(), studentA, id)
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrConflict.Code))
	assert.Len(t, f.store.enrollments, 1)
}

func TestCourseServiceUnenrollWithoutEnrollment(t *testing.T) {
	f := newCourseFixture()
	id := f.store.addCourse(models.Course{Name: "Go", Description: "d", Price: 10, TeacherID: "teacher", State: models.CourseStatePublished})

	ack, err := f.svc.Unenroll(context.Background(), studentA, id)
	require.NoError(t, err)
	assert.Equal(t, "Unenrollment Successful", ack.Title)

	_, err = f.svc.Unenroll(context.Background(), studentA, "missing")
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}

func TestCourseServiceListCachesRowsButNotEnrollment(t *testing.T) {
	f := newCourseFixture()
	ctx := context.Background()
	id := f.store.addCourse(models.Course{Name: "Go", Description: "d", Price: 10, TeacherID: "teacher", State: models.CourseStatePublished})
	filter := models.CourseFilter{State: models.CourseStatePublished}

	views, pagination, err := f.svc.List(ctx, studentA, filter)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 20, pagination.PageSize)
	assert.False(t, views[0].IsCurrentUserEnrolled)

	_, _, err = f.svc.List(ctx, studentB, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.listCalls)

	_, err = f.svc.Enroll(ctx, studentA, id)
	require.NoError(t, err)
	assert.Contains(t, f.cache.invalidated, courseCachePattern)

	views, _, err = f.svc.List(ctx, studentA, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.listCalls)
	assert.True(t, views[0].IsCurrentUserEnrolled)
	assert.Equal(t, 1, views[0].EnrollmentsCount)

	views, _, err = f.svc.List(ctx, studentB, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.listCalls)
	assert.False(t, views[0].IsCurrentUserEnrolled)
	assert.True(t, views[0].CanEnroll)
}

// interleavedCourseRepo runs afterList once the rows have been read, before
// the service gets to cache them.
type interleavedCourseRepo struct {
	*memCourseRepo
	afterList func()
}

func (r *interleavedCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseRow, int, error) {
	rows, total, err := r.memCourseRepo.List(ctx, filter)
	if r.afterList != nil {
		hook := r.afterList
		r.afterList = nil
		hook()
	}
	return rows, total, err
}

func TestCourseServiceListCountsEnrollmentsCommittedDuringCacheFill(t *testing.T) {
	store := newMemStore()
	cacheRepo := newMapCache()
	metrics := NewMetricsService()
	courses := &interleavedCourseRepo{memCourseRepo: &memCourseRepo{store: store}}
	svc := NewCourseService(
		courses,
		&memEnrollmentRepo{store: store},
		&memUserRepo{store: store},
		NewCacheService(cacheRepo, metrics, time.Minute, zap.NewNop(), true),
		metrics,
		validator.New(),
		zap.NewNop(),
		CourseConfig{CacheTTL: time.Minute},
	)
	ctx := context.Background()
	id := store.addCourse(models.Course{Name: "Go", Description: "d", Price: 10, TeacherID: "teacher", Capacity: 1, State: models.CourseStatePublished})
	filter := models.CourseFilter{State: models.CourseStatePublished}

	courses.afterList = func() {
		_, err := svc.Enroll(ctx, studentA, id)
		require.NoError(t, err)
	}
	_, _, err := svc.List(ctx, studentB, filter)
	require.NoError(t, err)
	require.Equal(t, 1, store.listCalls)

	views, _, err := svc.List(ctx, studentB, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls)
	require.Len(t, views, 1)
	assert.Equal(t, 1, views[0].EnrollmentsCount)
	assert.False(t, views[0].CanEnroll)
}

func TestCourseServiceListRejectsUnknownState(t *testing.T) {
	f := newCourseFixture()
	_, _, err := f.svc.List(context.Background(), studentA, models.CourseFilter{State: "deleted"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestCourseServiceUpdateKeepsState(t *testing.T) {
	f := newCourseFixture()
	id := f.store.addCourse(models.Course{Name: "Go", Description: "d", Price: 10, TeacherID: "teacher", Currency: "USD", State: models.CourseStatePublished})

	view, err := f.svc.Update(context.Background(), teacherActor, id, CourseRequest{Name: "Go 2", Description: "more", Price: 20, Capacity: 5})
	require.NoError(t, err)
	assert.Equal(t, "Go 2", view.Name)
	assert.Equal(t, float64(20), view.Price)
	assert.Equal(t, models.CourseStatePublished, view.State)
	assert.Equal(t, "teacher", view.TeacherID)

	_, err = f.svc.Update(context.Background(), studentA, id, CourseRequest{Name: "x", Description: "y"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
}

func TestCourseServiceDeleteCascades(t *testing.T) {
	f := newCourseFixture()
	id := f.store.addCourse(models.Course{Name: "Go", Description: "d", Price: 10, TeacherID: "teacher", State: models.CourseStatePublished})
	_, err := f.svc.Enroll(context.Background(), studentA, id)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), teacherActor, id))
	assert.Empty(t, f.store.courses)
	assert.Empty(t, f.store.enrollments)

	err = f.svc.Delete(context.Background(), teacherActor, id)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrNotFound.Code))
}

func TestCourseServiceEnrollmentStatus(t *testing.T) {
	f := newCourseFixture()
	ctx := context.Background()
	id := f.store.addCourse(models.Course{Name: "Go", Description: "d", Price: 10, TeacherID: "teacher", State: models.CourseStatePublished})
	_, err := f.svc.Enroll(ctx, studentA, id)
	require.NoError(t, err)

	roster, err := f.svc.ListEnrollments(ctx, teacherActor, id)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "Student A", roster[0].StudentName)

	updated, err := f.svc.SetEnrollmentStatus(ctx, teacherActor, roster[0].ID, EnrollmentStatusRequest{Status: models.EnrollmentStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, updated.Status)
	assert.Equal(t, roster[0].EnrollmentDate, updated.EnrollmentDate)

	_, err = f.svc.SetEnrollmentStatus(ctx, teacherActor, roster[0].ID, EnrollmentStatusRequest{Status: "dropped"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))

	_, err = f.svc.SetEnrollmentStatus(ctx, studentA, roster[0].ID, EnrollmentStatusRequest{Status: models.EnrollmentStatusCancelled})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))

	_, err = f.svc.ListEnrollments(ctx, studentA, id)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrForbidden.Code))
}
