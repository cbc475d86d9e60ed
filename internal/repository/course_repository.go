package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/online-course-api/internal/models"
)

var courseColumns = []string{
	"c.id", "c.name", "c.description", "c.price", "c.currency", "c.teacher_id", "c.capacity", "c.state", "c.created_at", "c.updated_at",
	"COALESCE(u.full_name, '') AS teacher_name",
	"(SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id) AS enrollments_count",
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// CourseRepository handles persistence of courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func applyCourseFilter(b squirrel.SelectBuilder, filter models.CourseFilter) squirrel.SelectBuilder {
	if filter.State != "" {
		b = b.Where(squirrel.Eq{"c.state": filter.State})
	}
	if filter.TeacherID != "" {
		b = b.Where(squirrel.Eq{"c.teacher_id": filter.TeacherID})
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		b = b.Where(squirrel.Or{
			squirrel.Like{"LOWER(c.name)": pattern},
			squirrel.Like{"LOWER(c.description)": pattern},
		})
	}
	return b
}

// List returns courses filtered by the provided criteria together with the total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseRow, int, error) {
	allowedSorts := map[string]string{
		"created_at": "c.created_at",
		"name":       "c.name",
		"price":      "c.price",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query, args, err := applyCourseFilter(
		psql.Select(courseColumns...).From("courses c").LeftJoin("users u ON u.id = c.teacher_id"),
		filter,
	).OrderBy(orderBy + " " + order).
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list courses: %w", err)
	}

	var courses []models.CourseRow
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery, countArgs, err := applyCourseFilter(psql.Select("COUNT(*)").From("courses c"), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count courses: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course with its enrollment count.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.CourseRow, error) {
	query, args, err := psql.Select(courseColumns...).
		From("courses c").
		LeftJoin("users u ON u.id = c.teacher_id").
		Where(squirrel.Eq{"c.id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find course: %w", err)
	}
	var course models.CourseRow
	if err := r.db.GetContext(ctx, &course, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// Create persists a new course in draft state unless another state is set.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.State == "" {
		course.State = models.CourseStateDraft
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, name, description, price, currency, teacher_id, capacity, state, created_at, updated_at)
        VALUES (:id, :name, :description, :price, :currency, :teacher_id, :capacity, :state, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update writes the editable attributes of a course. State is changed only through UpdateState.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, description = :description, price = :price, currency = :currency,
        teacher_id = :teacher_id, capacity = :capacity, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// UpdateState assigns the publication state of a course.
func (r *CourseRepository) UpdateState(ctx context.Context, id string, state models.CourseState) error {
	const query = `UPDATE courses SET state = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, state, time.Now().UTC()); err != nil {
		return fmt.Errorf("update course state: %w", err)
	}
	return nil
}

// Delete removes a course; its enrollments are removed by the foreign key cascade.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM courses WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountByTeacher returns how many courses reference the teacher.
func (r *CourseRepository) CountByTeacher(ctx context.Context, teacherID string) (int, error) {
	const query = `SELECT COUNT(*) FROM courses WHERE teacher_id = $1`
	var total int
	if err := r.db.GetContext(ctx, &total, query, teacherID); err != nil {
		return 0, fmt.Errorf("count teacher courses: %w", err)
	}
	return total, nil
}
