package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/online-course-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, course_id, student_id, enrollment_date, status FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// FindByCourseAndStudent returns the single enrollment a student may hold for a course.
func (r *EnrollmentRepository) FindByCourseAndStudent(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	const query = `SELECT id, course_id, student_id, enrollment_date, status FROM enrollments WHERE course_id = $1 AND student_id = $2 LIMIT 1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, courseID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student enrollment: %w", err)
	}
	return &enrollment, nil
}

// EnrolledCourseIDs returns the subset of courseIDs the student is enrolled in.
func (r *EnrollmentRepository) EnrolledCourseIDs(ctx context.Context, studentID string, courseIDs []string) (map[string]bool, error) {
	enrolled := make(map[string]bool, len(courseIDs))
	if studentID == "" || len(courseIDs) == 0 {
		return enrolled, nil
	}
	query, args, err := psql.Select("course_id").
		From("enrollments").
		Where(squirrel.Eq{"student_id": studentID, "course_id": courseIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build enrolled courses: %w", err)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("list enrolled courses: %w", err)
	}
	for _, id := range ids {
		enrolled[id] = true
	}
	return enrolled, nil
}

// EnrollmentCounts returns the number of enrollments per course. Courses with
// none are absent from the map.
func (r *EnrollmentRepository) EnrollmentCounts(ctx context.Context, courseIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(courseIDs))
	if len(courseIDs) == 0 {
		return counts, nil
	}
	query, args, err := psql.Select("course_id", "COUNT(*) AS total").
		From("enrollments").
		Where(squirrel.Eq{"course_id": courseIDs}).
		GroupBy("course_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build enrollment counts: %w", err)
	}
	var rows []struct {
		CourseID string `db:"course_id"`
		Total    int    `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}
	for _, row := range rows {
		counts[row.CourseID] = row.Total
	}
	return counts, nil
}

// CreateWithinCapacity inserts an enrollment after locking the course row and
// re-checking its capacity, so concurrent enrollments cannot overrun the limit.
// This is the only write path for new enrollment rows.
func (r *EnrollmentRepository) CreateWithinCapacity(ctx context.Context, enrollment *models.Enrollment) (err error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrollmentDate.IsZero() {
		enrollment.EnrollmentDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var capacity int
	const lockQuery = `SELECT capacity FROM courses WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &capacity, lockQuery, enrollment.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock course: %w", err)
	}

	if capacity > 0 {
		var count int
		const countQuery = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1`
		if err = tx.GetContext(ctx, &count, countQuery, enrollment.CourseID); err != nil {
			return fmt.Errorf("count course enrollments: %w", err)
		}
		if count >= capacity {
			err = ErrCourseFull
			return err
		}
	}

	const insertQuery = `INSERT INTO enrollments (id, course_id, student_id, enrollment_date, status)
        VALUES (:id, :course_id, :student_id, :enrollment_date, :status)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, enrollment); err != nil {
		if isUniqueViolation(err, enrollmentUniqueConstraint) {
			err = ErrDuplicateEnrollment
			return err
		}
		return fmt.Errorf("create enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

// Delete removes an enrollment record.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM enrollments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	return nil
}

// UpdateStatus changes the status of an enrollment. The enrollment date is left untouched.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// ListByCourse returns the roster of a course ordered by enrollment date.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.course_id, e.student_id, e.enrollment_date, e.status,
        COALESCE(u.full_name, '') AS student_name, COALESCE(u.email, '') AS student_email
        FROM enrollments e
        LEFT JOIN users u ON u.id = e.student_id
        WHERE e.course_id = $1
        ORDER BY e.enrollment_date ASC, u.full_name ASC`
	var roster []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &roster, query, courseID); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return roster, nil
}
