package repository

import (
	"errors"

	"github.com/lib/pq"
)

// enrollmentUniqueConstraint guards one enrollment per (student, course).
const enrollmentUniqueConstraint = "enrollments_student_course_unique"

const pqUniqueViolation = "23505"

var (
	// ErrDuplicateEnrollment is returned when the store rejects a second enrollment for the same student and course.
	ErrDuplicateEnrollment = errors.New("student already enrolled in course")
	// ErrCourseFull is returned when the locked capacity check fails at insert time.
	ErrCourseFull = errors.New("course capacity reached")
)

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation && pqErr.Constraint == constraint
}
