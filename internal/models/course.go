package models

import "time"

// CourseState is the publication state of a course.
type CourseState string

// Publication states.
const (
	CourseStateDraft     CourseState = "draft"
	CourseStatePublished CourseState = "published"
	CourseStateArchived  CourseState = "archived"
)

// Valid reports whether s is a known state.
func (s CourseState) Valid() bool {
	switch s {
	case CourseStateDraft, CourseStatePublished, CourseStateArchived:
		return true
	}
	return false
}

// Course is the stored course record.
type Course struct {
	ID          string      `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	Description string      `db:"description" json:"description"`
	Price       float64     `db:"price" json:"price"`
	Currency    string      `db:"currency" json:"currency"`
	TeacherID   string      `db:"teacher_id" json:"teacher_id"`
	Capacity    int         `db:"capacity" json:"capacity"`
	State       CourseState `db:"state" json:"state"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// IsPaid reports whether the course carries a price.
func (c Course) IsPaid() bool {
	return c.Price > 0
}

// CourseRow is a course as read from the store together with its enrollment count.
type CourseRow struct {
	Course
	EnrollmentsCount int    `db:"enrollments_count" json:"enrollments_count"`
	TeacherName      string `db:"teacher_name" json:"teacher_name"`
}

// IsFull reports whether a bounded course has reached its capacity.
func (r CourseRow) IsFull() bool {
	return r.Capacity > 0 && r.EnrollmentsCount >= r.Capacity
}

// CourseView is a course with every derived attribute evaluated for one acting user.
// It is never read back as input.
type CourseView struct {
	CourseRow
	IsPaid                bool `json:"is_paid"`
	IsCurrentUserEnrolled bool `json:"is_current_user_enrolled"`
	CanEnroll             bool `json:"can_enroll"`
}

// NewCourseView recomputes the derived attributes of row. enrolled is whether the
// acting user holds an enrollment for the course.
func NewCourseView(row CourseRow, enrolled bool) CourseView {
	if row.ID == "" {
		enrolled = false
	}
	return CourseView{
		CourseRow:             row,
		IsPaid:                row.IsPaid(),
		IsCurrentUserEnrolled: enrolled,
		CanEnroll:             row.State == CourseStatePublished && !enrolled && !row.IsFull(),
	}
}

// CourseFilter captures filtering options for listing courses.
type CourseFilter struct {
	State     CourseState
	TeacherID string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
