package repository

import (
	"context"
	"errors"
	"time"

	"github.com/SyedMohammedSameer/Iqra/internal/model"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrDuplicateEnrollment = errors.New("already enrolled")
)

// UserUpdate carries only the fields a caller wants changed.
type UserUpdate struct {
	Email           *string
	FirstName       *string
	LastName        *string
	PasswordHash    *string
	ProfileImageURL *string
	Language        *string
	Active          *bool
}

type ClassUpdate struct {
	Title       *string
	Description *string
	Schedule    *string
	StartDate   *time.Time
	EndDate     *time.Time
	Duration    *int
	MeetingLink *string
	Category    *string
	Level       *string
	MaxStudents *int
	Price       *int
	Currency    *string
	Public      *bool
}

// Store is the persistence boundary. The Postgres adapter backs the
// deployed service; the memory adapter backs tests.
type Store interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByID(ctx context.Context, id string) (model.User, error)
	UpdateUser(ctx context.Context, id string, update UserUpdate) (model.User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error

	CreateClass(ctx context.Context, class model.Class) error
	GetClass(ctx context.Context, id string) (model.Class, error)
	ListAvailableClasses(ctx context.Context, limit int) ([]model.Class, error)
	ListClassesByTeacher(ctx context.Context, teacherID string) ([]model.Class, error)
	ListClassesByStudent(ctx context.Context, studentID string) ([]model.Class, error)
	UpdateClass(ctx context.Context, id string, update ClassUpdate) (model.Class, error)
	DeactivateClass(ctx context.Context, id string) error

	CreateEnrollment(ctx context.Context, enrollment model.Enrollment) error
	DeleteEnrollment(ctx context.Context, classID, studentID string) error
	ListEnrollmentsByStudent(ctx context.Context, studentID string) ([]model.Enrollment, error)
	CountStudentsByTeacher(ctx context.Context, teacherID string) (int, error)

	CreateFile(ctx context.Context, file model.File) error
	GetFile(ctx context.Context, id string) (model.File, error)
	ListFilesByClass(ctx context.Context, classID string) ([]model.File, error)
	ListFilesByUploader(ctx context.Context, uploaderID string) ([]model.File, error)
	IncrementDownloadCount(ctx context.Context, id string) error

	SaveChatMessage(ctx context.Context, message model.ChatMessage) error
	ListChatHistory(ctx context.Context, userID string, limit int) ([]model.ChatMessage, error)

	GetDailyContent(ctx context.Context, date time.Time, language string) ([]model.DailyContent, error)
	CreateDailyContent(ctx context.Context, content model.DailyContent) error
}
