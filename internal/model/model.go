package model

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of account roles. Anything else is rejected at
// the boundary and never stored.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

func ParseRole(value string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(value))) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleTeacher:
		return RoleTeacher, nil
	default:
		return "", fmt.Errorf("invalid role %q", value)
	}
}

type User struct {
	ID              string
	Email           string
	PasswordHash    *string
	FirstName       string
	LastName        string
	ProfileImageURL *string
	Role            Role
	Language        string
	Active          bool
	Verified        bool
	LastLoginAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Class struct {
	ID          string
	Title       string
	Description string
	TeacherID   string
	Schedule    string
	StartDate   *time.Time
	EndDate     *time.Time
	Duration    int
	MeetingLink string
	Category    string
	Level       string
	MaxStudents int
	Price       int
	Currency    string
	Active      bool
	Public      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Enrollment struct {
	ID                 string
	ClassID            string
	StudentID          string
	Status             string
	ProgressPercentage int
	EnrolledAt         time.Time
}

type File struct {
	ID            string
	FileName      string
	OriginalName  string
	FilePath      string
	FileSize      int64
	MimeType      string
	UploadedBy    string
	ClassID       *string
	Description   string
	Category      string
	Public        bool
	DownloadCount int
	CreatedAt     time.Time
}

type ChatMessage struct {
	ID             string
	UserID         string
	Message        string
	Response       string
	AIModel        string
	ResponseTimeMS int
	CreatedAt      time.Time
}

type DailyContent struct {
	ID        string
	Type      string
	Content   string
	Source    string
	Language  string
	Date      time.Time
	ViewCount int
}
