package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/SyedMohammedSameer/Iqra/internal/model"
)

// Memory is an in-process Store used by tests and local development.
type Memory struct {
	mu          sync.Mutex
	users       map[string]model.User
	classes     map[string]model.Class
	enrollments map[string]model.Enrollment
	files       map[string]model.File
	chats       []model.ChatMessage
	daily       []model.DailyContent
}

func NewMemory() *Memory {
	return &Memory{
		users:       map[string]model.User{},
		classes:     map[string]model.Class{},
		enrollments: map[string]model.Enrollment{},
		files:       map[string]model.File{},
	}
}

func (m *Memory) CreateUser(_ context.Context, user model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrDuplicateEmail
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (m *Memory) GetUserByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return user, nil
}

func (m *Memory) UpdateUser(_ context.Context, id string, update UserUpdate) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.FirstName != nil {
		user.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		user.LastName = *update.LastName
	}
	if update.PasswordHash != nil {
		hash := *update.PasswordHash
		user.PasswordHash = &hash
	}
	if update.ProfileImageURL != nil {
		url := *update.ProfileImageURL
		user.ProfileImageURL = &url
	}
	if update.Language != nil {
		user.Language = *update.Language
	}
	if update.Active != nil {
		user.Active = *update.Active
	}
	user.UpdatedAt = time.Now().UTC()
	m.users[id] = user
	return user, nil
}

func (m *Memory) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	user.LastLoginAt = &at
	user.UpdatedAt = at
	m.users[id] = user
	return nil
}

// DeleteUser is test-only; the HTTP surface never hard-deletes identities.
func (m *Memory) DeleteUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *Memory) CreateClass(_ context.Context, class model.Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[class.ID] = class
	return nil
}

func (m *Memory) GetClass(_ context.Context, id string) (model.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	class, ok := m.classes[id]
	if !ok {
		return model.Class{}, ErrNotFound
	}
	return class, nil
}

func sortClasses(classes []model.Class) {
	sort.Slice(classes, func(i, j int) bool {
		return classes[i].CreatedAt.After(classes[j].CreatedAt)
	})
}

func (m *Memory) ListAvailableClasses(_ context.Context, limit int) ([]model.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	classes := []model.Class{}
	for _, class := range m.classes {
		if class.Active && class.Public {
			classes = append(classes, class)
		}
	}
	sortClasses(classes)
	if limit > 0 && len(classes) > limit {
		classes = classes[:limit]
	}
	return classes, nil
}

func (m *Memory) ListClassesByTeacher(_ context.Context, teacherID string) ([]model.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	classes := []model.Class{}
	for _, class := range m.classes {
		if class.TeacherID == teacherID && class.Active {
			classes = append(classes, class)
		}
	}
	sortClasses(classes)
	return classes, nil
}

func (m *Memory) ListClassesByStudent(_ context.Context, studentID string) ([]model.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	classes := []model.Class{}
	for _, enrollment := range m.enrollments {
		if enrollment.StudentID != studentID || enrollment.Status != "enrolled" {
			continue
		}
		if class, ok := m.classes[enrollment.ClassID]; ok && class.Active {
			classes = append(classes, class)
		}
	}
	sortClasses(classes)
	return classes, nil
}

func (m *Memory) UpdateClass(_ context.Context, id string, update ClassUpdate) (model.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	class, ok := m.classes[id]
	if !ok {
		return model.Class{}, ErrNotFound
	}
	if update.Title != nil {
		class.Title = *update.Title
	}
	if update.Description != nil {
		class.Description = *update.Description
	}
	if update.Schedule != nil {
		class.Schedule = *update.Schedule
	}
	if update.StartDate != nil {
		start := *update.StartDate
		class.StartDate = &start
	}
	if update.EndDate != nil {
		end := *update.EndDate
		class.EndDate = &end
	}
	if update.Duration != nil {
		class.Duration = *update.Duration
	}
	if update.MeetingLink != nil {
		class.MeetingLink = *update.MeetingLink
	}
	if update.Category != nil {
		class.Category = *update.Category
	}
	if update.Level != nil {
		class.Level = *update.Level
	}
	if update.MaxStudents != nil {
		class.MaxStudents = *update.MaxStudents
	}
	if update.Price != nil {
		class.Price = *update.Price
	}
	if update.Currency != nil {
		class.Currency = *update.Currency
	}
	if update.Public != nil {
		class.Public = *update.Public
	}
	class.UpdatedAt = time.Now().UTC()
	m.classes[id] = class
	return class, nil
}

func (m *Memory) DeactivateClass(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	class, ok := m.classes[id]
	if !ok {
		return ErrNotFound
	}
	class.Active = false
	class.UpdatedAt = time.Now().UTC()
	m.classes[id] = class
	return nil
}

func enrollmentKey(classID, studentID string) string {
	return classID + "/" + studentID
}

func (m *Memory) CreateEnrollment(_ context.Context, enrollment model.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := enrollmentKey(enrollment.ClassID, enrollment.StudentID)
	if _, ok := m.enrollments[key]; ok {
		return ErrDuplicateEnrollment
	}
	m.enrollments[key] = enrollment
	return nil
}

func (m *Memory) DeleteEnrollment(_ context.Context, classID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.enrollments, enrollmentKey(classID, studentID))
	return nil
}

func (m *Memory) ListEnrollmentsByStudent(_ context.Context, studentID string) ([]model.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	enrollments := []model.Enrollment{}
	for _, enrollment := range m.enrollments {
		if enrollment.StudentID == studentID {
			enrollments = append(enrollments, enrollment)
		}
	}
	sort.Slice(enrollments, func(i, j int) bool {
		return enrollments[i].EnrolledAt.After(enrollments[j].EnrolledAt)
	})
	return enrollments, nil
}

func (m *Memory) CountStudentsByTeacher(_ context.Context, teacherID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	students := map[string]struct{}{}
	for _, enrollment := range m.enrollments {
		if enrollment.Status != "enrolled" {
			continue
		}
		class, ok := m.classes[enrollment.ClassID]
		if !ok || class.TeacherID != teacherID {
			continue
		}
		students[enrollment.StudentID] = struct{}{}
	}
	return len(students), nil
}

func (m *Memory) CreateFile(_ context.Context, file model.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[file.ID] = file
	return nil
}

func (m *Memory) GetFile(_ context.Context, id string) (model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[id]
	if !ok {
		return model.File{}, ErrNotFound
	}
	return file, nil
}

func sortFiles(files []model.File) {
	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
}

func (m *Memory) ListFilesByClass(_ context.Context, classID string) ([]model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files := []model.File{}
	for _, file := range m.files {
		if file.ClassID != nil && *file.ClassID == classID {
			files = append(files, file)
		}
	}
	sortFiles(files)
	return files, nil
}

func (m *Memory) ListFilesByUploader(_ context.Context, uploaderID string) ([]model.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files := []model.File{}
	for _, file := range m.files {
		if file.UploadedBy == uploaderID {
			files = append(files, file)
		}
	}
	sortFiles(files)
	return files, nil
}

func (m *Memory) IncrementDownloadCount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[id]
	if !ok {
		return ErrNotFound
	}
	file.DownloadCount++
	m.files[id] = file
	return nil
}

func (m *Memory) SaveChatMessage(_ context.Context, message model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats = append(m.chats, message)
	return nil
}

func (m *Memory) ListChatHistory(_ context.Context, userID string, limit int) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	messages := []model.ChatMessage{}
	for _, message := range m.chats {
		if message.UserID == userID {
			messages = append(messages, message)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.After(messages[j].CreatedAt)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func (m *Memory) GetDailyContent(_ context.Context, date time.Time, language string) ([]model.DailyContent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contents := []model.DailyContent{}
	for _, content := range m.daily {
		if content.Language == language && sameDay(content.Date, date) {
			contents = append(contents, content)
		}
	}
	sort.Slice(contents, func(i, j int) bool {
		return contents[i].Type < contents[j].Type
	})
	return contents, nil
}

func (m *Memory) CreateDailyContent(_ context.Context, content model.DailyContent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily = append(m.daily, content)
	return nil
}

var _ Store = (*Memory)(nil)
