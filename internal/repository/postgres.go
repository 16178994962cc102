package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SyedMohammedSameer/Iqra/internal/model"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const userColumns = `id, email, password_hash, first_name, last_name, profile_image_url, role, language, is_active, is_verified, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	var role string
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.ProfileImageURL,
		&role,
		&user.Language,
		&user.Active,
		&user.Verified,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, mapError(err)
	}
	user.Role = model.Role(role)
	return user, nil
}

func (s *Postgres) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, profile_image_url, role, language, is_active, is_verified, last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.ProfileImageURL, string(user.Role), user.Language, user.Active, user.Verified, user.LastLoginAt, user.CreatedAt, user.UpdatedAt)
	return mapError(err)
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *Postgres) GetUserByID(ctx context.Context, id string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Postgres) UpdateUser(ctx context.Context, id string, update UserUpdate) (model.User, error) {
	sets := []string{"updated_at = now()"}
	args := []interface{}{id}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.FirstName != nil {
		add("first_name", *update.FirstName)
	}
	if update.LastName != nil {
		add("last_name", *update.LastName)
	}
	if update.PasswordHash != nil {
		add("password_hash", *update.PasswordHash)
	}
	if update.ProfileImageURL != nil {
		add("profile_image_url", *update.ProfileImageURL)
	}
	if update.Language != nil {
		add("language", *update.Language)
	}
	if update.Active != nil {
		add("is_active", *update.Active)
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + userColumns
	return scanUser(s.pool.QueryRow(ctx, query, args...))
}

func (s *Postgres) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_login_at = $1, updated_at = $1 WHERE id = $2`, at, id)
	return mapError(err)
}

const classColumns = `id, title, description, teacher_id, schedule, start_date, end_date, duration, meeting_link, category, level, max_students, price, currency, is_active, is_public, created_at, updated_at`

func scanClass(row pgx.Row) (model.Class, error) {
	var class model.Class
	err := row.Scan(
		&class.ID,
		&class.Title,
		&class.Description,
		&class.TeacherID,
		&class.Schedule,
		&class.StartDate,
		&class.EndDate,
		&class.Duration,
		&class.MeetingLink,
		&class.Category,
		&class.Level,
		&class.MaxStudents,
		&class.Price,
		&class.Currency,
		&class.Active,
		&class.Public,
		&class.CreatedAt,
		&class.UpdatedAt,
	)
	if err != nil {
		return model.Class{}, mapError(err)
	}
	return class, nil
}

func (s *Postgres) CreateClass(ctx context.Context, class model.Class) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO classes (id, title, description, teacher_id, schedule, start_date, end_date, duration, meeting_link, category, level, max_students, price, currency, is_active, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, class.ID, class.Title, class.Description, class.TeacherID, class.Schedule, class.StartDate, class.EndDate, class.Duration, class.MeetingLink, class.Category, class.Level, class.MaxStudents, class.Price, class.Currency, class.Active, class.Public, class.CreatedAt, class.UpdatedAt)
	return mapError(err)
}

func (s *Postgres) GetClass(ctx context.Context, id string) (model.Class, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id)
	return scanClass(row)
}

func (s *Postgres) collectClasses(ctx context.Context, query string, args ...interface{}) ([]model.Class, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	classes := []model.Class{}
	for rows.Next() {
		class, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return classes, mapError(rows.Err())
}

func (s *Postgres) ListAvailableClasses(ctx context.Context, limit int) ([]model.Class, error) {
	return s.collectClasses(ctx, `
		SELECT `+classColumns+` FROM classes
		WHERE is_active = true AND is_public = true
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
}

func (s *Postgres) ListClassesByTeacher(ctx context.Context, teacherID string) ([]model.Class, error) {
	return s.collectClasses(ctx, `
		SELECT `+classColumns+` FROM classes
		WHERE teacher_id = $1 AND is_active = true
		ORDER BY created_at DESC
	`, teacherID)
}

func (s *Postgres) ListClassesByStudent(ctx context.Context, studentID string) ([]model.Class, error) {
	return s.collectClasses(ctx, `
		SELECT c.id, c.title, c.description, c.teacher_id, c.schedule, c.start_date, c.end_date, c.duration, c.meeting_link, c.category, c.level, c.max_students, c.price, c.currency, c.is_active, c.is_public, c.created_at, c.updated_at
		FROM classes c
		INNER JOIN class_enrollments e ON e.class_id = c.id
		WHERE e.student_id = $1 AND c.is_active = true AND e.status = 'enrolled'
		ORDER BY c.created_at DESC
	`, studentID)
}

func (s *Postgres) UpdateClass(ctx context.Context, id string, update ClassUpdate) (model.Class, error) {
	sets := []string{"updated_at = now()"}
	args := []interface{}{id}

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.Description != nil {
		add("description", *update.Description)
	}
	if update.Schedule != nil {
		add("schedule", *update.Schedule)
	}
	if update.StartDate != nil {
		add("start_date", *update.StartDate)
	}
	if update.EndDate != nil {
		add("end_date", *update.EndDate)
	}
	if update.Duration != nil {
		add("duration", *update.Duration)
	}
	if update.MeetingLink != nil {
		add("meeting_link", *update.MeetingLink)
	}
	if update.Category != nil {
		add("category", *update.Category)
	}
	if update.Level != nil {
		add("level", *update.Level)
	}
	if update.MaxStudents != nil {
		add("max_students", *update.MaxStudents)
	}
	if update.Price != nil {
		add("price", *update.Price)
	}
	if update.Currency != nil {
		add("currency", *update.Currency)
	}
	if update.Public != nil {
		add("is_public", *update.Public)
	}

	query := `UPDATE classes SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + classColumns
	return scanClass(s.pool.QueryRow(ctx, query, args...))
}

func (s *Postgres) DeactivateClass(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE classes SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) CreateEnrollment(ctx context.Context, enrollment model.Enrollment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO class_enrollments (id, class_id, student_id, status, progress_percentage, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, enrollment.ID, enrollment.ClassID, enrollment.StudentID, enrollment.Status, enrollment.ProgressPercentage, enrollment.EnrolledAt)
	return mapError(err)
}

func (s *Postgres) DeleteEnrollment(ctx context.Context, classID, studentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM class_enrollments WHERE class_id = $1 AND student_id = $2`, classID, studentID)
	return mapError(err)
}

func (s *Postgres) ListEnrollmentsByStudent(ctx context.Context, studentID string) ([]model.Enrollment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, class_id, student_id, status, progress_percentage, enrolled_at
		FROM class_enrollments
		WHERE student_id = $1
		ORDER BY enrolled_at DESC
	`, studentID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	enrollments := []model.Enrollment{}
	for rows.Next() {
		var enrollment model.Enrollment
		if err := rows.Scan(&enrollment.ID, &enrollment.ClassID, &enrollment.StudentID, &enrollment.Status, &enrollment.ProgressPercentage, &enrollment.EnrolledAt); err != nil {
			return nil, mapError(err)
		}
		enrollments = append(enrollments, enrollment)
	}
	return enrollments, mapError(rows.Err())
}

func (s *Postgres) CountStudentsByTeacher(ctx context.Context, teacherID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT e.student_id)
		FROM class_enrollments e
		INNER JOIN classes c ON c.id = e.class_id
		WHERE c.teacher_id = $1 AND e.status = 'enrolled'
	`, teacherID).Scan(&count)
	return count, mapError(err)
}

const fileColumns = `id, file_name, original_name, file_path, file_size, mime_type, uploaded_by, class_id, description, category, is_public, download_count, created_at`

func scanFile(row pgx.Row) (model.File, error) {
	var file model.File
	err := row.Scan(
		&file.ID,
		&file.FileName,
		&file.OriginalName,
		&file.FilePath,
		&file.FileSize,
		&file.MimeType,
		&file.UploadedBy,
		&file.ClassID,
		&file.Description,
		&file.Category,
		&file.Public,
		&file.DownloadCount,
		&file.CreatedAt,
	)
	if err != nil {
		return model.File{}, mapError(err)
	}
	return file, nil
}

func (s *Postgres) CreateFile(ctx context.Context, file model.File) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO files (id, file_name, original_name, file_path, file_size, mime_type, uploaded_by, class_id, description, category, is_public, download_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, file.ID, file.FileName, file.OriginalName, file.FilePath, file.FileSize, file.MimeType, file.UploadedBy, file.ClassID, file.Description, file.Category, file.Public, file.DownloadCount, file.CreatedAt)
	return mapError(err)
}

func (s *Postgres) GetFile(ctx context.Context, id string) (model.File, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
	return scanFile(row)
}

func (s *Postgres) collectFiles(ctx context.Context, query string, args ...interface{}) ([]model.File, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	files := []model.File{}
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, mapError(rows.Err())
}

func (s *Postgres) ListFilesByClass(ctx context.Context, classID string) ([]model.File, error) {
	return s.collectFiles(ctx, `SELECT `+fileColumns+` FROM files WHERE class_id = $1 ORDER BY created_at DESC`, classID)
}

func (s *Postgres) ListFilesByUploader(ctx context.Context, uploaderID string) ([]model.File, error) {
	return s.collectFiles(ctx, `SELECT `+fileColumns+` FROM files WHERE uploaded_by = $1 ORDER BY created_at DESC`, uploaderID)
}

func (s *Postgres) IncrementDownloadCount(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE files SET download_count = download_count + 1 WHERE id = $1`, id)
	return mapError(err)
}

func (s *Postgres) SaveChatMessage(ctx context.Context, message model.ChatMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, user_id, message, response, ai_model, response_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, message.ID, message.UserID, message.Message, message.Response, message.AIModel, message.ResponseTimeMS, message.CreatedAt)
	return mapError(err)
}

func (s *Postgres) ListChatHistory(ctx context.Context, userID string, limit int) ([]model.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, message, response, ai_model, response_time_ms, created_at
		FROM chat_messages
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	messages := []model.ChatMessage{}
	for rows.Next() {
		var message model.ChatMessage
		if err := rows.Scan(&message.ID, &message.UserID, &message.Message, &message.Response, &message.AIModel, &message.ResponseTimeMS, &message.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		messages = append(messages, message)
	}
	return messages, mapError(rows.Err())
}

func (s *Postgres) GetDailyContent(ctx context.Context, date time.Time, language string) ([]model.DailyContent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, content, source, language, date, view_count
		FROM daily_content
		WHERE date = $1::date AND language = $2
		ORDER BY type
	`, date.UTC().Truncate(24*time.Hour), language)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	contents := []model.DailyContent{}
	for rows.Next() {
		var content model.DailyContent
		if err := rows.Scan(&content.ID, &content.Type, &content.Content, &content.Source, &content.Language, &content.Date, &content.ViewCount); err != nil {
			return nil, mapError(err)
		}
		contents = append(contents, content)
	}
	return contents, mapError(rows.Err())
}

func (s *Postgres) CreateDailyContent(ctx context.Context, content model.DailyContent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO daily_content (id, type, content, source, language, date, view_count)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7)
	`, content.ID, content.Type, content.Content, content.Source, content.Language, content.Date.UTC().Truncate(24*time.Hour), content.ViewCount)
	return mapError(err)
}

// mapError translates driver errors into the package sentinels so handlers
// never branch on pgx types.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "enrollment") {
			return ErrDuplicateEnrollment
		}
		return ErrDuplicateEmail
	}
	return err
}

var _ Store = (*Postgres)(nil)
