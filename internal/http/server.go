package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/SyedMohammedSameer/Iqra/internal/ai"
	"github.com/SyedMohammedSameer/Iqra/internal/auth"
	"github.com/SyedMohammedSameer/Iqra/internal/config"
	"github.com/SyedMohammedSameer/Iqra/internal/crypto"
	"github.com/SyedMohammedSameer/Iqra/internal/model"
	"github.com/SyedMohammedSameer/Iqra/internal/repository"
	"github.com/SyedMohammedSameer/Iqra/internal/storage"
)

type Server struct {
	cfg       config.Config
	store     repository.Store
	objects   storage.ObjectStore
	assistant ai.Assistant
	redis     *redis.Client
}

func NewServer(cfg config.Config, store repository.Store, objects storage.ObjectStore, assistant ai.Assistant, redisClient *redis.Client) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		objects:   objects,
		assistant: assistant,
		redis:     redisClient,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/api/auth/me", s.handleMe)
	r.With(s.authMiddleware).Get("/api/auth/user", s.handleMe)
	r.With(s.authMiddleware).Post("/api/auth/refresh", s.handleRefresh)

	r.With(s.authMiddleware).Get("/api/users/profile", s.handleGetProfile)
	r.With(s.authMiddleware).Put("/api/users/profile", s.handleUpdateProfile)

	r.Route("/api/classes", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/", s.handleListClasses)
		r.Get("/available", s.handleAvailableClasses)
		r.With(s.requireRole(model.RoleTeacher)).Post("/", s.handleCreateClass)
		r.With(s.requireRole(model.RoleTeacher)).Put("/{classID}", s.handleUpdateClass)
		r.With(s.requireRole(model.RoleTeacher)).Delete("/{classID}", s.handleDeleteClass)
		r.With(s.requireRole(model.RoleStudent)).Post("/{classID}/enroll", s.handleEnroll)
		r.With(s.requireRole(model.RoleStudent)).Delete("/{classID}/enroll", s.handleUnenroll)
	})

	r.Route("/api/files", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/upload", s.handleUploadFile)
		r.Get("/", s.handleListFiles)
		r.Get("/{fileID}/download", s.handleDownloadFile)
	})

	r.With(s.authMiddleware).Post("/api/chat", s.handleChat)
	r.With(s.authMiddleware).Get("/api/chat/history", s.handleChatHistory)

	r.Get("/api/daily-content", s.handleDailyContent)

	r.With(s.authMiddleware).Get("/api/dashboard/stats", s.handleDashboardStats)

	return r
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	Language  string `json:"language"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// userResponse is the public projection of an identity. The password hash
// never leaves the repository layer.
type userResponse struct {
	ID              string  `json:"id"`
	Email           string  `json:"email"`
	FirstName       string  `json:"firstName"`
	LastName        string  `json:"lastName"`
	ProfileImageURL *string `json:"profileImageUrl,omitempty"`
	Role            string  `json:"role"`
	Language        string  `json:"language"`
	IsVerified      bool    `json:"isVerified"`
	CreatedAt       string  `json:"createdAt"`
}

func mapUserResponse(user model.User) userResponse {
	return userResponse{
		ID:              user.ID,
		Email:           user.Email,
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		ProfileImageURL: user.ProfileImageURL,
		Role:            string(user.Role),
		Language:        user.Language,
		IsVerified:      user.Verified,
		CreatedAt:       user.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.LastName == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_email")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "weak_password")
		return
	}

	role := model.RoleStudent
	if req.Role != "" {
		parsed, err := model.ParseRole(req.Role)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_role")
			return
		}
		role = parsed
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = "en"
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: &hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
		Language:     language,
		Active:       true,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "email_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	token, err := s.issueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	s.setAuthCookie(w, token)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: mapUserResponse(user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	// Every login failure mode maps to the same response so callers cannot
	// probe which accounts exist or which are deactivated.
	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if user.PasswordHash == nil || !user.Active {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err := crypto.CheckPassword(*user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	if err := s.store.TouchLastLogin(r.Context(), user.ID, time.Now().UTC()); err != nil {
		log.Printf("touch last login for %s: %v", user.ID, err)
	}

	token, err := s.issueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	s.setAuthCookie(w, token)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: mapUserResponse(user)})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !user.Active {
		writeError(w, http.StatusUnauthorized, "authentication_required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]userResponse{"user": mapUserResponse(user)})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	// Token claims may be stale. Refresh hands out a new credential, so it
	// re-validates against the live record.
	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication_required")
		return
	}
	if !user.Active {
		writeError(w, http.StatusUnauthorized, "authentication_required")
		return
	}

	token, err := s.issueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	s.setAuthCookie(w, token)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: mapUserResponse(user)})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	// Clears the cookie channel only. A bearer token already held by a
	// client stays valid until it expires.
	s.clearAuthCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type profileResponse struct {
	userResponse
	LastLoginAt *string `json:"lastLoginAt,omitempty"`
	UpdatedAt   string  `json:"updatedAt"`
}

func mapProfileResponse(user model.User) profileResponse {
	resp := profileResponse{
		userResponse: mapUserResponse(user),
		UpdatedAt:    user.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if user.LastLoginAt != nil {
		formatted := user.LastLoginAt.UTC().Format(time.RFC3339)
		resp.LastLoginAt = &formatted
	}
	return resp
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, mapProfileResponse(user))
}

type updateProfileRequest struct {
	FirstName       *string `json:"firstName"`
	LastName        *string `json:"lastName"`
	ProfileImageURL *string `json:"profileImageUrl"`
	Language        *string `json:"language"`
	Password        *string `json:"password"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	// Profile mutation is privilege-bearing, so the live record is
	// consulted instead of trusting the token snapshot.
	current, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication_required")
		return
	}
	if !current.Active {
		writeError(w, http.StatusUnauthorized, "authentication_required")
		return
	}

	update := repository.UserUpdate{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		ProfileImageURL: req.ProfileImageURL,
		Language:        req.Language,
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			writeError(w, http.StatusBadRequest, "weak_password")
			return
		}
		hash, err := crypto.HashPassword(*req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		update.PasswordHash = &hash
	}

	user, err := s.store.UpdateUser(r.Context(), claims.UserID, update)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, mapProfileResponse(user))
}

type classResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	TeacherID   string  `json:"teacherId"`
	Schedule    string  `json:"schedule"`
	StartDate   *string `json:"startDate,omitempty"`
	EndDate     *string `json:"endDate,omitempty"`
	Duration    int     `json:"duration"`
	MeetingLink string  `json:"meetingLink"`
	Category    string  `json:"category"`
	Level       string  `json:"level"`
	MaxStudents int     `json:"maxStudents"`
	Price       int     `json:"price"`
	Currency    string  `json:"currency"`
	IsPublic    bool    `json:"isPublic"`
	CreatedAt   string  `json:"createdAt"`
}

func mapClassResponse(class model.Class) classResponse {
	resp := classResponse{
		ID:          class.ID,
		Title:       class.Title,
		Description: class.Description,
		TeacherID:   class.TeacherID,
		Schedule:    class.Schedule,
		Duration:    class.Duration,
		MeetingLink: class.MeetingLink,
		Category:    class.Category,
		Level:       class.Level,
		MaxStudents: class.MaxStudents,
		Price:       class.Price,
		Currency:    class.Currency,
		IsPublic:    class.Public,
		CreatedAt:   class.CreatedAt.UTC().Format(time.RFC3339),
	}
	if class.StartDate != nil {
		start := class.StartDate.UTC().Format(time.RFC3339)
		resp.StartDate = &start
	}
	if class.EndDate != nil {
		end := class.EndDate.UTC().Format(time.RFC3339)
		resp.EndDate = &end
	}
	return resp
}

func mapClassResponses(classes []model.Class) []classResponse {
	out := make([]classResponse, 0, len(classes))
	for _, class := range classes {
		out = append(out, mapClassResponse(class))
	}
	return out
}

func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var (
		classes []model.Class
		err     error
	)
	if claims.Role == string(model.RoleTeacher) {
		classes, err = s.store.ListClassesByTeacher(r.Context(), claims.UserID)
	} else {
		classes, err = s.store.ListClassesByStudent(r.Context(), claims.UserID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string][]classResponse{"classes": mapClassResponses(classes)})
}

func (s *Server) handleAvailableClasses(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	classes, err := s.store.ListAvailableClasses(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string][]classResponse{"classes": mapClassResponses(classes)})
}

type createClassRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Schedule    string  `json:"schedule"`
	StartDate   *string `json:"startDate"`
	EndDate     *string `json:"endDate"`
	Duration    int     `json:"duration"`
	MeetingLink string  `json:"meetingLink"`
	Category    string  `json:"category"`
	Level       string  `json:"level"`
	MaxStudents int     `json:"maxStudents"`
	Price       int     `json:"price"`
	Currency    string  `json:"currency"`
	IsPublic    *bool   `json:"isPublic"`
}

func isValidLevel(level string) bool {
	switch level {
	case "beginner", "intermediate", "advanced":
		return true
	default:
		return false
	}
}

func parseDate(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		parsed, err = time.Parse("2006-01-02", *value)
		if err != nil {
			return nil, err
		}
	}
	parsed = parsed.UTC()
	return &parsed, nil
}

func (s *Server) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req createClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "missing_title")
		return
	}
	if req.Level == "" {
		req.Level = "beginner"
	}
	if !isValidLevel(req.Level) {
		writeError(w, http.StatusBadRequest, "invalid_level")
		return
	}
	if req.MaxStudents <= 0 {
		req.MaxStudents = 10
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_date")
		return
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_date")
		return
	}

	public := true
	if req.IsPublic != nil {
		public = *req.IsPublic
	}

	now := time.Now().UTC()
	class := model.Class{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		TeacherID:   claims.UserID,
		Schedule:    req.Schedule,
		StartDate:   startDate,
		EndDate:     endDate,
		Duration:    req.Duration,
		MeetingLink: req.MeetingLink,
		Category:    req.Category,
		Level:       req.Level,
		MaxStudents: req.MaxStudents,
		Price:       req.Price,
		Currency:    req.Currency,
		Active:      true,
		Public:      public,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateClass(r.Context(), class); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]classResponse{"class": mapClassResponse(class)})
}

type updateClassRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Schedule    *string `json:"schedule"`
	StartDate   *string `json:"startDate"`
	EndDate     *string `json:"endDate"`
	Duration    *int    `json:"duration"`
	MeetingLink *string `json:"meetingLink"`
	Category    *string `json:"category"`
	Level       *string `json:"level"`
	MaxStudents *int    `json:"maxStudents"`
	Price       *int    `json:"price"`
	Currency    *string `json:"currency"`
	IsPublic    *bool   `json:"isPublic"`
}

// ownedClass loads the class and enforces that the caller is its teacher.
func (s *Server) ownedClass(w http.ResponseWriter, r *http.Request) (model.Class, bool) {
	claims := claimsFromContext(r.Context())
	classID := chi.URLParam(r, "classID")

	class, err := s.store.GetClass(r.Context(), classID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "class_not_found")
		} else {
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return model.Class{}, false
	}
	if class.TeacherID != claims.UserID {
		writeError(w, http.StatusForbidden, "not_class_owner")
		return model.Class{}, false
	}
	return class, true
}

func (s *Server) handleUpdateClass(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.ownedClass(w, r); !ok {
		return
	}

	var req updateClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Level != nil && !isValidLevel(*req.Level) {
		writeError(w, http.StatusBadRequest, "invalid_level")
		return
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_date")
		return
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_date")
		return
	}

	update := repository.ClassUpdate{
		Title:       req.Title,
		Description: req.Description,
		Schedule:    req.Schedule,
		StartDate:   startDate,
		EndDate:     endDate,
		Duration:    req.Duration,
		MeetingLink: req.MeetingLink,
		Category:    req.Category,
		Level:       req.Level,
		MaxStudents: req.MaxStudents,
		Price:       req.Price,
		Currency:    req.Currency,
		Public:      req.IsPublic,
	}

	class, err := s.store.UpdateClass(r.Context(), chi.URLParam(r, "classID"), update)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]classResponse{"class": mapClassResponse(class)})
}

func (s *Server) handleDeleteClass(w http.ResponseWriter, r *http.Request) {
	class, ok := s.ownedClass(w, r)
	if !ok {
		return
	}

	if err := s.store.DeactivateClass(r.Context(), class.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	classID := chi.URLParam(r, "classID")

	class, err := s.store.GetClass(r.Context(), classID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !class.Active {
		writeError(w, http.StatusNotFound, "class_not_found")
		return
	}

	enrollment := model.Enrollment{
		ID:         uuid.NewString(),
		ClassID:    class.ID,
		StudentID:  claims.UserID,
		Status:     "enrolled",
		EnrolledAt: time.Now().UTC(),
	}
	if err := s.store.CreateEnrollment(r.Context(), enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			writeError(w, http.StatusConflict, "already_enrolled")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "enrolled"})
}

func (s *Server) handleUnenroll(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	classID := chi.URLParam(r, "classID")

	if err := s.store.DeleteEnrollment(r.Context(), classID, claims.UserID); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var allowedMimeTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"video/mp4":  true,
	"audio/mpeg": true,
	"image/jpeg": true,
	"image/png":  true,
}

type fileResponse struct {
	ID            string  `json:"id"`
	FileName      string  `json:"fileName"`
	OriginalName  string  `json:"originalName"`
	FileSize      int64   `json:"fileSize"`
	MimeType      string  `json:"mimeType"`
	UploadedBy    string  `json:"uploadedBy"`
	ClassID       *string `json:"classId,omitempty"`
	Description   string  `json:"description"`
	Category      string  `json:"category"`
	IsPublic      bool    `json:"isPublic"`
	DownloadCount int     `json:"downloadCount"`
	CreatedAt     string  `json:"createdAt"`
}

func mapFileResponse(file model.File) fileResponse {
	return fileResponse{
		ID:            file.ID,
		FileName:      file.FileName,
		OriginalName:  file.OriginalName,
		FileSize:      file.FileSize,
		MimeType:      file.MimeType,
		UploadedBy:    file.UploadedBy,
		ClassID:       file.ClassID,
		Description:   file.Description,
		Category:      file.Category,
		IsPublic:      file.Public,
		DownloadCount: file.DownloadCount,
		CreatedAt:     file.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload")
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file")
		return
	}
	defer part.Close()

	mimeType := header.Header.Get("Content-Type")
	if !allowedMimeTypes[mimeType] {
		writeError(w, http.StatusBadRequest, "unsupported_file_type")
		return
	}

	path, size, err := s.objects.Save(header.Filename, part)
	if err != nil {
		log.Printf("save upload: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	var classID *string
	if raw := strings.TrimSpace(r.FormValue("classId")); raw != "" {
		classID = &raw
	}
	category := strings.TrimSpace(r.FormValue("category"))
	if category == "" {
		category = "other"
	}

	file := model.File{
		ID:           uuid.NewString(),
		FileName:     strings.TrimPrefix(path, s.cfg.UploadDir+"/"),
		OriginalName: header.Filename,
		FilePath:     path,
		FileSize:     size,
		MimeType:     mimeType,
		UploadedBy:   claims.UserID,
		ClassID:      classID,
		Description:  r.FormValue("description"),
		Category:     category,
		Public:       r.FormValue("isPublic") == "true",
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateFile(r.Context(), file); err != nil {
		_ = s.objects.Remove(path)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]fileResponse{"file": mapFileResponse(file)})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var (
		files []model.File
		err   error
	)
	if classID := r.URL.Query().Get("classId"); classID != "" {
		files, err = s.store.ListFilesByClass(r.Context(), classID)
	} else {
		files, err = s.store.ListFilesByUploader(r.Context(), claims.UserID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	out := make([]fileResponse, 0, len(files))
	for _, file := range files {
		out = append(out, mapFileResponse(file))
	}
	writeJSON(w, http.StatusOK, map[string][]fileResponse{"files": out})
}

// canAccessFile grants download to public files, the uploader, the class
// teacher, and enrolled students.
func (s *Server) canAccessFile(ctx context.Context, claims *auth.Claims, file model.File) bool {
	if file.Public || file.UploadedBy == claims.UserID {
		return true
	}
	if file.ClassID == nil {
		return false
	}
	class, err := s.store.GetClass(ctx, *file.ClassID)
	if err != nil {
		return false
	}
	if class.TeacherID == claims.UserID {
		return true
	}
	enrollments, err := s.store.ListEnrollmentsByStudent(ctx, claims.UserID)
	if err != nil {
		return false
	}
	for _, enrollment := range enrollments {
		if enrollment.ClassID == class.ID && enrollment.Status == "enrolled" {
			return true
		}
	}
	return false
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	fileID := chi.URLParam(r, "fileID")

	file, err := s.store.GetFile(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if !s.canAccessFile(r.Context(), claims, file) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	reader, err := s.objects.Open(file.FilePath)
	if err != nil {
		writeError(w, http.StatusNotFound, "file_not_found")
		return
	}
	defer reader.Close()

	if err := s.store.IncrementDownloadCount(r.Context(), file.ID); err != nil {
		log.Printf("increment download count for %s: %v", file.ID, err)
	}

	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.OriginalName))
	w.Header().Set("Content-Length", strconv.FormatInt(file.FileSize, 10))
	_, _ = io.Copy(w, reader)
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Response  ai.Answer `json:"response"`
	CreatedAt string    `json:"createdAt"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing_message")
		return
	}
	if s.assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant_unavailable")
		return
	}

	started := time.Now()
	answer, err := s.assistant.Ask(r.Context(), req.Message)
	if err != nil {
		log.Printf("assistant ask: %v", err)
		writeError(w, http.StatusBadGateway, "assistant_error")
		return
	}
	elapsed := int(time.Since(started).Milliseconds())

	encoded, err := json.Marshal(answer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	message := model.ChatMessage{
		ID:             uuid.NewString(),
		UserID:         claims.UserID,
		Message:        req.Message,
		Response:       string(encoded),
		AIModel:        s.cfg.GeminiModel,
		ResponseTimeMS: elapsed,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.SaveChatMessage(r.Context(), message); err != nil {
		log.Printf("save chat message: %v", err)
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ID:        message.ID,
		Message:   message.Message,
		Response:  answer,
		CreatedAt: message.CreatedAt.Format(time.RFC3339),
	})
}

type chatHistoryEntry struct {
	ID        string          `json:"id"`
	Message   string          `json:"message"`
	Response  json.RawMessage `json:"response"`
	CreatedAt string          `json:"createdAt"`
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	messages, err := s.store.ListChatHistory(r.Context(), claims.UserID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	out := make([]chatHistoryEntry, 0, len(messages))
	for _, message := range messages {
		response := json.RawMessage(message.Response)
		if !json.Valid(response) {
			encoded, _ := json.Marshal(message.Response)
			response = encoded
		}
		out = append(out, chatHistoryEntry{
			ID:        message.ID,
			Message:   message.Message,
			Response:  response,
			CreatedAt: message.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string][]chatHistoryEntry{"messages": out})
}

type dailyContentEntry struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

type dailyContentResponse struct {
	Date     string              `json:"date"`
	Language string              `json:"language"`
	Contents []dailyContentEntry `json:"contents"`
}

func dailyCacheKey(language string, day time.Time) string {
	return "daily_content:" + language + ":" + day.Format("2006-01-02")
}

func (s *Server) handleDailyContent(w http.ResponseWriter, r *http.Request) {
	language := r.URL.Query().Get("language")
	if language == "" {
		language = "en"
	}
	today := time.Now().UTC()
	cacheKey := dailyCacheKey(language, today)

	if s.redis != nil {
		if cached, err := s.redis.Get(r.Context(), cacheKey).Result(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(cached))
			return
		}
	}

	contents, err := s.store.GetDailyContent(r.Context(), today, language)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if s.assistant != nil {
		contents, err = s.fillMissingDailyContent(r.Context(), contents, language, today)
		if err != nil {
			log.Printf("generate daily content: %v", err)
		}
	}

	resp := dailyContentResponse{
		Date:     today.Format("2006-01-02"),
		Language: language,
		Contents: make([]dailyContentEntry, 0, len(contents)),
	}
	for _, content := range contents {
		resp.Contents = append(resp.Contents, dailyContentEntry{
			ID:      content.ID,
			Type:    content.Type,
			Content: content.Content,
			Source:  content.Source,
		})
	}

	if s.redis != nil && len(resp.Contents) > 0 {
		if encoded, err := json.Marshal(resp); err == nil {
			endOfDay := today.Truncate(24 * time.Hour).Add(24 * time.Hour)
			s.redis.Set(r.Context(), cacheKey, encoded, time.Until(endOfDay))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// fillMissingDailyContent generates and persists any content type absent
// for the day. Existing entries are never regenerated.
func (s *Server) fillMissingDailyContent(ctx context.Context, contents []model.DailyContent, language string, day time.Time) ([]model.DailyContent, error) {
	present := map[string]bool{}
	for _, content := range contents {
		present[content.Type] = true
	}

	for _, contentType := range []string{"verse", "hadith"} {
		if present[contentType] {
			continue
		}
		piece, err := s.assistant.DailyContent(ctx, contentType, language)
		if err != nil {
			return contents, err
		}
		content := model.DailyContent{
			ID:       uuid.NewString(),
			Type:     contentType,
			Content:  piece.Content,
			Source:   piece.Source,
			Language: language,
			Date:     day,
		}
		if err := s.store.CreateDailyContent(ctx, content); err != nil {
			return contents, err
		}
		contents = append(contents, content)
	}
	return contents, nil
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	if claims.Role == string(model.RoleTeacher) {
		classes, err := s.store.ListClassesByTeacher(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		students, err := s.store.CountStudentsByTeacher(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		files, err := s.store.ListFilesByUploader(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{
			"totalClasses":  len(classes),
			"totalStudents": students,
			"totalFiles":    len(files),
		})
		return
	}

	enrollments, err := s.store.ListEnrollmentsByStudent(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	var enrolled, completed, progressSum int
	for _, enrollment := range enrollments {
		switch enrollment.Status {
		case "enrolled":
			enrolled++
		case "completed":
			completed++
		}
		progressSum += enrollment.ProgressPercentage
	}
	average := 0
	if len(enrollments) > 0 {
		average = progressSum / len(enrollments)
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"enrolledClasses":  enrolled,
		"completedClasses": completed,
		"averageProgress":  average,
	})
}

func (s *Server) issueToken(user model.User) (string, error) {
	return auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.TokenTTL, auth.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   string(user.Role),
	})
}

func (s *Server) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Production(),
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Production(),
		SameSite: http.SameSiteStrictMode,
	})
}

// authMiddleware resolves the session from the cookie first, then the
// bearer header. A cookie that fails verification falls through to the
// header; absent, malformed, expired, and forged tokens all get the same
// response.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := auth.ResolveClaims(r, func(token string) (*auth.Claims, error) {
			return auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		}, auth.CookieTokenSource(auth.CookieName), auth.BearerTokenSource())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication_required")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			for _, role := range roles {
				if claims != nil && claims.Role == string(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
