package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/SyedMohammedSameer/Iqra/internal/ai"
	"github.com/SyedMohammedSameer/Iqra/internal/auth"
	"github.com/SyedMohammedSameer/Iqra/internal/config"
	"github.com/SyedMohammedSameer/Iqra/internal/model"
	"github.com/SyedMohammedSameer/Iqra/internal/repository"
	"github.com/SyedMohammedSameer/Iqra/internal/storage"
)

type testApp struct {
	cfg   config.Config
	store *repository.Memory
	srv   *httptest.Server
}

func newTestApp(t *testing.T, assistant ai.Assistant, redisClient *redis.Client) *testApp {
	t.Helper()

	cfg := config.Config{
		HTTPAddr:       ":0",
		JWTSecret:      "test-secret",
		JWTIssuer:      "test-issuer",
		TokenTTL:       time.Hour,
		Environment:    "development",
		UploadDir:      t.TempDir(),
		MaxUploadBytes: 10 << 20,
		GeminiModel:    "test-model",
	}

	objects, err := storage.NewDisk(cfg.UploadDir)
	if err != nil {
		t.Fatalf("storage error: %v", err)
	}

	store := repository.NewMemory()
	server := NewServer(cfg, store, objects, assistant, redisClient)
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	return &testApp{cfg: cfg, store: store, srv: srv}
}

func mustToken(t *testing.T, secret, issuer, userID, role string, ttl time.Duration) string {
	t.Helper()
	token, err := auth.NewAccessToken(secret, issuer, ttl, auth.Claims{
		UserID: userID,
		Email:  userID + "@example.local",
		Role:   role,
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	return token
}

func doReq(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	return resp
}

func doCookieReq(t *testing.T, method, url string, cookie *http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	req.AddCookie(cookie)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
}

func authCookie(resp *http.Response) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == auth.CookieName {
			return cookie
		}
	}
	return nil
}

func register(t *testing.T, app *testApp, email, password, role string) authResponse {
	t.Helper()
	resp := doReq(t, http.MethodPost, app.srv.URL+"/api/auth/register", "", map[string]interface{}{
		"email":     email,
		"password":  password,
		"firstName": "Test",
		"lastName":  "User",
		"role":      role,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	var out authResponse
	decodeBody(t, resp, &out)
	return out
}

func TestRegisterLoginFlow(t *testing.T) {
	app := newTestApp(t, nil, nil)

	resp := doReq(t, http.MethodPost, app.srv.URL+"/api/auth/register", "", map[string]interface{}{
		"email":     "a@x.com",
		"password":  "secret1",
		"firstName": "Aisha",
		"lastName":  "Khan",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if authCookie(resp) == nil {
		t.Fatal("expected auth cookie on register")
	}

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if strings.Contains(string(raw), "password") || strings.Contains(string(raw), "$2a$") {
		t.Fatal("register response leaks password material")
	}
	var created authResponse
	if err := json.Unmarshal(raw, &created); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if created.Token == "" {
		t.Fatal("expected token in register body")
	}
	if created.User.Role != "student" {
		t.Fatalf("expected default role student, got %q", created.User.Role)
	}

	// Same email with different case is a conflict.
	resp = doReq(t, http.MethodPost, app.srv.URL+"/api/auth/register", "", map[string]interface{}{
		"email":     "A@X.COM",
		"password":  "secret1",
		"firstName": "Aisha",
		"lastName":  "Khan",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Wrong password is indistinguishable from an unknown email.
	resp = doReq(t, http.MethodPost, app.srv.URL+"/api/auth/login", "", map[string]string{
		"email": "a@x.com", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var wrongPass map[string]string
	decodeBody(t, resp, &wrongPass)

	resp = doReq(t, http.MethodPost, app.srv.URL+"/api/auth/login", "", map[string]string{
		"email": "nobody@x.com", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var unknownEmail map[string]string
	decodeBody(t, resp, &unknownEmail)
	if wrongPass["error"] != unknownEmail["error"] {
		t.Fatalf("login failures must be uniform: %q vs %q", wrongPass["error"], unknownEmail["error"])
	}

	resp = doReq(t, http.MethodPost, app.srv.URL+"/api/auth/login", "", map[string]string{
		"email": "A@x.com ", "password": "secret1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if authCookie(resp) == nil {
		t.Fatal("expected auth cookie on login")
	}
	var logged authResponse
	decodeBody(t, resp, &logged)
	if logged.User.Email != "a@x.com" {
		t.Fatalf("expected normalized email, got %q", logged.User.Email)
	}

	claims, err := auth.ParseToken(app.cfg.JWTSecret, app.cfg.JWTIssuer, logged.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID != logged.User.ID || claims.Role != "student" {
		t.Fatalf("token claims mismatch: %+v", claims)
	}
}

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t, nil, nil)

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"bad email", map[string]interface{}{"email": "not-an-email", "password": "secret1", "firstName": "A", "lastName": "B"}},
		{"short password", map[string]interface{}{"email": "ok@x.com", "password": "12345", "firstName": "A", "lastName": "B"}},
		{"unknown role", map[string]interface{}{"email": "ok@x.com", "password": "secret1", "firstName": "A", "lastName": "B", "role": "admin"}},
		{"missing names", map[string]interface{}{"email": "ok@x.com", "password": "secret1"}},
	}
	for _, c := range cases {
		resp := doReq(t, http.MethodPost, app.srv.URL+"/api/auth/register", "", c.body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", c.name, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestMeDualChannel(t *testing.T) {
	app := newTestApp(t, nil, nil)
	created := register(t, app, "dual@x.com", "secret1", "")

	// Bearer header.
	resp := doReq(t, http.MethodGet, app.srv.URL+"/api/auth/me", created.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bearer: expected 200, got %d", resp.StatusCode)
	}
	var viaBearer map[string]userResponse
	decodeBody(t, resp, &viaBearer)

	// Same token via cookie only.
	resp = doCookieReq(t, http.MethodGet, app.srv.URL+"/api/auth/me", &http.Cookie{Name: auth.CookieName, Value: created.Token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cookie: expected 200, got %d", resp.StatusCode)
	}
	var viaCookie map[string]userResponse
	decodeBody(t, resp, &viaCookie)

	if viaBearer["user"].ID != viaCookie["user"].ID {
		t.Fatalf("channels resolved different identities: %q vs %q", viaBearer["user"].ID, viaCookie["user"].ID)
	}
}

func TestStaleCookieFallsBackToBearer(t *testing.T) {
	app := newTestApp(t, nil, nil)
	created := register(t, app, "fallback@x.com", "secret1", "")

	expired := mustToken(t, app.cfg.JWTSecret, app.cfg.JWTIssuer, created.User.ID, "student", -time.Minute)

	// A browser holding an expired cookie can still authenticate a
	// programmatic call carrying a fresh bearer token.
	req, err := http.NewRequest(http.MethodGet, app.srv.URL+"/api/auth/me", nil)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: expired})
	req.Header.Set("Authorization", "Bearer "+created.Token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 via bearer fallback, got %d", resp.StatusCode)
	}
	var body map[string]userResponse
	decodeBody(t, resp, &body)
	if body["user"].ID != created.User.ID {
		t.Fatalf("resolved identity %q, want %q", body["user"].ID, created.User.ID)
	}
}

func TestInvalidTokensRejectedUniformly(t *testing.T) {
	app := newTestApp(t, nil, nil)
	created := register(t, app, "tok@x.com", "secret1", "")

	expired := mustToken(t, app.cfg.JWTSecret, app.cfg.JWTIssuer, created.User.ID, "student", -time.Minute)

	pieces := strings.SplitN(created.Token, ".", 3)
	payload := []byte(pieces[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := pieces[0] + "." + string(payload) + "." + pieces[2]

	wrongSecret := mustToken(t, "other-secret", app.cfg.JWTIssuer, created.User.ID, "student", time.Hour)

	codes := map[string]string{}
	for name, token := range map[string]string{
		"expired": expired, "tampered": tampered, "wrong secret": wrongSecret, "absent": "",
	} {
		resp := doReq(t, http.MethodGet, app.srv.URL+"/api/auth/me", token, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, resp.StatusCode)
		}
		var body map[string]string
		decodeBody(t, resp, &body)
		codes[name] = body["error"]
	}
	for name, code := range codes {
		if code != codes["absent"] {
			t.Fatalf("%s: error code %q differs from %q", name, code, codes["absent"])
		}
	}
}

func TestMeIdentityGone(t *testing.T) {
	app := newTestApp(t, nil, nil)
	created := register(t, app, "gone@x.com", "secret1", "")

	app.store.DeleteUser(created.User.ID)

	resp := doReq(t, http.MethodGet, app.srv.URL+"/api/auth/me", created.Token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDeactivatedIdentity(t *testing.T) {
	app := newTestApp(t, nil, nil)
	created := register(t, app, "off@x.com", "secret1", "")

	inactive := false
	if _, err := app.store.UpdateUser(context.Background(), created.User.ID, repository.UserUpdate{Active: &inactive}); err != nil {
		t.Fatalf("deactivate error: %v", err)
	}

	// Correct credentials no longer log in.
	resp := doReq(t, http.MethodPost, app.srv.URL+"/api/auth/login", "", map[string]string{
		"email": "off@x.com", "password": "secret1",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// A still-valid token cannot refresh.
	resp = doReq(t, http.MethodPost, app.srv.URL+"/api/auth/refresh", created.Token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, app.srv.URL+"/api/auth/me", created.Token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRefreshIssuesNewToken(t *testing.T) {
	app := newTestApp(t, nil, nil)
	created := register(t, app, "fresh@x.com", "secret1", "")

	resp := doReq(t, http.MethodPost, app.srv.URL+"/api/auth/refresh", created.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	cookie := authCookie(resp)
	if cookie == nil || cookie.Value == "" {
		t.Fatal("expected replaced auth cookie")
	}
	var refreshed authResponse
	decodeBody(t, resp, &refreshed)

	claims, err := auth.ParseToken(app.cfg.JWTSecret, app.cfg.JWTIssuer, refreshed.Token)
	if err != nil {
		t.Fatalf("refreshed token does not verify: %v", err)
	}
	if claims.UserID != created.User.ID {
		t.Fatalf("refreshed token subject %q, want %q", claims.UserID, created.User.ID)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	app := newTestApp(t, nil, nil)

	for i := 0; i < 2; i++ {
		resp := doReq(t, http.MethodPost, app.srv.URL+"/api/auth/logout", "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i+1, resp.StatusCode)
		}
		cookie := authCookie(resp)
		if cookie == nil || cookie.MaxAge >= 0 {
			t.Fatalf("attempt %d: expected expired cookie, got %+v", i+1, cookie)
		}
		resp.Body.Close()
	}
}

func TestClassLifecycle(t *testing.T) {
	app := newTestApp(t, nil, nil)
	teacher := register(t, app, "teacher@x.com", "secret1", "teacher")
	other := register(t, app, "other@x.com", "secret1", "teacher")
	student := register(t, app, "student@x.com", "secret1", "")

	// Students cannot create classes.
	resp := doReq(t, http.MethodPost, app.srv.URL+"/api/classes", student.Token, map[string]interface{}{"title": "Tajweed"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("student create: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPost, app.srv.URL+"/api/classes", teacher.Token, map[string]interface{}{
		"title":       "Tajweed Basics",
		"description": "Pronunciation rules",
		"level":       "beginner",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	var createdClass map[string]classResponse
	decodeBody(t, resp, &createdClass)
	classID := createdClass["class"].ID
	if createdClass["class"].TeacherID != teacher.User.ID {
		t.Fatal("class must belong to the creating teacher")
	}

	// Only the owner can mutate.
	resp = doReq(t, http.MethodPut, app.srv.URL+"/api/classes/"+classID, other.Token, map[string]interface{}{"title": "Hijack"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-owner update: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPut, app.srv.URL+"/api/classes/"+classID, teacher.Token, map[string]interface{}{"title": "Tajweed Level 1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner update: expected 200, got %d", resp.StatusCode)
	}
	var updated map[string]classResponse
	decodeBody(t, resp, &updated)
	if updated["class"].Title != "Tajweed Level 1" {
		t.Fatalf("update not applied: %q", updated["class"].Title)
	}

	resp = doReq(t, http.MethodPost, app.srv.URL+"/api/classes/"+classID+"/enroll", student.Token, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enroll: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPost, app.srv.URL+"/api/classes/"+classID+"/enroll", student.Token, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate enroll: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, app.srv.URL+"/api/classes", student.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("student list: expected 200, got %d", resp.StatusCode)
	}
	var studentClasses map[string][]classResponse
	decodeBody(t, resp, &studentClasses)
	if len(studentClasses["classes"]) != 1 {
		t.Fatalf("expected 1 enrolled class, got %d", len(studentClasses["classes"]))
	}

	resp = doReq(t, http.MethodDelete, app.srv.URL+"/api/classes/"+classID, teacher.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, app.srv.URL+"/api/classes/available", student.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("available: expected 200, got %d", resp.StatusCode)
	}
	var available map[string][]classResponse
	decodeBody(t, resp, &available)
	if len(available["classes"]) != 0 {
		t.Fatalf("deactivated class still listed: %d", len(available["classes"]))
	}
}

type enrollFailStore struct {
	repository.Store
}

func (f *enrollFailStore) GetClass(_ context.Context, _ string) (model.Class, error) {
	return model.Class{}, errors.New("connection refused")
}

func TestEnrollStoreFailure(t *testing.T) {
	app := newTestApp(t, nil, nil)
	student := register(t, app, "outage@x.com", "secret1", "")

	objects, err := storage.NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("storage error: %v", err)
	}
	failing := NewServer(app.cfg, &enrollFailStore{Store: app.store}, objects, nil, nil)
	srv := httptest.NewServer(failing.Router())
	defer srv.Close()

	resp := doReq(t, http.MethodPost, srv.URL+"/api/classes/some-class/enroll", student.Token, nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("store outage: expected 500, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["error"] != "server_error" {
		t.Fatalf("expected server_error, got %q", body["error"])
	}
}

func uploadFile(t *testing.T, app *testApp, token, filename, mimeType string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("multipart error: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write error: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, app.srv.URL+"/api/files/upload", &buf)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	return resp
}

func TestFileUploadAndDownload(t *testing.T) {
	app := newTestApp(t, nil, nil)
	uploader := register(t, app, "uploader@x.com", "secret1", "teacher")
	stranger := register(t, app, "stranger@x.com", "secret1", "")

	content := []byte("%PDF-1.4 lesson notes")
	resp := uploadFile(t, app, uploader.Token, "notes.pdf", "application/pdf", content)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d", resp.StatusCode)
	}
	var uploaded map[string]fileResponse
	decodeBody(t, resp, &uploaded)
	fileID := uploaded["file"].ID
	if uploaded["file"].OriginalName != "notes.pdf" {
		t.Fatalf("original name %q", uploaded["file"].OriginalName)
	}
	if uploaded["file"].FileSize != int64(len(content)) {
		t.Fatalf("size %d, want %d", uploaded["file"].FileSize, len(content))
	}

	resp = uploadFile(t, app, uploader.Token, "malware.exe", "application/x-msdownload", []byte("nope"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad type: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, app.srv.URL+"/api/files/"+fileID+"/download", uploader.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download: expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Disposition"); !strings.Contains(got, "notes.pdf") {
		t.Fatalf("content disposition %q", got)
	}
	downloaded, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !bytes.Equal(downloaded, content) {
		t.Fatal("downloaded bytes differ from uploaded bytes")
	}

	// Private file, no class attached: only the uploader may download.
	resp = doReq(t, http.MethodGet, app.srv.URL+"/api/files/"+fileID+"/download", stranger.Token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger download: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, app.srv.URL+"/api/files", uploader.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var listed map[string][]fileResponse
	decodeBody(t, resp, &listed)
	if len(listed["files"]) != 1 || listed["files"][0].DownloadCount != 1 {
		t.Fatalf("expected one file with one download, got %+v", listed["files"])
	}
}

type fakeAssistant struct {
	askCalls   int
	dailyCalls int
}

func (f *fakeAssistant) Ask(_ context.Context, question string) (ai.Answer, error) {
	f.askCalls++
	return ai.Answer{
		Answer:      "Answer to: " + question,
		Sources:     []string{"Quran 2:153"},
		IsAuthentic: true,
	}, nil
}

func (f *fakeAssistant) DailyContent(_ context.Context, contentType, language string) (ai.ContentPiece, error) {
	f.dailyCalls++
	return ai.ContentPiece{Content: contentType + " of the day (" + language + ")", Source: "test source"}, nil
}

func TestChatAndHistory(t *testing.T) {
	assistant := &fakeAssistant{}
	app := newTestApp(t, assistant, nil)
	user := register(t, app, "chat@x.com", "secret1", "")

	resp := doReq(t, http.MethodPost, app.srv.URL+"/api/chat", user.Token, map[string]string{"message": "What is patience?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat: expected 200, got %d", resp.StatusCode)
	}
	var answered chatResponse
	decodeBody(t, resp, &answered)
	if !strings.Contains(answered.Response.Answer, "What is patience?") {
		t.Fatalf("unexpected answer %q", answered.Response.Answer)
	}
	if assistant.askCalls != 1 {
		t.Fatalf("expected 1 assistant call, got %d", assistant.askCalls)
	}

	resp = doReq(t, http.MethodGet, app.srv.URL+"/api/chat/history", user.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", resp.StatusCode)
	}
	var history map[string][]chatHistoryEntry
	decodeBody(t, resp, &history)
	if len(history["messages"]) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history["messages"]))
	}
	if history["messages"][0].Message != "What is patience?" {
		t.Fatalf("history message %q", history["messages"][0].Message)
	}

	resp = doReq(t, http.MethodPost, app.srv.URL+"/api/chat", user.Token, map[string]string{"message": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank message: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDailyContentGenerationAndCache(t *testing.T) {
	assistant := &fakeAssistant{}
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := newTestApp(t, assistant, redisClient)

	resp := doReq(t, http.MethodGet, app.srv.URL+"/api/daily-content?language=en", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var first dailyContentResponse
	decodeBody(t, resp, &first)
	if len(first.Contents) != 2 {
		t.Fatalf("expected verse and hadith, got %d entries", len(first.Contents))
	}
	if assistant.dailyCalls != 2 {
		t.Fatalf("expected 2 generation calls, got %d", assistant.dailyCalls)
	}

	key := dailyCacheKey("en", time.Now().UTC())
	if !mr.Exists(key) {
		t.Fatalf("expected cache key %q", key)
	}

	// Second request is served from the cache without regenerating.
	resp = doReq(t, http.MethodGet, app.srv.URL+"/api/daily-content?language=en", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var second dailyContentResponse
	decodeBody(t, resp, &second)
	if assistant.dailyCalls != 2 {
		t.Fatalf("cache miss regenerated content: %d calls", assistant.dailyCalls)
	}
	if len(second.Contents) != 2 || second.Contents[0].Content != first.Contents[0].Content {
		t.Fatal("cached response differs from generated response")
	}
}

func TestDashboardStats(t *testing.T) {
	app := newTestApp(t, nil, nil)
	teacher := register(t, app, "dash-teacher@x.com", "secret1", "teacher")
	student := register(t, app, "dash-student@x.com", "secret1", "")

	resp := doReq(t, http.MethodPost, app.srv.URL+"/api/classes", teacher.Token, map[string]interface{}{"title": "Fiqh"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create class: expected 201, got %d", resp.StatusCode)
	}
	var createdClass map[string]classResponse
	decodeBody(t, resp, &createdClass)

	resp = doReq(t, http.MethodPost, app.srv.URL+"/api/classes/"+createdClass["class"].ID+"/enroll", student.Token, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enroll: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, app.srv.URL+"/api/dashboard/stats", teacher.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("teacher stats: expected 200, got %d", resp.StatusCode)
	}
	var teacherStats map[string]int
	decodeBody(t, resp, &teacherStats)
	if teacherStats["totalClasses"] != 1 || teacherStats["totalStudents"] != 1 {
		t.Fatalf("teacher stats %+v", teacherStats)
	}

	resp = doReq(t, http.MethodGet, app.srv.URL+"/api/dashboard/stats", student.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("student stats: expected 200, got %d", resp.StatusCode)
	}
	var studentStats map[string]int
	decodeBody(t, resp, &studentStats)
	if studentStats["enrolledClasses"] != 1 {
		t.Fatalf("student stats %+v", studentStats)
	}
}

func TestProfileUpdate(t *testing.T) {
	app := newTestApp(t, nil, nil)
	user := register(t, app, "profile@x.com", "secret1", "")

	resp := doReq(t, http.MethodPut, app.srv.URL+"/api/users/profile", user.Token, map[string]interface{}{
		"firstName": "Renamed",
		"language":  "ar",
		"password":  "newsecret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	var updated profileResponse
	decodeBody(t, resp, &updated)
	if updated.FirstName != "Renamed" || updated.Language != "ar" {
		t.Fatalf("update not applied: %+v", updated)
	}

	// Old password no longer works, new one does.
	resp = doReq(t, http.MethodPost, app.srv.URL+"/api/auth/login", "", map[string]string{
		"email": "profile@x.com", "password": "secret1",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password: expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doReq(t, http.MethodPost, app.srv.URL+"/api/auth/login", "", map[string]string{
		"email": "profile@x.com", "password": "newsecret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("new password: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
