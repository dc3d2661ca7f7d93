package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"prairielearn/backend/internal/coursedb"
	"prairielearn/backend/internal/database/databasetest"
	"prairielearn/backend/internal/fromdisk"
	"prairielearn/backend/internal/hub"
	"prairielearn/backend/internal/models"
	"prairielearn/backend/internal/question"
	"prairielearn/backend/pkg/jwt"
)

const (
	testSecret = "handler-secret"
	testPrefix = "/api/v1"
)

type testServer struct {
	h          *Handler
	router     *gin.Engine
	instructor string
	student    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := databasetest.Open(t)
	log := zap.NewNop()
	events := hub.New()

	h := &Handler{
		DB:          db,
		Log:         log,
		Questions:   question.NewService(db, nil, nil, log),
		Syncer:      fromdisk.NewSyncer(db, log, events),
		Hub:         events,
		JWTSecret:   testSecret,
		URLPrefix:   testPrefix,
		CoursesRoot: t.TempDir(),
	}
	router := gin.New()
	h.RegisterRoutes(router.Group(testPrefix))

	s := &testServer{h: h, router: router}
	s.instructor = s.createUser(t, "inst@example.com", models.RoleInstructor)
	s.student = s.createUser(t, "student@example.com", models.RoleStudent)
	return s
}

func (s *testServer) createUser(t *testing.T, email, role string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	user := models.User{Name: email, Email: email, PasswordHash: string(hash), Role: role}
	require.NoError(t, s.h.DB.Create(&user).Error)
	token, err := jwt.GenerateToken(testSecret, user.ID)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, testPrefix+path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) postForm(t *testing.T, path, token string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, testPrefix+path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) syncSample(t *testing.T) *fromdisk.Result {
	t.Helper()
	result, err := s.h.Syncer.SyncCourse(context.Background(), &coursedb.Course{
		Path: "/courses/tam212",
		Name: "TAM 212",
		Tags: []coursedb.Tag{
			{Name: "easy", Color: "green1"},
			{Name: "hard", Color: "red1"},
			{Name: "vector", Color: "blue1"},
		},
		Questions: []coursedb.Question{
			{QID: "addNumbers", Title: "Add numbers", Tags: []string{"easy"}},
			{QID: "pulley", Title: "Pulley", Tags: []string{"hard", "vector"}},
			{QID: "untagged", Title: "Untagged"},
		},
	})
	require.NoError(t, err)
	return result
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/auth/register", "", RegisterInput{Name: "Ada", Email: "Ada@Example.com", Password: "password123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	token := decode[TokenResponse](t, w).Token
	assert.NotEmpty(t, token)

	w = s.do(t, http.MethodPost, "/auth/register", "", RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "password123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/auth/register", "", RegisterInput{Name: "Bob", Email: "bob@example.com", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/auth/login", "", LoginInput{Email: "ada@example.com", Password: "password123"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/auth/login", "", LoginInput{Email: "ada@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[UserResponse](t, w)
	assert.Equal(t, "ada@example.com", me.Email)
	assert.Equal(t, models.RoleStudent, me.Role)
}

func TestGetCourseTags(t *testing.T) {
	s := newTestServer(t)
	result := s.syncSample(t)

	w := s.do(t, http.MethodGet, "/courses/"+itoa(result.CourseID)+"/tags?limit=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[PaginatedTagResponse](t, w)
	assert.Equal(t, int64(3), page.Meta.TotalItems)
	assert.Equal(t, 2, page.Meta.TotalPages)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "easy", page.Data[0].Name)
	assert.Equal(t, 1, page.Data[0].Number)
	assert.Equal(t, "hard", page.Data[1].Name)

	w = s.do(t, http.MethodGet, "/courses/"+itoa(result.CourseID)+"/tags?limit=2&page=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[PaginatedTagResponse](t, w)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "vector", page.Data[0].Name)

	w = s.do(t, http.MethodGet, "/courses/abc/tags", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCourseQuestions(t *testing.T) {
	s := newTestServer(t)
	result := s.syncSample(t)
	base := "/courses/" + itoa(result.CourseID) + "/questions"

	w := s.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	all := decode[PaginatedQuestionResponse](t, w)
	require.Len(t, all.Data, 3)
	assert.Equal(t, "addNumbers", all.Data[0].QID)
	pulley := all.Data[1]
	require.Len(t, pulley.Tags, 2)
	assert.Equal(t, "hard", pulley.Tags[0].Name)
	assert.Equal(t, "vector", pulley.Tags[1].Name)
	assert.Empty(t, all.Data[2].Tags)

	w = s.do(t, http.MethodGet, base+"?tag_ids="+itoa(result.TagIDs["vector"])+","+itoa(result.TagIDs["easy"]), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	filtered := decode[PaginatedQuestionResponse](t, w)
	assert.Equal(t, int64(2), filtered.Meta.TotalItems)
	require.Len(t, filtered.Data, 2)
	assert.Equal(t, "addNumbers", filtered.Data[0].QID)
	assert.Equal(t, "pulley", filtered.Data[1].QID)

	w = s.do(t, http.MethodGet, base+"?tag_ids=1,x", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func writeCourseDir(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"infoCourse.json": `{
    "name": "CS 101",
    "tags": [
        {"name": "easy", "color": "green1"},
        {"name": "hard", "color": "red1"}
    ]
}`,
		filepath.Join("questions", "q1", "info.json"): `{
    "title": "First",
    "tags": ["hard", "easy"]
}`,
		filepath.Join("questions", "q2", "info.json"): `{
    "title": "Second",
    "tags": ["missing"]
}`,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestSyncCourseHandler(t *testing.T) {
	s := newTestServer(t)
	writeCourseDir(t, filepath.Join(s.h.CoursesRoot, "cs101"))

	w := s.do(t, http.MethodPost, "/sync", s.student, SyncInput{Path: "cs101"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/sync", s.instructor, SyncInput{Path: "cs101"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[SyncResponse](t, w)
	assert.Equal(t, "CS 101", resp.CourseName)
	assert.Len(t, resp.TagIDs, 2)
	assert.Len(t, resp.QuestionIDs, 2)
	require.Len(t, resp.QuestionErrors, 1)
	assert.Contains(t, resp.QuestionErrors[0], "unknown tag: missing")

	for _, path := range []string{"../etc", "/etc", ".", "cs101/../.."} {
		w = s.do(t, http.MethodPost, "/sync", s.instructor, SyncInput{Path: path})
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	w = s.do(t, http.MethodPost, "/sync", s.instructor, SyncInput{Path: "nowhere"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestResolveCoursePath(t *testing.T) {
	root := t.TempDir()

	got, ok := resolveCoursePath(root, "a/b")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "a", "b"), got)

	_, ok = resolveCoursePath(root, "a/../../b")
	assert.False(t, ok)
	_, ok = resolveCoursePath(root, "")
	assert.False(t, ok)
}

func TestQuestionPreview(t *testing.T) {
	s := newTestServer(t)
	result := s.syncSample(t)
	qid := result.QuestionIDs["pulley"]
	base := "/questions/" + itoa(qid) + "/preview"

	w := s.do(t, http.MethodGet, base, s.student, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, base+"?variant_seed=42", s.instructor, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode[PreviewResponse](t, w)
	assert.Equal(t, "pulley", preview.Question.QID)
	assert.Equal(t, "42", preview.Variant.Seed)
	assert.Empty(t, preview.Submissions)
	assert.Contains(t, preview.QuestionHTML, "Pulley")
	variantID := preview.Variant.ID

	var views int64
	require.NoError(t, s.h.DB.Model(&models.PageView{}).Where("question_id = ?", qid).Count(&views).Error)
	assert.Equal(t, int64(1), views)

	// Saving an answer redirects back to the same variant.
	w = s.do(t, http.MethodPost, base, s.instructor, PreviewActionInput{
		Action:          question.ActionSave,
		VariantID:       variantID,
		SubmittedAnswer: map[string]any{"x": 2},
	})
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, testPrefix+base+"?variant_id="+itoa(variantID), w.Header().Get("Location"))

	w = s.postForm(t, base, s.instructor, url.Values{
		"__action":     {question.ActionGrade},
		"__variant_id": {itoa(variantID)},
		"x":            {"3"},
	})
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, base+"?variant_id="+itoa(variantID), s.instructor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	preview = decode[PreviewResponse](t, w)
	assert.Equal(t, variantID, preview.Variant.ID)
	require.Len(t, preview.Submissions, 2)
	assert.True(t, preview.Submissions[0].GradingRequestedAt != nil)

	w = s.do(t, http.MethodGet, base+"/variant/"+itoa(variantID)+"/submission/"+itoa(preview.Submissions[0].ID), s.instructor, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	panels := decode[question.SubmissionPanels](t, w)
	assert.NotEmpty(t, panels.SubmissionPanel)

	w = s.do(t, http.MethodGet, base+"/variant/"+itoa(variantID)+"/submission/99999", s.instructor, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuestionPreviewErrors(t *testing.T) {
	s := newTestServer(t)
	result := s.syncSample(t)
	base := "/questions/" + itoa(result.QuestionIDs["pulley"]) + "/preview"
	otherBase := "/questions/" + itoa(result.QuestionIDs["addNumbers"]) + "/preview"

	w := s.do(t, http.MethodGet, "/questions/99999/preview", s.instructor, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, base+"?variant_id=abc", s.instructor, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, otherBase, s.instructor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	foreign := decode[PreviewResponse](t, w).Variant.ID

	// A variant of another question is rejected.
	w = s.do(t, http.MethodGet, base+"?variant_id="+itoa(foreign), s.instructor, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base, s.instructor, PreviewActionInput{Action: question.ActionGrade, VariantID: foreign})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, base, s.instructor, PreviewActionInput{Action: "explode", VariantID: foreign})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unknown __action: explode", decode[ErrorResponse](t, w).Error)
}

func TestReportIssue(t *testing.T) {
	s := newTestServer(t)
	result := s.syncSample(t)
	base := "/questions/" + itoa(result.QuestionIDs["pulley"]) + "/preview"

	w := s.do(t, http.MethodGet, base, s.instructor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	variantID := decode[PreviewResponse](t, w).Variant.ID

	w = s.postForm(t, base, s.instructor, url.Values{
		"__action":     {"report_issue"},
		"__variant_id": {itoa(variantID)},
		"description":  {"   "},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "A description of the issue must be provided", decode[ErrorResponse](t, w).Error)

	w = s.postForm(t, base, s.instructor, url.Values{
		"__action":     {"report_issue"},
		"__variant_id": {itoa(variantID)},
		"description":  {"The pulley diagram is missing"},
	})
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())

	var issue models.Issue
	require.NoError(t, s.h.DB.Where("variant_id = ?", variantID).First(&issue).Error)
	assert.Equal(t, "The pulley diagram is missing", issue.StudentMessage)
	assert.True(t, issue.ManuallyReported)
	assert.True(t, issue.Open)
}

type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyingRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func TestSyncEvents(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, testPrefix+"/courses/7/sync/events", nil)
	req.Header.Set("Authorization", "Bearer "+s.instructor)
	w := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.router.ServeHTTP(w, req)
	}()

	require.Eventually(t, func() bool { return s.h.Hub.Subscribers(7) == 1 }, time.Second, 5*time.Millisecond)
	s.h.Hub.Broadcast(7, hub.Event{Type: hub.EventSyncStarted, RunID: "run-1"})
	s.h.Hub.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event stream did not end")
	}

	body := w.Body.String()
	assert.Contains(t, body, "event:sync")
	assert.Contains(t, body, "run-1")
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
