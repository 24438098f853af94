package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"gator-overflow/internal/api"
	"gator-overflow/internal/auth"
	"gator-overflow/internal/database"
	"gator-overflow/internal/engine"
	"gator-overflow/internal/engine/actors"
	"gator-overflow/internal/models"
	"gator-overflow/internal/utils"
	"gator-overflow/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

// countingImages records how many images reach the store.
type countingImages struct {
	database.ImageStore
	mu    sync.Mutex
	saved int
}

func (c *countingImages) SaveImage(ctx context.Context, src io.Reader, filename, contentType string) (string, error) {
	c.mu.Lock()
	c.saved++
	c.mu.Unlock()
	return c.ImageStore.SaveImage(ctx, src, filename, contentType)
}

func (c *countingImages) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved
}

type fixture struct {
	t       *testing.T
	store   *database.MemoryDB
	images  *countingImages
	handler http.Handler
	server  *httptest.Server
	client  *http.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	system := actor.NewActorSystem()
	store := database.NewMemoryDB(3)
	metrics := utils.NewMetricsCollector()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := websocket.NewHub()
	go hub.Run(ctx)

	eng := engine.NewEngine(system, store, metrics, hub, actors.QuestionActorConfig{PageSize: 10, SearchLimit: 10})
	t.Cleanup(func() { eng.Stop() })

	provider := auth.NewProvider(store, auth.NewTokenIssuer("test-secret", time.Hour), "session", time.Hour)
	provider.BcryptCost = bcrypt.MinCost

	images := &countingImages{ImageStore: store}
	srv, err := NewServer(system, eng, metrics, provider, images, hub, Options{
		RequestTimeout: 5 * time.Second,
		MaxUploadBytes: 1 << 20,
	})
	require.NoError(t, err)

	handler := srv.Routes()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &fixture{t: t, store: store, images: images, handler: handler, server: ts, client: client}
}

func (f *fixture) postForm(path string, form url.Values) *http.Response {
	f.t.Helper()
	resp, err := f.client.PostForm(f.server.URL+path, form)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) get(path string) *http.Response {
	f.t.Helper()
	resp, err := f.client.Get(f.server.URL + path)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

// createQuestion posts the form and returns the stored question.
func (f *fixture) createQuestion(title string, tags ...string) *models.Question {
	f.t.Helper()
	resp := f.postForm("/createquestion", url.Values{"title": {title}, "description": {"details"}, "tags": tags})
	require.Equal(f.t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(f.t, "/", resp.Header.Get("Location"))

	page, err := f.store.ListQuestions(context.Background(), 1, "")
	require.NoError(f.t, err)
	require.NotEmpty(f.t, page.Questions)
	return page.Questions[0]
}

func (f *fixture) register(nickname string) {
	f.t.Helper()
	resp := f.postForm("/register", url.Values{"nickname": {nickname}, "password": {"password1"}})
	require.Equal(f.t, http.StatusSeeOther, resp.StatusCode)
}

func decodeVote(t *testing.T, resp *http.Response) api.VoteResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var vote api.VoteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&vote))
	return vote
}

func TestCreateQuestionShowsOnIndex(t *testing.T) {
	f := newFixture(t)
	f.createQuestion("How do I close a channel?", "go")

	resp := f.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "How do I close a channel?")
}

func TestPrepareQuestionForm(t *testing.T) {
	f := newFixture(t)
	resp := f.get("/preparequestion")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), `action="/createquestion"`)
}

func TestCreateQuestionRequiresTitle(t *testing.T) {
	f := newFixture(t)
	resp := f.postForm("/createquestion", url.Values{"description": {"no title"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchByTag(t *testing.T) {
	f := newFixture(t)
	f.createQuestion("Generics or interfaces?", "go", "rust")

	found := body(t, f.postForm("/search", url.Values{"tag": {"go"}}))
	assert.Contains(t, found, "Generics or interfaces?")

	none := body(t, f.postForm("/search", url.Values{"tag": {"python"}}))
	assert.NotContains(t, none, "Generics or interfaces?")
	assert.Contains(t, none, "No questions found.")

	all := body(t, f.postForm("/search", url.Values{"tag": {""}}))
	assert.Contains(t, all, "Generics or interfaces?")
}

func TestViewQuestion(t *testing.T) {
	f := newFixture(t)
	q := f.createQuestion("Why is my map nil?", "go")

	resp := f.get(questionURL(q.ID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "Why is my map nil?")

	assert.Equal(t, http.StatusNotFound, f.get("/viewquestion?id=does-not-exist").StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.get("/viewquestion").StatusCode)
}

func TestEditQuestion(t *testing.T) {
	f := newFixture(t)
	q := f.createQuestion("Old title", "a")

	resp := f.postForm("/editquestion", url.Values{"id": {q.ID}, "title": {"New title"}, "description": {"d"}, "tags": {"b"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, questionURL(q.ID), resp.Header.Get("Location"))

	edited, err := f.store.GetQuestion(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, "New title", edited.Name)
	assert.Equal(t, []string{"b"}, edited.Tags)

	missing := f.postForm("/editquestion", url.Values{"id": {"nope"}, "title": {"x"}})
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestQuestionVoteValidatesDirection(t *testing.T) {
	f := newFixture(t)
	q := f.createQuestion("Vote on me")

	for _, direction := range []string{"0", "2", "up", ""} {
		resp := f.postForm("/questionvote", url.Values{"id": {q.ID}, "direction": {direction}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "direction %q", direction)
	}

	stored, err := f.store.GetQuestion(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Votes)

	vote := decodeVote(t, f.postForm("/questionvote", url.Values{"id": {q.ID}, "direction": {"-1"}}))
	assert.Equal(t, -1, vote.Score)

	missing := f.postForm("/questionvote", url.Values{"id": {"nope"}, "direction": {"1"}})
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestAnswerUpVoteEligibility(t *testing.T) {
	f := newFixture(t)
	f.register("viewer")
	q := f.createQuestion("Which answer wins?")

	resp := f.postForm("/createanswer", url.Values{"qid": {q.ID}, "title": {"A"}, "description": {"Use a mutex."}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "Use a mutex.")

	stored, err := f.store.GetQuestion(context.Background(), q.ID)
	require.NoError(t, err)
	require.Len(t, stored.Answers, 1)
	answerID := stored.Answers[0].ID

	vote := decodeVote(t, f.postForm("/answervote", url.Values{"qid": {q.ID}, "id": {answerID}, "direction": {"1"}}))
	assert.Equal(t, 1, vote.Score)
	assert.False(t, vote.CanVoteUp)
	assert.True(t, vote.CanVoteDown)

	missing := f.postForm("/answervote", url.Values{"qid": {q.ID}, "id": {"nope"}, "direction": {"1"}})
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestCreateAnswerRequiresDescription(t *testing.T) {
	f := newFixture(t)
	q := f.createQuestion("Q")

	assert.Equal(t, http.StatusBadRequest, f.postForm("/createanswer", url.Values{"qid": {q.ID}}).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.postForm("/createanswer", url.Values{"qid": {"nope"}, "description": {"d"}}).StatusCode)
}

func multipartBody(t *testing.T, fields map[string]string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", "upload.bin")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (f *fixture) upload(fields map[string]string, content []byte) *http.Response {
	f.t.Helper()
	buf, contentType := multipartBody(f.t, fields, content)
	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/upload", buf)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := f.client.Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadAndServeImage(t *testing.T) {
	f := newFixture(t)
	q := f.createQuestion("Screenshot attached")

	resp := f.upload(map[string]string{"qid": q.ID}, pngBytes)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, questionURL(q.ID), resp.Header.Get("Location"))

	stored, err := f.store.GetQuestion(context.Background(), q.ID)
	require.NoError(t, err)
	require.Len(t, stored.Images, 1)

	served := f.get("/serve/" + stored.Images[0])
	require.Equal(t, http.StatusOK, served.StatusCode)
	assert.Equal(t, "image/png", served.Header.Get("Content-Type"))
	assert.Equal(t, string(pngBytes), body(t, served))

	assert.Equal(t, http.StatusNotFound, f.get("/serve/unknown").StatusCode)
}

func TestUploadToAnswer(t *testing.T) {
	f := newFixture(t)
	q := f.createQuestion("Q")
	f.postForm("/createanswer", url.Values{"qid": {q.ID}, "description": {"see image"}})

	stored, err := f.store.GetQuestion(context.Background(), q.ID)
	require.NoError(t, err)
	answerID := stored.Answers[0].ID

	resp := f.upload(map[string]string{"qid": q.ID, "aid": answerID}, pngBytes)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	stored, err = f.store.GetQuestion(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Images)
	assert.Len(t, stored.FindAnswer(answerID).Images, 1)
}

func TestUploadRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	q := f.createQuestion("Q")

	text := f.upload(map[string]string{"qid": q.ID}, []byte("just some text"))
	assert.Equal(t, http.StatusBadRequest, text.StatusCode)

	missing := f.upload(map[string]string{"qid": "nope"}, pngBytes)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	noQuestion := f.upload(map[string]string{}, pngBytes)
	assert.Equal(t, http.StatusBadRequest, noQuestion.StatusCode)

	noAnswer := f.upload(map[string]string{"qid": q.ID, "aid": "nope"}, pngBytes)
	assert.Equal(t, http.StatusNotFound, noAnswer.StatusCode)

	huge := append(append([]byte(nil), pngBytes...), bytes.Repeat([]byte{1}, 2<<20)...)
	buf, contentType := multipartBody(t, map[string]string{"qid": q.ID}, huge)
	req := httptest.NewRequest(http.MethodPost, "/upload", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	stored, err := f.store.GetQuestion(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Images)
	assert.Zero(t, f.images.count())
}

func TestJSONRegisterAndLogin(t *testing.T) {
	f := newFixture(t)

	post := func(path, payload string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, f.server.URL+path, strings.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	created := post("/register", `{"nickname":"dana","password":"secret12"}`)
	require.Equal(t, http.StatusCreated, created.StatusCode)

	dup := post("/register", `{"nickname":"dana","password":"secret12"}`)
	assert.Equal(t, http.StatusConflict, dup.StatusCode)

	bad := post("/login", `{"nickname":"dana","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, bad.StatusCode)
	var failed api.LoginResponse
	require.NoError(t, json.NewDecoder(bad.Body).Decode(&failed))
	assert.False(t, failed.Success)

	ok := post("/login", `{"nickname":"dana","password":"secret12"}`)
	require.Equal(t, http.StatusOK, ok.StatusCode)
	var login api.LoginResponse
	require.NoError(t, json.NewDecoder(ok.Body).Decode(&login))
	assert.True(t, login.Success)
	assert.Equal(t, "dana", login.Nickname)
	require.NotEmpty(t, login.Token)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	page, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer page.Body.Close()
	assert.Contains(t, body(t, page), "Signed in as dana")
}

func TestFormLoginRedirectsToContinue(t *testing.T) {
	f := newFixture(t)
	f.register("erin")
	f.get("/logout")

	resp := f.postForm("/login", url.Values{"nickname": {"erin"}, "password": {"password1"}, "continue": {"/preparequestion"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/preparequestion", resp.Header.Get("Location"))

	wrong := f.postForm("/login", url.Values{"nickname": {"erin"}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
	assert.Contains(t, body(t, wrong), "Invalid credentials")
}

func TestLogoutIgnoresForeignContinue(t *testing.T) {
	f := newFixture(t)
	resp := f.get("/logout?continue=" + url.QueryEscape("//evil.example"))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestSafeRedirect(t *testing.T) {
	assert.Equal(t, "/viewquestion?id=1", safeRedirect("/viewquestion?id=1"))
	assert.Equal(t, "/", safeRedirect(""))
	assert.Equal(t, "/", safeRedirect("https://evil.example/"))
	assert.Equal(t, "/", safeRedirect("//evil.example"))
	assert.Equal(t, "/", safeRedirect("/\\evil.example"))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.createQuestion("Q")

	resp := f.get("/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health api.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.Questions)
	assert.NotZero(t, health.Metrics.Requests)
}
