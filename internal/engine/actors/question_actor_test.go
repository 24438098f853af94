package actors

import (
	"sync"
	"testing"
	"time"

	"gator-overflow/internal/database"
	"gator-overflow/internal/models"
	"gator-overflow/internal/utils"
	"gator-overflow/internal/voting"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Activity
}

func (p *recordingPublisher) Publish(a models.Activity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, a)
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

type harness struct {
	t      *testing.T
	system *actor.ActorSystem
	pid    *actor.PID
	pub    *recordingPublisher
}

func newHarness(t *testing.T) *harness {
	system := actor.NewActorSystem()
	pub := &recordingPublisher{}
	store := database.NewMemoryDB(5)
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewQuestionActor(store, utils.NewMetricsCollector(), pub, QuestionActorConfig{PageSize: 2})
	})
	return &harness{t: t, system: system, pid: system.Root.Spawn(props), pub: pub}
}

func (h *harness) ask(msg interface{}) interface{} {
	h.t.Helper()
	result, err := h.system.Root.RequestFuture(h.pid, msg, 5*time.Second).Result()
	require.NoError(h.t, err)
	return result
}

func (h *harness) createQuestion(owner *models.Identity, name string, tags ...string) *models.Question {
	h.t.Helper()
	result := h.ask(&CreateQuestionMsg{Owner: owner, Name: name, Description: "body", Tags: tags})
	q, ok := result.(*models.Question)
	require.True(h.t, ok, "unexpected response %#v", result)
	return q
}

func identity(name string) *models.Identity {
	return &models.Identity{ID: uuid.New(), Nickname: name}
}

func TestCreateAndGetQuestion(t *testing.T) {
	h := newHarness(t)
	alice := identity("alice")

	q := h.createQuestion(alice, "How do channels work?", "go", " ", "concurrency", "go")
	assert.NotEmpty(t, q.ID)
	assert.Equal(t, []string{"go", "concurrency", "go"}, q.Tags)

	view, ok := h.ask(&GetQuestionMsg{QuestionID: q.ID, Viewer: alice}).(*QuestionView)
	require.True(t, ok)
	assert.Equal(t, "How do channels work?", view.Question.Name)
	assert.True(t, view.Question.IsAuthor)

	view = h.ask(&GetQuestionMsg{QuestionID: q.ID, Viewer: nil}).(*QuestionView)
	assert.False(t, view.Question.IsAuthor)
}

func TestCreateQuestionRequiresTitle(t *testing.T) {
	h := newHarness(t)
	appErr, ok := h.ask(&CreateQuestionMsg{Name: "  "}).(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrInvalidInput, appErr.Code)
}

func TestGetMissingQuestionIsNotFound(t *testing.T) {
	h := newHarness(t)
	appErr, ok := h.ask(&GetQuestionMsg{QuestionID: "123.456"}).(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)
}

func TestQuestionIDsAreUnique(t *testing.T) {
	h := newHarness(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		q := h.createQuestion(nil, "q")
		assert.False(t, seen[q.ID], "duplicate id %s", q.ID)
		seen[q.ID] = true
	}
}

func TestListingPagesNewestFirst(t *testing.T) {
	h := newHarness(t)
	first := h.createQuestion(nil, "first")
	second := h.createQuestion(nil, "second")
	third := h.createQuestion(nil, "third")

	page := h.ask(&ListQuestionsMsg{}).(*QuestionListing)
	require.Len(t, page.Questions, 2)
	assert.Equal(t, third.ID, page.Questions[0].ID)
	assert.Equal(t, second.ID, page.Questions[1].ID)
	assert.True(t, page.More)

	page = h.ask(&ListQuestionsMsg{Cursor: page.NextCursor}).(*QuestionListing)
	require.Len(t, page.Questions, 1)
	assert.Equal(t, first.ID, page.Questions[0].ID)
	assert.False(t, page.More)
}

func TestListingAndSearchAnnotateIdentically(t *testing.T) {
	h := newHarness(t)
	bob := identity("bob")
	q := h.createQuestion(nil, "tagged", "go")
	h.ask(&VoteQuestionMsg{QuestionID: q.ID, Voter: bob, Direction: models.VoteUp})
	h.ask(&VoteQuestionMsg{QuestionID: q.ID, Voter: nil, Direction: models.VoteUp})

	listed := h.ask(&ListQuestionsMsg{Viewer: bob}).(*QuestionListing)
	searched := h.ask(&SearchQuestionsMsg{Tag: "go", Viewer: bob}).(*QuestionListing)
	require.Len(t, listed.Questions, 1)
	require.Len(t, searched.Questions, 1)

	assert.Equal(t, listed.Questions[0].Tally, searched.Questions[0].Tally)
	assert.Equal(t, 2, searched.Questions[0].Tally.NetScore)
	assert.False(t, searched.Questions[0].Tally.CanVoteUp)
	assert.True(t, searched.Questions[0].Tally.CanVoteDown)
}

func TestSearchByTag(t *testing.T) {
	h := newHarness(t)
	q := h.createQuestion(nil, "Q", "go", "rust")

	found := h.ask(&SearchQuestionsMsg{Tag: "go"}).(*QuestionListing)
	require.Len(t, found.Questions, 1)
	assert.Equal(t, q.ID, found.Questions[0].ID)

	none := h.ask(&SearchQuestionsMsg{Tag: "python"}).(*QuestionListing)
	assert.Empty(t, none.Questions)

	all := h.ask(&SearchQuestionsMsg{Tag: ""}).(*QuestionListing)
	require.Len(t, all.Questions, 1)
	assert.Equal(t, q.ID, all.Questions[0].ID)
}

func TestEditReplacesFields(t *testing.T) {
	h := newHarness(t)
	q := h.createQuestion(nil, "old", "a", "b")

	edited, ok := h.ask(&EditQuestionMsg{QuestionID: q.ID, Name: "new", Description: "d", Tags: []string{"c"}}).(*models.Question)
	require.True(t, ok)
	assert.Equal(t, "new", edited.Name)
	assert.Equal(t, []string{"c"}, edited.Tags)
	assert.True(t, edited.UpdatedAt.After(q.UpdatedAt))

	appErr, ok := h.ask(&EditQuestionMsg{QuestionID: "missing", Name: "x"}).(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)
}

func TestAnswerVoteEligibility(t *testing.T) {
	h := newHarness(t)
	viewer := identity("viewer")
	q := h.createQuestion(nil, "Q")

	answer, ok := h.ask(&CreateAnswerMsg{QuestionID: q.ID, Name: "A", Description: "because"}).(*models.Answer)
	require.True(t, ok)

	tally, ok := h.ask(&VoteAnswerMsg{QuestionID: q.ID, AnswerID: answer.ID, Voter: viewer, Direction: models.VoteUp}).(voting.Tally)
	require.True(t, ok)
	assert.False(t, tally.CanVoteUp)
	assert.True(t, tally.CanVoteDown)
	assert.Equal(t, 1, tally.Difference())

	view := h.ask(&GetQuestionMsg{QuestionID: q.ID, Viewer: viewer}).(*QuestionView)
	require.Len(t, view.Answers, 1)
	assert.Equal(t, 1, view.Answers[0].Score)
	assert.False(t, view.Answers[0].Tally.CanVoteUp)
}

func TestAnswersRankedAscending(t *testing.T) {
	h := newHarness(t)
	q := h.createQuestion(nil, "Q")

	good := h.ask(&CreateAnswerMsg{QuestionID: q.ID, Description: "good"}).(*models.Answer)
	bad := h.ask(&CreateAnswerMsg{QuestionID: q.ID, Description: "bad"}).(*models.Answer)
	h.ask(&VoteAnswerMsg{QuestionID: q.ID, AnswerID: good.ID, Direction: models.VoteUp})
	h.ask(&VoteAnswerMsg{QuestionID: q.ID, AnswerID: bad.ID, Direction: models.VoteDown})

	view := h.ask(&GetQuestionMsg{QuestionID: q.ID}).(*QuestionView)
	require.Len(t, view.Answers, 2)
	assert.Equal(t, bad.ID, view.Answers[0].ID)
	assert.Equal(t, good.ID, view.Answers[1].ID)
}

func TestVoteValidation(t *testing.T) {
	h := newHarness(t)
	q := h.createQuestion(nil, "Q")

	appErr, ok := h.ask(&VoteQuestionMsg{QuestionID: q.ID, Direction: 5}).(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrInvalidInput, appErr.Code)

	appErr, ok = h.ask(&VoteAnswerMsg{QuestionID: q.ID, AnswerID: "nope", Direction: models.VoteUp}).(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)

	appErr, ok = h.ask(&VoteQuestionMsg{QuestionID: "nope", Direction: models.VoteUp}).(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)
}

func TestAttachImage(t *testing.T) {
	h := newHarness(t)
	q := h.createQuestion(nil, "Q")
	answer := h.ask(&CreateAnswerMsg{QuestionID: q.ID, Description: "a"}).(*models.Answer)

	updated := h.ask(&AttachImageMsg{QuestionID: q.ID, Ref: "img-1"}).(*models.Question)
	assert.Equal(t, []string{"img-1"}, updated.Images)

	updated = h.ask(&AttachImageMsg{QuestionID: q.ID, AnswerID: answer.ID, Ref: "img-2"}).(*models.Question)
	assert.Equal(t, []string{"img-2"}, updated.FindAnswer(answer.ID).Images)

	appErr, ok := h.ask(&AttachImageMsg{QuestionID: q.ID, AnswerID: "missing", Ref: "img-3"}).(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)
}

func TestCountsAndActivity(t *testing.T) {
	h := newHarness(t)
	q := h.createQuestion(nil, "Q")
	h.ask(&CreateAnswerMsg{QuestionID: q.ID, Description: "a"})
	h.ask(&VoteQuestionMsg{QuestionID: q.ID, Direction: models.VoteDown})
	h.ask(&AttachImageMsg{QuestionID: q.ID, Ref: "r"})
	h.ask(&EditQuestionMsg{QuestionID: q.ID, Name: "Q2"})

	counts := h.ask(&GetCountsMsg{}).(Counts)
	assert.Equal(t, Counts{Questions: 1, Answers: 1, Votes: 1, Images: 1}, counts)
	assert.Equal(t, []string{models.ActivityAnswer, models.ActivityVote, models.ActivityImage, models.ActivityEdit}, h.pub.kinds())
}
