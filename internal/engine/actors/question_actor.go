package actors

import (
	"context"
	"log"
	"strings"
	"time"

	"gator-overflow/internal/database"
	"gator-overflow/internal/models"
	"gator-overflow/internal/utils"
	"gator-overflow/internal/voting"

	"github.com/asynkron/protoactor-go/actor"
)

// Message types for Question operations
type (
	ListQuestionsMsg struct {
		Viewer *models.Identity
		Cursor string
	}

	// SearchQuestionsMsg with an empty Tag falls back to the default listing.
	SearchQuestionsMsg struct {
		Tag    string
		Viewer *models.Identity
	}

	GetQuestionMsg struct {
		QuestionID string
		Viewer     *models.Identity
	}

	CreateQuestionMsg struct {
		Owner       *models.Identity
		Name        string
		Description string
		Tags        []string
	}

	EditQuestionMsg struct {
		QuestionID  string
		Name        string
		Description string
		Tags        []string
	}

	CreateAnswerMsg struct {
		QuestionID  string
		Owner       *models.Identity
		Name        string
		Description string
	}

	VoteQuestionMsg struct {
		QuestionID string
		Voter      *models.Identity
		Direction  models.VoteDirection
	}

	VoteAnswerMsg struct {
		QuestionID string
		AnswerID   string
		Voter      *models.Identity
		Direction  models.VoteDirection
	}

	// AttachImageMsg appends an already stored image reference to a question,
	// or to one of its answers when AnswerID is set.
	AttachImageMsg struct {
		QuestionID string
		AnswerID   string
		Ref        string
	}

	GetCountsMsg struct{}
)

// QuestionListing is the response to ListQuestionsMsg and SearchQuestionsMsg.
type QuestionListing struct {
	Questions  []voting.AnnotatedQuestion
	NextCursor string
	More       bool
}

// QuestionView is the response to GetQuestionMsg.
type QuestionView struct {
	Question voting.AnnotatedQuestion
	Answers  []voting.RankedAnswer
}

// Counts reports what this actor has written since it started.
type Counts struct {
	Questions int `json:"questions"`
	Answers   int `json:"answers"`
	Votes     int `json:"votes"`
	Images    int `json:"images"`
}

// ActivityPublisher receives a notification after every successful write.
type ActivityPublisher interface {
	Publish(activity models.Activity)
}

// QuestionActor owns all document-store access for questions. Messages are
// handled one at a time, so read-modify-write cycles issued through the
// actor never interleave inside this process.
type QuestionActor struct {
	store       database.QuestionRepository
	metrics     *utils.MetricsCollector
	publisher   ActivityPublisher
	pageSize    int
	searchLimit int
	opTimeout   time.Duration
	lastID      string
	counts      Counts
}

// QuestionActorConfig carries the tunables of a QuestionActor.
type QuestionActorConfig struct {
	PageSize    int
	SearchLimit int
	OpTimeout   time.Duration
}

// NewQuestionActor creates a new QuestionActor instance. publisher may be nil.
func NewQuestionActor(
	store database.QuestionRepository,
	metrics *utils.MetricsCollector,
	publisher ActivityPublisher,
	cfg QuestionActorConfig,
) actor.Actor {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 10
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	return &QuestionActor{
		store:       store,
		metrics:     metrics,
		publisher:   publisher,
		pageSize:    cfg.PageSize,
		searchLimit: cfg.SearchLimit,
		opTimeout:   cfg.OpTimeout,
	}
}

// Receive handles incoming messages
func (a *QuestionActor) Receive(actorCtx actor.Context) {
	switch msg := actorCtx.Message().(type) {
	case *actor.Started:
		log.Printf("QuestionActor started")

	case *actor.Stopping:
		log.Printf("QuestionActor stopping")

	case *actor.Stopped:
		log.Printf("QuestionActor stopped")

	case *actor.Restarting:
		log.Printf("QuestionActor restarting")

	case *ListQuestionsMsg:
		a.respond(actorCtx, "list_questions", func(ctx context.Context) (interface{}, error) { return a.handleList(ctx, msg) })
	case *SearchQuestionsMsg:
		a.respond(actorCtx, "search_questions", func(ctx context.Context) (interface{}, error) { return a.handleSearch(ctx, msg) })
	case *GetQuestionMsg:
		a.respond(actorCtx, "get_question", func(ctx context.Context) (interface{}, error) { return a.handleGet(ctx, msg) })
	case *CreateQuestionMsg:
		a.respond(actorCtx, "create_question", func(ctx context.Context) (interface{}, error) { return a.handleCreateQuestion(ctx, msg) })
	case *EditQuestionMsg:
		a.respond(actorCtx, "edit_question", func(ctx context.Context) (interface{}, error) { return a.handleEdit(ctx, msg) })
	case *CreateAnswerMsg:
		a.respond(actorCtx, "create_answer", func(ctx context.Context) (interface{}, error) { return a.handleCreateAnswer(ctx, msg) })
	case *VoteQuestionMsg:
		a.respond(actorCtx, "vote_question", func(ctx context.Context) (interface{}, error) { return a.handleVoteQuestion(ctx, msg) })
	case *VoteAnswerMsg:
		a.respond(actorCtx, "vote_answer", func(ctx context.Context) (interface{}, error) { return a.handleVoteAnswer(ctx, msg) })
	case *AttachImageMsg:
		a.respond(actorCtx, "attach_image", func(ctx context.Context) (interface{}, error) { return a.handleAttachImage(ctx, msg) })
	case *GetCountsMsg:
		actorCtx.Respond(a.counts)
	default:
		log.Printf("QuestionActor: Unknown message type: %T", msg)
	}
}

// respond runs op with a bounded context, records its latency and replies
// with either the result or an *utils.AppError.
func (a *QuestionActor) respond(actorCtx actor.Context, operation string, op func(ctx context.Context) (interface{}, error)) {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), a.opTimeout)
	defer cancel()

	result, err := op(ctx)
	a.metrics.AddOperationLatency(operation, time.Since(startTime))
	if err != nil {
		log.Printf("QuestionActor: %s failed: %v", operation, err)
		actorCtx.Respond(asAppError(err))
		return
	}
	actorCtx.Respond(result)
}

func asAppError(err error) *utils.AppError {
	if appErr, ok := err.(*utils.AppError); ok {
		return appErr
	}
	return utils.NewAppError(utils.ErrDatabase, "store operation failed", err)
}

func (a *QuestionActor) handleList(ctx context.Context, msg *ListQuestionsMsg) (*QuestionListing, error) {
	page, err := a.store.ListQuestions(ctx, a.pageSize, msg.Cursor)
	if err != nil {
		return nil, err
	}
	return &QuestionListing{
		Questions:  voting.AnnotateQuestions(page.Questions, msg.Viewer),
		NextCursor: page.NextCursor,
		More:       page.More,
	}, nil
}

func (a *QuestionActor) handleSearch(ctx context.Context, msg *SearchQuestionsMsg) (*QuestionListing, error) {
	var questions []*models.Question
	if msg.Tag == "" {
		page, err := a.store.ListQuestions(ctx, a.searchLimit, "")
		if err != nil {
			return nil, err
		}
		questions = page.Questions
	} else {
		found, err := a.store.ListQuestionsByTag(ctx, msg.Tag, a.searchLimit)
		if err != nil {
			return nil, err
		}
		questions = found
	}
	return &QuestionListing{Questions: voting.AnnotateQuestions(questions, msg.Viewer)}, nil
}

func (a *QuestionActor) handleGet(ctx context.Context, msg *GetQuestionMsg) (*QuestionView, error) {
	q, err := a.store.GetQuestion(ctx, msg.QuestionID)
	if err != nil {
		return nil, err
	}
	return &QuestionView{
		Question: voting.AnnotateQuestion(q, msg.Viewer),
		Answers:  voting.Rank(q.Answers, msg.Viewer),
	}, nil
}

func (a *QuestionActor) handleCreateQuestion(ctx context.Context, msg *CreateQuestionMsg) (*models.Question, error) {
	if strings.TrimSpace(msg.Name) == "" {
		return nil, utils.NewInvalidInputError("title is required")
	}

	now := time.Now().UTC()
	q := &models.Question{
		ID:          a.nextID(now),
		Owner:       msg.Owner.Clone(),
		CreatedAt:   now.Truncate(time.Millisecond),
		Name:        msg.Name,
		Description: msg.Description,
		Tags:        cleanTags(msg.Tags),
		Answers:     []models.Answer{},
		Votes:       []models.Vote{},
		Images:      []string{},
	}
	q.Touch(now)

	log.Printf("QuestionActor: Creating new question: %s", q.ID)
	if err := a.store.CreateQuestion(ctx, q); err != nil {
		return nil, err
	}
	a.counts.Questions++
	return q, nil
}

func (a *QuestionActor) handleEdit(ctx context.Context, msg *EditQuestionMsg) (*models.Question, error) {
	if strings.TrimSpace(msg.Name) == "" {
		return nil, utils.NewInvalidInputError("title is required")
	}

	q, err := a.store.UpdateQuestion(ctx, msg.QuestionID, func(q *models.Question) error {
		q.Name = msg.Name
		q.Description = msg.Description
		q.Tags = cleanTags(msg.Tags)
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.publish(models.ActivityEdit, q, "", voting.Aggregate(q.Votes, nil).NetScore)
	return q, nil
}

func (a *QuestionActor) handleCreateAnswer(ctx context.Context, msg *CreateAnswerMsg) (*models.Answer, error) {
	if strings.TrimSpace(msg.Description) == "" {
		return nil, utils.NewInvalidInputError("answer description is required")
	}

	now := time.Now().UTC()
	answer := models.Answer{
		ID:          a.nextID(now),
		Owner:       msg.Owner.Clone(),
		CreatedAt:   now.Truncate(time.Millisecond),
		Name:        msg.Name,
		Description: msg.Description,
		Votes:       []models.Vote{},
		Images:      []string{},
	}
	answer.Touch(now)

	q, err := a.store.UpdateQuestion(ctx, msg.QuestionID, func(q *models.Question) error {
		q.Answers = append(q.Answers, answer)
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.counts.Answers++
	a.publish(models.ActivityAnswer, q, answer.ID, 0)
	return &answer, nil
}

// handleVoteQuestion appends the vote and replies with the question's tally
// as the voter now sees it.
func (a *QuestionActor) handleVoteQuestion(ctx context.Context, msg *VoteQuestionMsg) (voting.Tally, error) {
	if !msg.Direction.Valid() {
		return voting.Tally{}, utils.NewInvalidInputError("vote direction must be 1 or -1")
	}

	q, err := a.store.UpdateQuestion(ctx, msg.QuestionID, func(q *models.Question) error {
		q.Votes = append(q.Votes, models.Vote{Direction: msg.Direction, Voter: msg.Voter.Clone()})
		return nil
	})
	if err != nil {
		return voting.Tally{}, err
	}

	tally := voting.Aggregate(q.Votes, msg.Voter)
	a.counts.Votes++
	a.publish(models.ActivityVote, q, "", tally.NetScore)
	return tally, nil
}

// handleVoteAnswer appends the vote to the first answer carrying AnswerID.
func (a *QuestionActor) handleVoteAnswer(ctx context.Context, msg *VoteAnswerMsg) (voting.Tally, error) {
	if !msg.Direction.Valid() {
		return voting.Tally{}, utils.NewInvalidInputError("vote direction must be 1 or -1")
	}

	var votes []models.Vote
	q, err := a.store.UpdateQuestion(ctx, msg.QuestionID, func(q *models.Question) error {
		answer := q.FindAnswer(msg.AnswerID)
		if answer == nil {
			return utils.NewAnswerNotFoundError(msg.AnswerID)
		}
		answer.Votes = append(answer.Votes, models.Vote{Direction: msg.Direction, Voter: msg.Voter.Clone()})
		votes = answer.Votes
		return nil
	})
	if err != nil {
		return voting.Tally{}, err
	}

	tally := voting.Aggregate(votes, msg.Voter)
	a.counts.Votes++
	a.publish(models.ActivityVote, q, msg.AnswerID, tally.Difference())
	return tally, nil
}

func (a *QuestionActor) handleAttachImage(ctx context.Context, msg *AttachImageMsg) (*models.Question, error) {
	if msg.Ref == "" {
		return nil, utils.NewInvalidInputError("image reference is required")
	}

	q, err := a.store.UpdateQuestion(ctx, msg.QuestionID, func(q *models.Question) error {
		if msg.AnswerID == "" {
			q.Images = append(q.Images, msg.Ref)
			return nil
		}
		answer := q.FindAnswer(msg.AnswerID)
		if answer == nil {
			return utils.NewAnswerNotFoundError(msg.AnswerID)
		}
		answer.Images = append(answer.Images, msg.Ref)
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.counts.Images++
	a.publish(models.ActivityImage, q, msg.AnswerID, 0)
	return q, nil
}

func (a *QuestionActor) publish(kind string, q *models.Question, answerID string, score int) {
	if a.publisher == nil {
		return
	}
	a.publisher.Publish(models.Activity{
		Kind:       kind,
		QuestionID: q.ID,
		AnswerID:   answerID,
		NetScore:   score,
		At:         q.UpdatedAt,
	})
}

// nextID issues timestamp ids that are unique within this actor even when
// two writes land in the same microsecond.
func (a *QuestionActor) nextID(now time.Time) string {
	id := models.TimestampID(now)
	for id <= a.lastID && len(id) == len(a.lastID) {
		now = now.Add(time.Microsecond)
		id = models.TimestampID(now)
	}
	a.lastID = id
	return id
}

// cleanTags drops blank entries. Duplicates are kept.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
