// internal/database/database.go
package database

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"gator-overflow/internal/models"
	"gator-overflow/internal/utils"
)

// QuestionRepository is the document-store contract the engine relies on.
// Every id lookup returns an AppError with code ErrNotFound when nothing matches.
type QuestionRepository interface {
	CreateQuestion(ctx context.Context, q *models.Question) error
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	// ListQuestions returns one page ordered by last update, newest first.
	ListQuestions(ctx context.Context, pageSize int, cursor string) (*QuestionPage, error)
	ListQuestionsByTag(ctx context.Context, tag string, limit int) ([]*models.Question, error)
	// UpdateQuestion loads the question, applies mutate and writes it back
	// only if nobody else wrote in between. Version conflicts are retried.
	UpdateQuestion(ctx context.Context, id string, mutate func(*models.Question) error) (*models.Question, error)
}

// ImageStore keeps uploaded image bytes addressed by an opaque reference.
type ImageStore interface {
	SaveImage(ctx context.Context, src io.Reader, filename, contentType string) (string, error)
	OpenImage(ctx context.Context, ref string) (*Image, error)
}

// UserRepository backs the identity provider.
type UserRepository interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUserByNickname(ctx context.Context, nickname string) (*models.User, error)
}

// DBAdapter is implemented by every storage backend.
type DBAdapter interface {
	QuestionRepository
	ImageStore
	UserRepository
	Close(ctx context.Context) error
}

var (
	_ DBAdapter = (*MongoDB)(nil)
	_ DBAdapter = (*PostgresDB)(nil)
	_ DBAdapter = (*MemoryDB)(nil)
)

// QuestionPage is one page of the time-ordered listing.
type QuestionPage struct {
	Questions  []*models.Question
	NextCursor string
	More       bool
}

// Image is an open stored image. Callers must close Content.
type Image struct {
	Ref         string
	Filename    string
	ContentType string
	Size        int64
	Content     io.ReadCloser
}

// pageCursor is the position after the last question of a page.
type pageCursor struct {
	UpdatedAt time.Time
	ID        string
}

func encodeCursor(q *models.Question) string {
	raw := strconv.FormatInt(q.UpdatedAt.UnixNano(), 10) + "|" + q.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (*pageCursor, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "malformed cursor", err)
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "malformed cursor", nil)
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "malformed cursor", err)
	}
	return &pageCursor{UpdatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// before reports whether q sorts after the cursor position in the
// newest-first ordering.
func (c *pageCursor) before(q *models.Question) bool {
	if c == nil {
		return true
	}
	if q.UpdatedAt.Equal(c.UpdatedAt) {
		return q.ID < c.ID
	}
	return q.UpdatedAt.Before(c.UpdatedAt)
}

// newPage trims a pageSize+1 result set and fills in the continuation.
func newPage(questions []*models.Question, pageSize int) *QuestionPage {
	page := &QuestionPage{Questions: questions}
	if len(questions) > pageSize {
		page.Questions = questions[:pageSize]
		page.More = true
		page.NextCursor = encodeCursor(page.Questions[pageSize-1])
	}
	return page
}

// compareAndSwap runs one optimistic write attempt. It reports false when the
// stored version no longer equals expected.
type compareAndSwap func(ctx context.Context, q *models.Question, expected int64) (bool, error)

// updateWithRetry is the read-modify-write loop shared by the backends.
func updateWithRetry(
	ctx context.Context,
	retries int,
	id string,
	load func(ctx context.Context, id string) (*models.Question, error),
	mutate func(*models.Question) error,
	swap compareAndSwap,
) (*models.Question, error) {
	if retries < 1 {
		retries = 1
	}

	for attempt := 1; attempt <= retries; attempt++ {
		q, err := load(ctx, id)
		if err != nil {
			return nil, err
		}

		expected := q.Version
		if err := mutate(q); err != nil {
			return nil, err
		}
		q.Version = expected + 1
		q.Touch(time.Now())

		ok, err := swap(ctx, q, expected)
		if err != nil {
			return nil, err
		}
		if ok {
			return q, nil
		}

		log.Printf("Version conflict on question %s (attempt %d/%d)", id, attempt, retries)
		if err := ctx.Err(); err != nil {
			return nil, utils.NewAppError(utils.ErrConflict, "update cancelled", err)
		}
	}

	return nil, utils.NewAppError(utils.ErrConflict, fmt.Sprintf("question %s was modified concurrently", id), nil)
}
