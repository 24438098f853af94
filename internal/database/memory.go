// internal/database/memory.go
package database

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"gator-overflow/internal/models"
	"gator-overflow/internal/utils"

	"github.com/google/uuid"
)

// MemoryDB is a process-local DBAdapter used by tests and DB_TYPE=memory.
// It keeps the same contracts as the persistent backends, including the
// version check on update.
type MemoryDB struct {
	mu         sync.RWMutex
	questions  map[string]*models.Question
	images     map[string]*storedImage
	users      map[string]*models.User // keyed by nickname
	casRetries int
}

type storedImage struct {
	filename    string
	contentType string
	data        []byte
}

func NewMemoryDB(casRetries int) *MemoryDB {
	return &MemoryDB{
		questions:  make(map[string]*models.Question),
		images:     make(map[string]*storedImage),
		users:      make(map[string]*models.User),
		casRetries: casRetries,
	}
}

func (m *MemoryDB) Close(ctx context.Context) error { return nil }

func (m *MemoryDB) CreateQuestion(ctx context.Context, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.questions[q.ID]; exists {
		return utils.NewAppError(utils.ErrDuplicate, "Question already exists: "+q.ID, nil)
	}
	m.questions[q.ID] = q.Clone()
	return nil
}

func (m *MemoryDB) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.questions[id]
	if !ok {
		return nil, utils.NewQuestionNotFoundError(id)
	}
	return q.Clone(), nil
}

// sorted returns copies of the questions matching keep, newest first.
func (m *MemoryDB) sorted(keep func(*models.Question) bool) []*models.Question {
	m.mu.RLock()
	out := make([]*models.Question, 0, len(m.questions))
	for _, q := range m.questions {
		if keep(q) {
			out = append(out, q.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (m *MemoryDB) ListQuestions(ctx context.Context, pageSize int, cursor string) (*QuestionPage, error) {
	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	questions := m.sorted(after.before)
	if len(questions) > pageSize+1 {
		questions = questions[:pageSize+1]
	}
	return newPage(questions, pageSize), nil
}

func (m *MemoryDB) ListQuestionsByTag(ctx context.Context, tag string, limit int) ([]*models.Question, error) {
	questions := m.sorted(func(q *models.Question) bool {
		for _, t := range q.Tags {
			if t == tag {
				return true
			}
		}
		return false
	})
	if len(questions) > limit {
		questions = questions[:limit]
	}
	return questions, nil
}

func (m *MemoryDB) UpdateQuestion(ctx context.Context, id string, mutate func(*models.Question) error) (*models.Question, error) {
	return updateWithRetry(ctx, m.casRetries, id, m.GetQuestion, mutate, m.swapIfVersion)
}

func (m *MemoryDB) swapIfVersion(ctx context.Context, q *models.Question, expected int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.questions[q.ID]
	if !ok {
		return false, utils.NewQuestionNotFoundError(q.ID)
	}
	if current.Version != expected {
		return false, nil
	}
	m.questions[q.ID] = q.Clone()
	return true, nil
}

func (m *MemoryDB) SaveImage(ctx context.Context, src io.Reader, filename, contentType string) (string, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return "", utils.NewAppError(utils.ErrInvalidInput, "failed to read upload", err)
	}

	ref := uuid.New().String()
	m.mu.Lock()
	m.images[ref] = &storedImage{filename: filename, contentType: contentType, data: data}
	m.mu.Unlock()
	return ref, nil
}

func (m *MemoryDB) OpenImage(ctx context.Context, ref string) (*Image, error) {
	m.mu.RLock()
	img, ok := m.images[ref]
	m.mu.RUnlock()
	if !ok {
		return nil, utils.NewAppError(utils.ErrNotFound, "Image not found: "+ref, nil)
	}

	return &Image{
		Ref:         ref,
		Filename:    img.filename,
		ContentType: img.contentType,
		Size:        int64(len(img.data)),
		Content:     io.NopCloser(bytes.NewReader(img.data)),
	}, nil
}

func (m *MemoryDB) SaveUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.Nickname]; exists {
		return utils.NewAppError(utils.ErrUserAlreadyExists, "nickname already taken", nil)
	}
	u := *user
	m.users[user.Nickname] = &u
	return nil
}

func (m *MemoryDB) GetUserByNickname(ctx context.Context, nickname string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[nickname]
	if !ok {
		return nil, utils.NewAppError(utils.ErrNotFound, "user not found", nil)
	}
	c := *u
	return &c, nil
}
