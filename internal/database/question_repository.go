// internal/database/question_repository.go
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"gator-overflow/internal/models"
	"gator-overflow/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IdentityDocument is the embedded owner/voter shape.
type IdentityDocument struct {
	ID       string `bson:"id"`
	Nickname string `bson:"nickname"`
}

type VoteDocument struct {
	Direction int               `bson:"direction"`
	Voter     *IdentityDocument `bson:"voter,omitempty"`
}

type AnswerDocument struct {
	ID          string            `bson:"id"`
	Owner       *IdentityDocument `bson:"owner,omitempty"`
	CreatedAt   time.Time         `bson:"createdat"`
	UpdatedAt   time.Time         `bson:"updatedat"`
	Name        string            `bson:"name"`
	Description string            `bson:"description"`
	Votes       []VoteDocument    `bson:"votes"`
	Images      []string          `bson:"images"`
}

// QuestionDocument represents the MongoDB schema for a question with its
// answers, votes and image references embedded.
type QuestionDocument struct {
	ID          string            `bson:"_id"`
	Owner       *IdentityDocument `bson:"owner,omitempty"`
	CreatedAt   time.Time         `bson:"createdat"`
	UpdatedAt   time.Time         `bson:"updatedat"`
	Name        string            `bson:"name"`
	Description string            `bson:"description"`
	Tags        []string          `bson:"tags"`
	Answers     []AnswerDocument  `bson:"answers"`
	Votes       []VoteDocument    `bson:"votes"`
	Images      []string          `bson:"images"`
	Version     int64             `bson:"version"`
}

func identityToDocument(id *models.Identity) *IdentityDocument {
	if id == nil {
		return nil
	}
	return &IdentityDocument{ID: id.ID.String(), Nickname: id.Nickname}
}

func documentToIdentity(doc *IdentityDocument) (*models.Identity, error) {
	if doc == nil {
		return nil, nil
	}
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid identity ID: %v", err)
	}
	return &models.Identity{ID: id, Nickname: doc.Nickname}, nil
}

func votesToDocuments(votes []models.Vote) []VoteDocument {
	docs := make([]VoteDocument, len(votes))
	for i, v := range votes {
		docs[i] = VoteDocument{Direction: int(v.Direction), Voter: identityToDocument(v.Voter)}
	}
	return docs
}

func documentsToVotes(docs []VoteDocument) ([]models.Vote, error) {
	votes := make([]models.Vote, 0, len(docs))
	for _, d := range docs {
		voter, err := documentToIdentity(d.Voter)
		if err != nil {
			return nil, err
		}
		votes = append(votes, models.Vote{Direction: models.VoteDirection(d.Direction), Voter: voter})
	}
	return votes, nil
}

// ModelToDocument converts a Question model to a MongoDB document.
func (m *MongoDB) ModelToDocument(q *models.Question) *QuestionDocument {
	doc := &QuestionDocument{
		ID:          q.ID,
		Owner:       identityToDocument(q.Owner),
		CreatedAt:   q.CreatedAt,
		UpdatedAt:   q.UpdatedAt,
		Name:        q.Name,
		Description: q.Description,
		Tags:        nonNilStrings(q.Tags),
		Answers:     make([]AnswerDocument, len(q.Answers)),
		Votes:       votesToDocuments(q.Votes),
		Images:      nonNilStrings(q.Images),
		Version:     q.Version,
	}
	for i, a := range q.Answers {
		doc.Answers[i] = AnswerDocument{
			ID:          a.ID,
			Owner:       identityToDocument(a.Owner),
			CreatedAt:   a.CreatedAt,
			UpdatedAt:   a.UpdatedAt,
			Name:        a.Name,
			Description: a.Description,
			Votes:       votesToDocuments(a.Votes),
			Images:      nonNilStrings(a.Images),
		}
	}
	return doc
}

// DocumentToModel converts a MongoDB document to a Question model.
func (m *MongoDB) DocumentToModel(doc *QuestionDocument) (*models.Question, error) {
	owner, err := documentToIdentity(doc.Owner)
	if err != nil {
		return nil, err
	}
	votes, err := documentsToVotes(doc.Votes)
	if err != nil {
		return nil, err
	}

	q := &models.Question{
		ID:          doc.ID,
		Owner:       owner,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
		Name:        doc.Name,
		Description: doc.Description,
		Tags:        nonNilStrings(doc.Tags),
		Answers:     make([]models.Answer, 0, len(doc.Answers)),
		Votes:       votes,
		Images:      nonNilStrings(doc.Images),
		Version:     doc.Version,
	}

	for _, ad := range doc.Answers {
		answerOwner, err := documentToIdentity(ad.Owner)
		if err != nil {
			return nil, err
		}
		answerVotes, err := documentsToVotes(ad.Votes)
		if err != nil {
			return nil, err
		}
		q.Answers = append(q.Answers, models.Answer{
			ID:          ad.ID,
			Owner:       answerOwner,
			CreatedAt:   ad.CreatedAt.UTC(),
			UpdatedAt:   ad.UpdatedAt.UTC(),
			Name:        ad.Name,
			Description: ad.Description,
			Votes:       answerVotes,
			Images:      nonNilStrings(ad.Images),
		})
	}
	return q, nil
}

// CreateQuestion inserts a new question. An existing id is a DUPLICATE error.
func (m *MongoDB) CreateQuestion(ctx context.Context, q *models.Question) error {
	_, err := m.Questions.InsertOne(ctx, m.ModelToDocument(q))
	if mongo.IsDuplicateKeyError(err) {
		return utils.NewAppError(utils.ErrDuplicate, "Question already exists: "+q.ID, err)
	}
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to insert question", err)
	}
	return nil
}

// GetQuestion retrieves a question by its ID.
func (m *MongoDB) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	var doc QuestionDocument

	err := m.Questions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewQuestionNotFoundError(id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to load question", err)
	}

	return m.DocumentToModel(&doc)
}

// ListQuestions returns the newest questions after the cursor.
func (m *MongoDB) ListQuestions(ctx context.Context, pageSize int, cursor string) (*QuestionPage, error) {
	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	filter := bson.M{}
	if after != nil {
		filter = bson.M{"$or": bson.A{
			bson.M{"updatedat": bson.M{"$lt": after.UpdatedAt}},
			bson.M{"updatedat": after.UpdatedAt, "_id": bson.M{"$lt": after.ID}},
		}}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedat", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(pageSize + 1))

	questions, err := m.findQuestions(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return newPage(questions, pageSize), nil
}

// ListQuestionsByTag returns up to limit questions carrying tag, most
// recently updated first.
func (m *MongoDB) ListQuestionsByTag(ctx context.Context, tag string, limit int) ([]*models.Question, error) {
	log.Printf("Querying MongoDB for questions tagged %q", tag)

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedat", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	return m.findQuestions(ctx, bson.M{"tags": tag}, opts)
}

func (m *MongoDB) findQuestions(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Question, error) {
	cursor, err := m.Questions.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "question query failed", err)
	}
	defer cursor.Close(ctx)

	questions := make([]*models.Question, 0)
	for cursor.Next(ctx) {
		var doc QuestionDocument
		if err := cursor.Decode(&doc); err != nil {
			log.Printf("Error decoding question document: %v", err)
			continue
		}

		q, err := m.DocumentToModel(&doc)
		if err != nil {
			log.Printf("Error converting document to model: %v", err)
			continue
		}
		questions = append(questions, q)
	}

	if err := cursor.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "cursor iteration failed", err)
	}
	return questions, nil
}

// UpdateQuestion applies mutate under an optimistic version check.
func (m *MongoDB) UpdateQuestion(ctx context.Context, id string, mutate func(*models.Question) error) (*models.Question, error) {
	return updateWithRetry(ctx, m.casRetries, id, m.GetQuestion, mutate, m.replaceIfVersion)
}

func (m *MongoDB) replaceIfVersion(ctx context.Context, q *models.Question, expected int64) (bool, error) {
	filter := bson.M{"_id": q.ID, "version": expected}

	result, err := m.Questions.ReplaceOne(ctx, filter, m.ModelToDocument(q))
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to write question", err)
	}
	return result.MatchedCount == 1, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string(nil), in...)
}
