// internal/database/postgres.go
package database

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"gator-overflow/internal/models"
	"gator-overflow/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresDB represents a PostgreSQL database connection
type PostgresDB struct {
	DB *sqlx.DB

	casRetries int
}

// questionRow is the stored form of a question. The whole aggregate lives in
// doc; the other columns are copies used for filtering and ordering.
type questionRow struct {
	ID        string         `db:"id"`
	Doc       []byte         `db:"doc"`
	Tags      pq.StringArray `db:"tags"`
	UpdatedAt time.Time      `db:"updated_at"`
	Version   int64          `db:"version"`
}

type imageRow struct {
	Ref         string `db:"ref"`
	Filename    string `db:"filename"`
	ContentType string `db:"content_type"`
	Data        []byte `db:"data"`
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string, casRetries int) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Ping the database to verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL!")

	return &PostgresDB{
		DB:         db,
		casRetries: casRetries,
	}, nil
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	log.Println("Closing PostgreSQL connection...")
	return p.DB.Close()
}

// InitializeTables creates all necessary tables if they don't exist
func (p *PostgresDB) InitializeTables(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			nickname VARCHAR(50) UNIQUE NOT NULL,
			password_hash VARCHAR(100) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %v", err)
	}

	_, err = p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
			version BIGINT NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create questions table: %v", err)
	}

	_, err = p.DB.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_questions_updated ON questions (updated_at DESC, id DESC)`)
	if err != nil {
		return fmt.Errorf("failed to create questions index: %v", err)
	}
	_, err = p.DB.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_questions_tags ON questions USING GIN (tags)`)
	if err != nil {
		return fmt.Errorf("failed to create tags index: %v", err)
	}

	_, err = p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS images (
			ref UUID PRIMARY KEY,
			filename TEXT NOT NULL,
			content_type VARCHAR(100) NOT NULL,
			data BYTEA NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create images table: %v", err)
	}

	return nil
}

func toQuestionRow(q *models.Question) (*questionRow, error) {
	doc, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to encode question: %v", err)
	}
	return &questionRow{
		ID:        q.ID,
		Doc:       doc,
		Tags:      pq.StringArray(nonNilStrings(q.Tags)),
		UpdatedAt: q.UpdatedAt,
		Version:   q.Version,
	}, nil
}

func fromQuestionRow(row *questionRow) (*models.Question, error) {
	var q models.Question
	if err := json.Unmarshal(row.Doc, &q); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "corrupt question document "+row.ID, err)
	}
	// The columns are authoritative for the fields the CAS relies on.
	q.Version = row.Version
	q.UpdatedAt = row.UpdatedAt.UTC()
	return &q, nil
}

// CreateQuestion inserts a new question row.
func (p *PostgresDB) CreateQuestion(ctx context.Context, q *models.Question) error {
	row, err := toQuestionRow(q)
	if err != nil {
		return err
	}

	_, err = p.DB.NamedExecContext(ctx, `
		INSERT INTO questions (id, doc, tags, updated_at, version)
		VALUES (:id, :doc, :tags, :updated_at, :version)
	`, row)
	if err != nil {
		if isUniqueViolation(err) {
			return utils.NewAppError(utils.ErrDuplicate, "Question already exists: "+q.ID, err)
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to insert question", err)
	}
	return nil
}

// GetQuestion fetches a question by its ID.
func (p *PostgresDB) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	var row questionRow
	err := p.DB.GetContext(ctx, &row, `SELECT id, doc, tags, updated_at, version FROM questions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewQuestionNotFoundError(id)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query question", err)
	}
	return fromQuestionRow(&row)
}

// ListQuestions pages through questions newest first using a keyset on
// (updated_at, id).
func (p *PostgresDB) ListQuestions(ctx context.Context, pageSize int, cursor string) (*QuestionPage, error) {
	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	var rows []questionRow
	if after == nil {
		err = p.DB.SelectContext(ctx, &rows, `
			SELECT id, doc, tags, updated_at, version FROM questions
			ORDER BY updated_at DESC, id DESC
			LIMIT $1
		`, pageSize+1)
	} else {
		err = p.DB.SelectContext(ctx, &rows, `
			SELECT id, doc, tags, updated_at, version FROM questions
			WHERE (updated_at, id) < ($1, $2)
			ORDER BY updated_at DESC, id DESC
			LIMIT $3
		`, after.UpdatedAt, after.ID, pageSize+1)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list questions", err)
	}

	questions, err := fromQuestionRows(rows)
	if err != nil {
		return nil, err
	}
	return newPage(questions, pageSize), nil
}

// ListQuestionsByTag returns the most recently updated questions carrying tag.
func (p *PostgresDB) ListQuestionsByTag(ctx context.Context, tag string, limit int) ([]*models.Question, error) {
	var rows []questionRow
	err := p.DB.SelectContext(ctx, &rows, `
		SELECT id, doc, tags, updated_at, version FROM questions
		WHERE $1 = ANY(tags)
		ORDER BY updated_at DESC, id DESC
		LIMIT $2
	`, tag, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to search questions", err)
	}
	return fromQuestionRows(rows)
}

func fromQuestionRows(rows []questionRow) ([]*models.Question, error) {
	questions := make([]*models.Question, 0, len(rows))
	for i := range rows {
		q, err := fromQuestionRow(&rows[i])
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// UpdateQuestion applies mutate and writes back only if the version is unchanged.
func (p *PostgresDB) UpdateQuestion(ctx context.Context, id string, mutate func(*models.Question) error) (*models.Question, error) {
	return updateWithRetry(ctx, p.casRetries, id, p.GetQuestion, mutate, p.updateIfVersion)
}

func (p *PostgresDB) updateIfVersion(ctx context.Context, q *models.Question, expected int64) (bool, error) {
	row, err := toQuestionRow(q)
	if err != nil {
		return false, err
	}

	result, err := p.DB.ExecContext(ctx, `
		UPDATE questions SET doc = $1, tags = $2, updated_at = $3, version = $4
		WHERE id = $5 AND version = $6
	`, row.Doc, row.Tags, row.UpdatedAt, row.Version, row.ID, expected)
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to update question", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to read update result", err)
	}
	return affected == 1, nil
}

// SaveImage stores the upload bytes in the images table.
func (p *PostgresDB) SaveImage(ctx context.Context, src io.Reader, filename, contentType string) (string, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return "", utils.NewAppError(utils.ErrInvalidInput, "failed to read upload", err)
	}

	ref := uuid.New().String()
	_, err = p.DB.ExecContext(ctx,
		`INSERT INTO images (ref, filename, content_type, data) VALUES ($1, $2, $3, $4)`,
		ref, filename, contentType, data,
	)
	if err != nil {
		return "", utils.NewAppError(utils.ErrDatabase, "failed to store image", err)
	}
	return ref, nil
}

// OpenImage loads a stored image.
func (p *PostgresDB) OpenImage(ctx context.Context, ref string) (*Image, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return nil, utils.NewAppError(utils.ErrNotFound, "Image not found: "+ref, err)
	}

	var row imageRow
	err := p.DB.GetContext(ctx, &row, `SELECT ref, filename, content_type, data FROM images WHERE ref = $1`, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrNotFound, "Image not found: "+ref, err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to load image", err)
	}

	return &Image{
		Ref:         row.Ref,
		Filename:    row.Filename,
		ContentType: row.ContentType,
		Size:        int64(len(row.Data)),
		Content:     io.NopCloser(bytes.NewReader(row.Data)),
	}, nil
}

// SaveUser inserts a new user row.
func (p *PostgresDB) SaveUser(ctx context.Context, user *models.User) error {
	_, err := p.DB.NamedExecContext(ctx, `
		INSERT INTO users (id, nickname, password_hash, created_at)
		VALUES (:id, :nickname, :password_hash, :created_at)
	`, user)
	if err != nil {
		if isUniqueViolation(err) {
			return utils.NewAppError(utils.ErrUserAlreadyExists, "nickname already taken", err)
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return nil
}

// GetUserByNickname fetches a user by nickname.
func (p *PostgresDB) GetUserByNickname(ctx context.Context, nickname string) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `SELECT id, nickname, password_hash, created_at FROM users WHERE nickname = $1`, nickname)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrNotFound, "user not found", err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by nickname", err)
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}
