// internal/database/user_repository.go
package database

import (
	"context"
	"fmt"
	"time"

	"gator-overflow/internal/models"
	"gator-overflow/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserDocument represents the MongoDB schema for a user
type UserDocument struct {
	ID             string    `bson:"_id"`            // MongoDB primary key
	Nickname       string    `bson:"nickname"`       // Display name, unique
	HashedPassword string    `bson:"hashedPassword"` // Hashed password
	CreatedAt      time.Time `bson:"createdAt"`      // Account creation timestamp
}

// SaveUser registers a new user. A taken nickname is USER_ALREADY_EXISTS.
func (m *MongoDB) SaveUser(ctx context.Context, user *models.User) error {
	doc := UserDocument{
		ID:             user.ID.String(),
		Nickname:       user.Nickname,
		HashedPassword: user.HashedPassword,
		CreatedAt:      user.CreatedAt,
	}

	_, err := m.Users.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return utils.NewAppError(utils.ErrUserAlreadyExists, "nickname already taken", err)
	}
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return nil
}

// GetUserByNickname retrieves a user from MongoDB by their nickname
func (m *MongoDB) GetUserByNickname(ctx context.Context, nickname string) (*models.User, error) {
	var doc UserDocument

	err := m.Users.FindOne(ctx, bson.M{"nickname": nickname}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, utils.NewAppError(utils.ErrNotFound, "user not found", err)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user", err)
	}

	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %v", err)
	}

	return &models.User{
		ID:             id,
		Nickname:       doc.Nickname,
		HashedPassword: doc.HashedPassword,
		CreatedAt:      doc.CreatedAt,
	}, nil
}
