package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-live/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-live/internal/entity"
)

type UserRepository interface {
	CreateOrUpdate(ctx context.Context, user *entity.User) error
	FindByID(ctx context.Context, id string) (*entity.User, error)
}

type dbUser struct {
	client *redis.Client
}

func NewUserRepository(client *redis.Client) UserRepository {
	return &dbUser{
		client: client,
	}
}

func userKey(id string) string { return "user:" + id }

func (that *dbUser) CreateOrUpdate(ctx context.Context, user *entity.User) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	if err = that.client.Set(ctx, userKey(user.ID), userJSON, 0).Err(); err != nil {
		return persistenceError("set user", err)
	}

	return nil
}

func (that *dbUser) FindByID(ctx context.Context, id string) (*entity.User, error) {
	response, err := that.client.Get(ctx, userKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrUserNotFound
	}

	if err != nil {
		return nil, persistenceError("get user by id", err)
	}

	var existingUser entity.User
	if err = json.Unmarshal([]byte(response), &existingUser); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &existingUser, nil
}
