package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-live/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-live/internal/entity"
	"github.com/rocketscienceinc/tictactoe-live/internal/repository/memory"
	"github.com/rocketscienceinc/tictactoe-live/testing/suite"
)

func TestMatchRepository_Redis(t *testing.T) {
	ctx, s := suite.New(t)

	runMatchStoreTests(t, ctx, func() MatchRepository {
		s.Flush(ctx)
		return NewMatchRepository(s.Storage)
	})
}

func TestMatchRepository_RedisStaleIndexes(t *testing.T) {
	ctx, s := suite.New(t)

	t.Run("Active key pointing at a missing match is taken over", func(t *testing.T) {
		// Given: alice's active key survived a create whose match was never written
		s.Flush(ctx)
		store := NewMatchRepository(s.Storage)
		require.NoError(t, s.Storage.Set(ctx, activeKey("alice"), "ghost", 0).Err())

		active, err := store.FindActiveFor(ctx, "alice")
		require.NoError(t, err)
		require.Nil(t, active)

		// When: alice creates a match
		_, err = store.Create(ctx, entity.NewMatch("m1", "alice", ""))

		// Then: the create succeeds and the key now points at it
		require.NoError(t, err)
		active, err = store.FindActiveFor(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, "m1", active.ID)
	})

	t.Run("Active key pointing at a finished match is taken over", func(t *testing.T) {
		// Given: a finished match whose release of alice's key was lost
		s.Flush(ctx)
		store := NewMatchRepository(s.Storage)
		won, err := store.Create(ctx, entity.NewMatch("m1", "alice", ""))
		require.NoError(t, err)
		require.NoError(t, won.Join("bob"))
		won.Win("alice", [3]int{0, 1, 2})
		_, err = store.Save(ctx, won)
		require.NoError(t, err)
		require.NoError(t, s.Storage.Set(ctx, activeKey("alice"), "m1", 0).Err())

		// When: alice creates and bob joins a new match
		next, err := store.Create(ctx, entity.NewMatch("m2", "alice", ""))
		require.NoError(t, err)
		require.NoError(t, next.Join("bob"))
		_, err = store.Save(ctx, next)

		// Then: both players are indexed on the new match
		require.NoError(t, err)
		for _, id := range []string{"alice", "bob"} {
			active, err := store.FindActiveFor(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, active)
			assert.Equal(t, "m2", active.ID)
		}
	})

	t.Run("Active key pointing at someone else's match is taken over", func(t *testing.T) {
		s.Flush(ctx)
		store := NewMatchRepository(s.Storage)
		_, err := store.Create(ctx, entity.NewMatch("m1", "alice", ""))
		require.NoError(t, err)
		require.NoError(t, s.Storage.Set(ctx, activeKey("bob"), "m1", 0).Err())

		active, err := store.FindActiveFor(ctx, "bob")
		require.NoError(t, err)
		require.Nil(t, active)

		_, err = store.Create(ctx, entity.NewMatch("m2", "bob", ""))
		require.NoError(t, err)
	})

	t.Run("Join code left on an activated match is taken over", func(t *testing.T) {
		// Given: the code of an active match was never released
		s.Flush(ctx)
		store := NewMatchRepository(s.Storage)
		match, err := store.Create(ctx, entity.NewMatch("m1", "alice", "code"))
		require.NoError(t, err)
		require.NoError(t, match.Join("bob"))
		_, err = store.Save(ctx, match)
		require.NoError(t, err)
		require.NoError(t, s.Storage.Set(ctx, codeKey("code"), "m1", 0).Err())

		// When: carol creates a match with the same code
		_, err = store.Create(ctx, entity.NewMatch("m2", "carol", "code"))

		// Then: the code resolves to carol's match
		require.NoError(t, err)
		byCode, err := store.FindByCode(ctx, "code")
		require.NoError(t, err)
		assert.Equal(t, "m2", byCode.ID)
	})

	t.Run("Failed create leaves nothing behind", func(t *testing.T) {
		// Given: the code is held by a waiting match
		s.Flush(ctx)
		store := NewMatchRepository(s.Storage)
		_, err := store.Create(ctx, entity.NewMatch("m1", "alice", "code"))
		require.NoError(t, err)

		// When: bob's create is refused
		_, err = store.Create(ctx, entity.NewMatch("m2", "bob", "code"))
		require.ErrorIs(t, err, apperror.ErrJoinCodeInUse)

		// Then: neither the match nor bob's index survive
		_, err = store.FindByID(ctx, "m2")
		require.ErrorIs(t, err, apperror.ErrMatchNotFound)

		exists, err := s.Storage.Exists(ctx, activeKey("bob")).Result()
		require.NoError(t, err)
		assert.Zero(t, exists)

		total, err := store.Count(ctx, entity.MatchFilter{UserID: "bob"})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("Refused save releases the claims it took", func(t *testing.T) {
		// Given: alice's key is gone and bob already has a waiting match
		s.Flush(ctx)
		store := NewMatchRepository(s.Storage)
		match, err := store.Create(ctx, entity.NewMatch("m1", "alice", ""))
		require.NoError(t, err)
		_, err = store.Create(ctx, entity.NewMatch("m2", "bob", ""))
		require.NoError(t, err)
		require.NoError(t, s.Storage.Del(ctx, activeKey("alice")).Err())

		// When: activating with bob is refused after alice's key was reclaimed
		require.NoError(t, match.Join("bob"))
		_, err = store.Save(ctx, match)
		require.ErrorIs(t, err, apperror.ErrAlreadyInMatch)

		// Then: alice's reclaimed key is released and bob's is untouched
		exists, err := s.Storage.Exists(ctx, activeKey("alice")).Result()
		require.NoError(t, err)
		assert.Zero(t, exists)

		holder, err := s.Storage.Get(ctx, activeKey("bob")).Result()
		require.NoError(t, err)
		assert.Equal(t, "m2", holder)
	})
}

func TestMatchRepository_Memory(t *testing.T) {
	runMatchStoreTests(t, context.Background(), func() MatchRepository {
		return memory.NewMatchStore()
	})
}

func TestUserRepository_Redis(t *testing.T) {
	ctx, s := suite.New(t)
	repo := NewUserRepository(s.Storage)

	_, err := repo.FindByID(ctx, "alice")
	require.ErrorIs(t, err, apperror.ErrUserNotFound)

	require.NoError(t, repo.CreateOrUpdate(ctx, &entity.User{ID: "alice", Name: "Alice"}))

	user, err := repo.FindByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Name)
}

func runMatchStoreTests(t *testing.T, ctx context.Context, newStore func() MatchRepository) {
	t.Helper()

	t.Run("Create stores a waiting match", func(t *testing.T) {
		store := newStore()

		created, err := store.Create(ctx, entity.NewMatch("m1", "alice", "code"))
		require.NoError(t, err)
		assert.False(t, created.CreatedAt.IsZero())

		byID, err := store.FindByID(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, "alice", byID.Player1ID)

		byCode, err := store.FindByCode(ctx, "code")
		require.NoError(t, err)
		assert.Equal(t, "m1", byCode.ID)

		active, err := store.FindActiveFor(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, "m1", active.ID)
	})

	t.Run("Only one open match per creator", func(t *testing.T) {
		store := newStore()

		_, err := store.Create(ctx, entity.NewMatch("m1", "alice", ""))
		require.NoError(t, err)

		_, err = store.Create(ctx, entity.NewMatch("m2", "alice", ""))
		require.ErrorIs(t, err, apperror.ErrAlreadyInMatch)
	})

	t.Run("Join code is unique", func(t *testing.T) {
		store := newStore()

		_, err := store.Create(ctx, entity.NewMatch("m1", "alice", "code"))
		require.NoError(t, err)

		_, err = store.Create(ctx, entity.NewMatch("m2", "bob", "code"))
		require.ErrorIs(t, err, apperror.ErrJoinCodeInUse)

		// bob's claim is released with the failed create
		_, err = store.Create(ctx, entity.NewMatch("m3", "bob", ""))
		require.NoError(t, err)
	})

	t.Run("Unknown ids and codes are not found", func(t *testing.T) {
		store := newStore()

		_, err := store.FindByID(ctx, "missing")
		require.ErrorIs(t, err, apperror.ErrMatchNotFound)

		_, err = store.FindByCode(ctx, "missing")
		require.ErrorIs(t, err, apperror.ErrNotFound)

		active, err := store.FindActiveFor(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, active)
	})

	t.Run("Activation releases the join code and indexes the joiner", func(t *testing.T) {
		// Given: a waiting match with a code
		store := newStore()
		match, err := store.Create(ctx, entity.NewMatch("m1", "alice", "code"))
		require.NoError(t, err)

		// When: bob joins and the match is saved
		require.NoError(t, match.Join("bob"))
		_, err = store.Save(ctx, match)
		require.NoError(t, err)

		// Then: the code is free and both players have the match open
		_, err = store.FindByCode(ctx, "code")
		require.ErrorIs(t, err, apperror.ErrMatchNotFound)

		active, err := store.FindActiveFor(ctx, "bob")
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, "m1", active.ID)

		total, err := store.Count(ctx, entity.MatchFilter{UserID: "bob"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})

	t.Run("Joiner with another open match can't be saved into this one", func(t *testing.T) {
		store := newStore()
		match, err := store.Create(ctx, entity.NewMatch("m1", "alice", ""))
		require.NoError(t, err)
		_, err = store.Create(ctx, entity.NewMatch("m2", "bob", ""))
		require.NoError(t, err)

		require.NoError(t, match.Join("bob"))
		_, err = store.Save(ctx, match)

		require.ErrorIs(t, err, apperror.ErrAlreadyInMatch)
	})

	t.Run("Finished matches are counted and closed", func(t *testing.T) {
		store := newStore()

		won, err := store.Create(ctx, entity.NewMatch("m1", "alice", ""))
		require.NoError(t, err)
		require.NoError(t, won.Join("bob"))
		won.Win("alice", [3]int{0, 1, 2})
		_, err = store.Save(ctx, won)
		require.NoError(t, err)

		drawn, err := store.Create(ctx, entity.NewMatch("m2", "bob", ""))
		require.NoError(t, err)
		require.NoError(t, drawn.Join("alice"))
		drawn.Abandon()
		_, err = store.Save(ctx, drawn)
		require.NoError(t, err)

		counts := map[entity.MatchFilter]int64{
			{UserID: "alice"}:             2,
			{UserID: "alice", Won: true}:  1,
			{UserID: "alice", Draw: true}: 1,
			{UserID: "bob"}:               2,
			{UserID: "bob", Won: true}:    0,
			{UserID: "bob", Draw: true}:   1,
		}
		for filter, want := range counts {
			got, err := store.Count(ctx, filter)
			require.NoError(t, err)
			assert.Equal(t, want, got, "filter %+v", filter)
		}

		for _, id := range []string{"alice", "bob"} {
			active, err := store.FindActiveFor(ctx, id)
			require.NoError(t, err)
			assert.Nil(t, active)
		}
	})
}
