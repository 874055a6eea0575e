package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-live/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-live/internal/entity"
)

type MatchRepository interface {
	Create(ctx context.Context, match *entity.Match) (*entity.Match, error)
	Save(ctx context.Context, match *entity.Match) (*entity.Match, error)

	FindByID(ctx context.Context, id string) (*entity.Match, error)
	FindByCode(ctx context.Context, code string) (*entity.Match, error)
	FindActiveFor(ctx context.Context, userID string) (*entity.Match, error)

	Count(ctx context.Context, filter entity.MatchFilter) (int64, error)
}

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// claimIndex points KEYS[1] at match ARGV[1]. A key held by another match is
// kept only while that match, read from ARGV[2]..id, lists ARGV[3] as a player
// (any player when ARGV[3] is empty) and has one of the statuses in ARGV[4..].
// Returns 2 when already held by ARGV[1], 1 when set, 0 when held.
var claimIndex = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == ARGV[1] then
	return 2
end
if current then
	local raw = redis.call("GET", ARGV[2] .. current)
	if raw then
		local ok, holder = pcall(cjson.decode, raw)
		if ok and type(holder) == "table" and
			(ARGV[3] == "" or holder["player1_id"] == ARGV[3] or holder["player2_id"] == ARGV[3]) then
			for i = 4, #ARGV do
				if holder["status"] == ARGV[i] then
					return 0
				end
			end
		end
	end
end
redis.call("SET", KEYS[1], ARGV[1])
return 1
`)

const (
	claimHeld = 0
	claimSet  = 1
)

type dbMatch struct {
	client *redis.Client
}

func NewMatchRepository(client *redis.Client) MatchRepository {
	return &dbMatch{
		client: client,
	}
}

func matchKey(id string) string { return "match:" + id }
func codeKey(code string) string { return "match:code:" + code }
func activeKey(userID string) string { return "user:" + userID + ":active" }
func matchesKey(userID string) string { return "user:" + userID + ":matches" }
func winsKey(userID string) string { return "user:" + userID + ":wins" }
func drawsKey(userID string) string { return "user:" + userID + ":draws" }

func persistenceError(action string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", apperror.ErrPersistence, action, err)
}

// Create writes the match before claiming its indexes. A failed claim or
// index write removes the match and the keys this call took.
func (that *dbMatch) Create(ctx context.Context, match *entity.Match) (*entity.Match, error) {
	now := time.Now().UTC()
	stored := match.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	matchJSON, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("could not marshal match: %w", err)
	}

	created, err := that.client.SetNX(ctx, matchKey(stored.ID), matchJSON, 0).Result()
	if err != nil {
		return nil, persistenceError("create match", err)
	}

	if !created {
		return nil, persistenceError("create match", fmt.Errorf("id %s is taken", stored.ID))
	}

	var claimed []string

	rollback := func() {
		ctx := context.WithoutCancel(ctx)
		for _, key := range claimed {
			that.release(ctx, key, stored.ID)
		}
		_ = that.client.Del(ctx, matchKey(stored.ID)).Err()
	}

	taken, err := that.claim(ctx, activeKey(stored.Player1ID), stored.ID, stored.Player1ID, apperror.ErrAlreadyInMatch, liveStatuses...)
	if err != nil {
		rollback()
		return nil, err
	}

	if taken {
		claimed = append(claimed, activeKey(stored.Player1ID))
	}

	if stored.JoinCode != "" {
		taken, err = that.claim(ctx, codeKey(stored.JoinCode), stored.ID, "",
			fmt.Errorf("%w: %s", apperror.ErrJoinCodeInUse, stored.JoinCode), entity.StatusWaiting)
		if err != nil {
			rollback()
			return nil, err
		}

		if taken {
			claimed = append(claimed, codeKey(stored.JoinCode))
		}
	}

	if err = that.client.SAdd(ctx, matchesKey(stored.Player1ID), stored.ID).Err(); err != nil {
		rollback()
		return nil, persistenceError("index match", err)
	}

	return stored, nil
}

func (that *dbMatch) Save(ctx context.Context, match *entity.Match) (*entity.Match, error) {
	var claimed []string

	rollback := func() {
		ctx := context.WithoutCancel(ctx)
		for _, key := range claimed {
			that.release(ctx, key, match.ID)
		}
	}

	if match.IsActive() {
		for _, playerID := range []string{match.Player1ID, match.Player2ID} {
			taken, err := that.claim(ctx, activeKey(playerID), match.ID, playerID, apperror.ErrAlreadyInMatch, liveStatuses...)
			if err != nil {
				rollback()
				return nil, err
			}

			if taken {
				claimed = append(claimed, activeKey(playerID))
			}
		}
	}

	stored := match.Clone()
	stored.UpdatedAt = time.Now().UTC()

	matchJSON, err := json.Marshal(stored)
	if err != nil {
		rollback()
		return nil, fmt.Errorf("could not marshal match: %w", err)
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, matchKey(stored.ID), matchJSON, 0)

		if stored.Player2ID != "" {
			pipe.SAdd(ctx, matchesKey(stored.Player2ID), stored.ID)
		}

		if stored.IsOver() && stored.Result != nil {
			switch {
			case stored.Result.Draw:
				pipe.SAdd(ctx, drawsKey(stored.Player1ID), stored.ID)
				if stored.Player2ID != "" {
					pipe.SAdd(ctx, drawsKey(stored.Player2ID), stored.ID)
				}
			case stored.Result.WinnerID != "":
				pipe.SAdd(ctx, winsKey(stored.Result.WinnerID), stored.ID)
			}
		}

		return nil
	})
	if err != nil {
		rollback()
		return nil, persistenceError("save match", err)
	}

	if !stored.IsWaiting() && stored.JoinCode != "" {
		that.release(ctx, codeKey(stored.JoinCode), stored.ID)
	}

	if stored.IsOver() {
		that.release(ctx, activeKey(stored.Player1ID), stored.ID)
		if stored.Player2ID != "" {
			that.release(ctx, activeKey(stored.Player2ID), stored.ID)
		}
	}

	return stored, nil
}

// liveStatuses are the states in which a match keeps its players' active keys.
var liveStatuses = []string{entity.StatusWaiting, entity.StatusActive}

// claim points key at matchID unless a live match of playerID holds it, in
// which case held is returned. The bool reports whether this call set the key.
func (that *dbMatch) claim(ctx context.Context, key, matchID, playerID string, held error, live ...string) (bool, error) {
	args := make([]any, 0, len(live)+3)
	args = append(args, matchID, matchKey(""), playerID)
	for _, status := range live {
		args = append(args, status)
	}

	result, err := claimIndex.Run(ctx, that.client, []string{key}, args...).Int()
	if err != nil {
		return false, persistenceError("claim index", err)
	}

	switch result {
	case claimHeld:
		return false, held
	case claimSet:
		return true, nil
	default:
		return false, nil
	}
}

// release ignores errors: a key left behind points at a match that is no
// longer live, and the next claim takes it over.
func (that *dbMatch) release(ctx context.Context, key, matchID string) {
	_ = compareAndDelete.Run(ctx, that.client, []string{key}, matchID).Err()
}

func (that *dbMatch) FindByID(ctx context.Context, id string) (*entity.Match, error) {
	response, err := that.client.Get(ctx, matchKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrMatchNotFound
	}

	if err != nil {
		return nil, persistenceError("get match by id", err)
	}

	var existingMatch entity.Match
	if err = json.Unmarshal([]byte(response), &existingMatch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}

	return &existingMatch, nil
}

func (that *dbMatch) FindByCode(ctx context.Context, code string) (*entity.Match, error) {
	if code == "" {
		return nil, apperror.ErrMatchNotFound
	}

	id, err := that.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrMatchNotFound
	}

	if err != nil {
		return nil, persistenceError("get match by code", err)
	}

	return that.FindByID(ctx, id)
}

// FindActiveFor returns nil without error when the user has no open match.
func (that *dbMatch) FindActiveFor(ctx context.Context, userID string) (*entity.Match, error) {
	id, err := that.client.Get(ctx, activeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, persistenceError("get active match", err)
	}

	match, err := that.FindByID(ctx, id)
	if errors.Is(err, apperror.ErrMatchNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	if match.IsOver() || !match.IsParticipant(userID) {
		return nil, nil
	}

	return match, nil
}

func (that *dbMatch) Count(ctx context.Context, filter entity.MatchFilter) (int64, error) {
	key := matchesKey(filter.UserID)

	switch {
	case filter.Won:
		key = winsKey(filter.UserID)
	case filter.Draw:
		key = drawsKey(filter.UserID)
	}

	count, err := that.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, persistenceError("count matches", err)
	}

	return count, nil
}
