// Package memory keeps matches and users in process memory. It backs the "memory" storage mode
// and mirrors the indexing rules of the Redis repositories.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-live/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-live/internal/entity"
)

type MatchStore struct {
	mu sync.RWMutex

	matches map[string]*entity.Match
	codes   map[string]string // join code -> match id, while waiting
	active  map[string]string // user id -> open match id
	history map[string]map[string]struct{}
	wins    map[string]map[string]struct{}
	draws   map[string]map[string]struct{}
}

func NewMatchStore() *MatchStore {
	return &MatchStore{
		matches: make(map[string]*entity.Match),
		codes:   make(map[string]string),
		active:  make(map[string]string),
		history: make(map[string]map[string]struct{}),
		wins:    make(map[string]map[string]struct{}),
		draws:   make(map[string]map[string]struct{}),
	}
}

func addTo(index map[string]map[string]struct{}, userID, matchID string) {
	set, ok := index[userID]
	if !ok {
		set = make(map[string]struct{})
		index[userID] = set
	}

	set[matchID] = struct{}{}
}

func (that *MatchStore) Create(_ context.Context, match *entity.Match) (*entity.Match, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.active[match.Player1ID]; ok {
		return nil, apperror.ErrAlreadyInMatch
	}

	if match.JoinCode != "" {
		if _, ok := that.codes[match.JoinCode]; ok {
			return nil, fmt.Errorf("%w: %s", apperror.ErrJoinCodeInUse, match.JoinCode)
		}
		that.codes[match.JoinCode] = match.ID
	}

	now := time.Now().UTC()
	stored := match.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	that.matches[stored.ID] = stored
	that.active[stored.Player1ID] = stored.ID
	addTo(that.history, stored.Player1ID, stored.ID)

	return stored.Clone(), nil
}

func (that *MatchStore) Save(_ context.Context, match *entity.Match) (*entity.Match, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if match.IsActive() {
		for _, playerID := range []string{match.Player1ID, match.Player2ID} {
			if current, ok := that.active[playerID]; ok && current != match.ID {
				return nil, apperror.ErrAlreadyInMatch
			}
		}
		that.active[match.Player1ID] = match.ID
		that.active[match.Player2ID] = match.ID
	}

	stored := match.Clone()
	stored.UpdatedAt = time.Now().UTC()
	that.matches[stored.ID] = stored

	if stored.Player2ID != "" {
		addTo(that.history, stored.Player2ID, stored.ID)
	}

	if !stored.IsWaiting() && that.codes[stored.JoinCode] == stored.ID {
		delete(that.codes, stored.JoinCode)
	}

	if stored.IsOver() && stored.Result != nil {
		for _, playerID := range []string{stored.Player1ID, stored.Player2ID} {
			if that.active[playerID] == stored.ID {
				delete(that.active, playerID)
			}
		}

		switch {
		case stored.Result.Draw:
			addTo(that.draws, stored.Player1ID, stored.ID)
			if stored.Player2ID != "" {
				addTo(that.draws, stored.Player2ID, stored.ID)
			}
		case stored.Result.WinnerID != "":
			addTo(that.wins, stored.Result.WinnerID, stored.ID)
		}
	}

	return stored.Clone(), nil
}

func (that *MatchStore) FindByID(_ context.Context, id string) (*entity.Match, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	match, ok := that.matches[id]
	if !ok {
		return nil, apperror.ErrMatchNotFound
	}

	return match.Clone(), nil
}

func (that *MatchStore) FindByCode(ctx context.Context, code string) (*entity.Match, error) {
	that.mu.RLock()
	id, ok := that.codes[code]
	that.mu.RUnlock()

	if !ok || code == "" {
		return nil, apperror.ErrMatchNotFound
	}

	return that.FindByID(ctx, id)
}

func (that *MatchStore) FindActiveFor(_ context.Context, userID string) (*entity.Match, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	id, ok := that.active[userID]
	if !ok {
		return nil, nil
	}

	return that.matches[id].Clone(), nil
}

func (that *MatchStore) Count(_ context.Context, filter entity.MatchFilter) (int64, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	index := that.history
	switch {
	case filter.Won:
		index = that.wins
	case filter.Draw:
		index = that.draws
	}

	return int64(len(index[filter.UserID])), nil
}

type UserStore struct {
	mu    sync.RWMutex
	users map[string]entity.User
}

func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[string]entity.User),
	}
}

func (that *UserStore) CreateOrUpdate(_ context.Context, user *entity.User) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.users[user.ID] = *user

	return nil
}

func (that *UserStore) FindByID(_ context.Context, id string) (*entity.User, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	user, ok := that.users[id]
	if !ok {
		return nil, apperror.ErrUserNotFound
	}

	return &user, nil
}
