package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/rocketscienceinc/tictactoe-live/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-live/internal/broadcast"
	"github.com/rocketscienceinc/tictactoe-live/internal/entity"
	"github.com/rocketscienceinc/tictactoe-live/internal/tictactoe"
)

const (
	EventGameUpdate       = "game_update"
	EventClickUpdate      = "click_update"
	EventDisconnectUpdate = "disconnect_update"
)

// Update is the payload published to a match room.
type Update struct {
	Match *entity.Match `json:"match"`
}

type matchRepo interface {
	Create(ctx context.Context, match *entity.Match) (*entity.Match, error)
	Save(ctx context.Context, match *entity.Match) (*entity.Match, error)

	FindByID(ctx context.Context, id string) (*entity.Match, error)
	FindByCode(ctx context.Context, code string) (*entity.Match, error)
	FindActiveFor(ctx context.Context, userID string) (*entity.Match, error)

	Count(ctx context.Context, filter entity.MatchFilter) (int64, error)
}

type userRepo interface {
	FindByID(ctx context.Context, id string) (*entity.User, error)
}

type gateway interface {
	Subscribe(matchID string, sub broadcast.Subscriber)
	Unsubscribe(matchID, subscriberID string)
	Publish(matchID, event string, payload any) int
}

// coordinator owns the in-memory state of one match. Its mutex is held for the whole
// read-validate-write-publish sequence of every operation on that match.
type coordinator struct {
	mu sync.Mutex

	matchID      string
	match        *entity.Match
	lastActivity time.Time

	// closed is set once the coordinator left the registry; holders must acquire again.
	closed bool
}

type MatchManager struct {
	logger *slog.Logger

	matchRepo matchRepo
	userRepo  userRepo
	gateway   gateway

	now   func() time.Time
	newID func() string

	mu           sync.Mutex
	coordinators map[string]*coordinator
}

func NewMatchManager(logger *slog.Logger, matchRepo matchRepo, userRepo userRepo, gateway gateway) *MatchManager {
	return &MatchManager{
		logger: logger.With("component", "match_manager"),

		matchRepo: matchRepo,
		userRepo:  userRepo,
		gateway:   gateway,

		now:   time.Now,
		newID: uuid.NewString,

		coordinators: make(map[string]*coordinator),
	}
}

// Create opens a waiting match for the creator. joinCode may be empty.
func (that *MatchManager) Create(ctx context.Context, creatorID, joinCode string) (*entity.Match, error) {
	log := that.logger.With("method", "Create", "playerID", creatorID)

	if err := that.ensureUser(ctx, creatorID); err != nil {
		return nil, err
	}

	if err := that.ensureNotInMatch(ctx, creatorID, ""); err != nil {
		return nil, err
	}

	if joinCode != "" {
		code := normalizeCode(joinCode)
		if code == "" {
			return nil, fmt.Errorf("%w: %q", apperror.ErrInvalidJoinCode, joinCode)
		}
		joinCode = code
	}

	created, err := that.matchRepo.Create(ctx, entity.NewMatch(that.newID(), creatorID, joinCode))
	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	that.mu.Lock()
	that.coordinators[created.ID] = &coordinator{
		matchID:      created.ID,
		match:        created,
		lastActivity: that.now(),
	}
	that.mu.Unlock()

	log.Info("match created", "matchID", created.ID)

	return created.Clone(), nil
}

// Join seats joinerID as the second player of the waiting match referenced by id or join code.
func (that *MatchManager) Join(ctx context.Context, matchRef, joinerID string) (*entity.Match, error) {
	if err := that.ensureUser(ctx, joinerID); err != nil {
		return nil, err
	}

	matchID, err := that.resolve(ctx, matchRef)
	if err != nil {
		return nil, err
	}

	var snapshot *entity.Match

	err = that.withMatch(ctx, matchID, func(c *coordinator) error {
		next := c.match.Clone()

		if err := next.Join(joinerID); err != nil {
			return err
		}

		if err := that.ensureNotInMatch(ctx, joinerID, matchID); err != nil {
			return err
		}

		saved, err := that.matchRepo.Save(ctx, next)
		if err != nil {
			return fmt.Errorf("failed to save match: %w", err)
		}

		c.match = saved
		snapshot = saved.Clone()

		that.gateway.Publish(matchID, EventGameUpdate, Update{Match: saved.Clone()})

		that.logger.Info("player joined match", "matchID", matchID, "playerID", joinerID)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// ApplyMove places the player's mark on cell and publishes the new state.
func (that *MatchManager) ApplyMove(ctx context.Context, matchID, playerID string, cell int) (*entity.Match, error) {
	var snapshot *entity.Match

	err := that.withMatch(ctx, matchID, func(c *coordinator) error {
		next := c.match.Clone()

		if err := tictactoe.MakeTurn(next, playerID, cell); err != nil {
			return err
		}

		saved, err := that.matchRepo.Save(ctx, next)
		if err != nil {
			return fmt.Errorf("failed to save match: %w", err)
		}

		c.match = saved
		snapshot = saved.Clone()

		that.gateway.Publish(matchID, EventClickUpdate, Update{Match: saved.Clone()})

		if saved.IsOver() {
			that.logger.Info("match finished", "matchID", matchID, "winnerID", saved.Winner(), "draw", saved.IsDraw())
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// Connect tracks sub as a live connection of playerID and subscribes it to the match room.
func (that *MatchManager) Connect(ctx context.Context, matchID, playerID string, sub broadcast.Subscriber) (*entity.Match, error) {
	var snapshot *entity.Match

	err := that.withMatch(ctx, matchID, func(c *coordinator) error {
		next := c.match.Clone()

		changed, err := next.Connect(playerID, sub.ID())
		if err != nil {
			return err
		}

		if changed {
			saved, err := that.matchRepo.Save(ctx, next)
			if err != nil {
				return fmt.Errorf("failed to save match: %w", err)
			}
			c.match = saved
		}

		that.gateway.Subscribe(matchID, sub)

		snapshot = c.match.Clone()
		that.gateway.Publish(matchID, EventGameUpdate, Update{Match: c.match.Clone()})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// Disconnect forgets a live connection. A match left without any connection of either player
// before it was decided ends as an abandoned draw.
func (that *MatchManager) Disconnect(ctx context.Context, matchID, playerID, connectionID string) (*entity.Match, error) {
	that.gateway.Unsubscribe(matchID, connectionID)

	var snapshot *entity.Match

	err := that.withMatch(ctx, matchID, func(c *coordinator) error {
		next := c.match.Clone()

		if !next.Disconnect(playerID, connectionID) {
			snapshot = c.match.Clone()
			return nil
		}

		abandoned := next.ShouldAbandon()
		if abandoned {
			next.Abandon()
		}

		saved, err := that.matchRepo.Save(ctx, next)
		if err != nil {
			return fmt.Errorf("failed to save match: %w", err)
		}

		c.match = saved
		snapshot = saved.Clone()

		if abandoned {
			that.gateway.Publish(matchID, EventDisconnectUpdate, Update{Match: saved.Clone()})
			that.logger.Info("match abandoned", "matchID", matchID)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// Snapshot returns the current state of the match.
func (that *MatchManager) Snapshot(ctx context.Context, matchID string) (*entity.Match, error) {
	var snapshot *entity.Match

	err := that.withMatch(ctx, matchID, func(c *coordinator) error {
		snapshot = c.match.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// ActiveFor returns the user's open match, or nil if there is none.
func (that *MatchManager) ActiveFor(ctx context.Context, userID string) (*entity.Match, error) {
	active, err := that.matchRepo.FindActiveFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active match: %w", err)
	}

	if active == nil {
		return nil, nil
	}

	snapshot, err := that.Snapshot(ctx, active.ID)
	if err != nil {
		return nil, err
	}

	if snapshot.IsOver() {
		return nil, nil
	}

	return snapshot, nil
}

func (that *MatchManager) GetStats(ctx context.Context, userID string) (*entity.Stats, error) {
	if err := that.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	total, err := that.matchRepo.Count(ctx, entity.MatchFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to count matches: %w", err)
	}

	wins, err := that.matchRepo.Count(ctx, entity.MatchFilter{UserID: userID, Won: true})
	if err != nil {
		return nil, fmt.Errorf("failed to count wins: %w", err)
	}

	draws, err := that.matchRepo.Count(ctx, entity.MatchFilter{UserID: userID, Draw: true})
	if err != nil {
		return nil, fmt.Errorf("failed to count draws: %w", err)
	}

	return &entity.Stats{Total: total, Wins: wins, Draws: draws}, nil
}

// Sweep evicts coordinators of finished matches and of matches idle for longer than idleTTL
// with nobody connected. Busy coordinators are skipped.
func (that *MatchManager) Sweep(idleTTL time.Duration) int {
	now := that.now()

	that.mu.Lock()
	candidates := make([]*coordinator, 0, len(that.coordinators))
	for _, c := range that.coordinators {
		candidates = append(candidates, c)
	}
	that.mu.Unlock()

	evicted := 0
	for _, c := range candidates {
		if !c.mu.TryLock() {
			continue
		}

		idle := c.match == nil || (!c.match.HasConnections() && now.Sub(c.lastActivity) > idleTTL)
		if !c.closed && (idle || c.match.IsOver()) {
			that.evictLocked(c)
			evicted++
		}

		c.mu.Unlock()
	}

	return evicted
}

// Live reports how many coordinators are registered.
func (that *MatchManager) Live() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.coordinators)
}

// withMatch runs fn under the match's coordinator lock with the state loaded.
func (that *MatchManager) withMatch(ctx context.Context, matchID string, fn func(c *coordinator) error) error {
	for {
		c := that.acquire(matchID)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			continue
		}

		err := that.runLocked(ctx, c, fn)
		c.mu.Unlock()

		return err
	}
}

func (that *MatchManager) runLocked(ctx context.Context, c *coordinator, fn func(c *coordinator) error) error {
	if c.match == nil {
		match, err := that.matchRepo.FindByID(ctx, c.matchID)
		if err != nil {
			that.evictLocked(c)
			return fmt.Errorf("failed to load match: %w", err)
		}
		c.match = match
	}

	err := fn(c)
	c.lastActivity = that.now()

	if c.match.IsOver() {
		that.evictLocked(c)
	}

	return err
}

func (that *MatchManager) acquire(matchID string) *coordinator {
	that.mu.Lock()
	defer that.mu.Unlock()

	c, ok := that.coordinators[matchID]
	if !ok {
		c = &coordinator{matchID: matchID, lastActivity: that.now()}
		that.coordinators[matchID] = c
	}

	return c
}

// evictLocked must be called with c.mu held.
func (that *MatchManager) evictLocked(c *coordinator) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.coordinators[c.matchID] == c {
		delete(that.coordinators, c.matchID)
	}

	c.closed = true
}

func (that *MatchManager) resolve(ctx context.Context, matchRef string) (string, error) {
	match, err := that.matchRepo.FindByID(ctx, matchRef)
	if err == nil {
		return match.ID, nil
	}

	if !errors.Is(err, apperror.ErrNotFound) {
		return "", fmt.Errorf("failed to find match: %w", err)
	}

	match, err = that.matchRepo.FindByCode(ctx, normalizeCode(matchRef))
	if err != nil {
		return "", fmt.Errorf("failed to find match by code: %w", err)
	}

	return match.ID, nil
}

func (that *MatchManager) ensureUser(ctx context.Context, userID string) error {
	if _, err := that.userRepo.FindByID(ctx, userID); err != nil {
		return fmt.Errorf("failed to find user %s: %w", userID, err)
	}

	return nil
}

// ensureNotInMatch fails if the user has an open match other than exceptID.
func (that *MatchManager) ensureNotInMatch(ctx context.Context, userID, exceptID string) error {
	active, err := that.matchRepo.FindActiveFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find active match: %w", err)
	}

	if active != nil && active.ID != exceptID {
		return fmt.Errorf("%w: match %s", apperror.ErrAlreadyInMatch, active.ID)
	}

	return nil
}

// normalizeCode folds a join code to lowercase ASCII words joined by dashes.
func normalizeCode(code string) string {
	return slug.Make(code)
}
