// Package tictactoe implements a two-player tic-tac-toe actor.
//
// Players take part by watching the game. A watch joins the player: the
// first player gets a random mark, the second the other one, and anyone
// after that is told the game is full but keeps receiving events so it can
// join again when a player leaves. Closing a player's last stream frees its
// mark.
package tictactoe

import (
	"context"
	"math/rand/v2"
	"strings"

	apperrors "github.com/louisbranch/actorspace/internal/platform/errors"
	"github.com/louisbranch/actorspace/internal/platform/random"
	"github.com/louisbranch/actorspace/internal/services/actors/directory"
	"github.com/louisbranch/actorspace/internal/services/actors/host"
)

const (
	// Kind is the directory name of the game actor.
	Kind = "TicTacToe"
	// StateName is the record the game snapshot is persisted under.
	StateName = "tictactoe"
)

// Option configures a Game.
type Option func(*Game)

// WithRand sets the source used to pick the first player's mark.
func WithRand(rng *rand.Rand) Option {
	return func(g *Game) {
		if rng != nil {
			g.rng = rng
		}
	}
}

// Game hosts one board.
type Game struct {
	inst *host.Instance[Snapshot, Event]

	// Owned by the executor.
	rng     *rand.Rand
	holders map[string]int
}

// New builds an unloaded game.
func New(env directory.Env, opts ...Option) (*Game, error) {
	inst, err := host.New[Snapshot, Event](host.Config[Snapshot]{
		Address:          env.Address,
		Store:            env.Store,
		StateName:        StateName,
		Default:          newSnapshot,
		Logger:           env.Logger,
		MailboxSize:      env.MailboxSize,
		SubscriberBuffer: env.SubscriberBuffer,
	})
	if err != nil {
		return nil, err
	}
	g := &Game{
		inst:    inst,
		holders: make(map[string]int),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		rng, err := random.NewSeededRand()
		if err != nil {
			return nil, err
		}
		g.rng = rng
	}
	return g, nil
}

// Factory adapts New for directory registration.
func Factory(env directory.Env) (directory.Actor, error) {
	return New(env)
}

// Load reads the persisted snapshot.
func (g *Game) Load(ctx context.Context) error {
	return g.inst.Load(ctx)
}

// Close stops the game and ends every stream.
func (g *Game) Close() error {
	return g.inst.Close()
}

// Watch opens a stream for player and tries to join the game with it.
// A full game is not an error: the stream receives a GameFullEvent and stays
// open.
func (g *Game) Watch(ctx context.Context, player string) (*Stream, error) {
	player, err := normalizePlayer(player)
	if err != nil {
		return nil, err
	}
	if err := g.inst.Load(ctx); err != nil {
		return nil, err
	}

	stream := &Stream{
		game:   g,
		player: player,
		sub:    g.inst.Events().Subscribe(),
	}
	if _, err := stream.Join(ctx); err != nil {
		stream.sub.Close()
		return nil, err
	}
	return stream, nil
}

// MakeMove places player's mark at position (0-8, row-major) and returns the
// board. A move that is out of turn, onto a marked cell, before both players
// joined, after the game ended, or from a player without a mark is ignored:
// the unchanged board is returned without error.
func (g *Game) MakeMove(ctx context.Context, player string, position int) (Board, error) {
	player, err := normalizePlayer(player)
	if err != nil {
		return Board{}, err
	}

	var (
		mark     Mark
		accepted bool
	)
	snap, err := g.inst.Apply(ctx, func(snap Snapshot) (Snapshot, bool, error) {
		next, m, ok := snap.move(player, position)
		mark, accepted = m, ok
		return next, ok, nil
	}, func(snap Snapshot) {
		if !accepted {
			return
		}
		g.inst.Events().Notify(MoveEvent{Mark: mark, Position: position})
		if snap.Result != "" {
			g.inst.Events().Notify(GameOverEvent{Result: snap.Result})
		}
	})
	if err != nil {
		return Board{}, err
	}
	return snap.Board, nil
}

// Board returns the current grid.
func (g *Game) Board(ctx context.Context) (Board, error) {
	snap, err := g.inst.State(ctx)
	if err != nil {
		return Board{}, err
	}
	return snap.Board, nil
}

// Players lists the players holding marks, in join order.
func (g *Game) Players(ctx context.Context) ([]string, error) {
	snap, err := g.inst.State(ctx)
	if err != nil {
		return nil, err
	}
	return snap.PlayerIDs(), nil
}

// Status returns the game phase.
func (g *Game) Status(ctx context.Context) (Status, error) {
	snap, err := g.inst.State(ctx)
	if err != nil {
		return StatusWaiting, err
	}
	return snap.Status(), nil
}

// Turn returns the mark expected to move next.
func (g *Game) Turn(ctx context.Context) (Mark, error) {
	snap, err := g.inst.State(ctx)
	if err != nil {
		return MarkNone, err
	}
	return snap.Turn, nil
}

// Result returns "X wins", "O wins", "draw", or "" while the game is open.
func (g *Game) Result(ctx context.Context) (string, error) {
	snap, err := g.inst.State(ctx)
	if err != nil {
		return "", err
	}
	return snap.Result, nil
}

// join registers stream's player, reclaims a mark the player already holds,
// or reports the game full to that stream alone.
func (g *Game) join(ctx context.Context, stream *Stream) (Mark, error) {
	var (
		mark    Mark
		full    bool
		skipped bool
	)
	_, err := g.inst.Apply(ctx, func(snap Snapshot) (Snapshot, bool, error) {
		mark, full, skipped = MarkNone, false, false
		if stream.isClosed() {
			skipped = true
			return snap, false, nil
		}
		if held, ok := snap.MarkOf(stream.player); ok {
			mark = held
			return snap, false, nil
		}
		if len(snap.Players) >= maxPlayers {
			full = true
			return snap, false, nil
		}
		if len(snap.Players) == 0 {
			mark = MarkX
			if g.rng.IntN(2) == 1 {
				mark = MarkO
			}
		} else {
			mark = snap.Players[0].Mark.Opponent()
		}
		return snap.withPlayer(Player{ID: stream.player, Mark: mark}), true, nil
	}, func(snap Snapshot) {
		switch {
		case skipped:
			return
		case full:
			stream.sub.Deliver(GameFullEvent{})
			return
		}
		if !stream.held {
			stream.held = true
			g.holders[stream.player]++
		}
		stream.setMark(mark)
		stream.sub.Deliver(PlayerAssignmentEvent{Mark: mark})
		g.inst.Events().Notify(ConnectedPlayersEvent{Players: snap.PlayerIDs()})
	})
	if err != nil {
		return MarkNone, err
	}
	if skipped {
		return MarkNone, errStreamClosed
	}
	return mark, nil
}

// leave releases stream's hold on its player. The player leaves the registry
// when its last stream is gone. Holder counts change only once the snapshot
// is persisted, so a failed leave can be retried.
func (g *Game) leave(ctx context.Context, stream *Stream) error {
	var released, removed bool
	_, err := g.inst.Apply(ctx, func(snap Snapshot) (Snapshot, bool, error) {
		released, removed = false, false
		if !stream.held {
			return snap, false, nil
		}
		released = true
		if g.holders[stream.player] > 1 {
			return snap, false, nil
		}
		if _, ok := snap.MarkOf(stream.player); !ok {
			return snap, false, nil
		}
		removed = true
		return snap.withoutPlayer(stream.player), true, nil
	}, func(snap Snapshot) {
		if !released {
			return
		}
		stream.held = false
		if g.holders[stream.player] > 1 {
			g.holders[stream.player]--
		} else {
			delete(g.holders, stream.player)
		}
		if removed {
			g.inst.Events().Notify(ConnectedPlayersEvent{Players: snap.PlayerIDs()})
		}
	})
	return err
}

func normalizePlayer(player string) (string, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		return "", apperrors.New(apperrors.CodeGamePlayerEmpty, "player is required")
	}
	return player, nil
}
