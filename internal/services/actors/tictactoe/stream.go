package tictactoe

import (
	"context"
	"errors"
	"iter"
	"sync"

	apperrors "github.com/louisbranch/actorspace/internal/platform/errors"
	"github.com/louisbranch/actorspace/internal/platform/timeouts"
	"github.com/louisbranch/actorspace/internal/services/actors/watch"
)

var errStreamClosed = errors.New("stream closed")

// Stream is one player's connection to a game. It receives every game event
// broadcast after it opened, plus the assignment or game-full replies to its
// own join attempts.
type Stream struct {
	game   *Game
	player string
	sub    *watch.Subscription[Event]

	mu   sync.Mutex
	mark Mark

	// held is owned by the game executor.
	held bool

	closeMu sync.Mutex
	left    bool
}

// Player returns the player this stream belongs to.
func (s *Stream) Player() string {
	return s.player
}

// Mark returns the mark assigned to this stream, or MarkNone while waiting.
func (s *Stream) Mark() Mark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mark
}

// Join attempts to take a mark. A waiting stream calls it after seeing a
// ConnectedPlayersEvent that frees a slot. A stream that already holds a
// mark gets it back unchanged.
func (s *Stream) Join(ctx context.Context) (Mark, error) {
	if mark := s.Mark(); mark != MarkNone {
		return mark, nil
	}
	if s.isClosed() {
		return MarkNone, errStreamClosed
	}
	return s.game.join(ctx, s)
}

// Next blocks for the next event. It returns watch.ErrClosed once the stream
// or the game is closed.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	return s.sub.Next(ctx)
}

// All yields events until the stream ends or ctx is done, then closes the
// stream.
func (s *Stream) All(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		defer s.Close()
		for {
			event, err := s.sub.Next(ctx)
			if err != nil || !yield(event) {
				return
			}
		}
	}
}

// Done is closed when the stream stops receiving events.
func (s *Stream) Done() <-chan struct{} {
	return s.sub.Done()
}

// Dropped reports events discarded because the stream fell behind.
func (s *Stream) Dropped() uint64 {
	return s.sub.Dropped()
}

// Close disconnects the stream. If it was the player's last stream the
// player gives up its mark and the remaining players are notified. A failed
// leave is returned and retried by the next Close; once the leave succeeds
// Close is a no-op.
func (s *Stream) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.left {
		return nil
	}
	s.sub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.ActorLeave)
	defer cancel()
	if err := s.game.leave(ctx, s); err != nil && !apperrors.HasCode(err, apperrors.CodeActorClosed) {
		s.game.inst.Logger().Warn("game leave failed", "player", s.player, "error", err)
		return err
	}
	s.left = true
	return nil
}

func (s *Stream) setMark(mark Mark) {
	s.mu.Lock()
	s.mark = mark
	s.mu.Unlock()
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.sub.Done():
		return true
	default:
		return false
	}
}
