package tictactoe

// Event is one item on a game's watch stream. It is a closed union of the
// types below.
type Event interface {
	isGameEvent()
}

// MoveEvent reports an accepted move.
type MoveEvent struct {
	Mark     Mark
	Position int
}

// GameOverEvent reports the end of the game: "X wins", "O wins" or "draw".
type GameOverEvent struct {
	Result string
}

// ConnectedPlayersEvent lists the players holding marks, in join order.
type ConnectedPlayersEvent struct {
	Players []string
}

// PlayerAssignmentEvent tells one stream which mark its player holds.
type PlayerAssignmentEvent struct {
	Mark Mark
}

// GameFullEvent tells one stream that both marks are taken. The stream stays
// open and may join again once a slot frees.
type GameFullEvent struct{}

func (MoveEvent) isGameEvent()             {}
func (GameOverEvent) isGameEvent()         {}
func (ConnectedPlayersEvent) isGameEvent() {}
func (PlayerAssignmentEvent) isGameEvent() {}
func (GameFullEvent) isGameEvent()         {}
