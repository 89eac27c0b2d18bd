package tictactoe

import "fmt"

// Mark is a player's symbol. The zero value is an empty cell.
type Mark string

const (
	MarkNone Mark = ""
	MarkX    Mark = "X"
	MarkO    Mark = "O"
)

// Opponent returns the other mark.
func (m Mark) Opponent() Mark {
	switch m {
	case MarkX:
		return MarkO
	case MarkO:
		return MarkX
	default:
		return MarkNone
	}
}

// Board is the 3x3 grid in row-major order.
type Board [9]Mark

// Full reports whether every cell is marked.
func (b Board) Full() bool {
	for _, cell := range b {
		if cell == MarkNone {
			return false
		}
	}
	return true
}

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Winner returns the mark owning the first complete line, scanning rows,
// then columns, then diagonals. It returns MarkNone when no line is complete.
func Winner(b Board) Mark {
	for _, line := range lines {
		first := b[line[0]]
		if first != MarkNone && first == b[line[1]] && first == b[line[2]] {
			return first
		}
	}
	return MarkNone
}

// Status is the game's phase.
type Status int

const (
	// StatusWaiting means fewer than two players hold marks.
	StatusWaiting Status = iota
	// StatusInProgress means two players hold marks and nobody has won.
	StatusInProgress
	// StatusFinished means the game ended in a win or a draw.
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusInProgress:
		return "in-progress"
	case StatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

const (
	resultDraw = "draw"
	maxPlayers = 2
)

func winResult(m Mark) string {
	return string(m) + " wins"
}

// Player is one registry entry.
type Player struct {
	ID   string `json:"id"`
	Mark Mark   `json:"mark"`
}

// Snapshot is the persisted game state.
type Snapshot struct {
	Board   Board    `json:"board"`
	Turn    Mark     `json:"turn"`
	Players []Player `json:"players"`
	Result  string   `json:"result,omitempty"`
}

func newSnapshot() Snapshot {
	return Snapshot{Turn: MarkX, Players: []Player{}}
}

// Status derives the game phase.
func (s Snapshot) Status() Status {
	switch {
	case s.Result != "":
		return StatusFinished
	case len(s.Players) == maxPlayers:
		return StatusInProgress
	default:
		return StatusWaiting
	}
}

// MarkOf returns the mark held by player.
func (s Snapshot) MarkOf(player string) (Mark, bool) {
	for _, p := range s.Players {
		if p.ID == player {
			return p.Mark, true
		}
	}
	return MarkNone, false
}

// PlayerIDs lists registered players in join order.
func (s Snapshot) PlayerIDs() []string {
	ids := make([]string, 0, len(s.Players))
	for _, p := range s.Players {
		ids = append(ids, p.ID)
	}
	return ids
}

func (s Snapshot) withPlayer(p Player) Snapshot {
	players := make([]Player, 0, len(s.Players)+1)
	players = append(players, s.Players...)
	s.Players = append(players, p)
	return s
}

func (s Snapshot) withoutPlayer(player string) Snapshot {
	players := make([]Player, 0, len(s.Players))
	for _, p := range s.Players {
		if p.ID != player {
			players = append(players, p)
		}
	}
	s.Players = players
	return s
}

// move applies player's mark at position. It reports false, leaving the
// snapshot untouched, unless the position is on the board and empty, two
// players are registered, the player holds the mark whose turn it is, and
// the game has not ended.
func (s Snapshot) move(player string, position int) (Snapshot, Mark, bool) {
	if position < 0 || position >= len(s.Board) {
		return s, MarkNone, false
	}
	if s.Result != "" || len(s.Players) != maxPlayers {
		return s, MarkNone, false
	}
	mark, ok := s.MarkOf(player)
	if !ok || mark != s.Turn || s.Board[position] != MarkNone {
		return s, MarkNone, false
	}

	s.Board[position] = mark
	switch {
	case Winner(s.Board) != MarkNone:
		s.Result = winResult(Winner(s.Board))
	case s.Board.Full():
		s.Result = resultDraw
	default:
		s.Turn = mark.Opponent()
	}
	return s, mark, true
}
