package game

import (
	"github.com/sh-games/battleship-backend/pkg/board"
)

// Player is one connected participant: identity, their private board
// and the two outbound buffers their own session drains on poll.
type Player struct {
	Username  string
	Team      string
	Num       int
	Alive     bool
	TakenTurn bool
	Board     *board.Board

	stateBuffer []string
	chatBuffer  []string
}

// NewPlayer constructs a live Player with an empty board.
func NewPlayer(username, team string, num int) *Player {
	return &Player{
		Username: username,
		Team:     team,
		Num:      num,
		Alive:    true,
		Board:    board.New(),
	}
}

// PushState appends one state-change notification line.
func (p *Player) PushState(line string) {
	p.stateBuffer = append(p.stateBuffer, line)
}

// TakeState returns the pending notification lines and clears the
// buffer. Callers must hold the match lock.
func (p *Player) TakeState() []string {
	lines := p.stateBuffer
	p.stateBuffer = nil
	return lines
}

// HasState reports whether notifications are pending.
func (p *Player) HasState() bool {
	return len(p.stateBuffer) > 0
}

// PushChat appends one chat line.
func (p *Player) PushChat(line string) {
	p.chatBuffer = append(p.chatBuffer, line)
}

// TakeChat returns the pending chat lines and clears the buffer.
// Callers must hold the match lock.
func (p *Player) TakeChat() []string {
	lines := p.chatBuffer
	p.chatBuffer = nil
	return lines
}

// HasChat reports whether chat lines are pending.
func (p *Player) HasChat() bool {
	return len(p.chatBuffer) > 0
}

// checkIfDead flips the alive flag once the last ship goes down and
// reports whether the player just died.
func (p *Player) checkIfDead() bool {
	if p.Board.AfloatCount() > 0 {
		return false
	}
	p.Alive = false
	return true
}
