package game

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Chat addressing modes
const (
	ChatAll    = "ALL"
	ChatAllies = "ALLIES"
	ChatEnemy  = "ENEMY"
)

// Match is the shared world state for a single game. Every mutation
// and every cross-session read goes through the embedded mutex; the
// session workers lock it around each command they resolve.
type Match struct {
	sync.Mutex

	log *zap.Logger

	// TargetPlayers is the fixed player count the match was created for.
	TargetPlayers int

	players     map[int]*Player
	playerOrder []int
	teams       map[string][]int
	teamOrder   []string // teams in first-seen join order, drives turn rotation
	teamAlive   map[string]bool

	teamTurn      string
	firstTeamTurn string
	turnCount     int
	winner        string

	// Admission counters acting as phase barriers
	JoinCount  int
	ReadyCount int
	EndCount   int

	SetupStarted bool
	Started      bool
	Ended        bool

	playerNums int
}

// NewMatch creates the world state for a fixed player count, before
// any connection is accepted.
func NewMatch(log *zap.Logger, targetPlayers int) *Match {
	return &Match{
		log:           log,
		TargetPlayers: targetPlayers,
		players:       make(map[int]*Player, targetPlayers),
		teams:         make(map[string][]int),
		teamAlive:     make(map[string]bool),
		turnCount:     1,
	}
}

// AssignPlayerNum hands out the next monotonically increasing player
// number.
func (m *Match) AssignPlayerNum() int {
	m.playerNums++
	return m.playerNums
}

// AssignedPlayers returns how many player numbers have been handed out.
func (m *Match) AssignedPlayers() int {
	return m.playerNums
}

// AddPlayer registers a player and their team. The first player of a
// team fixes that team's slot in the turn rotation.
func (m *Match) AddPlayer(p *Player) {
	m.players[p.Num] = p
	m.playerOrder = append(m.playerOrder, p.Num)
	if _, ok := m.teams[p.Team]; !ok {
		m.teamOrder = append(m.teamOrder, p.Team)
		m.teamAlive[p.Team] = true
	}
	m.teams[p.Team] = append(m.teams[p.Team], p.Num)
}

// Player looks up a player by number.
func (m *Match) Player(num int) (*Player, bool) {
	p, ok := m.players[num]
	return p, ok
}

// EnoughTeams reports whether at least two distinct teams joined.
func (m *Match) EnoughTeams() bool {
	return len(m.teamOrder) > 1
}

// CurrentTeam returns the team whose turn it is.
func (m *Match) CurrentTeam() string {
	return m.teamTurn
}

// TurnCount returns the current round number, starting at 1.
func (m *Match) TurnCount() int {
	return m.turnCount
}

// Winner returns the winning team label, empty until the game ends.
func (m *Match) Winner() string {
	return m.winner
}

// SelectFirstTeam randomly picks the team that moves first.
func (m *Match) SelectFirstTeam() {
	m.teamTurn = m.teamOrder[rand.Intn(len(m.teamOrder))]
	m.firstTeamTurn = m.teamTurn
	m.log.Info(fmt.Sprintf("Team %s takes the first turn", m.teamTurn))
}

// MoveVerdict classifies whether a shot may be resolved right now.
type MoveVerdict int

const (
	MoveOK MoveVerdict = iota
	MoveAttackerDead
	MoveDefenderDead
	MoveAlreadyTakenTurn
	MoveNotYourTurn
)

// EvaluateMove checks the turn preconditions for a shot and, on
// rejection, names the first failing rule: dead participants are
// reported before an already-taken turn, and anything else is not
// your turn. A finished game accepts no further moves.
func (m *Match) EvaluateMove(attacker, defender *Player) MoveVerdict {
	switch {
	case m.Ended:
		return MoveNotYourTurn
	case attacker.Team == m.teamTurn && !attacker.TakenTurn &&
		attacker.Alive && defender.Alive:
		return MoveOK
	case !attacker.Alive:
		return MoveAttackerDead
	case !defender.Alive:
		return MoveDefenderDead
	case attacker.TakenTurn && attacker.Team == m.teamTurn:
		return MoveAlreadyTakenTurn
	default:
		return MoveNotYourTurn
	}
}

// MakeMove resolves one shot from attacker to defender. The caller
// has already verified the turn preconditions via EvaluateMove and
// holds the match lock. Firing at a spent cell re-applies the same
// outcome and still consumes the attacker's turn.
func (m *Match) MakeMove(attacker, defender *Player, row, col int) {
	outcome := defender.Board.ApplyShot(row, col)
	m.Broadcast(outcome + " " + attacker.Username + " " + defender.Username + " " +
		strconv.Itoa(row) + " " + strconv.Itoa(col))

	m.updateShipState(attacker, defender)

	attacker.TakenTurn = true
	if !m.Ended {
		m.checkTeamTakenTurn()
	}
}

// updateShipState sweeps the defender's fleet for a newly sunk ship
// and runs the elimination cascade behind it.
func (m *Match) updateShipState(attacker, defender *Player) {
	name, cells, sunk := defender.Board.SweepSunk()
	if !sunk {
		return
	}

	coords := make([]string, 0, len(cells))
	for _, c := range cells {
		coords = append(coords, c.String())
	}
	m.Broadcast("SUNK " + attacker.Username + " " + defender.Username + " " +
		name + " " + strings.Join(coords, " "))

	if !defender.checkIfDead() {
		return
	}
	m.Broadcast("ELIM_PLAYER " + attacker.Username + " " + defender.Username)

	if !m.teamAlive[defender.Team] {
		return
	}
	for _, num := range m.teams[defender.Team] {
		if m.players[num].Alive {
			return
		}
	}
	m.teamAlive[defender.Team] = false
	m.Broadcast("ELIM_TEAM " + attacker.Team + " " + defender.Team)
	m.checkGameOver()
}

// checkGameOver ends the game once exactly one team remains alive.
func (m *Match) checkGameOver() {
	aliveCount := 0
	winner := ""
	for _, team := range m.teamOrder {
		if m.teamAlive[team] {
			aliveCount++
			winner = team
		}
	}
	if aliveCount == 1 {
		m.winner = winner
		m.Ended = true
		m.Broadcast("GAME_END " + winner)
		m.log.Info(fmt.Sprintf("Game over, team %s wins", winner))
	}
}

// checkTeamTakenTurn advances the turn once every member of the
// current team has fired.
func (m *Match) checkTeamTakenTurn() {
	for _, num := range m.teams[m.teamTurn] {
		if !m.players[num].TakenTurn {
			return
		}
	}
	for _, num := range m.teams[m.teamTurn] {
		m.players[num].TakenTurn = false
	}
	m.changeTeamTurn()
}

// changeTeamTurn scans the rotation for the next living team. Wrapping
// back to the first-turn team closes a full round and bumps the turn
// counter.
func (m *Match) changeTeamTurn() {
	index := 0
	for i, team := range m.teamOrder {
		if team == m.teamTurn {
			index = i
			break
		}
	}
	for {
		index = (index + 1) % len(m.teamOrder)
		next := m.teamOrder[index]
		if !m.teamAlive[next] {
			continue
		}
		m.teamTurn = next
		if next == m.firstTeamTurn {
			m.turnCount++
		}
		m.Broadcast("TURN_CHANGE " + strconv.Itoa(m.turnCount) + " " + next)
		return
	}
}

// Broadcast appends a notification line to every player's state
// buffer. This is the sole broadcast mechanism; nothing is pushed to
// clients until they poll.
func (m *Match) Broadcast(line string) {
	for _, num := range m.playerOrder {
		m.players[num].PushState(line)
	}
}

// QueueChat fans a chat message out per the addressing mode. ENEMY
// messages also go back to the sender's own team so allies see
// outgoing taunts.
func (m *Match) QueueChat(sender *Player, mode, targetTeam, text string) error {
	switch mode {
	case ChatAll:
		for _, num := range m.playerOrder {
			m.players[num].PushChat("[" + sender.Username + " (ALL)] " + text)
		}
	case ChatAllies:
		for _, num := range m.teams[sender.Team] {
			m.players[num].PushChat("[" + sender.Username + " (ALLIES)] " + text)
		}
	case ChatEnemy:
		if _, ok := m.teams[targetTeam]; !ok {
			return fmt.Errorf("unknown team %q", targetTeam)
		}
		for _, num := range m.teams[targetTeam] {
			m.players[num].PushChat("[" + sender.Username + " (FROM ENEMY - " + targetTeam + ")] " + text)
		}
		for _, num := range m.teams[sender.Team] {
			m.players[num].PushChat("[" + sender.Username + " (TO ENEMY - " + targetTeam + ")] " + text)
		}
	default:
		return fmt.Errorf("unknown chat mode %q", mode)
	}
	return nil
}

// Info builds the initial game state sent in response to SEND INFO:
// player numbers, team rosters, the first-turn team and a username
// and team entry per player number.
func (m *Match) Info() map[string]interface{} {
	info := map[string]interface{}{
		"players":    m.playerOrder,
		"teams":      m.teams,
		"first_turn": m.firstTeamTurn,
	}
	for _, num := range m.playerOrder {
		p := m.players[num]
		info[strconv.Itoa(num)] = []string{p.Username, p.Team}
	}
	return info
}
