package server

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/sh-games/battleship-backend/pkg/board"
	"github.com/sh-games/battleship-backend/pkg/comms"
	"github.com/sh-games/battleship-backend/pkg/game"
)

// session drives one connected player through the match phases:
// join, ship placement, waiting for start, then the active command
// loop. It is the only code path that reads or drains its player's
// buffers, and it competes with the other sessions for the match lock
// whenever it touches shared state.
type session struct {
	log    *zap.Logger
	conn   *comms.ConnectionWrapper
	match  *game.Match
	relay  *ChatRelay
	num    int
	player *game.Player
}

func (s *session) run() {
	s.log.Info(fmt.Sprintf("Session started for player %d", s.num))
	err := s.awaitJoin()
	if err == nil {
		err = s.placeShips()
	}
	if err == nil {
		err = s.awaitStart()
	}
	if err == nil {
		err = s.sendInfo()
	}
	if err == nil {
		err = s.active()
	}
	if err != nil {
		s.log.Info(fmt.Sprintf("Player %d errored or disconnected", s.num), zap.Error(err))
	}
	s.log.Info(fmt.Sprintf("Session closed for player %d", s.num))
}

// awaitJoin registers the player on their first JOIN and answers WAIT
// until every player has joined and the setup phase opens.
func (s *session) awaitJoin() error {
	for {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		if msg.Type != TypeJoin {
			if err := s.conn.WriteMessage(comms.Message{Type: TypeUnknownCode}); err != nil {
				return err
			}
			continue
		}

		var contents JoinRequest
		if err := mapstructure.Decode(msg.Contents, &contents); err != nil {
			if err := s.writeError("Unable to parse JoinRequest"); err != nil {
				return err
			}
			continue
		}

		s.match.Lock()
		if s.player == nil && s.match.JoinCount < s.match.TargetPlayers {
			s.player = game.NewPlayer(contents.Username, contents.Team, s.num)
			s.match.AddPlayer(s.player)
			s.match.JoinCount++
			s.log.Info(fmt.Sprintf(
				"Player %d joined as %s on team %s", s.num, contents.Username, contents.Team))
		}
		setupStarted := s.match.SetupStarted
		s.match.Unlock()

		if setupStarted {
			return s.conn.WriteMessage(comms.Message{Type: TypeOK})
		}
		if err := s.conn.WriteMessage(comms.Message{Type: TypeWait}); err != nil {
			return err
		}
	}
}

// placeShips receives one placement command per ship, validating each
// against the board. A rejected placement gets PLACE_ERR and the
// client retries that ship; nothing is committed on failure.
func (s *session) placeShips() error {
	for {
		s.match.Lock()
		complete := s.player.Board.Complete()
		s.match.Unlock()
		if complete {
			break
		}

		msg, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		if _, ok := board.ShipSizes[msg.Type]; !ok {
			if err := s.conn.WriteMessage(comms.Message{Type: TypeUnknownCode}); err != nil {
				return err
			}
			continue
		}

		if err := s.placeOneShip(msg); err != nil {
			return err
		}
	}

	s.match.Lock()
	s.match.ReadyCount++
	s.match.Unlock()
	s.log.Info(fmt.Sprintf("Player %d finished ship placement", s.num))
	return nil
}

// placeOneShip validates a single ship placement message and answers
// OK or PLACE_ERR.
func (s *session) placeOneShip(msg comms.Message) error {
	var contents PlaceShipRequest
	if err := mapstructure.Decode(msg.Contents, &contents); err != nil {
		return s.writePlaceErr("Unable to parse ship coordinates")
	}
	if len(contents.Coords) == 0 {
		return s.writePlaceErr("Ship has no coordinates")
	}

	from, err := board.ParseCoord(contents.Coords[0])
	if err != nil {
		return s.writePlaceErr(err.Error())
	}
	to, err := board.ParseCoord(contents.Coords[len(contents.Coords)-1])
	if err != nil {
		return s.writePlaceErr(err.Error())
	}

	s.match.Lock()
	placeErr := s.player.Board.PlaceShip(msg.Type, from, to)
	s.match.Unlock()
	if placeErr != nil {
		return s.writePlaceErr(placeErr.Error())
	}

	s.log.Info(fmt.Sprintf("Player %d placed %s at %s", s.num, msg.Type, from))
	return s.conn.WriteMessage(comms.Message{Type: TypeOK})
}

// awaitStart answers SETUP polls with WAIT until every player has
// placed their ships and the first team has been selected.
func (s *session) awaitStart() error {
	for {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		if msg.Type != TypeSetup {
			if err := s.conn.WriteMessage(comms.Message{Type: TypeUnknownCode}); err != nil {
				return err
			}
			continue
		}

		s.match.Lock()
		started := s.match.Started
		s.match.Unlock()

		if started {
			return s.conn.WriteMessage(comms.Message{Type: TypeOK})
		}
		if err := s.conn.WriteMessage(comms.Message{Type: TypeWait}); err != nil {
			return err
		}
	}
}

// sendInfo answers the SEND INFO request with the initial game state.
// Anything else here is a protocol violation that ends the session.
func (s *session) sendInfo() error {
	msg, err := s.conn.ReadMessage()
	if err != nil {
		return err
	}
	if msg.Type != TypeSendInfo {
		return fmt.Errorf("bad request %q for game information", msg.Type)
	}

	s.match.Lock()
	info := s.match.Info()
	s.match.Unlock()

	if err := s.conn.WriteMessage(comms.Message{Type: TypeInfo, Contents: info}); err != nil {
		return err
	}
	s.log.Info(fmt.Sprintf("Sent initial game state to player %d", s.num))
	return nil
}

// active is the main command loop, handled one synchronous exchange
// at a time until this player acknowledges the end of the game.
func (s *session) active() error {
	for {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}

		switch msg.Type {
		case TypeUpdateGame:
			err = s.handleUpdateGame()
		case TypeUpdateChat:
			err = s.handleUpdateChat()
		case TypeNewBoard:
			err = s.handleNewBoard(msg)
		case TypeMove:
			err = s.handleMove(msg)
		case TypeChat:
			err = s.handleChat(msg)
		case TypeEndGame:
			s.match.Lock()
			s.match.EndCount++
			s.match.Unlock()
			s.log.Info(fmt.Sprintf("Player %d acknowledged game end", s.num))
			return s.conn.WriteMessage(comms.Message{Type: TypeOK})
		default:
			err = s.conn.WriteMessage(comms.Message{Type: TypeUnknownCode})
		}
		if err != nil {
			return err
		}
	}
}

// handleUpdateGame drains the player's pending state notifications:
// UPDATE, wait for the ack, then the newline-joined batch. GAME OK
// when nothing is pending.
func (s *session) handleUpdateGame() error {
	s.match.Lock()
	if !s.player.HasState() {
		s.match.Unlock()
		return s.conn.WriteMessage(comms.Message{Type: TypeGameOK})
	}
	lines := s.player.TakeState()
	s.match.Unlock()

	if err := s.conn.WriteMessage(comms.Message{Type: TypeUpdate}); err != nil {
		return err
	}
	if _, err := s.conn.ReadMessage(); err != nil {
		return err
	}
	s.log.Info(fmt.Sprintf("Sent state messages to player %d", s.num))
	return s.conn.WriteMessage(comms.Message{
		Type:     TypeState,
		Contents: StateBatchResponse{Batch: strings.Join(lines, "\n")},
	})
}

// handleUpdateChat drains pending chat over the UDP relay: UPDATE,
// read the client's relay address, datagram the batch across. CHAT OK
// when nothing is pending.
func (s *session) handleUpdateChat() error {
	s.match.Lock()
	if !s.player.HasChat() {
		s.match.Unlock()
		return s.conn.WriteMessage(comms.Message{Type: TypeChatOK})
	}
	lines := s.player.TakeChat()
	s.match.Unlock()

	if err := s.conn.WriteMessage(comms.Message{Type: TypeUpdate}); err != nil {
		return err
	}
	msg, err := s.conn.ReadMessage()
	if err != nil {
		return err
	}
	var notice ChatAddressNotice
	if err := mapstructure.Decode(msg.Contents, &notice); err != nil {
		return fmt.Errorf("unable to parse chat relay address: %w", err)
	}

	if err := s.relay.SendBatch(notice.Addr, s.num, lines); err != nil {
		return err
	}
	s.log.Info(fmt.Sprintf("Sent chat messages to player %d", s.num))
	return s.conn.WriteMessage(comms.Message{Type: TypeOK})
}

// handleNewBoard serializes another player's grid; ally boards also
// expose the ship coordinate map on a follow-up request.
func (s *session) handleNewBoard(msg comms.Message) error {
	var contents NewBoardRequest
	if err := mapstructure.Decode(msg.Contents, &contents); err != nil {
		return s.writeError("Unable to parse NewBoardRequest")
	}

	s.match.Lock()
	target, ok := s.match.Player(contents.Target)
	if !ok {
		s.match.Unlock()
		return s.writeError(fmt.Sprintf("Unknown player %d", contents.Target))
	}
	grid := target.Board.Render()
	s.match.Unlock()

	if err := s.conn.WriteMessage(comms.Message{
		Type:     TypeBoard,
		Contents: BoardResponse{Grid: grid},
	}); err != nil {
		return err
	}
	s.log.Info(fmt.Sprintf("Sent new board to player %d", s.num))

	if contents.Relation != RelationAlly {
		return nil
	}

	// The ally flow pulls the ship coordinates in a second exchange.
	if _, err := s.conn.ReadMessage(); err != nil {
		return err
	}
	s.match.Lock()
	ships := target.Board.ShipCoords()
	s.match.Unlock()
	return s.conn.WriteMessage(comms.Message{
		Type:     TypeShips,
		Contents: ShipCoordsResponse{Ships: ships},
	})
}

// handleMove checks the turn preconditions and resolves the shot. A
// rejected move answers with the specific named outcome so the client
// can render a precise message.
func (s *session) handleMove(msg comms.Message) error {
	var contents MoveRequest
	if err := mapstructure.Decode(msg.Contents, &contents); err != nil {
		return s.writeError("Unable to parse MoveRequest")
	}
	if contents.Row < 1 || contents.Row > board.Size ||
		contents.Col < 1 || contents.Col > board.Size {
		return s.writeError(fmt.Sprintf("Cell %d_%d is off the board", contents.Row, contents.Col))
	}

	s.match.Lock()
	defender, ok := s.match.Player(contents.Target)
	if !ok {
		s.match.Unlock()
		return s.writeError(fmt.Sprintf("Unknown player %d", contents.Target))
	}

	verdict := s.match.EvaluateMove(s.player, defender)
	if verdict == game.MoveOK {
		s.match.MakeMove(s.player, defender, contents.Row, contents.Col)
	}
	s.match.Unlock()

	if verdict == game.MoveOK {
		s.log.Info(fmt.Sprintf("Received move from player %d: %d %d_%d",
			s.num, contents.Target, contents.Row, contents.Col))
	}
	return s.conn.WriteMessage(comms.Message{Type: moveResponse(verdict)})
}

// moveResponse maps a move verdict to its wire token.
func moveResponse(verdict game.MoveVerdict) string {
	switch verdict {
	case game.MoveOK:
		return TypeMoveOK
	case game.MoveAttackerDead:
		return TypeYouAreDead
	case game.MoveDefenderDead:
		return TypeEnemyIsDead
	case game.MoveAlreadyTakenTurn:
		return TypeAlreadyTakenTurn
	default:
		return TypeNotYourTurn
	}
}

// handleChat receives one outgoing chat payload over the UDP relay
// and queues it for the addressed recipients.
func (s *session) handleChat(msg comms.Message) error {
	var contents ChatRequest
	if err := mapstructure.Decode(msg.Contents, &contents); err != nil {
		return s.writeError("Unable to parse ChatRequest")
	}

	payload, err := s.relay.ReceiveOne(s.num, func() error {
		return s.conn.WriteMessage(comms.Message{Type: TypeSendMsg})
	})
	if err != nil {
		return err
	}

	s.match.Lock()
	queueErr := s.match.QueueChat(s.player, contents.Mode, contents.Team, payload)
	s.match.Unlock()
	if queueErr != nil {
		return s.writeError(queueErr.Error())
	}

	s.log.Info(fmt.Sprintf(
		"Received chat message from player %d: %s", s.num, strings.TrimSuffix(payload, "\n")))
	return s.conn.WriteMessage(comms.Message{Type: TypeChatOK})
}

func (s *session) writeError(reason string) error {
	return s.conn.WriteMessage(comms.Message{
		Type:     TypeError,
		Contents: comms.ErrorResponse{Reason: reason},
	})
}

func (s *session) writePlaceErr(reason string) error {
	return s.conn.WriteMessage(comms.Message{
		Type:     TypePlaceErr,
		Contents: comms.ErrorResponse{Reason: reason},
	})
}
