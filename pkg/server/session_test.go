package server

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sh-games/battleship-backend/pkg/comms"
	"github.com/sh-games/battleship-backend/pkg/config"
	"github.com/sh-games/battleship-backend/pkg/game"
)

const testChatPortMin = 39400

// testClient drives one player's half of the protocol over a real
// websocket connection.
type testClient struct {
	conn *websocket.Conn
	num  int
}

func dialClient(t *testing.T, url string) *testClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var msg comms.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, TypeServerReady, msg.Type)
	contents := msg.Contents.(map[string]interface{})
	return &testClient{conn: conn, num: int(contents["playerNum"].(float64))}
}

func (c *testClient) roundTrip(msgType string, contents interface{}) (comms.Message, error) {
	if err := c.conn.WriteJSON(comms.Message{Type: msgType, Contents: contents}); err != nil {
		return comms.Message{}, err
	}
	var msg comms.Message
	err := c.conn.ReadJSON(&msg)
	return msg, err
}

// pollUntilOK repeats a command while the server answers WAIT,
// matching the client-poll-driven phase barriers.
func (c *testClient) pollUntilOK(msgType string, contents interface{}) error {
	for {
		msg, err := c.roundTrip(msgType, contents)
		if err != nil {
			return err
		}
		switch msg.Type {
		case TypeOK:
			return nil
		case TypeWait:
			time.Sleep(10 * time.Millisecond)
		default:
			return fmt.Errorf("unexpected response %q while polling %q", msg.Type, msgType)
		}
	}
}

var testFleet = []struct {
	ship   string
	coords []string
}{
	{"carrier", []string{"1_1", "1_2", "1_3", "1_4", "1_5"}},
	{"battleship", []string{"2_1", "2_2", "2_3", "2_4"}},
	{"cruiser", []string{"3_1", "3_2", "3_3"}},
	{"submarine", []string{"4_1", "4_2", "4_3"}},
	{"destroyer", []string{"5_1", "5_2"}},
}

// runSetup walks a client through join, ship placement, the setup
// barrier and the initial state exchange, returning the game info.
func (c *testClient) runSetup(username, team string, misplaceFirst bool) (map[string]interface{}, error) {
	if err := c.pollUntilOK(TypeJoin, JoinRequest{Username: username, Team: team}); err != nil {
		return nil, err
	}

	if misplaceFirst {
		// A rejected placement must be answered with PLACE_ERR and
		// leave the ship retryable.
		msg, err := c.roundTrip("destroyer", PlaceShipRequest{Coords: []string{"5_1", "5_4"}})
		if err != nil {
			return nil, err
		}
		if msg.Type != TypePlaceErr {
			return nil, fmt.Errorf("expected PLACE_ERR, got %q", msg.Type)
		}
	}

	for _, f := range testFleet {
		msg, err := c.roundTrip(f.ship, PlaceShipRequest{Coords: f.coords})
		if err != nil {
			return nil, err
		}
		if msg.Type != TypeOK {
			return nil, fmt.Errorf("placement of %s rejected with %q", f.ship, msg.Type)
		}
	}

	if err := c.pollUntilOK(TypeSetup, nil); err != nil {
		return nil, err
	}

	msg, err := c.roundTrip(TypeSendInfo, nil)
	if err != nil {
		return nil, err
	}
	if msg.Type != TypeInfo {
		return nil, fmt.Errorf("expected INFO, got %q", msg.Type)
	}
	return msg.Contents.(map[string]interface{}), nil
}

func TestTwoPlayerSessionFlow(t *testing.T) {
	cfg := &config.Config{
		Host:        "127.0.0.1",
		Port:        "0",
		ChatPortMin: testChatPortMin,
		MaxPlayers:  2,
	}
	s := NewServer(zap.NewNop(), cfg, func(*http.Request) bool { return true })
	ts := httptest.NewServer(http.HandlerFunc(s.connectionHandler))
	defer ts.Close()
	go s.runPhases()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	c1 := dialClient(t, wsURL)
	c2 := dialClient(t, wsURL)
	defer c1.conn.Close()
	defer c2.conn.Close()
	require.Equal(t, 1, c1.num)
	require.Equal(t, 2, c2.num)

	// A third connection is turned away.
	extra, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	var busy comms.Message
	require.NoError(t, extra.ReadJSON(&busy))
	assert.Equal(t, TypeBusy, busy.Type)
	extra.Close()

	// Commands outside the phase vocabulary are rejected.
	msg, err := c1.roundTrip("SELF_DESTRUCT", nil)
	require.NoError(t, err)
	assert.Equal(t, TypeUnknownCode, msg.Type)

	infos := make(chan map[string]interface{}, 2)
	errs := make(chan error, 2)
	go func() {
		info, err := c1.runSetup("alice", "Red", true)
		infos <- info
		errs <- err
	}()
	go func() {
		info, err := c2.runSetup("bob", "Blue", false)
		infos <- info
		errs <- err
	}()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	info := <-infos
	<-infos

	firstTurn := info["first_turn"].(string)
	attacker, defender := c1, c2
	defenderTeam := "Blue"
	if firstTurn == "Blue" {
		attacker, defender = c2, c1
		defenderTeam = "Red"
	}
	attackerName := info[strconv.Itoa(attacker.num)].([]interface{})[0].(string)

	// The defending team cannot move first.
	msg, err = defender.roundTrip(TypeMove, MoveRequest{Target: attacker.num, Row: 9, Col: 9})
	require.NoError(t, err)
	assert.Equal(t, TypeNotYourTurn, msg.Type)

	// The attacker hits the defender's carrier.
	msg, err = attacker.roundTrip(TypeMove, MoveRequest{Target: defender.num, Row: 1, Col: 1})
	require.NoError(t, err)
	assert.Equal(t, TypeMoveOK, msg.Type)

	// One-player teams complete their turn immediately.
	msg, err = attacker.roundTrip(TypeMove, MoveRequest{Target: defender.num, Row: 1, Col: 2})
	require.NoError(t, err)
	assert.Equal(t, TypeNotYourTurn, msg.Type)

	// The defender polls and drains the notification batch.
	msg, err = defender.roundTrip(TypeUpdateGame, nil)
	require.NoError(t, err)
	require.Equal(t, TypeUpdate, msg.Type)
	msg, err = defender.roundTrip(TypeOK, nil)
	require.NoError(t, err)
	require.Equal(t, TypeState, msg.Type)
	batch := msg.Contents.(map[string]interface{})["batch"].(string)
	assert.Contains(t, batch, fmt.Sprintf("HIT %s", attackerName))
	assert.Contains(t, batch, fmt.Sprintf("TURN_CHANGE 1 %s", defenderTeam))

	// Nothing pending on the second poll.
	msg, err = defender.roundTrip(TypeUpdateGame, nil)
	require.NoError(t, err)
	assert.Equal(t, TypeGameOK, msg.Type)

	// Enemy boards come back serialized with the hit visible.
	msg, err = attacker.roundTrip(TypeNewBoard, NewBoardRequest{Target: defender.num, Relation: RelationEnemy})
	require.NoError(t, err)
	require.Equal(t, TypeBoard, msg.Type)
	grid := msg.Contents.(map[string]interface{})["grid"].(string)
	assert.Contains(t, grid, "H")

	// Ally boards additionally expose the ship coordinate map.
	msg, err = attacker.roundTrip(TypeNewBoard, NewBoardRequest{Target: attacker.num, Relation: RelationAlly})
	require.NoError(t, err)
	require.Equal(t, TypeBoard, msg.Type)
	msg, err = attacker.roundTrip(TypeSendShips, nil)
	require.NoError(t, err)
	require.Equal(t, TypeShips, msg.Type)
	ships := msg.Contents.(map[string]interface{})["ships"].(map[string]interface{})
	assert.Len(t, ships["carrier"], 5)

	// Outgoing chat: CHAT, ready signal, one UDP payload, CHAT OK.
	require.NoError(t, attacker.conn.WriteJSON(comms.Message{
		Type:     TypeChat,
		Contents: ChatRequest{Mode: "ALL"},
	}))
	require.NoError(t, attacker.conn.ReadJSON(&msg))
	require.Equal(t, TypeSendMsg, msg.Type)
	chatConn, err := net.Dial("udp", "127.0.0.1:"+strconv.Itoa(testChatPortMin+attacker.num))
	require.NoError(t, err)
	_, err = chatConn.Write([]byte("gl hf"))
	require.NoError(t, err)
	chatConn.Close()
	require.NoError(t, attacker.conn.ReadJSON(&msg))
	assert.Equal(t, TypeChatOK, msg.Type)

	// The defender pulls the chat batch over the ephemeral relay.
	listener, err := net.ListenPacket("udp", "127.0.0.1:"+strconv.Itoa(testChatPortMin+defender.num))
	require.NoError(t, err)
	defer listener.Close()

	msg, err = defender.roundTrip(TypeUpdateChat, nil)
	require.NoError(t, err)
	require.Equal(t, TypeUpdate, msg.Type)
	require.NoError(t, defender.conn.WriteJSON(comms.Message{
		Type:     "CHAT ADDR",
		Contents: ChatAddressNotice{Addr: "127.0.0.1"},
	}))

	var chatLines []string
	buffer := make([]byte, 1024)
	for {
		require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := listener.ReadFrom(buffer)
		require.NoError(t, err)
		line := string(buffer[:n])
		if line == SendComplete {
			break
		}
		chatLines = append(chatLines, line)
	}
	require.NoError(t, defender.conn.ReadJSON(&msg))
	assert.Equal(t, TypeOK, msg.Type)
	assert.Equal(t, []string{fmt.Sprintf("[%s (ALL)] gl hf", attackerName)}, chatLines)

	// Both players acknowledge the end of the game.
	msg, err = c1.roundTrip(TypeEndGame, nil)
	require.NoError(t, err)
	assert.Equal(t, TypeOK, msg.Type)
	msg, err = c2.roundTrip(TypeEndGame, nil)
	require.NoError(t, err)
	assert.Equal(t, TypeOK, msg.Type)
}

func TestMoveResponseTokens(t *testing.T) {
	assert.Equal(t, TypeMoveOK, moveResponse(game.MoveOK))
	assert.Equal(t, TypeYouAreDead, moveResponse(game.MoveAttackerDead))
	assert.Equal(t, TypeEnemyIsDead, moveResponse(game.MoveDefenderDead))
	assert.Equal(t, TypeAlreadyTakenTurn, moveResponse(game.MoveAlreadyTakenTurn))
	assert.Equal(t, TypeNotYourTurn, moveResponse(game.MoveNotYourTurn))
}

// With two players on one team, the team turn stays open after the
// first member fires, so a second shot from the same member is turned
// away with its own token rather than the generic NOT_YOUR_TURN.
func TestTeammateSecondMoveRejectedOverWire(t *testing.T) {
	cfg := &config.Config{
		Host:        "127.0.0.1",
		Port:        "0",
		ChatPortMin: testChatPortMin + 100,
		MaxPlayers:  3,
	}
	s := NewServer(zap.NewNop(), cfg, func(*http.Request) bool { return true })
	ts := httptest.NewServer(http.HandlerFunc(s.connectionHandler))
	defer ts.Close()
	go s.runPhases()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	alice := dialClient(t, wsURL)
	amy := dialClient(t, wsURL)
	bob := dialClient(t, wsURL)
	defer alice.conn.Close()
	defer amy.conn.Close()
	defer bob.conn.Close()

	errs := make(chan error, 3)
	infos := make(chan map[string]interface{}, 3)
	for _, setup := range []struct {
		client   *testClient
		username string
		team     string
	}{
		{alice, "alice", "Red"},
		{amy, "amy", "Red"},
		{bob, "bob", "Blue"},
	} {
		setup := setup
		go func() {
			info, err := setup.client.runSetup(setup.username, setup.team, false)
			infos <- info
			errs <- err
		}()
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}
	info := <-infos

	// If Blue opens, bob's move hands the turn to Red.
	if info["first_turn"].(string) == "Blue" {
		msg, err := bob.roundTrip(TypeMove, MoveRequest{Target: alice.num, Row: 9, Col: 9})
		require.NoError(t, err)
		require.Equal(t, TypeMoveOK, msg.Type)
	}

	msg, err := alice.roundTrip(TypeMove, MoveRequest{Target: bob.num, Row: 9, Col: 9})
	require.NoError(t, err)
	require.Equal(t, TypeMoveOK, msg.Type)

	// amy has not fired yet, so the team turn is still Red's.
	msg, err = alice.roundTrip(TypeMove, MoveRequest{Target: bob.num, Row: 9, Col: 8})
	require.NoError(t, err)
	assert.Equal(t, TypeAlreadyTakenTurn, msg.Type)

	msg, err = amy.roundTrip(TypeMove, MoveRequest{Target: bob.num, Row: 8, Col: 8})
	require.NoError(t, err)
	require.Equal(t, TypeMoveOK, msg.Type)

	// The completed team turn moves on to Blue.
	msg, err = alice.roundTrip(TypeMove, MoveRequest{Target: bob.num, Row: 8, Col: 9})
	require.NoError(t, err)
	assert.Equal(t, TypeNotYourTurn, msg.Type)
}
