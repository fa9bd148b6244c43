package server

// Protocol tokens carried in the Message envelope's Type field. The
// command/response vocabulary matches the reference client.
const (
	TypeServerReady      = "SRDY"
	TypeBusy             = "BUSY"
	TypeJoin             = "JOIN"
	TypeOK               = "OK"
	TypeWait             = "WAIT"
	TypeSetup            = "SETUP"
	TypeSendInfo         = "SEND INFO"
	TypeInfo             = "INFO"
	TypeUpdateGame       = "UPDATE_GAME"
	TypeUpdateChat       = "UPDATE_CHAT"
	TypeUpdate           = "UPDATE"
	TypeGameOK           = "GAME OK"
	TypeChatOK           = "CHAT OK"
	TypeState            = "STATE"
	TypeNewBoard         = "NEW_BOARD"
	TypeBoard            = "BOARD"
	TypeSendShips        = "SEND SHIPS"
	TypeShips            = "SHIPS"
	TypeMove             = "MOVE"
	TypeMoveOK           = "MOVE_OK"
	TypeNotYourTurn      = "NOT_YOUR_TURN"
	TypeAlreadyTakenTurn = "ALREADY_TAKEN_TURN"
	TypeYouAreDead       = "YOU_ARE_DEAD"
	TypeEnemyIsDead      = "ENEMY_IS_DEAD"
	TypeChat             = "CHAT"
	TypeSendMsg          = "SEND MSG"
	TypeEndGame          = "END_GAME"
	TypePlaceErr         = "PLACE_ERR"
	TypeError            = "ERROR"
	TypeUnknownCode      = "UNKNOWN CODE"
)

// Board relations for NEW_BOARD requests
const (
	RelationAlly  = "ALLY"
	RelationEnemy = "ENEMY"
)

// ServerReadyResponse carries the player number assigned at connect.
type ServerReadyResponse struct {
	PlayerNum int `json:"playerNum"`
}

// JoinRequest carries the JOIN parameters.
type JoinRequest struct {
	Username string `json:"username"`
	Team     string `json:"team"`
}

// PlaceShipRequest carries one ship's resolved cell list in row_col
// form. The envelope Type names the ship being placed.
type PlaceShipRequest struct {
	Coords []string `json:"coords"`
}

// MoveRequest carries a shot at another player's board.
type MoveRequest struct {
	Target int `json:"target"`
	Row    int `json:"row"`
	Col    int `json:"col"`
}

// NewBoardRequest asks for a serialized view of another board.
type NewBoardRequest struct {
	Target   int    `json:"target"`
	Relation string `json:"relation"`
}

// BoardResponse carries a serialized grid.
type BoardResponse struct {
	Grid string `json:"grid"`
}

// ShipCoordsResponse carries an ally's ship coordinate map.
type ShipCoordsResponse struct {
	Ships map[string][]string `json:"ships"`
}

// StateBatchResponse carries the newline-joined notification batch.
type StateBatchResponse struct {
	Batch string `json:"batch"`
}

// ChatRequest announces an outgoing chat message and its addressing.
type ChatRequest struct {
	Mode string `json:"mode"`
	Team string `json:"team,omitempty"`
}

// ChatAddressNotice carries the client's address for the UDP relay.
type ChatAddressNotice struct {
	Addr string `json:"addr"`
}
