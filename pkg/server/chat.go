package server

import (
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"
)

// SendComplete is the sentinel datagram that terminates a chat batch.
const SendComplete = "SEND COMPLETE"

// maxChatPayload bounds a single chat datagram.
const maxChatPayload = 4096

// ChatRelay moves chat batches between server and clients over
// short-lived UDP exchanges, one port per player offset from the
// configured base. Delivery is best-effort: no retries, no per-line
// acknowledgement.
type ChatRelay struct {
	log     *zap.Logger
	host    string
	portMin int
}

// NewChatRelay constructs a relay bound to the given host with the
// given base port.
func NewChatRelay(log *zap.Logger, host string, portMin int) *ChatRelay {
	return &ChatRelay{log: log, host: host, portMin: portMin}
}

// port returns the relay port assigned to a player.
func (r *ChatRelay) port(playerNum int) string {
	return strconv.Itoa(r.portMin + playerNum)
}

// SendBatch datagrams each queued chat line to the client's relay
// listener, then the SEND COMPLETE sentinel.
func (r *ChatRelay) SendBatch(addr string, playerNum int, lines []string) error {
	conn, err := net.Dial("udp", net.JoinHostPort(addr, r.port(playerNum)))
	if err != nil {
		return fmt.Errorf("unable to reach chat relay for player %d: %w", playerNum, err)
	}
	defer conn.Close()

	for _, line := range lines {
		if _, err := conn.Write([]byte(line)); err != nil {
			return err
		}
	}
	_, err = conn.Write([]byte(SendComplete))
	return err
}

// ReceiveOne binds the player's relay port, invokes ready to signal
// the client that the port is listening, then reads one payload.
func (r *ChatRelay) ReceiveOne(playerNum int, ready func() error) (string, error) {
	pc, err := net.ListenPacket("udp", net.JoinHostPort(r.host, r.port(playerNum)))
	if err != nil {
		return "", fmt.Errorf("unable to open chat relay for player %d: %w", playerNum, err)
	}
	defer pc.Close()

	if err := ready(); err != nil {
		return "", err
	}

	buffer := make([]byte, maxChatPayload)
	n, _, err := pc.ReadFrom(buffer)
	if err != nil {
		return "", err
	}
	return string(buffer[:n]), nil
}
