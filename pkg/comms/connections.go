package comms

import (
	"github.com/gorilla/websocket"
)

// ConnectionWrapper wraps a client connection, handling communication.
type ConnectionWrapper struct {
	Socket *websocket.Conn
}

// ReadMessage reads the next message in from the client.
func (c *ConnectionWrapper) ReadMessage() (Message, error) {
	var message Message
	err := c.Socket.ReadJSON(&message)
	return message, err
}

// WriteMessage sends a message to the client.
func (c *ConnectionWrapper) WriteMessage(message Message) error {
	return c.Socket.WriteJSON(message)
}

func (c *ConnectionWrapper) Close() error {
	return c.Socket.Close()
}
