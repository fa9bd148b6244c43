package comms

// Message is the JSON envelope used for every exchange with a client.
// Type carries the protocol token, Contents that token's parameters.
type Message struct {
	Type     string      `json:"type"`
	Contents interface{} `json:"contents,omitempty"`
}

// Error returned to the client
type ErrorResponse struct {
	Reason string `json:"reason"`
}
