// Package hub fans dashboard events out to websocket clients.
package hub

// Message is one pre-encoded text frame.
type Message struct {
	Data []byte
}

// Event is the envelope every dashboard event travels in.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Message string `json:"message,omitempty"`
	Time    int64  `json:"time"`
}
