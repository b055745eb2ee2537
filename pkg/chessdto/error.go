package chessdto

import "strings"

// ErrorPrefix starts every error text sent to clients.
const ErrorPrefix = "Error: "

// Error builds an ERROR frame, adding ErrorPrefix when missing.
func Error(text string) *ServerMessage {
	if !strings.HasPrefix(text, ErrorPrefix) {
		text = ErrorPrefix + text
	}
	return &ServerMessage{ServerMessageType: MessageError, ErrorMessage: text}
}
