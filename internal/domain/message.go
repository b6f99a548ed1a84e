package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxMessageLen is the hard upper bound for message text, in characters.
const MaxMessageLen = 1000

type Message struct {
	ID        string `json:"id"`
	Sender    Token  `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	RoomID    RoomID `json:"roomId"`
}

// NormalizeText trims surrounding whitespace and checks the length bound.
// maxLen is clamped to MaxMessageLen.
func NormalizeText(text string, maxLen int) (string, error) {
	if maxLen <= 0 || maxLen > MaxMessageLen {
		maxLen = MaxMessageLen
	}
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	if n == 0 {
		return "", fmt.Errorf("%w: empty message", ErrInvalidInput)
	}
	if n > maxLen {
		return "", fmt.Errorf("%w: message has %d characters, limit is %d", ErrInvalidInput, n, maxLen)
	}
	return trimmed, nil
}

func (m Message) Validate() error {
	if m.ID == "" || m.Sender == "" || m.RoomID == "" {
		return fmt.Errorf("%w: message is missing id, sender or room", ErrInvalidInput)
	}
	if m.Timestamp <= 0 {
		return fmt.Errorf("%w: message timestamp %d", ErrInvalidInput, m.Timestamp)
	}
	if _, err := NormalizeText(m.Text, MaxMessageLen); err != nil {
		return err
	}
	return nil
}
