package chat

import (
	"encoding/json"
	"fmt"
	"io"

	"localchat/internal/models"
)

type transcriptLine struct {
	ChatID    string        `json:"chat_id"`
	Sender    models.Sender `json:"sender"`
	Text      string        `json:"text"`
	Timestamp int64         `json:"timestamp"`
}

// WriteTranscript writes the chat's messages as JSON lines, oldest first.
func WriteTranscript(w io.Writer, c *models.Chat) error {
	if c == nil {
		return ErrNotFound
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, m := range c.Messages {
		if err := enc.Encode(transcriptLine{
			ChatID:    c.ID,
			Sender:    m.Sender,
			Text:      m.Text,
			Timestamp: m.Timestamp,
		}); err != nil {
			return fmt.Errorf("write transcript: %w", err)
		}
	}
	return nil
}
