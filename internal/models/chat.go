package models

// PlaceholderTitle is shown until a title is derived from the first message.
const PlaceholderTitle = "New Chat"

// Chat is one conversation thread. ID is the creation time in Unix milliseconds.
type Chat struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
	Archived bool      `json:"archived"`
}

// Clone returns a copy that shares no message storage with c.
func (c *Chat) Clone() *Chat {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	if cp.Messages == nil {
		cp.Messages = make([]Message, 0)
	}
	return &cp
}

// Collection maps chat id to chat and is persisted as a single blob.
type Collection map[string]*Chat
