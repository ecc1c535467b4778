// Package session holds the per-client view of which chat is on screen.
package session

import "localchat/internal/models"

// View is the main panel mode.
type View string

const (
	ViewLanding View = "landing"
	ViewThread  View = "thread"
)

// Point is a screen position for the context menu.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// State is the in-memory session of one client. It never touches storage;
// callers load chats from the repository and hand them in.
type State struct {
	CurrentID     string           `json:"current_id"`
	Messages      []models.Message `json:"messages"`
	Draft         string           `json:"draft"`
	Composing     bool             `json:"composing"`
	MenuTarget    string           `json:"menu_target"`
	PendingDelete string           `json:"pending_delete"`
	MenuPosition  Point            `json:"menu_position"`

	// replies still due for this client, across all of its chats
	pendingReplies int
}

func New() *State {
	return &State{Messages: make([]models.Message, 0)}
}

// View reports Landing when nothing is selected and no messages are shown.
func (s *State) View() View {
	if s.CurrentID == "" && len(s.Messages) == 0 {
		return ViewLanding
	}
	return ViewThread
}

// Open makes chat current and mirrors its messages.
func (s *State) Open(chat *models.Chat) {
	if chat == nil {
		return
	}
	s.CurrentID = chat.ID
	s.Messages = append(make([]models.Message, 0, len(chat.Messages)), chat.Messages...)
	s.CloseMenu()
}

// Begin makes a freshly created chat current with an empty thread.
func (s *State) Begin(id string) {
	s.CurrentID = id
	s.Messages = make([]models.Message, 0)
}

// AwaitReply records one more scheduled assistant reply.
func (s *State) AwaitReply() {
	s.pendingReplies++
	s.Composing = true
}

// ReplyArrived settles one scheduled reply. Composing stays on while others are due.
func (s *State) ReplyArrived() {
	if s.pendingReplies > 0 {
		s.pendingReplies--
	}
	s.Composing = s.pendingReplies > 0
}

// Sync refreshes the message list when chat is the current one.
func (s *State) Sync(chat *models.Chat) {
	if chat == nil || chat.ID != s.CurrentID {
		return
	}
	s.Messages = append(make([]models.Message, 0, len(chat.Messages)), chat.Messages...)
}

// Reset is the "new chat" action: back to Landing without creating a record.
func (s *State) Reset() {
	s.CurrentID = ""
	s.Messages = make([]models.Message, 0)
	s.CloseMenu()
	s.PendingDelete = ""
}

// Forget drops every pointer to id and reports whether id was the active chat.
func (s *State) Forget(id string) bool {
	if s.MenuTarget == id {
		s.CloseMenu()
	}
	if s.PendingDelete == id {
		s.PendingDelete = ""
	}
	if s.CurrentID != id || id == "" {
		return false
	}
	s.CurrentID = ""
	s.Messages = make([]models.Message, 0)
	return true
}

func (s *State) OpenMenu(id string, at Point) {
	s.MenuTarget = id
	s.MenuPosition = at
}

func (s *State) CloseMenu() {
	s.MenuTarget = ""
	s.MenuPosition = Point{}
}

// RequestDelete arms the confirmation step for id.
func (s *State) RequestDelete(id string) {
	s.PendingDelete = id
	s.CloseMenu()
}

func (s *State) CancelDelete() {
	s.PendingDelete = ""
}

// Snapshot returns a copy safe to hand to renderers.
func (s *State) Snapshot() State {
	cp := *s
	cp.Messages = append(make([]models.Message, 0, len(s.Messages)), s.Messages...)
	return cp
}
