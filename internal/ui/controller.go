// Package ui binds user actions to the chat repository and per-client sessions.
//
// Every action and every deferred assistant reply runs under one mutex, so
// each runs to completion before the next one starts.
package ui

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"localchat/internal/models"
	"localchat/internal/notify"
	"localchat/internal/service/assistant"
	"localchat/internal/service/chat"
	"localchat/internal/session"
)

// ErrNoPendingDelete is returned when a delete is confirmed without being requested.
var ErrNoPendingDelete = errors.New("delete was not requested for this chat")

// ChatSummary is one sidebar row.
type ChatSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Archived     bool   `json:"archived"`
	MessageCount int    `json:"message_count"`
}

// Snapshot is everything needed to render one client's page.
type Snapshot struct {
	Session session.State `json:"session"`
	View    session.View  `json:"view"`
	Chats   []ChatSummary `json:"chats"`
}

// Controller owns the client sessions and is the only writer of the repository.
type Controller struct {
	mu       sync.Mutex
	chats    *chat.Repository
	bot      *assistant.Service
	hub      *notify.Hub
	sessions map[string]*session.State

	delay time.Duration
	after func(time.Duration, func())
}

// NewController wires the repository, the reply service and the change hub.
func NewController(chats *chat.Repository, bot *assistant.Service, hub *notify.Hub) *Controller {
	if bot == nil {
		bot = assistant.NewService(nil)
	}
	return &Controller{
		chats:    chats,
		bot:      bot,
		hub:      hub,
		sessions: make(map[string]*session.State),
		delay:    assistant.ReplyDelay,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// SetScheduler replaces the timer used to deliver deferred replies.
func (c *Controller) SetScheduler(after func(time.Duration, func())) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.after = after
}

func (c *Controller) session(client string) *session.State {
	st, ok := c.sessions[client]
	if !ok {
		st = session.New()
		c.sessions[client] = st
	}
	return st
}

func (c *Controller) publish(kind, chatID, client string) {
	c.emit(notify.Event{Kind: kind, ChatID: chatID, Client: client})
}

func (c *Controller) emit(ev notify.Event) {
	if c.hub == nil {
		return
	}
	c.hub.Publish(ev)
}

// Submit sends the user's text, creating a chat first when none is selected,
// and schedules the simulated reply. Blank text is ignored.
func (c *Controller) Submit(ctx context.Context, client, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return nil
	}
	st := c.session(client)
	kind := notify.KindMessage
	if st.CurrentID == "" {
		id, err := c.chats.Create(ctx, text)
		if err != nil {
			return err
		}
		st.Begin(id)
		kind = notify.KindCreated
	}
	chatID := st.CurrentID
	if err := c.chats.AppendMessage(ctx, chatID, text, models.SenderUser); err != nil {
		return err
	}
	if err := c.resync(ctx, st, chatID); err != nil {
		return err
	}
	st.Draft = ""
	st.AwaitReply()
	c.publish(kind, chatID, client)

	c.after(c.delay, func() {
		c.deliverReply(client, chatID)
	})
	return nil
}

// deliverReply appends the assistant's answer. It is dropped silently if the
// chat was deleted while the reply was pending.
func (c *Controller) deliverReply(client, chatID string) {
	ctx := context.Background()
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.session(client)
	var history []models.Message
	if current, err := c.chats.Get(ctx, chatID); err == nil {
		history = current.Messages
	}
	reply, err := c.bot.StreamReply(ctx, history, func(chunk string) error {
		c.emit(notify.Event{Kind: notify.KindChunk, ChatID: chatID, Client: client, Text: chunk})
		return nil
	})
	if err != nil || reply == "" {
		log.Printf("assistant reply for chat %s failed: %v", chatID, err)
		reply = assistant.CannedReply
	}
	if err := c.chats.AppendMessage(ctx, chatID, reply, models.SenderBot); err != nil {
		log.Printf("store reply for chat %s failed: %v", chatID, err)
	}
	if err := c.resync(ctx, st, chatID); err != nil {
		log.Printf("reload chat %s failed: %v", chatID, err)
	}
	st.ReplyArrived()
	debugLog("reply delivered to chat %s for client %s", chatID, client)
	c.publish(notify.KindMessage, chatID, client)
}

// resync reloads the thread of st when chatID is on screen.
func (c *Controller) resync(ctx context.Context, st *session.State, chatID string) error {
	if st.CurrentID != chatID {
		return nil
	}
	current, err := c.chats.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return nil
		}
		return err
	}
	st.Sync(current)
	return nil
}

// Select switches the client to chat id.
func (c *Controller) Select(ctx context.Context, client, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.chats.Get(ctx, id)
	if err != nil {
		return err
	}
	c.session(client).Open(current)
	return nil
}

// NewChat returns the client to the landing view without creating a record.
func (c *Controller) NewChat(client string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session(client).Reset()
}

func (c *Controller) SetDraft(client, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session(client).Draft = text
}

// ToggleArchived flips the archived flag from the row's context menu.
func (c *Controller) ToggleArchived(ctx context.Context, client, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session(client).CloseMenu()
	if err := c.chats.ToggleArchived(ctx, id); err != nil {
		return err
	}
	c.publish(notify.KindArchived, id, client)
	return nil
}

func (c *Controller) OpenMenu(client, id string, at session.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session(client).OpenMenu(id, at)
}

func (c *Controller) CloseMenu(client string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session(client).CloseMenu()
}

// RequestDelete asks the client to confirm deleting id.
func (c *Controller) RequestDelete(client, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session(client).RequestDelete(id)
}

func (c *Controller) CancelDelete(client string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session(client).CancelDelete()
}

// ConfirmDelete removes id once the client has requested it, and clears every
// session that pointed at it.
func (c *Controller) ConfirmDelete(ctx context.Context, client, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.session(client)
	if id == "" || st.PendingDelete != id {
		return ErrNoPendingDelete
	}
	if err := c.chats.Delete(ctx, id); err != nil {
		return err
	}
	for _, other := range c.sessions {
		other.Forget(id)
	}
	c.publish(notify.KindDeleted, id, client)
	return nil
}

// ClearAll drops every chat and returns all clients to the landing view.
func (c *Controller) ClearAll(ctx context.Context, client string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.chats.ClearAll(ctx); err != nil {
		return err
	}
	for _, st := range c.sessions {
		st.Reset()
	}
	c.publish(notify.KindCleared, "", client)
	return nil
}

// Sidebar lists chats newest first.
func (c *Controller) Sidebar(ctx context.Context) ([]ChatSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sidebar(ctx)
}

func (c *Controller) sidebar(ctx context.Context) ([]ChatSummary, error) {
	chats, err := c.chats.List(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]ChatSummary, 0, len(chats))
	for _, ch := range chats {
		rows = append(rows, ChatSummary{
			ID:           ch.ID,
			Title:        ch.Title,
			Archived:     ch.Archived,
			MessageCount: len(ch.Messages),
		})
	}
	return rows, nil
}

// Chat returns one stored chat.
func (c *Controller) Chat(ctx context.Context, id string) (*models.Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chats.Get(ctx, id)
}

// Snapshot returns the client's session together with the sidebar.
func (c *Controller) Snapshot(ctx context.Context, client string) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.sidebar(ctx)
	if err != nil {
		return nil, err
	}
	st := c.session(client)
	return &Snapshot{
		Session: st.Snapshot(),
		View:    st.View(),
		Chats:   rows,
	}, nil
}
