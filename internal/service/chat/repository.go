// Package chat implements whole-collection CRUD over the stored chats.
//
// Every mutation loads the full collection, changes one entry and writes the
// collection back. There is no locking between writers: the last write wins.
package chat

import (
	"context"
	"errors"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"localchat/internal/models"
	"localchat/internal/store"
)

// TitleLimit is the number of characters kept when deriving a title.
const TitleLimit = 30

const ellipsis = "..."

// ErrNotFound is returned by reads of an unknown chat id.
var ErrNotFound = errors.New("chat not found")

var debugEnabled = strings.EqualFold(os.Getenv("LOCALCHAT_DEBUG"), "1")

// Repository persists chats through a ChatStore.
type Repository struct {
	store *store.ChatStore
	now   func() time.Time
}

// NewRepository builds a repository over cs.
func NewRepository(cs *store.ChatStore) *Repository {
	return &Repository{store: cs, now: time.Now}
}

// DeriveTitle turns message text into a sidebar title.
func DeriveTitle(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.PlaceholderTitle
	}
	runes := []rune(text)
	if len(runes) > TitleLimit {
		return string(runes[:TitleLimit]) + ellipsis
	}
	return text
}

// Create inserts an empty chat and returns its id.
func (r *Repository) Create(ctx context.Context, seedText string) (string, error) {
	coll, err := r.store.LoadAll(ctx)
	if err != nil {
		return "", err
	}
	ms := r.now().UnixMilli()
	id := strconv.FormatInt(ms, 10)
	for {
		if _, taken := coll[id]; !taken {
			break
		}
		ms++
		id = strconv.FormatInt(ms, 10)
	}
	title := models.PlaceholderTitle
	if strings.TrimSpace(seedText) != "" {
		title = DeriveTitle(seedText)
	}
	coll[id] = &models.Chat{
		ID:       id,
		Title:    title,
		Messages: make([]models.Message, 0),
	}
	if err := r.store.SaveAll(ctx, coll); err != nil {
		return "", err
	}
	return id, nil
}

// AppendMessage adds a message to chat id. Unknown ids are ignored.
func (r *Repository) AppendMessage(ctx context.Context, id, text string, sender models.Sender) error {
	coll, err := r.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	c, ok := coll[id]
	if !ok || c == nil {
		debugLog("append to missing chat %s ignored", id)
		return nil
	}
	first := len(c.Messages) == 0
	c.Messages = append(c.Messages, models.Message{
		Text:      text,
		Sender:    sender,
		Timestamp: r.now().UnixMilli(),
	})
	if first && c.Title == models.PlaceholderTitle {
		c.Title = DeriveTitle(text)
	}
	return r.store.SaveAll(ctx, coll)
}

// ToggleArchived flips the archived flag of chat id. Unknown ids are ignored.
func (r *Repository) ToggleArchived(ctx context.Context, id string) error {
	coll, err := r.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	c, ok := coll[id]
	if !ok || c == nil {
		debugLog("archive of missing chat %s ignored", id)
		return nil
	}
	c.Archived = !c.Archived
	return r.store.SaveAll(ctx, coll)
}

// Delete removes chat id. Clearing session pointers is the caller's job.
func (r *Repository) Delete(ctx context.Context, id string) error {
	coll, err := r.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	delete(coll, id)
	return r.store.SaveAll(ctx, coll)
}

// ClearAll drops every chat.
func (r *Repository) ClearAll(ctx context.Context) error {
	return r.store.Clear(ctx)
}

// LoadAll exposes the raw collection.
func (r *Repository) LoadAll(ctx context.Context) (models.Collection, error) {
	return r.store.LoadAll(ctx)
}

// Get returns a copy of chat id.
func (r *Repository) Get(ctx context.Context, id string) (*models.Chat, error) {
	coll, err := r.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := coll[id]
	if !ok || c == nil {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

// List returns all chats, most recently created first.
func (r *Repository) List(ctx context.Context) ([]*models.Chat, error) {
	coll, err := r.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	chats := make([]*models.Chat, 0, len(coll))
	for id, c := range coll {
		if c == nil {
			continue
		}
		cp := c.Clone()
		if cp.ID == "" {
			cp.ID = id
		}
		chats = append(chats, cp)
	}
	sort.SliceStable(chats, func(i, j int) bool {
		return newerID(chats[i].ID, chats[j].ID)
	})
	return chats, nil
}

// newerID reports whether id a sorts before b in the sidebar.
// Ids are compared as numbers so that differing digit counts order correctly.
func newerID(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return na > nb
	}
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

func debugLog(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("[chat] "+format, args...)
	}
}
