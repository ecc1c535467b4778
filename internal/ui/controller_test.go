package ui

import (
	"context"
	"errors"
	"testing"
	"time"

	"localchat/internal/models"
	"localchat/internal/notify"
	"localchat/internal/service/assistant"
	"localchat/internal/service/chat"
	"localchat/internal/session"
	"localchat/internal/store"
)

type pendingReplies struct {
	delays []time.Duration
	funcs  []func()
}

func (p *pendingReplies) schedule(d time.Duration, f func()) {
	p.delays = append(p.delays, d)
	p.funcs = append(p.funcs, f)
}

func (p *pendingReplies) flush() {
	funcs := p.funcs
	p.funcs = nil
	for _, f := range funcs {
		f()
	}
}

func newTestController(t *testing.T) (*Controller, *chat.Repository, *pendingReplies, *notify.Hub) {
	t.Helper()
	repo := chat.NewRepository(store.NewChatStore(store.NewMemory(), ""))
	hub := notify.NewHub()
	ctrl := NewController(repo, assistant.NewService(nil), hub)
	pending := &pendingReplies{}
	ctrl.after = pending.schedule
	return ctrl, repo, pending, hub
}

func snapshot(t *testing.T, c *Controller, client string) *Snapshot {
	t.Helper()
	snap, err := c.Snapshot(context.Background(), client)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

func TestSubmitCreatesChatAndSchedulesReply(t *testing.T) {
	ctrl, repo, pending, _ := newTestController(t)
	ctx := context.Background()

	if snap := snapshot(t, ctrl, "c1"); snap.View != session.ViewLanding {
		t.Fatalf("initial view = %s", snap.View)
	}
	ctrl.SetDraft("c1", "Hello world, this is a long message")
	if err := ctrl.Submit(ctx, "c1", "Hello world, this is a long message"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	snap := snapshot(t, ctrl, "c1")
	if snap.View != session.ViewThread || snap.Session.CurrentID == "" {
		t.Fatalf("expected thread view with current chat, got %+v", snap)
	}
	if !snap.Session.Composing || snap.Session.Draft != "" {
		t.Fatalf("composing=%v draft=%q", snap.Session.Composing, snap.Session.Draft)
	}
	if len(snap.Session.Messages) != 1 || snap.Session.Messages[0].Sender != models.SenderUser {
		t.Fatalf("unexpected messages %#v", snap.Session.Messages)
	}
	if len(pending.delays) != 1 || pending.delays[0] != assistant.ReplyDelay {
		t.Fatalf("reply not scheduled with fixed delay: %v", pending.delays)
	}
	if len(snap.Chats) != 1 || snap.Chats[0].Title != chat.DeriveTitle("Hello world, this is a long message") {
		t.Fatalf("unexpected sidebar %#v", snap.Chats)
	}

	pending.flush()
	snap = snapshot(t, ctrl, "c1")
	if snap.Session.Composing {
		t.Fatalf("composing flag not cleared")
	}
	if len(snap.Session.Messages) != 2 || snap.Session.Messages[1].Sender != models.SenderBot || snap.Session.Messages[1].Text != assistant.CannedReply {
		t.Fatalf("reply missing: %#v", snap.Session.Messages)
	}
	stored, err := repo.Get(ctx, snap.Session.CurrentID)
	if err != nil || len(stored.Messages) != 2 {
		t.Fatalf("stored chat = %#v err=%v", stored, err)
	}
}

func TestSubmitBlankIsIgnored(t *testing.T) {
	ctrl, repo, pending, _ := newTestController(t)
	if err := ctrl.Submit(context.Background(), "c1", "   "); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	chats, _ := repo.List(context.Background())
	if len(chats) != 0 || len(pending.funcs) != 0 {
		t.Fatalf("blank submit had effects: chats=%d replies=%d", len(chats), len(pending.funcs))
	}
}

func TestSubmitAppendsToCurrentChat(t *testing.T) {
	ctrl, repo, pending, _ := newTestController(t)
	ctx := context.Background()
	_ = ctrl.Submit(ctx, "c1", "first")
	pending.flush()
	_ = ctrl.Submit(ctx, "c1", "second")
	pending.flush()

	chats, _ := repo.List(ctx)
	if len(chats) != 1 {
		t.Fatalf("expected one chat, got %d", len(chats))
	}
	if got := len(chats[0].Messages); got != 4 {
		t.Fatalf("expected 4 messages, got %d", got)
	}
	if chats[0].Title != "first" {
		t.Fatalf("title changed to %q", chats[0].Title)
	}
}

func TestReplyAfterDeleteIsDropped(t *testing.T) {
	ctrl, repo, pending, _ := newTestController(t)
	ctx := context.Background()
	_ = ctrl.Submit(ctx, "c1", "doomed")
	id := snapshot(t, ctrl, "c1").Session.CurrentID

	ctrl.RequestDelete("c1", id)
	if err := ctrl.ConfirmDelete(ctx, "c1", id); err != nil {
		t.Fatalf("ConfirmDelete: %v", err)
	}
	pending.flush()

	if _, err := repo.Get(ctx, id); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("deleted chat resurrected: %v", err)
	}
	snap := snapshot(t, ctrl, "c1")
	if snap.Session.Composing || snap.View != session.ViewLanding {
		t.Fatalf("unexpected session after dropped reply: %+v", snap)
	}
}

func TestReplyToBackgroundChatKeepsCurrentThread(t *testing.T) {
	ctrl, repo, pending, _ := newTestController(t)
	ctx := context.Background()
	_ = ctrl.Submit(ctx, "c1", "first chat")
	pending.flush()
	first := snapshot(t, ctrl, "c1").Session.CurrentID

	ctrl.NewChat("c1")
	time.Sleep(2 * time.Millisecond)
	_ = ctrl.Submit(ctx, "c1", "second chat")
	second := snapshot(t, ctrl, "c1").Session.CurrentID
	if second == first {
		t.Fatalf("new chat reused id %s", first)
	}

	if err := ctrl.Select(ctx, "c1", first); err != nil {
		t.Fatalf("Select: %v", err)
	}
	pending.flush()

	snap := snapshot(t, ctrl, "c1")
	if snap.Session.CurrentID != first || len(snap.Session.Messages) != 2 {
		t.Fatalf("current thread disturbed: %+v", snap.Session)
	}
	other, _ := repo.Get(ctx, second)
	if len(other.Messages) != 2 || other.Messages[1].Sender != models.SenderBot {
		t.Fatalf("background chat missing reply: %#v", other.Messages)
	}
}

func TestNewChatReturnsToLandingWithoutRecord(t *testing.T) {
	ctrl, repo, pending, _ := newTestController(t)
	ctx := context.Background()
	_ = ctrl.Submit(ctx, "c1", "hello")
	pending.flush()

	ctrl.NewChat("c1")
	snap := snapshot(t, ctrl, "c1")
	if snap.View != session.ViewLanding {
		t.Fatalf("view = %s", snap.View)
	}
	chats, _ := repo.List(ctx)
	if len(chats) != 1 {
		t.Fatalf("new chat created a record: %d", len(chats))
	}
}

func TestSelectUnknownChat(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)
	if err := ctrl.Select(context.Background(), "c1", "nope"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	ctrl, repo, pending, _ := newTestController(t)
	ctx := context.Background()
	_ = ctrl.Submit(ctx, "c1", "keep")
	pending.flush()
	id := snapshot(t, ctrl, "c1").Session.CurrentID

	if err := ctrl.ConfirmDelete(ctx, "c1", id); !errors.Is(err, ErrNoPendingDelete) {
		t.Fatalf("err = %v", err)
	}
	ctrl.RequestDelete("c1", id)
	ctrl.CancelDelete("c1")
	if err := ctrl.ConfirmDelete(ctx, "c1", id); !errors.Is(err, ErrNoPendingDelete) {
		t.Fatalf("err after cancel = %v", err)
	}
	if _, err := repo.Get(ctx, id); err != nil {
		t.Fatalf("chat deleted without confirmation: %v", err)
	}
}

func TestDeleteActiveChatClearsEverySession(t *testing.T) {
	ctrl, _, pending, _ := newTestController(t)
	ctx := context.Background()
	_ = ctrl.Submit(ctx, "c1", "shared")
	pending.flush()
	id := snapshot(t, ctrl, "c1").Session.CurrentID
	if err := ctrl.Select(ctx, "c2", id); err != nil {
		t.Fatalf("Select: %v", err)
	}

	ctrl.OpenMenu("c1", id, session.Point{X: 3, Y: 4})
	ctrl.RequestDelete("c1", id)
	if err := ctrl.ConfirmDelete(ctx, "c1", id); err != nil {
		t.Fatalf("ConfirmDelete: %v", err)
	}
	for _, client := range []string{"c1", "c2"} {
		snap := snapshot(t, ctrl, client)
		if snap.Session.CurrentID != "" || len(snap.Session.Messages) != 0 {
			t.Fatalf("%s still points at deleted chat: %+v", client, snap.Session)
		}
		if snap.Session.PendingDelete != "" || snap.Session.MenuTarget != "" {
			t.Fatalf("%s kept stale targets: %+v", client, snap.Session)
		}
	}
}

func TestToggleArchivedClosesMenu(t *testing.T) {
	ctrl, repo, pending, _ := newTestController(t)
	ctx := context.Background()
	_ = ctrl.Submit(ctx, "c1", "archive")
	pending.flush()
	id := snapshot(t, ctrl, "c1").Session.CurrentID

	ctrl.OpenMenu("c1", id, session.Point{X: 1, Y: 1})
	if err := ctrl.ToggleArchived(ctx, "c1", id); err != nil {
		t.Fatalf("ToggleArchived: %v", err)
	}
	snap := snapshot(t, ctrl, "c1")
	if snap.Session.MenuTarget != "" {
		t.Fatalf("menu left open")
	}
	if !snap.Chats[0].Archived {
		t.Fatalf("sidebar not archived")
	}
	_ = ctrl.ToggleArchived(ctx, "c1", id)
	stored, _ := repo.Get(ctx, id)
	if stored.Archived {
		t.Fatalf("second toggle did not restore flag")
	}
}

func TestClearAllResetsSessions(t *testing.T) {
	ctrl, repo, pending, _ := newTestController(t)
	ctx := context.Background()
	_ = ctrl.Submit(ctx, "c1", "one")
	_ = ctrl.Submit(ctx, "c2", "two")
	if err := ctrl.ClearAll(ctx, "c1"); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	pending.flush()

	coll, err := repo.LoadAll(ctx)
	if err != nil || len(coll) != 0 {
		t.Fatalf("collection not empty: %d err=%v", len(coll), err)
	}
	for _, client := range []string{"c1", "c2"} {
		if snap := snapshot(t, ctrl, client); snap.View != session.ViewLanding {
			t.Fatalf("%s view = %s", client, snap.View)
		}
	}
}

func TestSidebarNewestFirst(t *testing.T) {
	ctrl, _, pending, _ := newTestController(t)
	ctx := context.Background()
	for _, text := range []string{"t1", "t2", "t3"} {
		ctrl.NewChat("c1")
		if err := ctrl.Submit(ctx, "c1", text); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	pending.flush()
	rows, err := ctrl.Sidebar(ctx)
	if err != nil {
		t.Fatalf("Sidebar: %v", err)
	}
	if len(rows) != 3 || rows[0].Title != "t3" || rows[1].Title != "t2" || rows[2].Title != "t1" {
		t.Fatalf("unexpected order %#v", rows)
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	ctrl, _, pending, hub := newTestController(t)
	events, cancel := hub.Subscribe(8)
	defer cancel()
	ctx := context.Background()

	_ = ctrl.Submit(ctx, "c1", "hello")
	pending.flush()

	var kinds []string
	for len(events) > 0 {
		ev := <-events
		if ev.Client != "c1" {
			t.Fatalf("event client = %q", ev.Client)
		}
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 3 || kinds[0] != notify.KindCreated || kinds[1] != notify.KindChunk || kinds[2] != notify.KindMessage {
		t.Fatalf("kinds = %v", kinds)
	}
}

func TestReplyIsStreamedAsChunks(t *testing.T) {
	ctrl, _, pending, hub := newTestController(t)
	ctx := context.Background()
	if err := ctrl.Submit(ctx, "c1", "stream it"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	id := snapshot(t, ctrl, "c1").Session.CurrentID

	events, cancel := hub.Subscribe(8)
	defer cancel()
	pending.flush()

	var streamed string
	for len(events) > 0 {
		ev := <-events
		if ev.Kind != notify.KindChunk {
			continue
		}
		if ev.ChatID != id {
			t.Fatalf("chunk for chat %q, want %q", ev.ChatID, id)
		}
		streamed += ev.Text
	}
	if streamed != assistant.CannedReply {
		t.Fatalf("streamed text = %q", streamed)
	}
}

func TestComposingStaysOnWhileRepliesPending(t *testing.T) {
	ctrl, _, pending, _ := newTestController(t)
	ctx := context.Background()
	if err := ctrl.Submit(ctx, "c1", "first"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := ctrl.Submit(ctx, "c1", "second"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(pending.funcs) != 2 {
		t.Fatalf("expected 2 pending replies, got %d", len(pending.funcs))
	}

	first := pending.funcs[0]
	pending.funcs = pending.funcs[1:]
	first()

	snap := snapshot(t, ctrl, "c1")
	if len(snap.Session.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(snap.Session.Messages))
	}
	if !snap.Session.Composing {
		t.Fatalf("composing cleared while a reply is still due")
	}

	pending.flush()
	snap = snapshot(t, ctrl, "c1")
	if snap.Session.Composing || len(snap.Session.Messages) != 4 {
		t.Fatalf("composing=%v messages=%d", snap.Session.Composing, len(snap.Session.Messages))
	}
}
