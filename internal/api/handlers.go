package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"localchat/internal/identity"
	"localchat/internal/notify"
	"localchat/internal/service/chat"
	"localchat/internal/session"
	"localchat/internal/ui"
)

// Handler wires HTTP routes to the UI controller.
type Handler struct {
	ui       *ui.Controller
	identity *identity.Service
	hub      *notify.Hub
}

// NewHandler constructs a Handler instance.
func NewHandler(controller *ui.Controller, identityService *identity.Service, hub *notify.Hub) *Handler {
	return &Handler{
		ui:       controller,
		identity: identityService,
		hub:      hub,
	}
}

// RegisterRoutes attaches the page and all API routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(pageTemplate)

	site := router.Group("/")
	site.Use(h.identity.Middleware(), h.identity.CSRFMiddleware())
	site.GET("", h.renderPage)

	api := site.Group("/api")
	api.GET("/state", h.getState)
	api.GET("/events", h.streamEvents)
	api.GET("/chats", h.listChats)
	api.GET("/chats/:id", h.getChat)
	api.GET("/chats/:id/export", h.exportChat)
	api.POST("/chats/new", h.newChat)
	api.POST("/chats/clear", h.clearAll)
	api.POST("/chats/:id/select", h.selectChat)
	api.POST("/chats/:id/archive", h.toggleArchived)
	api.POST("/chats/:id/menu", h.openMenu)
	api.POST("/chats/:id/delete", h.requestDelete)
	api.POST("/chats/:id/delete/confirm", h.confirmDelete)
	api.POST("/menu/close", h.closeMenu)
	api.POST("/delete/cancel", h.cancelDelete)
	api.POST("/messages", h.submitMessage)
	api.PUT("/draft", h.setDraft)
}

type contentRequest struct {
	Content string `json:"content" form:"content"`
}

type menuRequest struct {
	X int `json:"x" form:"x"`
	Y int `json:"y" form:"y"`
}

func (h *Handler) clientID(c *gin.Context) (string, bool) {
	id, ok := identity.ClientIDFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "client identity missing"})
		return "", false
	}
	return id, true
}

func isFormPost(c *gin.Context) bool {
	switch c.ContentType() {
	case gin.MIMEPOSTForm, gin.MIMEMultipartPOSTForm:
		return true
	default:
		return false
	}
}

// respond redirects page forms back to the page and answers API calls with the new state.
func (h *Handler) respond(c *gin.Context, clientID string) {
	if isFormPost(c) {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	snap, err := h.ui.Snapshot(c.Request.Context(), clientID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, ui.ErrNoPendingDelete):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// bindOptional binds the request body when there is one.
func bindOptional(c *gin.Context, v interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBind(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) getState(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	snap, err := h.ui.Snapshot(c.Request.Context(), clientID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) listChats(c *gin.Context) {
	rows, err := h.ui.Sidebar(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": rows})
}

func (h *Handler) getChat(c *gin.Context) {
	found, err := h.ui.Chat(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (h *Handler) exportChat(c *gin.Context) {
	found, err := h.ui.Chat(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="chat-%s.jsonl"`, found.ID))
	c.Status(http.StatusOK)
	if err := chat.WriteTranscript(c.Writer, found); err != nil {
		_ = c.Error(err)
	}
}

func (h *Handler) submitMessage(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	var req contentRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Content) == "" && !isFormPost(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content cannot be empty"})
		return
	}
	if err := h.ui.Submit(c.Request.Context(), clientID, req.Content); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, clientID)
}

func (h *Handler) setDraft(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	var req contentRequest
	if !bindOptional(c, &req) {
		return
	}
	h.ui.SetDraft(clientID, req.Content)
	c.Status(http.StatusNoContent)
}

func (h *Handler) newChat(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	h.ui.NewChat(clientID)
	h.respond(c, clientID)
}

func (h *Handler) selectChat(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	if err := h.ui.Select(c.Request.Context(), clientID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, clientID)
}

func (h *Handler) toggleArchived(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	if err := h.ui.ToggleArchived(c.Request.Context(), clientID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, clientID)
}

func (h *Handler) openMenu(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	var req menuRequest
	if !bindOptional(c, &req) {
		return
	}
	h.ui.OpenMenu(clientID, c.Param("id"), session.Point{X: req.X, Y: req.Y})
	h.respond(c, clientID)
}

func (h *Handler) closeMenu(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	h.ui.CloseMenu(clientID)
	h.respond(c, clientID)
}

func (h *Handler) requestDelete(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	h.ui.RequestDelete(clientID, c.Param("id"))
	h.respond(c, clientID)
}

func (h *Handler) confirmDelete(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	if err := h.ui.ConfirmDelete(c.Request.Context(), clientID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, clientID)
}

func (h *Handler) cancelDelete(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	h.ui.CancelDelete(clientID)
	h.respond(c, clientID)
}

func (h *Handler) clearAll(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	if err := h.ui.ClearAll(c.Request.Context(), clientID); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, clientID)
}

// streamEvents pushes reply chunks as "stream" events and every other change as
// "sync"; the page reloads on sync.
func (h *Handler) streamEvents(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	events, cancel := h.hub.Subscribe(16)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := sendEvent("ready", gin.H{"client": clientID}); err != nil {
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			name := "sync"
			if ev.Kind == notify.KindChunk {
				name = "stream"
			}
			if err := sendEvent(name, ev); err != nil {
				return
			}
		}
	}
}
