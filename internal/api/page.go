package api

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"localchat/internal/identity"
	"localchat/internal/session"
)

const brand = "LocalChat"

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"clock": func(ms int64) string {
		return time.UnixMilli(ms).Format("15:04")
	},
}).ParseFS(templateFS, "templates/*.tmpl"))

// quickReplies are the landing-page chips; each one submits its text as a message.
var quickReplies = []string{
	"Tell me a fun fact",
	"Help me plan my day",
	"Explain something simply",
}

func (h *Handler) renderPage(c *gin.Context) {
	clientID, ok := h.clientID(c)
	if !ok {
		return
	}
	snap, err := h.ui.Snapshot(c.Request.Context(), clientID)
	if err != nil {
		h.fail(c, err)
		return
	}
	currentTitle := ""
	for _, row := range snap.Chats {
		if row.ID == snap.Session.CurrentID {
			currentTitle = row.Title
			break
		}
	}
	c.HTML(http.StatusOK, "index.tmpl", gin.H{
		"Brand":        brand,
		"Session":      snap.Session,
		"Landing":      snap.View == session.ViewLanding,
		"Chats":        snap.Chats,
		"CurrentTitle": currentTitle,
		"QuickReplies": quickReplies,
		"CSRFField":    h.identity.CSRFFormField(),
		"CSRFToken":    identity.CSRFTokenFromContext(c),
	})
}
