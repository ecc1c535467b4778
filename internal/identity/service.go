// Package identity tags each browser with a client id and guards its
// state-changing requests with a double-submit CSRF token.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	clientIDContextKey  = "client_id"
	csrfTokenContextKey = "csrf_token"
)

// Service issues client cookies and validates CSRF tokens.
type Service struct {
	cookieTTL      time.Duration
	cookieName     string
	csrfCookieName string
	csrfHeaderName string
	csrfFormField  string
}

// NewService constructs an identity service whose cookies live for ttl.
func NewService(ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 365 * 24 * time.Hour
	}
	return &Service{
		cookieTTL:      ttl,
		cookieName:     "localchat_client",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
		csrfFormField:  "csrf_token",
	}
}

// Middleware makes sure every request carries a client id and a CSRF cookie,
// issuing fresh ones when missing.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, err := c.Cookie(s.cookieName)
		if _, perr := uuid.Parse(clientID); err != nil || perr != nil {
			clientID = uuid.NewString()
			s.setCookie(c, s.cookieName, clientID, true, http.SameSiteLaxMode)
		}
		csrfToken, err := c.Cookie(s.csrfCookieName)
		if err != nil || csrfToken == "" {
			csrfToken, err = generateToken()
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "issue csrf token failed"})
				return
			}
			s.setCookie(c, s.csrfCookieName, csrfToken, false, http.SameSiteStrictMode)
		}
		c.Set(clientIDContextKey, clientID)
		c.Set(csrfTokenContextKey, csrfToken)
		c.Next()
	}
}

// ClientIDFromContext retrieves the client id stored by the middleware.
func ClientIDFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(clientIDContextKey)
	if !ok {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}

// CSRFTokenFromContext returns the token the page must echo back.
func CSRFTokenFromContext(c *gin.Context) string {
	val, _ := c.Get(csrfTokenContextKey)
	token, _ := val.(string)
	return token
}

func (s *Service) setCookie(c *gin.Context, name, value string, httpOnly bool, sameSite http.SameSite) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		MaxAge:   int(s.cookieTTL.Seconds()),
		Path:     "/",
		Secure:   gin.Mode() == gin.ReleaseMode,
		HttpOnly: httpOnly,
		SameSite: sameSite,
	})
}

// CookieName returns the client id cookie name.
func (s *Service) CookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// CSRFFormField returns the form field carrying the CSRF token.
func (s *Service) CSRFFormField() string {
	return s.csrfFormField
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
