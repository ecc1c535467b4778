package identity

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(svc.Middleware(), svc.CSRFMiddleware())
	handler := func(c *gin.Context) {
		id, ok := ClientIDFromContext(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"client": id, "csrf": CSRFTokenFromContext(c)})
	}
	router.GET("/whoami", handler)
	router.POST("/act", handler)
	return router
}

func cookieValue(rec *httptest.ResponseRecorder, name string) string {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func TestMiddlewareIssuesCookies(t *testing.T) {
	svc := NewService(time.Hour)
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	client := cookieValue(rec, svc.CookieName())
	if _, err := uuid.Parse(client); err != nil {
		t.Fatalf("client cookie %q is not a uuid", client)
	}
	if cookieValue(rec, svc.CSRFCookieName()) == "" {
		t.Fatalf("csrf cookie missing")
	}
}

func TestMiddlewareKeepsExistingClient(t *testing.T) {
	svc := NewService(time.Hour)
	router := newTestRouter(svc)
	id := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: svc.CookieName(), Value: id})
	req.AddCookie(&http.Cookie{Name: svc.CSRFCookieName(), Value: "tok"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), id) {
		t.Fatalf("client id not reused: %s", rec.Body.String())
	}
	if cookieValue(rec, svc.CookieName()) != "" {
		t.Fatalf("existing client got a new cookie")
	}
}

func TestMiddlewareReplacesInvalidClient(t *testing.T) {
	svc := NewService(time.Hour)
	router := newTestRouter(svc)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: svc.CookieName(), Value: "not-a-uuid"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if _, err := uuid.Parse(cookieValue(rec, svc.CookieName())); err != nil {
		t.Fatalf("invalid client id not replaced")
	}
}

func TestCSRFRequiredForPost(t *testing.T) {
	svc := NewService(time.Hour)
	router := newTestRouter(svc)
	id := uuid.NewString()

	tests := []struct {
		name   string
		header string
		form   string
		cookie string
		want   int
	}{
		{"missing", "", "", "tok", http.StatusForbidden},
		{"mismatch", "other", "", "tok", http.StatusForbidden},
		{"no cookie", "tok", "", "", http.StatusForbidden},
		{"header", "tok", "", "tok", http.StatusOK},
		{"form field", "", "tok", "tok", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{}
			if tt.form != "" {
				form.Set(svc.CSRFFormField(), tt.form)
			}
			req := httptest.NewRequest(http.MethodPost, "/act", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.header != "" {
				req.Header.Set(svc.CSRFHeaderName(), tt.header)
			}
			req.AddCookie(&http.Cookie{Name: svc.CookieName(), Value: id})
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: svc.CSRFCookieName(), Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
