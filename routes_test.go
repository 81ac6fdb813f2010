package main

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Zachkp/folio/carousel"
	"github.com/Zachkp/folio/contact"
	"github.com/Zachkp/folio/content"
	"github.com/Zachkp/folio/metrics"
	"github.com/Zachkp/folio/session"
	"github.com/Zachkp/folio/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	t      *testing.T
	router *gin.Engine
	srv    *server
	store  *store.Store
}

type envOption func(*envConfig)

type envConfig struct {
	relay         contact.Relay
	adminPassword string
}

func withRelay(r contact.Relay) envOption { return func(c *envConfig) { c.relay = r } }

func withAdminPassword(p string) envOption { return func(c *envConfig) { c.adminPassword = p } }

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{
		relay: contact.RelayFunc(func(context.Context, contact.Message) error { return nil }),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	site, err := content.Default()
	require.NoError(t, err)

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "folio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	m := metrics.New()
	log := zap.NewNop()
	sessions, err := session.NewRegistry(session.Config{
		Projects:    site.Projects,
		Relay:       cfg.relay,
		AutoAdvance: time.Hour,
		Metrics:     m,
	})
	require.NoError(t, err)
	t.Cleanup(sessions.Close)

	tracker, err := newVisitorTracker(st, m, log)
	require.NoError(t, err)
	admin, err := newAdminPanel("admin", cfg.adminPassword, 30*24*time.Hour, st, tracker, log)
	require.NoError(t, err)
	tmpl, err := loadTemplates()
	require.NoError(t, err)

	srv := &server{
		site:     site,
		sessions: sessions,
		store:    st,
		metrics:  m,
		tracker:  tracker,
		admin:    admin,
		log:      log,
	}
	return &testEnv{t: t, router: srv.routes(tmpl), srv: srv, store: st}
}

type request struct {
	method  string
	path    string
	body    io.Reader
	headers map[string]string
	cookies []*http.Cookie
}

func (e *testEnv) do(r request) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(r.method, r.path, r.body)
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// visit opens a session and returns its cookie.
func (e *testEnv) visit() *http.Cookie {
	e.t.Helper()
	rec := e.do(request{method: http.MethodGet, path: "/", headers: map[string]string{"DNT": "1"}})
	require.Equal(e.t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	e.t.Fatal("no session cookie set")
	return nil
}

func (e *testEnv) intent(cookie *http.Cookie, method, path string) (*httptest.ResponseRecorder, carousel.View) {
	e.t.Helper()
	rec := e.do(request{
		method:  method,
		path:    path,
		headers: map[string]string{"Accept": "application/json"},
		cookies: []*http.Cookie{cookie},
	})
	var v carousel.View
	if rec.Code == http.StatusOK {
		require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &v))
	}
	return rec, v
}

func contactForm(name, email, message string) request {
	form := url.Values{"fullName": {name}, "email": {email}, "message": {message}}
	return request{
		method:  http.MethodPost,
		path:    "/contact",
		body:    strings.NewReader(form.Encode()),
		headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded", "HX-Request": "true"},
	}
}

func TestIndexRendersSite(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(request{method: http.MethodGet, path: "/"})

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, env.srv.site.Name)
	assert.Contains(t, body, `id="carousel"`)
	assert.Contains(t, body, `id="contact-form"`)
	assert.Contains(t, body, env.srv.site.Projects[0].Title)
	assert.Contains(t, body, "<strong>software</strong>", "about is rendered from markdown")

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
}

func TestCarouselNavigation(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.visit()
	count := len(env.srv.site.Projects)

	rec, v := env.intent(cookie, http.MethodPost, "/carousel/next")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, v.Index)
	assert.Equal(t, count, v.Count)

	_, v = env.intent(cookie, http.MethodPost, "/carousel/previous")
	assert.Equal(t, 0, v.Index)
	_, v = env.intent(cookie, http.MethodPost, "/carousel/previous")
	assert.Equal(t, count-1, v.Index, "previous from the first project wraps to the last")
	_, v = env.intent(cookie, http.MethodPost, "/carousel/next")
	assert.Equal(t, 0, v.Index, "next from the last project wraps to the first")

	_, v = env.intent(cookie, http.MethodGet, "/carousel")
	assert.Equal(t, 0, v.Index)
	assert.Equal(t, fmt.Sprintf("01/%02d", count), v.Position())
}

func TestCarouselSelection(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.visit()

	rec, v := env.intent(cookie, http.MethodPost, "/carousel/projects/3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, v.Index)
	assert.Equal(t, env.srv.site.Projects[3].Title, v.Project.Title)

	for _, bad := range []string{"/carousel/projects/99", "/carousel/projects/-1", "/carousel/projects/abc"} {
		rec, _ = env.intent(cookie, http.MethodPost, bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Contains(t, rec.Body.String(), "error")
	}
	_, v = env.intent(cookie, http.MethodGet, "/carousel")
	assert.Equal(t, 3, v.Index, "rejected selections leave state unchanged")

	rec, v = env.intent(cookie, http.MethodPost, "/carousel/devices/mobile")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, carousel.Mobile, v.Device)
	assert.Equal(t, env.srv.site.Projects[3].Screenshots[carousel.Mobile], v.Screenshot)
	assert.Equal(t, 3, v.Index, "device changes keep the project")

	rec, _ = env.intent(cookie, http.MethodPost, "/carousel/devices/watch")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	_, v = env.intent(cookie, http.MethodGet, "/carousel")
	assert.Equal(t, carousel.Mobile, v.Device)
}

func TestCarouselFullscreen(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.visit()

	_, v := env.intent(cookie, http.MethodPost, "/carousel/fullscreen")
	assert.True(t, v.Fullscreen)
	_, v = env.intent(cookie, http.MethodPost, "/carousel/fullscreen")
	assert.True(t, v.Fullscreen)
	_, v = env.intent(cookie, http.MethodPost, "/carousel/next")
	assert.True(t, v.Fullscreen, "navigation keeps fullscreen open")
	_, v = env.intent(cookie, http.MethodDelete, "/carousel/fullscreen")
	assert.False(t, v.Fullscreen)
}

func TestCarouselFragment(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.visit()

	rec := env.do(request{
		method:  http.MethodPost,
		path:    "/carousel/fullscreen",
		headers: map[string]string{"HX-Request": "true", "Accept": "text/html"},
		cookies: []*http.Cookie{cookie},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `id="carousel"`)
	assert.Contains(t, rec.Body.String(), `hx-delete="/carousel/fullscreen"`)
}

func TestSessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	a, b := env.visit(), env.visit()
	require.NotEqual(t, a.Value, b.Value)

	env.intent(a, http.MethodPost, "/carousel/next")
	env.intent(a, http.MethodPost, "/carousel/next")

	_, va := env.intent(a, http.MethodGet, "/carousel")
	_, vb := env.intent(b, http.MethodGet, "/carousel")
	assert.Equal(t, 2, va.Index)
	assert.Equal(t, 0, vb.Index)
}

func TestCarouselIntentMetrics(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.visit()
	env.intent(cookie, http.MethodPost, "/carousel/next")
	env.intent(cookie, http.MethodPost, "/carousel/projects/42")

	rec := env.do(request{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `folio_carousel_intents_total{intent="next"} 1`)
	assert.Contains(t, body, `folio_carousel_rejected_total{intent="select_project"} 1`)
	assert.Contains(t, body, `folio_active_sessions 1`)
}

func TestContactSuccess(t *testing.T) {
	var got atomic.Value
	env := newTestEnv(t, withRelay(contact.RelayFunc(func(_ context.Context, m contact.Message) error {
		got.Store(m)
		return nil
	})))
	cookie := env.visit()

	req := contactForm("Ada Lovelace", "ada@example.com", "I'd like to talk about a project.")
	req.cookies = []*http.Cookie{cookie}
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ContactSuccessTitle)
	assert.Contains(t, rec.Body.String(), html.EscapeString(ContactSuccessDetail))

	m := got.Load().(contact.Message)
	assert.Equal(t, "Ada Lovelace", m.Name)
	assert.Equal(t, "ada@example.com", m.Email)

	records, err := env.store.RecentSubmissions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "success", records[0].Status)
	assert.Equal(t, "Ada Lovelace", records[0].Name)
}

func TestContactValidation(t *testing.T) {
	var calls atomic.Int32
	env := newTestEnv(t, withRelay(contact.RelayFunc(func(context.Context, contact.Message) error {
		calls.Add(1)
		return nil
	})))
	cookie := env.visit()

	cases := map[string]struct {
		req  request
		want string
	}{
		"short name":     {contactForm("A", "ada@example.com", "Long enough message"), FieldNameInvalid},
		"multiline name": {contactForm("Eve\r\nBcc: victim@example.org", "eve@example.com", "Long enough message"), FieldNameMultiline},
		"bad email":      {contactForm("Ada", "not-an-email", "Long enough message"), FieldEmailInvalid},
		"short message":  {contactForm("Ada", "ada@example.com", "hi"), FieldMessageInvalid},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			tc.req.cookies = []*http.Cookie{cookie}
			rec := env.do(tc.req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.want)
		})
	}
	assert.Zero(t, calls.Load(), "invalid input never reaches the relay")

	records, err := env.store.RecentSubmissions(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestContactRelayFailure(t *testing.T) {
	env := newTestEnv(t, withRelay(contact.RelayFunc(func(context.Context, contact.Message) error {
		return &contact.RelayError{StatusCode: http.StatusUnprocessableEntity, Message: "Form is disabled"}
	})))
	cookie := env.visit()

	req := contactForm("Ada", "ada@example.com", "Hello there, friend")
	req.cookies = []*http.Cookie{cookie}
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, ContactErrorTitle)
	assert.Contains(t, body, "Form is disabled")
	assert.Contains(t, body, `value="Ada"`, "fields are kept for a resend")

	records, err := env.store.RecentSubmissions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "error", records[0].Status)
	assert.Empty(t, records[0].Name)
	assert.Empty(t, records[0].Email)
}

func TestContactBusy(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, withRelay(contact.RelayFunc(func(ctx context.Context, _ contact.Message) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})))
	cookie := env.visit()

	first := make(chan int, 1)
	go func() {
		req := contactForm("Ada", "ada@example.com", "Hello there, friend")
		req.cookies = []*http.Cookie{cookie}
		first <- env.do(req).Code
	}()

	sess, ok := env.srv.sessions.Get(cookie.Value)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return sess.Contact.Snapshot().Status == contact.StatusLoading
	}, 2*time.Second, 5*time.Millisecond)

	req := contactForm("Ada", "ada@example.com", "Hello there, friend")
	req.cookies = []*http.Cookie{cookie}
	rec := env.do(req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), ContactBusy)

	close(release)
	assert.Equal(t, http.StatusOK, <-first)
	assert.Equal(t, contact.StatusSuccess, sess.Contact.Snapshot().Status)
}

func TestContactJSON(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.visit()

	rec := env.do(request{
		method:  http.MethodPost,
		path:    "/contact",
		body:    strings.NewReader(`{"name":"Ada","email":"ada@example.com","message":"Hello there, friend"}`),
		headers: map[string]string{"Content-Type": "application/json", "Accept": "application/json"},
		cookies: []*http.Cookie{cookie},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body.Status)

	rec = env.do(request{
		method:  http.MethodPost,
		path:    "/contact",
		body:    strings.NewReader(`{"name":"Ada","email":"nope","message":"Hello there, friend"}`),
		headers: map[string]string{"Content-Type": "application/json", "Accept": "application/json"},
		cookies: []*http.Cookie{cookie},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email"`)
}

func TestContactFormFragment(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.visit()

	rec := env.do(request{method: http.MethodGet, path: "/contact-form", cookies: []*http.Cookie{cookie}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hx-post="/contact"`)
	assert.Contains(t, rec.Body.String(), ContactSend)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.visit()

	rec := env.do(request{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":1}`, rec.Body.String())
}

func TestPrivacyPage(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(request{method: http.MethodGet, path: "/privacy"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Do Not Track")
}

func TestVisitorTracking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.do(request{method: http.MethodGet, path: "/", headers: map[string]string{"DNT": "1"}})
	env.do(request{method: http.MethodGet, path: "/carousel", headers: map[string]string{"HX-Request": "true"}})
	env.do(request{method: http.MethodGet, path: "/privacy"})
	env.do(request{method: http.MethodGet, path: "/", headers: map[string]string{"User-Agent": "test-agent"}})

	require.Eventually(t, func() bool {
		visits, err := env.store.RecentVisitors(ctx, 10)
		return err == nil && len(visits) == 1
	}, 2*time.Second, 10*time.Millisecond)

	visits, err := env.store.RecentVisitors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, "/", visits[0].Path)
	assert.Equal(t, "test-agent", visits[0].UserAgent)
	assert.Len(t, visits[0].HashedIP, 16)
	assert.NotContains(t, visits[0].HashedIP, "192.0.2.1", "raw client address is never stored")
}

func TestStatusFor(t *testing.T) {
	site, err := content.Default()
	require.NoError(t, err)
	ctl, err := carousel.New(site.Projects)
	require.NoError(t, err)
	defer ctl.Close()

	assert.Equal(t, http.StatusBadRequest, statusFor(ctl.SelectProject(10)))
	assert.Equal(t, http.StatusBadRequest, statusFor(ctl.SelectDevice("watch")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.EOF))
}

