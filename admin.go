// admin.go - privacy-conscious visitor tracking and the admin panel
package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Zachkp/folio/metrics"
	"github.com/Zachkp/folio/store"
)

const adminCookie = "admin_token"

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// visitorTracker records page views with salted, truncated IP hashes.
type visitorTracker struct {
	salt    string
	store   *store.Store
	metrics *metrics.Metrics
	log     *zap.Logger
}

func newVisitorTracker(st *store.Store, m *metrics.Metrics, log *zap.Logger) (*visitorTracker, error) {
	salt, err := randomToken()
	if err != nil {
		return nil, err
	}
	return &visitorTracker{salt: salt, store: st, metrics: m, log: log}, nil
}

// hashIP is stable for the life of the process.
func (t *visitorTracker) hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip + t.salt))
	return hex.EncodeToString(sum[:])[:16]
}

func untracked(path string) bool {
	for _, prefix := range []string{"/static/", "/images/", "/admin", "/favicon", "/privacy", "/metrics", "/health"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// middleware records full page loads. HTMX fragment requests, static
// assets, admin pages and DNT requests are skipped.
func (t *visitorTracker) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.Method != http.MethodGet ||
			untracked(path) ||
			c.GetHeader("HX-Request") == "true" ||
			c.GetHeader("DNT") == "1" {
			c.Next()
			return
		}

		hashed, ua := t.hashIP(c.ClientIP()), c.GetHeader("User-Agent")
		go t.record(hashed, ua, path)
		c.Next()
	}
}

func (t *visitorTracker) record(hashedIP, userAgent, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.store.RecordVisit(ctx, hashedIP, userAgent, path); err != nil {
		t.log.Warn("failed to record visit", zap.Error(err))
		return
	}
	t.metrics.Visits.Inc()
}

// adminPanel serves /admin. It is disabled when no password is configured.
type adminPanel struct {
	username  string
	password  string
	token     string
	retention time.Duration

	store   *store.Store
	tracker *visitorTracker
	log     *zap.Logger
}

func newAdminPanel(username, password string, retention time.Duration, st *store.Store, tracker *visitorTracker, log *zap.Logger) (*adminPanel, error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	return &adminPanel{
		username:  username,
		password:  password,
		token:     token,
		retention: retention,
		store:     st,
		tracker:   tracker,
		log:       log,
	}, nil
}

func (a *adminPanel) enabled() bool { return a.password != "" }

func (a *adminPanel) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookie)
		if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			if wantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": AdminInvalidCredentials})
				return
			}
			c.Redirect(http.StatusFound, "/admin/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *adminPanel) validCredentials(username, password string) bool {
	u := subtle.ConstantTimeCompare([]byte(username), []byte(a.username))
	p := subtle.ConstantTimeCompare([]byte(password), []byte(a.password))
	return u&p == 1
}

func (a *adminPanel) register(r *gin.Engine) {
	if !a.enabled() {
		a.log.Warn("admin panel disabled, set ADMIN_PASSWORD to enable it")
		return
	}
	a.log.Info("admin panel available", zap.String("path", "/admin/login"))

	r.GET("/admin/login", a.loginPage)
	r.POST("/admin/login", a.login)
	r.GET("/admin/logout", a.logout)

	g := r.Group("/admin", a.authMiddleware())
	g.GET("/dashboard", a.dashboard)
	g.GET("/api/stats", a.statsJSON)
	g.GET("/visitors", a.visitors)
	g.GET("/contacts", a.contacts)
	g.POST("/privacy/cleanup", a.cleanup)
	g.GET("/export/stats", a.exportStats)
}

func (a *adminPanel) loginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "admin-login.html", gin.H{"title": "Admin Login"})
}

func (a *adminPanel) login(c *gin.Context) {
	client := a.tracker.hashIP(c.ClientIP())
	if !a.validCredentials(c.PostForm("username"), c.PostForm("password")) {
		a.log.Warn("failed admin login", zap.String("client", client))
		c.HTML(http.StatusUnauthorized, "admin-login.html", gin.H{
			"title": "Admin Login",
			"error": AdminInvalidCredentials,
		})
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(adminCookie, a.token, int((24 * time.Hour).Seconds()), "/admin", "", c.Request.TLS != nil, true)
	a.log.Info("admin login", zap.String("client", client))
	c.Redirect(http.StatusFound, "/admin/dashboard")
}

func (a *adminPanel) logout(c *gin.Context) {
	c.SetCookie(adminCookie, "", -1, "/admin", "", c.Request.TLS != nil, true)
	a.log.Info("admin logout", zap.String("client", a.tracker.hashIP(c.ClientIP())))
	c.Redirect(http.StatusFound, "/admin/login")
}

func (a *adminPanel) dashboard(c *gin.Context) {
	stats, err := a.store.Stats(c.Request.Context())
	if err != nil {
		a.fail(c, AdminStatsFailed, err)
		return
	}
	c.HTML(http.StatusOK, "admin-dashboard.html", gin.H{
		"title":     "Dashboard",
		"stats":     stats,
		"retention": a.retention,
	})
}

func (a *adminPanel) statsJSON(c *gin.Context) {
	stats, err := a.store.Stats(c.Request.Context())
	if err != nil {
		a.log.Error("failed to load stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": AdminStatsFailed})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *adminPanel) visitors(c *gin.Context) {
	visitors, err := a.store.RecentVisitors(c.Request.Context(), 200)
	if err != nil {
		a.fail(c, AdminVisitorsFailed, err)
		return
	}
	c.HTML(http.StatusOK, "admin-visitors.html", gin.H{"title": "Visitors", "visitors": visitors})
}

func (a *adminPanel) contacts(c *gin.Context) {
	records, err := a.store.RecentSubmissions(c.Request.Context(), 200)
	if err != nil {
		a.fail(c, AdminContactsFailed, err)
		return
	}
	c.HTML(http.StatusOK, "admin-contacts.html", gin.H{"title": "Contact log", "submissions": records})
}

func (a *adminPanel) cleanup(c *gin.Context) {
	n, err := a.store.CleanupVisitors(c.Request.Context(), a.retention)
	if err != nil {
		a.log.Error("visitor cleanup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Privacy cleanup failed"})
		return
	}
	a.log.Info("visitor cleanup", zap.Int64("deleted", n), zap.String("client", a.tracker.hashIP(c.ClientIP())))
	c.JSON(http.StatusOK, gin.H{"message": "Privacy cleanup completed", "deleted": n})
}

func (a *adminPanel) exportStats(c *gin.Context) {
	stats, err := a.store.Stats(c.Request.Context())
	if err != nil {
		a.log.Error("failed to export stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": AdminStatsFailed})
		return
	}
	c.Header("Content-Disposition", "attachment; filename=folio-stats.json")
	a.log.Info("stats exported", zap.String("client", a.tracker.hashIP(c.ClientIP())))
	c.JSON(http.StatusOK, stats)
}

func (a *adminPanel) fail(c *gin.Context, msg string, err error) {
	a.log.Error(msg, zap.Error(err))
	c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{"title": "Error", "error": msg})
}
