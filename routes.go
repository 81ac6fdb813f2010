package main

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Zachkp/folio/carousel"
	"github.com/Zachkp/folio/contact"
	"github.com/Zachkp/folio/content"
	"github.com/Zachkp/folio/errs"
	"github.com/Zachkp/folio/logging"
	"github.com/Zachkp/folio/metrics"
	"github.com/Zachkp/folio/session"
	"github.com/Zachkp/folio/store"
)

const (
	sessionCookie = "folio_session"
	sessionKey    = "session"
	submitTimeout = 15 * time.Second
)

// server holds what the handlers need.
type server struct {
	site     *content.Site
	sessions *session.Registry
	store    *store.Store
	metrics  *metrics.Metrics
	tracker  *visitorTracker
	admin    *adminPanel
	log      *zap.Logger
}

type timelineItem struct {
	content.TimelineEntry
	HTML template.HTML
}

type carouselPage struct {
	View     carousel.View
	Projects []carousel.Project
	Devices  []carousel.Device
}

type contactPage struct {
	contact.Snapshot
	Invalid map[string]string
	Notice  string
}

type contactRequest struct {
	Name    string `form:"fullName" json:"name" binding:"required,min=2,singleline"`
	Email   string `form:"email" json:"email" binding:"required,email"`
	Message string `form:"message" json:"message" binding:"required,min=10"`
}

var registerValidators sync.Once

// singleLine rejects control characters, so a name can go into a mail header.
func singleLine(fl validator.FieldLevel) bool {
	return strings.IndexFunc(fl.Field().String(), unicode.IsControl) < 0
}

func (r contactRequest) fields() contact.Fields {
	return contact.Fields{Name: r.Name, Email: r.Email, Message: r.Message}
}

func (s *server) routes(tmpl *template.Template) *gin.Engine {
	registerValidators.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			if err := v.RegisterValidation("singleline", singleLine); err != nil {
				s.log.Error("failed to register validator", zap.Error(err))
			}
		}
	})

	r := gin.New()
	r.Use(logging.Gin(s.log), gin.Recovery(), s.tracker.middleware())
	r.SetHTMLTemplate(tmpl)

	r.Static("/images", "./images")
	r.Static("/static", "./static")

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/privacy", func(c *gin.Context) {
		c.HTML(http.StatusOK, "privacy.html", gin.H{"title": "Privacy Policy", "notice": PrivacyNotice})
	})

	site := r.Group("", s.withSession())
	site.GET("/", s.index)
	site.GET("/carousel", s.carouselIntent("view", func(*carousel.Controller, *gin.Context) error { return nil }))
	site.POST("/carousel/next", s.carouselIntent("next", func(ctl *carousel.Controller, _ *gin.Context) error {
		ctl.Next()
		return nil
	}))
	site.POST("/carousel/previous", s.carouselIntent("previous", func(ctl *carousel.Controller, _ *gin.Context) error {
		ctl.Previous()
		return nil
	}))
	site.POST("/carousel/projects/:index", s.carouselIntent("select_project", func(ctl *carousel.Controller, c *gin.Context) error {
		i, err := strconv.Atoi(c.Param("index"))
		if err != nil {
			return errs.Caller("carousel.SelectProject", carousel.ErrIndexOutOfRange).With("index", c.Param("index"))
		}
		return ctl.SelectProject(i)
	}))
	site.POST("/carousel/devices/:device", s.carouselIntent("select_device", func(ctl *carousel.Controller, c *gin.Context) error {
		d, err := carousel.ParseDevice(c.Param("device"))
		if err != nil {
			return err
		}
		return ctl.SelectDevice(d)
	}))
	site.POST("/carousel/fullscreen", s.carouselIntent("open_fullscreen", func(ctl *carousel.Controller, _ *gin.Context) error {
		ctl.OpenFullscreen()
		return nil
	}))
	site.DELETE("/carousel/fullscreen", s.carouselIntent("close_fullscreen", func(ctl *carousel.Controller, _ *gin.Context) error {
		ctl.CloseFullscreen()
		return nil
	}))
	site.GET("/contact-form", s.contactForm)
	site.POST("/contact", s.submitContact)

	s.admin.register(r)
	return r
}

// withSession attaches the visitor's session, opening one on first contact.
func (s *server) withSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(sessionCookie)
		sess, opened, err := s.sessions.GetOrOpen(id)
		if err != nil {
			s.log.Error("failed to open session", zap.Error(err))
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		if opened {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(sessionCookie, sess.ID, 0, "/", "", c.Request.TLS != nil, true)
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

func (s *server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.log.Error("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.sessions.Len()})
}

func (s *server) index(c *gin.Context) {
	sess := currentSession(c)

	about, err := s.site.AboutHTML()
	if err != nil {
		s.log.Error("failed to render about", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	timeline := make([]timelineItem, 0, len(s.site.Timeline))
	for _, t := range s.site.Timeline {
		html, err := t.DescriptionHTML()
		if err != nil {
			s.log.Error("failed to render timeline", zap.Error(err))
			c.Status(http.StatusInternalServerError)
			return
		}
		timeline = append(timeline, timelineItem{TimelineEntry: t, HTML: html})
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"title":    s.site.Name,
		"site":     s.site,
		"about":    about,
		"timeline": timeline,
		"carousel": s.carouselPage(sess),
		"contact":  contactPage{Snapshot: sess.Contact.Snapshot()},
	})
}

func (s *server) carouselPage(sess *session.Session) carouselPage {
	return carouselPage{
		View:     sess.Carousel.View(),
		Projects: sess.Carousel.Projects(),
		Devices:  carousel.Devices,
	}
}

// carouselIntent applies fn to the visitor's carousel and renders the result.
func (s *server) carouselIntent(name string, fn func(*carousel.Controller, *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := currentSession(c)
		if err := fn(sess.Carousel, c); err != nil {
			s.metrics.CarouselRejected.WithLabelValues(name).Inc()
			s.respondError(c, err)
			return
		}
		if c.Request.Method != http.MethodGet {
			s.metrics.CarouselIntents.WithLabelValues(name).Inc()
		}

		page := s.carouselPage(sess)
		if wantsJSON(c) {
			c.JSON(http.StatusOK, page.View)
			return
		}
		c.HTML(http.StatusOK, "carousel.html", page)
	}
}

func (s *server) contactForm(c *gin.Context) {
	c.HTML(http.StatusOK, "contact.html", contactPage{Snapshot: currentSession(c).Contact.Snapshot()})
}

func (s *server) submitContact(c *gin.Context) {
	sess := currentSession(c)

	var req contactRequest
	if err := c.ShouldBind(&req); err != nil {
		s.metrics.ContactSubmissions.WithLabelValues("invalid").Inc()
		page := contactPage{
			Snapshot: sess.Contact.Snapshot(),
			Invalid:  invalidFields(err),
		}
		page.Fields = req.fields()
		s.renderContact(c, http.StatusUnprocessableEntity, page)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), submitTimeout)
	defer cancel()
	snap, err := sess.Contact.Submit(ctx, req.fields())
	if errors.Is(err, contact.ErrBusy) {
		s.metrics.ContactSubmissions.WithLabelValues("busy").Inc()
		s.renderContact(c, http.StatusConflict, contactPage{Snapshot: snap, Notice: ContactBusy})
		return
	}

	switch snap.Status {
	case contact.StatusSuccess:
		err = s.store.RecordContactSuccess(c.Request.Context(), req.Name, req.Email)
	case contact.StatusError:
		err = s.store.RecordContactFailure(c.Request.Context(), snap.Error)
	}
	if err != nil {
		s.log.Warn("failed to record contact submission", zap.Error(err))
	}
	s.renderContact(c, http.StatusOK, contactPage{Snapshot: snap})
}

func (s *server) renderContact(c *gin.Context, status int, page contactPage) {
	if wantsJSON(c) {
		body := gin.H{"status": page.Status, "error": page.Error}
		if len(page.Invalid) > 0 {
			body["invalid"] = page.Invalid
		}
		if page.Notice != "" {
			body["error"] = page.Notice
		}
		c.JSON(status, body)
		return
	}
	c.HTML(status, "contact.html", page)
}

// invalidFields maps binding failures to the message shown under each input.
func invalidFields(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["form"] = "Please check the form and try again."
		return out
	}
	for _, fe := range verrs {
		switch fe.Field() {
		case "Name":
			out["name"] = FieldNameInvalid
			if fe.Tag() == "singleline" {
				out["name"] = FieldNameMultiline
			}
		case "Email":
			out["email"] = FieldEmailInvalid
		case "Message":
			out["message"] = FieldMessageInvalid
		}
	}
	return out
}

func (s *server) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	_ = c.Error(err)
	if wantsJSON(c) {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.String(status, err.Error())
}

func statusFor(err error) int {
	switch errs.CategoryOf(err) {
	case errs.CategoryCaller:
		if errors.Is(err, contact.ErrBusy) {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case errs.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func wantsJSON(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	if accept == "" || strings.Contains(accept, "text/html") {
		return false
	}
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}
