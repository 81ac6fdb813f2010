package contact

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/Zachkp/folio/errs"
)

// ErrSMTPCredentials is returned when the SMTP relay has no credentials.
var ErrSMTPCredentials = errors.New("SMTP credentials not configured")

// SMTPConfig configures SMTPRelay.
type SMTPConfig struct {
	Host string
	Port string
	User string
	Pass string
	To   string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPRelay mails messages to the site owner.
type SMTPRelay struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
}

// NewSMTPRelay returns a relay using cfg. Host and port default to Gmail's submission port.
func NewSMTPRelay(cfg SMTPConfig) *SMTPRelay {
	if cfg.Host == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	return &SMTPRelay{cfg: cfg, sendMail: smtp.SendMail}
}

func (r *SMTPRelay) Send(ctx context.Context, m Message) error {
	if r.cfg.User == "" || r.cfg.Pass == "" {
		return errs.Config("contact.SMTPRelay", ErrSMTPCredentials)
	}
	if err := ctx.Err(); err != nil {
		return errs.External("contact.SMTPRelay", err)
	}
	to := r.cfg.To
	if to == "" {
		to = r.cfg.User
	}

	auth := smtp.PlainAuth("", r.cfg.User, r.cfg.Pass, r.cfg.Host)
	if err := r.sendMail(r.cfg.Host+":"+r.cfg.Port, auth, r.cfg.User, []string{to}, composeMail(r.cfg.User, to, m)); err != nil {
		return errs.External("contact.SMTPRelay", err)
	}
	return nil
}

func composeMail(from, to string, m Message) []byte {
	body := fmt.Sprintf(`
New contact form submission from your portfolio:

Name: %s
Email: %s
Message:
%s

---
Sent from your portfolio contact form
`, m.Name, m.Email, m.Body)

	return []byte("To: " + to + "\r\n" +
		"Subject: " + mime.QEncoding.Encode("utf-8", m.Subject()) + "\r\n" +
		"From: " + from + "\r\n" +
		"Reply-To: " + headerValue(m.Email) + "\r\n" +
		"\r\n" +
		body + "\r\n")
}

// headerValue drops line breaks so visitor input stays on its header line.
func headerValue(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(v)
}
