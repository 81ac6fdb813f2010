// Package config defines the folio command line. Every flag falls back to an
// environment variable, and .env files are loaded by main before parsing.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/alecthomas/kong"

	"github.com/Zachkp/folio/contact"
	"github.com/Zachkp/folio/errs"
)

// ErrIncompleteSMTP is returned when the smtp relay is chosen without credentials.
var ErrIncompleteSMTP = errors.New("smtp relay needs SMTP_USER and SMTP_PASS")

// CLI is the root command.
type CLI struct {
	LogLevel    string        `help:"Log level." env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error"`
	LogFormat   string        `help:"Log encoding." env:"LOG_FORMAT" default:"json" enum:"json,console"`
	Content     string        `help:"Site content YAML. Empty uses the embedded dataset." env:"CONTENT_PATH" type:"path"`
	AutoAdvance time.Duration `help:"Carousel auto-advance interval." env:"AUTO_ADVANCE" default:"8s"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Serve the portfolio site."`
	Preview PreviewCmd `cmd:"" help:"Browse the project carousel in the terminal."`
}

// ServeCmd configures the HTTP server.
type ServeCmd struct {
	Port     string `help:"HTTP port." env:"PORT" default:"8080"`
	Database string `help:"SQLite database path." env:"DATABASE_PATH" default:"folio.db" type:"path"`
	GinMode  string `help:"gin mode." env:"GIN_MODE" default:"release" enum:"debug,release,test"`

	Relay    string `help:"Contact relay." env:"CONTACT_RELAY" default:"http" enum:"http,smtp"`
	RelayURL string `help:"Form relay endpoint." env:"CONTACT_RELAY_URL" default:"${relay_url}"`
	SMTPHost string `help:"SMTP host." env:"SMTP_HOST" default:"smtp.gmail.com" name:"smtp-host"`
	SMTPPort string `help:"SMTP port." env:"SMTP_PORT" default:"587" name:"smtp-port"`
	SMTPUser string `help:"SMTP user." env:"SMTP_USER" name:"smtp-user"`
	SMTPPass string `help:"SMTP password." env:"SMTP_PASS" name:"smtp-pass"`
	ToEmail  string `help:"Recipient of contact messages. Defaults to the SMTP user." env:"TO_EMAIL"`

	AdminUsername string `help:"Admin login name." env:"ADMIN_USERNAME" default:"admin"`
	AdminPassword string `help:"Admin password. The panel is disabled when empty." env:"ADMIN_PASSWORD"`

	ContactReset     time.Duration `help:"Delay before a sent form returns to idle." env:"CONTACT_RESET" default:"5s"`
	SessionTTL       time.Duration `help:"Idle time before a visitor session is closed." env:"SESSION_TTL" default:"30m"`
	MaxSessions      int           `help:"Maximum live visitor sessions." env:"MAX_SESSIONS" default:"1000"`
	VisitorRetention time.Duration `help:"Age after which visitor records are deleted." env:"VISITOR_RETENTION" default:"8760h"`
}

// Validate is called by kong after parsing.
func (s *ServeCmd) Validate() error {
	if s.ContactReset <= 0 || s.SessionTTL <= 0 || s.VisitorRetention <= 0 {
		return errs.Config("config", errors.New("durations must be positive"))
	}
	if s.MaxSessions <= 0 {
		return errs.Config("config", fmt.Errorf("max sessions must be positive, got %d", s.MaxSessions))
	}
	if s.Relay == "smtp" && (s.SMTPUser == "" || s.SMTPPass == "") {
		return errs.Config("config", ErrIncompleteSMTP)
	}
	return nil
}

// SMTP returns the smtp relay settings.
func (s *ServeCmd) SMTP() contact.SMTPConfig {
	return contact.SMTPConfig{
		Host: s.SMTPHost,
		Port: s.SMTPPort,
		User: s.SMTPUser,
		Pass: s.SMTPPass,
		To:   s.ToEmail,
	}
}

// PreviewCmd runs the terminal carousel.
type PreviewCmd struct{}

// Validate is called by kong after parsing.
func (c *CLI) Validate() error {
	if c.AutoAdvance <= 0 {
		return errs.Config("config", fmt.Errorf("auto-advance must be positive, got %s", c.AutoAdvance))
	}
	return nil
}

// New builds the parser around cli.
func New(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("folio"),
		kong.Description("A portfolio site with a project showcase carousel."),
		kong.UsageOnError(),
		kong.Vars{"relay_url": contact.DefaultEndpoint},
	}, options...)
	return kong.New(cli, options...)
}

// Parse parses args and returns the CLI with the selected command name.
func Parse(args []string) (*CLI, string, error) {
	var cli CLI
	parser, err := New(&cli)
	if err != nil {
		return nil, "", err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return nil, "", errs.Config("config", err)
	}
	return &cli, ctx.Command(), nil
}
