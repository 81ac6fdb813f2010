package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Zachkp/folio/errs"
)

// DefaultEndpoint is the form relay used when none is configured.
const DefaultEndpoint = "https://formspree.io/f/meekzovp"

const (
	genericRelayMessage   = "Failed to send message"
	genericNetworkMessage = "Something went wrong. Please try again."
)

// Message is what a relay delivers.
type Message struct {
	Name  string
	Email string
	Body  string
}

// Subject is the subject line used for a message.
func (m Message) Subject() string {
	return fmt.Sprintf("New Contact Form Message from %s", m.Name)
}

// Relay delivers a contact message to its owner.
type Relay interface {
	Send(ctx context.Context, m Message) error
}

// RelayFunc adapts a function to Relay.
type RelayFunc func(ctx context.Context, m Message) error

func (fn RelayFunc) Send(ctx context.Context, m Message) error { return fn(ctx, m) }

// RelayError is a non-2xx answer from a relay.
type RelayError struct {
	StatusCode int
	Message    string
}

func (e *RelayError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay answered %d", e.StatusCode)
	}
	return fmt.Sprintf("relay answered %d: %s", e.StatusCode, e.Message)
}

// userMessage picks what the visitor sees for a failed send: the relay's own
// message when it sent one, a generic text otherwise.
func userMessage(err error) string {
	var re *RelayError
	if errors.As(err, &re) {
		if re.Message != "" {
			return re.Message
		}
		return genericRelayMessage
	}
	return genericNetworkMessage
}

// HTTPRelay posts messages as JSON to a form relay service.
type HTTPRelay struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRelay returns a relay posting to endpoint. A nil client gets a 10s timeout.
func NewHTTPRelay(endpoint string, client *http.Client) *HTTPRelay {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPRelay{endpoint: endpoint, client: client}
}

type relayPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
	Subject string `json:"_subject"`
	ReplyTo string `json:"_replyto"`
}

type relayErrorBody struct {
	Error string `json:"error"`
}

func (r *HTTPRelay) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(relayPayload{
		Name:    m.Name,
		Email:   m.Email,
		Message: m.Body,
		Subject: m.Subject(),
		ReplyTo: m.Email,
	})
	if err != nil {
		return errs.External("contact.HTTPRelay", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return errs.External("contact.HTTPRelay", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return errs.External("contact.HTTPRelay", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var eb relayErrorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &eb)
	return errs.External("contact.HTTPRelay", &RelayError{StatusCode: resp.StatusCode, Message: eb.Error})
}
