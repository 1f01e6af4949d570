package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"time"

	"github.com/agentgov/governance-core/pkg/violation"
)

func httpBodyReader(body []byte) io.Reader {
	return bytes.NewReader(body)
}

// Channel is the polymorphic capability set spec.md §4.H requires of
// every alert destination.
type Channel interface {
	Config() ChannelConfig
	ShouldAlert(v violation.Violation) bool
	Send(ctx context.Context, payload Payload) SendOutcome
	Test(ctx context.Context) error
}

// BaseChannel carries the shared gating logic (step 1 of dispatch):
// every concrete channel embeds BaseChannel and inherits its ShouldAlert.
type BaseChannel struct {
	Cfg ChannelConfig
}

func (b BaseChannel) Config() ChannelConfig { return b.Cfg }

func (b BaseChannel) ShouldAlert(v violation.Violation) bool {
	if !b.Cfg.Enabled {
		return false
	}
	if v.Severity < b.Cfg.MinSeverity {
		return false
	}
	if len(b.Cfg.ViolationTypes) > 0 && !containsType(b.Cfg.ViolationTypes, v.Type) {
		return false
	}
	return true
}

func containsType(types []violation.Type, t violation.Type) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

// EmailChannel sends over SMTP.
type EmailChannel struct {
	BaseChannel
	SMTPAddr string
	From     string
	To       []string
	Auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailChannel(cfg ChannelConfig, smtpAddr, from string, to []string, auth smtp.Auth) *EmailChannel {
	return &EmailChannel{
		BaseChannel: BaseChannel{Cfg: cfg},
		SMTPAddr:    smtpAddr,
		From:        from,
		To:          to,
		Auth:        auth,
		sendMail:    smtp.SendMail,
	}
}

func (c *EmailChannel) Send(_ context.Context, payload Payload) SendOutcome {
	start := time.Now()
	body := fmt.Sprintf("Subject: %s\r\n\r\n%s\r\n", payload.Title, payload.Summary)
	err := c.sendMail(c.SMTPAddr, c.Auth, c.From, c.To, []byte(body))
	return outcomeFrom(start, payload.ID, err)
}

func (c *EmailChannel) Test(_ context.Context) error {
	return c.sendMail(c.SMTPAddr, c.Auth, c.From, c.To, []byte("Subject: governance-core channel test\r\n\r\nok\r\n"))
}

// SlackChannel posts to an incoming webhook URL.
type SlackChannel struct {
	BaseChannel
	WebhookURL string
	MentionID  string
	client     *http.Client
	post       func(url, contentType string, body []byte) (*http.Response, error)
}

func NewSlackChannel(cfg ChannelConfig, webhookURL, mentionID string, client *http.Client) *SlackChannel {
	if client == nil {
		client = http.DefaultClient
	}
	c := &SlackChannel{BaseChannel: BaseChannel{Cfg: cfg}, WebhookURL: webhookURL, MentionID: mentionID, client: client}
	c.post = c.defaultPost
	return c
}

func (c *SlackChannel) defaultPost(url, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, httpBodyReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.client.Do(req)
}

func (c *SlackChannel) Send(_ context.Context, payload Payload) SendOutcome {
	start := time.Now()
	text := payload.Summary
	if payload.Mention && c.Cfg.MentionOnCritical && c.MentionID != "" {
		text = fmt.Sprintf("<@%s> %s", c.MentionID, text)
	}
	body := []byte(fmt.Sprintf(`{"text":%q}`, text))
	resp, err := c.post(c.WebhookURL, "application/json", body)
	if err == nil && resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			err = fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
		}
	}
	return outcomeFrom(start, payload.ID, err)
}

func (c *SlackChannel) Test(ctx context.Context) error {
	_, err := c.post(c.WebhookURL, "application/json", []byte(`{"text":"governance-core channel test"}`))
	return err
}

// WebhookChannel delivers a JSON payload to an arbitrary URL, with a
// bearer token from TokenSource when one is configured (for example
// JWTTokenSource.Token, grounded on the teacher's
// pkg/identity/token.go TokenManager).
type WebhookChannel struct {
	BaseChannel
	URL         string
	TokenSource func() (string, error)
	client      *http.Client
	post        func(url, contentType, bearer string, body []byte) (*http.Response, error)
}

func NewWebhookChannel(cfg ChannelConfig, url string, tokenSource func() (string, error), client *http.Client) *WebhookChannel {
	if client == nil {
		client = http.DefaultClient
	}
	c := &WebhookChannel{BaseChannel: BaseChannel{Cfg: cfg}, URL: url, TokenSource: tokenSource, client: client}
	c.post = c.defaultPost
	return c
}

func (c *WebhookChannel) defaultPost(url, contentType, bearer string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, httpBodyReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return c.client.Do(req)
}

func (c *WebhookChannel) Send(_ context.Context, payload Payload) SendOutcome {
	start := time.Now()
	var bearer string
	if c.TokenSource != nil {
		token, err := c.TokenSource()
		if err != nil {
			return outcomeFrom(start, payload.ID, fmt.Errorf("webhook: token source: %w", err))
		}
		bearer = token
	}
	body := []byte(fmt.Sprintf(`{"id":%q,"title":%q,"summary":%q,"priority":%q}`,
		payload.ID, payload.Title, payload.Summary, payload.Priority.String()))
	resp, err := c.post(c.URL, "application/json", bearer, body)
	if err == nil && resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			err = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
	}
	return outcomeFrom(start, payload.ID, err)
}

func (c *WebhookChannel) Test(ctx context.Context) error {
	outcome := c.Send(ctx, Payload{ID: "test", Title: "test", Summary: "governance-core channel test"})
	if !outcome.Success {
		return fmt.Errorf("webhook test failed: %s", outcome.Error)
	}
	return nil
}

func outcomeFrom(start time.Time, id string, err error) SendOutcome {
	d := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		return SendOutcome{Success: false, Error: err.Error(), DurationMs: d}
	}
	return SendOutcome{Success: true, MessageID: id, DurationMs: d}
}
