// Package notify delivers best-effort e-mail notifications.
//
// Nothing in this package reports delivery back to the workflow: a
// Dispatcher runs every send in its own goroutine, logs failures and
// forgets them. A visitor approval never fails because mail is down.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Message is one outgoing e-mail.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Notifier sends a single message.
type Notifier interface {
	Send(ctx context.Context, m Message) error
}

// ── Log only ────────────────────────────────────────────────────────

// LogNotifier writes messages to the log instead of sending them. It is
// the fallback when no transport is configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Send(_ context.Context, m Message) error {
	n.Log.Info("notification", "to", m.To, "subject", m.Subject)
	return nil
}

// ── SMTP ────────────────────────────────────────────────────────────

// SMTPNotifier relays through an SMTP server with PLAIN auth when a user
// is configured.
type SMTPNotifier struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string

	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier returns an SMTPNotifier using smtp.SendMail.
func NewSMTPNotifier(host string, port int, user, password, from string) *SMTPNotifier {
	return &SMTPNotifier{Host: host, Port: port, User: user, Password: password, From: from, send: smtp.SendMail}
}

func (n *SMTPNotifier) Send(ctx context.Context, m Message) error {
	var auth smtp.Auth
	if n.User != "" {
		auth = smtp.PlainAuth("", n.User, n.Password, n.Host)
	}
	addr := fmt.Sprintf("%s:%d", n.Host, n.Port)

	done := make(chan error, 1)
	go func() { done <- n.send(addr, auth, n.From, []string{m.To}, n.render(m)) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *SMTPNotifier) render(m Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(m.Body)
	return []byte(b.String())
}

// ── HTTP gateway ────────────────────────────────────────────────────

// GatewayNotifier posts messages as JSON to a transactional mail API.
type GatewayNotifier struct {
	client *resty.Client
}

// NewGatewayNotifier posts to url with a bearer apiKey. Transient
// failures are retried up to three times.
func NewGatewayNotifier(url, apiKey string) *GatewayNotifier {
	client := resty.New().
		SetBaseURL(strings.TrimRight(url, "/")).
		SetTimeout(10*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= 500
	})
	return &GatewayNotifier{client: client}
}

func (n *GatewayNotifier) Send(ctx context.Context, m Message) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(m).
		Post("/send")
	if err != nil {
		return fmt.Errorf("mail gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mail gateway: status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// ── Dispatcher ──────────────────────────────────────────────────────

// Dispatcher sends messages asynchronously. Each send gets its own
// timeout; Wait blocks until every in-flight send has finished.
type Dispatcher struct {
	n       Notifier
	log     *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher wraps n. A zero timeout means 30 seconds.
func NewDispatcher(n Notifier, log *slog.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{n: n, log: log, timeout: timeout}
}

// Go queues m. Messages without a recipient are dropped.
func (d *Dispatcher) Go(m Message) {
	if m.To == "" {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.n.Send(ctx, m); err != nil {
			d.log.Warn("notification failed", "to", m.To, "subject", m.Subject, "err", err)
		}
	}()
}

// Wait blocks until all queued sends return.
func (d *Dispatcher) Wait() { d.wg.Wait() }
