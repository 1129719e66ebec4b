package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"net/mail"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/meetmate/internal/instrumentation"
	"github.com/teemow/meetmate/internal/model"
)

// Message is an outgoing plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Client sends mail through the Gmail API as the authorized user.
type Client struct {
	svc     *gmail.UsersService
	metrics *instrumentation.Metrics
}

// NewClient creates a Client over an authorized HTTP client. endpoint
// overrides the API base URL when non-empty.
func NewClient(ctx context.Context, httpClient *http.Client, endpoint string, metrics *instrumentation.Metrics) (*Client, error) {
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	if metrics == nil {
		metrics = &instrumentation.Metrics{}
	}
	return &Client{svc: svc.Users, metrics: metrics}, nil
}

// Send delivers msg and returns the Gmail message id.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	raw, err := buildRaw(msg)
	if err != nil {
		return "", err
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, "send")
	start := time.Now()
	sent, err := c.svc.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, "send", status, time.Since(start))
	instrumentation.EndSpan(span, err)

	if err != nil {
		return "", &model.ExternalProviderError{Op: "gmail.send", Provider: instrumentation.ServiceGmail, Err: err}
	}
	return sent.Id, nil
}

// buildRaw renders msg as an RFC 2822 message encoded base64url.
func buildRaw(msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", model.Invalid("send_email", "at least one recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return "", model.Invalid("send_email", "subject is required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return "", model.Invalid("send_email", "body is required")
	}

	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		parsed, err := mail.ParseAddress(addr)
		if err != nil {
			return "", model.Invalid("send_email", "invalid recipient %q", addr)
		}
		to = append(to, parsed.String())
	}

	var b strings.Builder
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + encodeRFC2047(msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	return base64.URLEncoding.EncodeToString([]byte(b.String())), nil
}

// encodeRFC2047 encodes non-ASCII header values.
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}
