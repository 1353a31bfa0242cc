package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kealoha/emergency-alert-hub/internal/models"
)

// Message is a rendered notification ready for a channel provider.
type Message struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
	From    string `json:"from,omitempty"`
}

// Sender delivers one rendered message to one destination.
type Sender interface {
	Send(ctx context.Context, destination string, msg Message) error
}

const smsMaxLen = 160

// RenderMessage builds channel-appropriate content for an alert.
func RenderMessage(alert *models.Alert, channel models.ChannelType, from string) Message {
	severity := strings.ToUpper(string(alert.Severity))
	location := alert.LocationName
	if location == "" {
		location = "Hawaii"
	}

	switch channel {
	case models.ChannelSMS:
		body := fmt.Sprintf("%s: %s\nLocation: %s\nReply STOP to unsubscribe", severity, alert.Title, location)
		// Truncate on rune boundaries so a multi-byte character is never
		// split mid-sequence.
		if runes := []rune(body); len(runes) > smsMaxLen {
			body = string(runes[:smsMaxLen-3]) + "..."
		}
		return Message{Body: body}
	case models.ChannelVoice:
		return Message{
			Body: fmt.Sprintf(
				"This is an emergency alert. %s alert: %s. Location: %s. Please check your email or app for more details.",
				string(alert.Severity), alert.Title, location),
		}
	default:
		return Message{
			Subject: fmt.Sprintf("[%s] %s", severity, alert.Title),
			Body:    alert.Description,
			From:    from,
		}
	}
}

// HTTPSender posts messages to an external channel provider endpoint. All
// three channel types share the same wire shape; the provider decides how to
// deliver based on the configured endpoint.
type HTTPSender struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewHTTPSender(endpoint, token string) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPSender) Send(ctx context.Context, destination string, msg Message) error {
	payload, err := json.Marshal(struct {
		To string `json:"to"`
		Message
	}{To: destination, Message: msg})
	if err != nil {
		return fmt.Errorf("error encoding provider payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("error calling provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSender stands in when a provider endpoint is not configured. Sends are
// logged and reported as success so unconfigured environments still exercise
// the full dispatch path.
type LogSender struct {
	Channel models.ChannelType
}

func (s LogSender) Send(_ context.Context, destination string, msg Message) error {
	slog.Info("channel provider not configured, logging send",
		"channel", s.Channel, "destination", destination, "subject", msg.Subject)
	return nil
}
