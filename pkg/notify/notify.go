// Package notify delivers text messages to emergency contacts.
package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"ocular/pkg/model"
	"ocular/pkg/request"
)

// Notifier sends one message to one address.
type Notifier interface {
	Send(ctx context.Context, address, message string) error
}

// DeliveryError is the failure for a single contact.
type DeliveryError struct {
	Contact model.Contact
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s (%s): %v", e.Contact.Name, e.Contact.Phone, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// MessageFunc renders the text for one contact.
type MessageFunc func(c model.Contact) string

// SendAll messages every contact. Each failed delivery is logged and
// reported individually in the joined error.
func SendAll(ctx context.Context, n Notifier, contacts []model.Contact, render MessageFunc) error {
	var errs []error
	for _, c := range contacts {
		if err := n.Send(ctx, c.Phone, render(c)); err != nil {
			slog.Error("Message delivery failed", "contact", c.Name, "error", err)
			errs = append(errs, &DeliveryError{Contact: c, Err: err})
			continue
		}
		slog.Info("Message delivered", "contact", c.Name)
	}
	return errors.Join(errs...)
}

const twilioBase = "https://api.twilio.com/2010-04-01"

// Twilio sends SMS through a Twilio messaging service.
type Twilio struct {
	client     *request.Client
	base       string
	accountSID string
	authToken  string
	serviceID  string
}

// NewTwilio returns a Twilio notifier.
func NewTwilio(client *request.Client, accountSID, authToken, serviceID string) *Twilio {
	return &Twilio{
		client:     client,
		base:       twilioBase,
		accountSID: accountSID,
		authToken:  authToken,
		serviceID:  serviceID,
	}
}

// Send implements Notifier.
func (t *Twilio) Send(ctx context.Context, address, message string) error {
	if address == "" {
		return errors.New("empty address")
	}
	form := url.Values{}
	form.Set("To", address)
	form.Set("Body", message)
	form.Set("MessagingServiceSid", t.serviceID)

	u := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.base, url.PathEscape(t.accountSID))
	auth := base64.StdEncoding.EncodeToString([]byte(t.accountSID + ":" + t.authToken))
	body, err := t.client.PostWithHeaders(ctx, u, []byte(form.Encode()), map[string]string{
		"Content-Type":  "application/x-www-form-urlencoded",
		"Authorization": "Basic " + auth,
	})
	if err != nil {
		return fmt.Errorf("twilio: %w", err)
	}

	var resp struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err == nil {
		slog.Debug("SMS queued", "sid", resp.SID, "status", resp.Status)
	}
	return nil
}

// Log records messages instead of sending them.
type Log struct {
	mu   sync.Mutex
	Sent []string
}

// Send implements Notifier.
func (l *Log) Send(ctx context.Context, address, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Sent = append(l.Sent, address+": "+message)
	slog.Info("SMS (not sent)", "to", address, "message", strings.ReplaceAll(message, "\n", " "))
	return nil
}

// Messages returns a copy of everything recorded.
func (l *Log) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.Sent...)
}
