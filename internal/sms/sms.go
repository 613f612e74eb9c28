// Package sms sends announcement texts through Twilio.
package sms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/user/smsrelay/internal/phone"
	"github.com/user/smsrelay/internal/types"
)

// messageCreator is the slice of the Twilio REST client the sender uses.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Sender delivers texts from one Twilio number.
type Sender struct {
	api  messageCreator
	from string
}

// New creates a Twilio sender. from is normalised to a dialable number.
func New(accountSID, authToken, from string) (*Sender, error) {
	if strings.TrimSpace(accountSID) == "" || strings.TrimSpace(authToken) == "" {
		return nil, fmt.Errorf("twilio account sid and auth token are required")
	}
	sender, err := phone.Sender(from)
	if err != nil {
		return nil, err
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Sender{api: client.Api, from: sender}, nil
}

// From returns the normalised sender number.
func (s *Sender) From() string {
	return s.from
}

// Send texts body to the canonical number to.
func (s *Sender) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return &types.DeliveryError{To: to, Err: err}
	}

	start := time.Now()
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return &types.DeliveryError{To: to, Err: err}
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("sms sent", "sid", sid, "duration", time.Since(start))
	return nil
}

// DryRun logs texts instead of sending them.
type DryRun struct {
	mu   sync.Mutex
	sent int
}

// Send logs the message and counts it as delivered.
func (d *DryRun) Send(_ context.Context, to, body string) error {
	d.mu.Lock()
	d.sent++
	d.mu.Unlock()
	slog.Info("sms dry run", "to", to, "body", body)
	return nil
}

// Sent returns the number of messages logged so far.
func (d *DryRun) Sent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent
}
