package sms

import (
	"context"
	"errors"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/user/smsrelay/internal/types"
)

type fakeAPI struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeAPI) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestNewNormalisesSender(t *testing.T) {
	s, err := New("AC123", "token", "(234) 567-8900")
	if err != nil {
		t.Fatal(err)
	}
	if s.From() != "+12345678900" {
		t.Errorf("expected +12345678900, got %q", s.From())
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("", "token", "+12345678900"); err == nil {
		t.Error("expected error without account sid")
	}
	if _, err := New("AC123", "token", "12"); !errors.Is(err, types.ErrInvalidPhone) {
		t.Errorf("expected ErrInvalidPhone, got %v", err)
	}
}

func TestSendBuildsParams(t *testing.T) {
	api := &fakeAPI{}
	s := &Sender{api: api, from: "+12345678900"}

	if err := s.Send(context.Background(), "+13125550000", "hello"); err != nil {
		t.Fatal(err)
	}
	if len(api.params) != 1 {
		t.Fatalf("expected 1 request, got %d", len(api.params))
	}
	p := api.params[0]
	if *p.To != "+13125550000" || *p.From != "+12345678900" || *p.Body != "hello" {
		t.Errorf("unexpected params to=%s from=%s body=%s", *p.To, *p.From, *p.Body)
	}
}

func TestSendWrapsFailure(t *testing.T) {
	api := &fakeAPI{err: errors.New("21211 invalid 'To' number")}
	s := &Sender{api: api, from: "+12345678900"}

	err := s.Send(context.Background(), "+13125550000", "hello")
	var de *types.DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if de.To != "+13125550000" {
		t.Errorf("expected recipient recorded, got %q", de.To)
	}
}

func TestSendCancelledContext(t *testing.T) {
	api := &fakeAPI{}
	s := &Sender{api: api, from: "+12345678900"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Send(ctx, "+13125550000", "hello"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(api.params) != 0 {
		t.Error("expected no request after cancellation")
	}
}

func TestDryRun(t *testing.T) {
	d := &DryRun{}
	if err := d.Send(context.Background(), "+12345678900", "hi"); err != nil {
		t.Fatal(err)
	}
	if d.Sent() != 1 {
		t.Errorf("expected 1 sent, got %d", d.Sent())
	}
}
