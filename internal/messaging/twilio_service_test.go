package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowdesk/flowdesk/internal/models"
	"github.com/flowdesk/flowdesk/internal/twilioclient"
)

func TestCanonicalizePhone(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+55 (92) 99999-0000", "5592999990000", false},
		{"5592999990000", "5592999990000", false},
		{"whatsapp:+5592999990000", "5592999990000", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, tc := range cases {
		got, err := canonicalizePhone(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("canonicalizePhone(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("canonicalizePhone(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("canonicalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTwilioServiceSendEmitsReceipt(t *testing.T) {
	mock := twilioclient.NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "+55 92 99999-0000", "olá"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(mock.SentMessages) != 1 || mock.SentMessages[0].To != "5592999990000" {
		t.Fatalf("unexpected sent messages %+v", mock.SentMessages)
	}

	select {
	case r := <-svc.Receipts():
		if r.To != "5592999990000" || r.Status != models.StatusTypeSent {
			t.Errorf("unexpected receipt %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("no receipt emitted")
	}
}

func TestTwilioServiceHandleInbound(t *testing.T) {
	svc := NewTwilioService(twilioclient.NewMockClient())
	at := time.Unix(1700000000, 0)

	if err := svc.HandleInbound("whatsapp:+5592999990000", "oi", at); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}

	select {
	case resp := <-svc.Responses():
		if resp.From != "5592999990000" || resp.Body != "oi" || resp.Time != at.Unix() {
			t.Errorf("unexpected response %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("no response forwarded")
	}
}

func TestTwilioServiceStopped(t *testing.T) {
	svc := NewTwilioService(twilioclient.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stop is idempotent.
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	if err := svc.SendMessage(context.Background(), "5592999990000", "olá"); !errors.Is(err, models.ErrServiceStopped) {
		t.Errorf("SendMessage after Stop = %v, want ErrServiceStopped", err)
	}
	if err := svc.HandleInbound("5592999990000", "oi", time.Now()); !errors.Is(err, models.ErrServiceStopped) {
		t.Errorf("HandleInbound after Stop = %v, want ErrServiceStopped", err)
	}
}
