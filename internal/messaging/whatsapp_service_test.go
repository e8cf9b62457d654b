package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/flowdesk/flowdesk/internal/models"
	"github.com/flowdesk/flowdesk/internal/whatsapp"
)

func TestWhatsAppServiceSendEmitsReceipt(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	if err := svc.SendMessage(context.Background(), "+5592999990000", "olá"); err != nil {
		t.Fatalf("SendMessage: %v", err)
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

func TestWhatsAppServiceRejectsInvalidRecipient(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	if err := svc.SendMessage(context.Background(), "not-a-number", "olá"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestWhatsAppServiceStartWithMockIsNoop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
