package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/pipkin-app/pipkin/internal/models"
)

type fakeAPI struct {
	sent []twilioapi.CreateMessageParams
	err  error
}

func (f *fakeAPI) CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, *params)
	return &twilioapi.ApiV2010Message{}, nil
}

func TestSlotUnlockedBody(t *testing.T) {
	if got := SlotUnlockedBody(models.SlotMorning, 1); !strings.Contains(got, "morning") {
		t.Errorf("body missing slot name: %q", got)
	}
	if got := SlotUnlockedBody(models.SlotEvening, 3); !strings.Contains(got, "3") {
		t.Errorf("body missing task count: %q", got)
	}
}

func TestTwilioNotifierSends(t *testing.T) {
	api := &fakeAPI{}
	n := NewTwilioNotifierWithAPI(api, "+15550001111", "+15552223333")

	if err := n.SlotUnlocked(context.Background(), models.SlotMorning, 2); err != nil {
		t.Fatalf("SlotUnlocked error: %v", err)
	}
	task := models.UserTask{Title: "Take a walk around the block", ScheduledDate: time.Now()}
	if err := n.TaskReminder(context.Background(), task); err != nil {
		t.Fatalf("TaskReminder error: %v", err)
	}
	if len(api.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(api.sent))
	}
	if got := *api.sent[1].Body; !strings.Contains(got, task.Title) {
		t.Errorf("reminder body missing title: %q", got)
	}
}

func TestTwilioNotifierPropagatesError(t *testing.T) {
	api := &fakeAPI{err: errors.New("twilio down")}
	n := NewTwilioNotifierWithAPI(api, "+15550001111", "+15552223333")
	if err := n.SlotUnlocked(context.Background(), models.SlotMorning, 1); err == nil {
		t.Errorf("expected error from failed send")
	}
}

func TestNewTwilioNotifierValidation(t *testing.T) {
	if _, err := NewTwilioNotifier("", "", "+1", "+2"); err == nil {
		t.Errorf("expected error for missing credentials")
	}
	if _, err := NewTwilioNotifier("sid", "token", "", ""); err == nil {
		t.Errorf("expected error for missing numbers")
	}
}
