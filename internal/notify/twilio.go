// Package notify: Twilio SMS delivery.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/pipkin-app/pipkin/internal/models"
)

// MessageCreator is the slice of the Twilio API the notifier uses.
// Satisfied by twilio.RestClient's Api service; mockable in tests.
type MessageCreator interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// TwilioNotifier delivers notifications as SMS messages via Twilio.
type TwilioNotifier struct {
	api  MessageCreator
	from string
	to   string
}

// NewTwilioNotifier creates a TwilioNotifier from account credentials.
func NewTwilioNotifier(accountSID, authToken, from, to string) (*TwilioNotifier, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("twilio credentials not set")
	}
	if from == "" || to == "" {
		return nil, fmt.Errorf("twilio from/to numbers not set")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	slog.Debug("Creating TwilioNotifier", "from", from)
	return &TwilioNotifier{api: client.Api, from: from, to: to}, nil
}

// NewTwilioNotifierWithAPI creates a TwilioNotifier over an explicit API
// client. Used in tests.
func NewTwilioNotifierWithAPI(api MessageCreator, from, to string) *TwilioNotifier {
	return &TwilioNotifier{api: api, from: from, to: to}
}

// SlotUnlocked sends the slot-unlocked SMS.
func (n *TwilioNotifier) SlotUnlocked(ctx context.Context, slot models.TimeSlot, taskCount int) error {
	return n.send(SlotUnlockedBody(slot, taskCount))
}

// TaskReminder sends the task reminder SMS.
func (n *TwilioNotifier) TaskReminder(ctx context.Context, task models.UserTask) error {
	return n.send(TaskReminderBody(task))
}

func (n *TwilioNotifier) send(body string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetFrom(n.from)
	params.SetTo(n.to)
	params.SetBody(body)

	if _, err := n.api.CreateMessage(params); err != nil {
		slog.Error("TwilioNotifier send failed", "error", err)
		return fmt.Errorf("failed to send twilio message: %w", err)
	}
	slog.Debug("TwilioNotifier send succeeded", "to", n.to)
	return nil
}
