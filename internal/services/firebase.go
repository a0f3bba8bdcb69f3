package services

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"gorm.io/gorm"
)

const pushTimeout = 10 * time.Second

// MessageSender is the part of the FCM client the notifier needs.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// NewMessagingClient initializes the Firebase Admin SDK from a service
// account file.
func NewMessagingClient(ctx context.Context, serviceAccountPath string) (*messaging.Client, error) {
	opt := option.WithCredentialsFile(serviceAccountPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %v", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %v", err)
	}
	return client, nil
}

// PushNotifier tells renters about status changes of their bookings on the
// device they registered.
type PushNotifier struct {
	db     *gorm.DB
	sender MessageSender
	log    *zap.Logger
}

func NewPushNotifier(db *gorm.DB, sender MessageSender, log *zap.Logger) *PushNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &PushNotifier{db: db, sender: sender, log: log}
}

// BookingChanged sends the push in the background so request handling
// never waits on FCM.
func (p *PushNotifier) BookingChanged(_ context.Context, event BookingEvent) {
	if event.Type != EventBookingStatusChanged {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := p.Notify(ctx, event); err != nil {
			p.log.Warn("booking push notification failed",
				zap.Uint("booking_id", event.BookingID), zap.Error(err))
		}
	}()
}

// Notify sends one notification for event. Users without a registered
// device are skipped.
func (p *PushNotifier) Notify(ctx context.Context, event BookingEvent) error {
	var user models.User
	if err := p.db.WithContext(ctx).Select("id", "fcm_token").First(&user, event.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return errors.Annotate(err, "loading device token")
	}
	if user.FCMToken == "" {
		return nil
	}

	message := bookingMessage(user.FCMToken, event)
	response, err := p.sender.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending message: %v", err)
	}
	p.log.Debug("push notification sent",
		zap.Uint("user_id", user.ID), zap.String("response", response))
	return nil
}

func bookingMessage(token string, event BookingEvent) *messaging.Message {
	title, body := bookingNotificationText(event)
	return &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{
			"type":       event.Type,
			"booking_id": fmt.Sprint(event.BookingID),
			"status":     string(event.Status),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID:             "bookings",
				Sound:                 "default",
				DefaultSound:          true,
				DefaultVibrateTimings: true,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
		Token: token,
	}
}

func bookingNotificationText(event BookingEvent) (string, string) {
	switch event.Status {
	case models.BookingStatusConfirmed:
		return "Booking confirmed", fmt.Sprintf("Your booking #%d is confirmed.", event.BookingID)
	case models.BookingStatusCompleted:
		return "Booking completed", fmt.Sprintf("Thanks for renting with us. Booking #%d is complete.", event.BookingID)
	case models.BookingStatusCancelled:
		return "Booking cancelled", fmt.Sprintf("Your booking #%d has been cancelled.", event.BookingID)
	default:
		return "Booking updated", fmt.Sprintf("Your booking #%d is now %s.", event.BookingID, event.Status)
	}
}
