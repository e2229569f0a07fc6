/**
 * @description
 * This file defines the message contracts this service publishes to and
 * consumes from RabbitMQ.
 */
package domain

import "github.com/google/uuid"

const (
	// NotificationExchange receives email commands for the notification service.
	NotificationExchange = "notification_events"
	// ProfileExchange carries profile background jobs.
	ProfileExchange = "profile_events"
	// PhotoUploadRoutingKey routes photo upload jobs.
	PhotoUploadRoutingKey = "profile.photos.upload"
	// PhotoUploadQueue is the durable queue the upload worker consumes.
	PhotoUploadQueue = "bank_api_profile_photo_uploads"
)

// Email templates.
const (
	TemplateLoginOTP         = "login_otp"
	TemplateAccountCreated   = "account_created"
	TemplateAccountActivated = "account_activated"
)

// EmailCommand asks the notification service to render and deliver an email.
type EmailCommand struct {
	To       string         `json:"to"`
	Template string         `json:"template"`
	Context  map[string]any `json:"context"`
}

// PhotoSourceType says where the bytes of a photo upload come from.
type PhotoSourceType string

const (
	PhotoSourceBase64 PhotoSourceType = "base64"
	PhotoSourceFile   PhotoSourceType = "file"
)

// PhotoSource is one photo to upload: inline base64 data or a spooled temp file.
type PhotoSource struct {
	Type PhotoSourceType `json:"type"`
	Data string          `json:"data"`
}

// PhotoUploadJob uploads a profile's document images. It is keyed by profile id
// and safe to run more than once.
type PhotoUploadJob struct {
	ProfileID uuid.UUID                  `json:"profile_id"`
	Photos    map[PhotoField]PhotoSource `json:"photos"`
}
