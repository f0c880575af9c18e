// Package ses classifies authenticated SNS envelopes carrying SES receipt
// notifications into the action the ingress should take.
package ses

import (
	"github.com/garrettladley/sesgate/internal/objectstore"
)

type NotificationType string

const (
	NotificationTypeReceived  NotificationType = "Received"
	NotificationTypeBounce    NotificationType = "Bounce"
	NotificationTypeComplaint NotificationType = "Complaint"
	NotificationTypeOther     NotificationType = "Other"
)

func ParseNotificationType(s string) NotificationType {
	switch NotificationType(s) {
	case NotificationTypeReceived, NotificationTypeBounce, NotificationTypeComplaint:
		return NotificationType(s)
	default:
		return NotificationTypeOther
	}
}

// DeliveryContent locates the raw message of a Received notification. At most
// one of Inline and StorageRef is set.
type DeliveryContent struct {
	NotificationType NotificationType
	Inline           []byte
	StorageRef       *objectstore.Ref
	// MailMessageID is the message's RFC 5322 Message-ID, empty when SES
	// did not report one.
	MailMessageID    string
}

func (c DeliveryContent) HasContent() bool {
	return len(c.Inline) > 0 || c.StorageRef != nil
}

type Reason string

const (
	ReasonBounce                Reason = "bounce"
	ReasonComplaint             Reason = "complaint"
	ReasonUnsubscribe           Reason = "unsubscribe"
	ReasonUnsupportedType       Reason = "unsupported-type"
	ReasonUnsupportedKind       Reason = "unsupported-kind"
	ReasonMalformedInnerPayload Reason = "malformed-inner-payload"
)

// Action is one of ConfirmSubscription, Deliver or Ignore.
type Action interface {
	action()
}

type ConfirmSubscription struct {
	URL string
}

type Deliver struct {
	Content DeliveryContent
}

type Ignore struct {
	Reason Reason
}

func (ConfirmSubscription) action() {}
func (Deliver) action()             {}
func (Ignore) action()              {}
