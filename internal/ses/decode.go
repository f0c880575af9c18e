package ses

import (
	"github.com/garrettladley/sesgate/internal/objectstore"
	"github.com/garrettladley/sesgate/internal/sns"
)

// Decode maps an authenticated notification to an Action. It never fails: an
// inner payload that cannot be decoded is an Ignore.
func Decode(n sns.Notification) Action {
	switch n.Kind {
	case sns.KindSubscriptionConfirmation:
		return ConfirmSubscription{URL: n.SubscribeURL}
	case sns.KindUnsubscribeConfirmation:
		return Ignore{Reason: ReasonUnsubscribe}
	case sns.KindNotification:
	default:
		return Ignore{Reason: ReasonUnsupportedKind}
	}

	msg, err := parseMessage(n.Message)
	if err != nil {
		return Ignore{Reason: ReasonMalformedInnerPayload}
	}

	switch ParseNotificationType(msg.NotificationType) {
	case NotificationTypeReceived:
	case NotificationTypeBounce:
		return Ignore{Reason: ReasonBounce}
	case NotificationTypeComplaint:
		return Ignore{Reason: ReasonComplaint}
	default:
		return Ignore{Reason: ReasonUnsupportedType}
	}

	content := DeliveryContent{
		NotificationType: NotificationTypeReceived,
		MailMessageID:    msg.Mail.CommonHeaders.MessageID,
	}

	if action := msg.Receipt.Action; action.isS3() {
		content.StorageRef = &objectstore.Ref{
			Bucket: action.BucketName,
			Key:    action.ObjectKey,
			Region: region(action.TopicARN, n.TopicARN),
		}
		return Deliver{Content: content}
	}

	inline, err := msg.inline()
	if err != nil {
		return Ignore{Reason: ReasonMalformedInnerPayload}
	}
	content.Inline = inline
	return Deliver{Content: content}
}

// region prefers the receipt action's topic, which names where the bucket
// notification was raised, over the envelope topic.
func region(arns ...string) string {
	for _, s := range arns {
		if arn, err := sns.ParseTopicARN(s); err == nil {
			return arn.Region
		}
	}
	return ""
}
