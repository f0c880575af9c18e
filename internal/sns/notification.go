package sns

import (
	"bytes"
	"fmt"
	"strings"

	go_json "github.com/goccy/go-json"
)

type Kind string

const (
	KindSubscriptionConfirmation Kind = "SubscriptionConfirmation"
	KindNotification             Kind = "Notification"
	KindUnsubscribeConfirmation  Kind = "UnsubscribeConfirmation"
	KindUnknown                  Kind = "Unknown"
)

func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindSubscriptionConfirmation, KindNotification, KindUnsubscribeConfirmation:
		return Kind(s)
	default:
		return KindUnknown
	}
}

// Notification is an SNS HTTP/S delivery envelope. Values are built once by Parse
// and passed by value; nothing in the pipeline mutates one after parsing.
type Notification struct {
	Kind             Kind
	Type             string
	MessageID        string
	TopicARN         string
	Subject          string
	Message          string
	Timestamp        string
	Token            string
	SubscribeURL     string
	UnsubscribeURL   string
	Signature        string
	SigningCertURL   string
	SignatureVersion string

	raw []byte
}

// Raw returns a copy of the body the notification was parsed from.
func (n Notification) Raw() []byte {
	return bytes.Clone(n.raw)
}

// envelope mirrors the wire format. Key matching is case-insensitive, which also
// accepts the SigningCertUrl spelling used by older deliveries.
type envelope struct {
	Type             string  `json:"Type"`
	MessageID        string  `json:"MessageId"`
	TopicARN         string  `json:"TopicArn"`
	Subject          *string `json:"Subject"`
	Message          string  `json:"Message"`
	Timestamp        string  `json:"Timestamp"`
	Token            string  `json:"Token"`
	SubscribeURL     string  `json:"SubscribeURL"`
	UnsubscribeURL   string  `json:"UnsubscribeURL"`
	Signature        string  `json:"Signature"`
	SigningCertURL   string  `json:"SigningCertURL"`
	SignatureVersion string  `json:"SignatureVersion"`
}

// Parse decodes a raw webhook body. The Type and TopicArn fields are required;
// everything else is checked by signature verification.
func Parse(body []byte) (Notification, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Notification{}, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	var env envelope
	if err := go_json.Unmarshal(body, &env); err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if strings.TrimSpace(env.Type) == "" {
		return Notification{}, fmt.Errorf("%w: missing Type", ErrMalformed)
	}
	if strings.TrimSpace(env.TopicARN) == "" {
		return Notification{}, fmt.Errorf("%w: missing TopicArn", ErrMalformed)
	}

	n := Notification{
		Kind:             ParseKind(env.Type),
		Type:             env.Type,
		MessageID:        env.MessageID,
		TopicARN:         env.TopicARN,
		Message:          env.Message,
		Timestamp:        env.Timestamp,
		Token:            env.Token,
		SubscribeURL:     env.SubscribeURL,
		UnsubscribeURL:   env.UnsubscribeURL,
		Signature:        env.Signature,
		SigningCertURL:   env.SigningCertURL,
		SignatureVersion: env.SignatureVersion,
		raw:              bytes.Clone(body),
	}
	if env.Subject != nil {
		n.Subject = *env.Subject
	}
	return n, nil
}
