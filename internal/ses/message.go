package ses

import (
	"encoding/base64"
	"fmt"
	"strings"

	go_json "github.com/goccy/go-json"
)

const (
	actionTypeS3  = "S3"
	actionTypeSNS = "SNS"

	encodingBase64 = "BASE64"
)

// message is the SES notification carried in the envelope's Message field.
type message struct {
	NotificationType string  `json:"notificationType"`
	Content          string  `json:"content"`
	Mail             mail    `json:"mail"`
	Receipt          receipt `json:"receipt"`
}

type mail struct {
	// MessageID is the SES-assigned id, which is also the S3 object key.
	MessageID     string        `json:"messageId"`
	CommonHeaders commonHeaders `json:"commonHeaders"`
}

type commonHeaders struct {
	// MessageID is the RFC 5322 Message-ID header as sent.
	MessageID string `json:"messageId"`
}

type receipt struct {
	Action receiptAction `json:"action"`
}

type receiptAction struct {
	Type       string `json:"type"`
	TopicARN   string `json:"topicArn"`
	BucketName string `json:"bucketName"`
	ObjectKey  string `json:"objectKey"`
	Encoding   string `json:"encoding"`
}

func (a receiptAction) isS3() bool {
	return strings.EqualFold(a.Type, actionTypeS3) && a.BucketName != "" && a.ObjectKey != ""
}

func parseMessage(raw string) (message, error) {
	var m message
	if err := go_json.Unmarshal([]byte(raw), &m); err != nil {
		return message{}, err
	}
	return m, nil
}

// inline returns the message bytes carried in content. SNS actions configured
// with BASE64 encoding deliver the message base64-encoded.
func (m message) inline() ([]byte, error) {
	if m.Content == "" {
		return nil, nil
	}
	if strings.EqualFold(m.Receipt.Action.Type, actionTypeSNS) && strings.EqualFold(m.Receipt.Action.Encoding, encodingBase64) {
		b, err := base64.StdEncoding.DecodeString(m.Content)
		if err != nil {
			return nil, fmt.Errorf("decode base64 content: %w", err)
		}
		return b, nil
	}
	return []byte(m.Content), nil
}
