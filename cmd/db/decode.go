package main

import (
	"fmt"
	"os"

	go_json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/garrettladley/sesgate/internal/ses"
	"github.com/garrettladley/sesgate/internal/sns"
)

type decoded struct {
	Action           string `json:"action"`
	Type             string `json:"type"`
	TopicARN         string `json:"topic_arn"`
	MessageID        string `json:"message_id"`
	URL              string `json:"subscribe_url,omitempty"`
	Reason           string `json:"reason,omitempty"`
	NotificationType string `json:"notification_type,omitempty"`
	MailMessageID    string `json:"mail_message_id,omitempty"`
	InlineBytes      int    `json:"inline_bytes,omitempty"`
	StorageRef       string `json:"storage_ref,omitempty"`
	Region           string `json:"region,omitempty"`
}

func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <envelope.json>",
		Short: "Show what the ingress would do with an SNS envelope, without verifying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read envelope: %w", err)
			}

			n, err := sns.Parse(body)
			if err != nil {
				return err
			}

			out := decoded{Type: n.Type, TopicARN: n.TopicARN, MessageID: n.MessageID}
			switch a := ses.Decode(n).(type) {
			case ses.ConfirmSubscription:
				out.Action = "confirm"
				out.URL = a.URL
			case ses.Deliver:
				out.Action = "deliver"
				out.NotificationType = string(a.Content.NotificationType)
				out.MailMessageID = a.Content.MailMessageID
				out.InlineBytes = len(a.Content.Inline)
				if ref := a.Content.StorageRef; ref != nil {
					out.StorageRef = ref.String()
					out.Region = ref.Region
				}
			case ses.Ignore:
				out.Action = "ignore"
				out.Reason = string(a.Reason)
			}

			data, err := go_json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
