package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/garrettladley/sesgate/internal/config"
	"github.com/garrettladley/sesgate/internal/sns"
	"github.com/garrettladley/sesgate/internal/storage"
	"github.com/garrettladley/sesgate/internal/xhttp"
)

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <envelope.json>",
		Short: "Check an SNS envelope against the topic allow-list and its signature",
		Long: "Downloads the signing certificate named by the envelope and verifies it. " +
			"When SNS_TOPICS is unset the envelope's own topic is trusted, so only the signature is checked.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read envelope: %w", err)
			}

			cfg, err := config.Read()
			if err != nil {
				return err
			}

			n, err := sns.Parse(body)
			if err != nil {
				return err
			}

			topics := cfg.SNS.Topics
			if len(topics) == 0 {
				topics = []string{n.TopicARN}
			}

			policy, err := sns.NewHostPolicy(cfg.SNS.SigningHostPatterns)
			if err != nil {
				return err
			}

			cache := storage.NewMemoryBackend(1, 1)
			defer func() { _ = cache.Close() }()

			client := xhttp.NewHTTPClient(xhttp.WithTimeout(cfg.OutboundTimeout), xhttp.WithoutRedirects())
			auth := sns.NewAuthenticator(topics, sns.NewCertificateFetcher(client, cache, policy, cfg.SNS.CertificateTTL))

			if _, err := auth.Authenticate(ctx, body, nil); err != nil {
				return err
			}

			fmt.Printf("OK %s %s (message %s, signature v%s)\n", n.Type, n.TopicARN, n.MessageID, n.SignatureVersion)
			return nil
		},
	}
}
