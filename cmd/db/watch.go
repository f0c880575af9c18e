package main

import (
	"errors"
	"fmt"

	go_json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/garrettladley/sesgate/internal/config"
	xredis "github.com/garrettladley/sesgate/internal/redis"
	"github.com/garrettladley/sesgate/internal/storage"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream inbound emails stored by the hybrid sink as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Read()
			if err != nil {
				return err
			}
			if cfg.Redis.URL == "" {
				return errors.New("REDIS_URL is required")
			}

			client, err := xredis.New(ctx, xredis.Config{URL: cfg.Redis.URL})
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			events, unsubscribe, err := storage.Subscribe(ctx, client)
			if err != nil {
				return err
			}
			defer unsubscribe()

			enc := go_json.NewEncoder(cmd.OutOrStdout())
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					if err := enc.Encode(ev); err != nil {
						return fmt.Errorf("failed to write event: %w", err)
					}
				}
			}
		},
	}
}
