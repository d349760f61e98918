package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"wabridge/internal/config"
	"wabridge/internal/domain"
)

// guestFile is the on-disk shape of a bulk send: a guest list plus the
// message template with {name}/{guestName} placeholders.
type guestFile struct {
	MessageTemplate string         `yaml:"messageTemplate"`
	DelayMs         *int           `yaml:"delayMs,omitempty"`
	Guests          []domain.Guest `yaml:"guests"`
}

func bulkCmd() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "bulk [guest-file.yaml]",
		Short: "Send a bulk batch from a YAML guest list through a running relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if serverURL == "" {
				serverURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read guest file: %w", err)
			}
			var file guestFile
			if err := yaml.Unmarshal(raw, &file); err != nil {
				return fmt.Errorf("parse guest file: %w", err)
			}
			if file.MessageTemplate == "" {
				return fmt.Errorf("guest file has no messageTemplate")
			}
			if len(file.Guests) == 0 {
				return fmt.Errorf("guest file has no guests")
			}

			payload := map[string]any{
				"guests":          file.Guests,
				"messageTemplate": file.MessageTemplate,
			}
			if file.DelayMs != nil {
				payload["delay"] = *file.DelayMs
			}

			result, err := postBulk(cmd.Context(), serverURL, payload, batchTimeout(cfg, len(file.Guests)))
			if err != nil {
				return err
			}

			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "relay base URL (default: http://127.0.0.1:<configured port>)")
	return cmd
}

// batchTimeout gives the whole batch room for its per-guest pauses.
func batchTimeout(cfg *config.Config, guests int) time.Duration {
	perGuest := time.Duration(cfg.Bulk.DelayMs+cfg.Bulk.JitterMs)*time.Millisecond + 30*time.Second
	return time.Duration(guests)*perGuest + time.Minute
}

func postBulk(ctx context.Context, serverURL string, payload map[string]any, timeout time.Duration) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/api/send-bulk", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post bulk: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decoded, fmt.Errorf("bulk send failed: status %d: %v", resp.StatusCode, decoded["error"])
	}
	return decoded, nil
}

func fetchStatus(ctx context.Context, serverURL string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/api/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}
