package config

import "path/filepath"

func Defaults() *Config {
	dataDir := DefaultConfigDir()
	return &Config{
		General: GeneralConfig{
			DataDir:  dataDir,
			LogLevel: "info",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Session: SessionConfig{
			StorePath:             filepath.Join(dataDir, "session.db"),
			ReconnectDelaySeconds: 5,
			SendRatePerMinute:     30,
			PrintQR:               true,
		},
		Webhook: WebhookConfig{
			URL:            "http://localhost:8069/whatsapp/webhook",
			TimeoutSeconds: 30,
		},
		Media: MediaConfig{
			Dir:                 filepath.Join(dataDir, "uploads"),
			MaxBytes:            10 << 20, // 10MB
			CleanupDelaySeconds: 30,
		},
		Bulk: BulkConfig{
			DelayMs:  2000,
			JitterMs: 1500,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
