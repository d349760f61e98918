package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	_ "github.com/mattn/go-sqlite3"

	"wabridge/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your wabridge installation",
		Long: `Verifies that wabridge's configuration, credential store, media
directory and webhook target are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("wabridge Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'wabridge init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
			} else {
				printPass("Config validation", "valid")
				passed++
			}

			if cfg == nil {
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}

			// 3. Data directory exists
			if info, err := os.Stat(cfg.General.DataDir); err != nil {
				printFail("Data directory", fmt.Sprintf("not found: %s", cfg.General.DataDir))
				failed++
			} else if !info.IsDir() {
				printFail("Data directory", fmt.Sprintf("not a directory: %s", cfg.General.DataDir))
				failed++
			} else {
				printPass("Data directory", cfg.General.DataDir)
				passed++
			}

			// 4. Credential store writable
			if err := checkCredentialStore(cfg.Session.StorePath); err != nil {
				printFail("Credential store", err.Error())
				failed++
			} else {
				printPass("Credential store", cfg.Session.StorePath)
				passed++
			}

			// 5. Media directory writable
			if err := os.MkdirAll(cfg.Media.Dir, 0o755); err != nil {
				printFail("Media directory", fmt.Sprintf("cannot create: %v", err))
				failed++
			} else {
				printPass("Media directory", cfg.Media.Dir)
				passed++
			}

			// 6. Webhook target reachable
			if host, err := webhookHost(cfg.Webhook.URL); err != nil {
				printFail("Webhook URL", err.Error())
				failed++
			} else if err := checkHost(host); err != nil {
				printWarn("Webhook target", fmt.Sprintf("%s not reachable: %v", host, err))
				warned++
			} else {
				printPass("Webhook target", host)
				passed++
			}

			// 7. API port available
			if err := checkPort(cfg.Server.Port); err != nil {
				printWarn("API port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("API port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running wabridge.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nwabridge should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! wabridge is ready to run.\n")
			}
			return nil
		},
	}
}

func checkCredentialStore(storePath string) error {
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		return fmt.Errorf("cannot create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+storePath+"?_foreign_keys=on")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func webhookHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid webhook URL: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host += ":443"
		} else {
			host += ":80"
		}
	}
	return host, nil
}

func checkHost(host string) error {
	conn, err := net.DialTimeout("tcp", host, 3*time.Second)
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
