// Command piwardrive-kiosk launches the piwardrive-webui service and opens a
// local browser in kiosk mode pointed at it. It exits non-zero when no
// browser is available or the service fails to come up.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"
)

const readyTimeout = 30 * time.Second

// browserCandidates in preference order; the first one on PATH wins.
var browserCandidates = []string{"chromium-browser", "chromium", "firefox"}

func main() {
	url := flag.String("url", "http://127.0.0.1:8000", "service URL to open")
	service := flag.String("service", "piwardrive-webui", "service binary to launch (empty to attach to a running one)")
	browser := flag.String("browser", "", "browser binary (default: first of chromium-browser, chromium, firefox)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *url, *service, *browser); err != nil {
		slog.Error("kiosk failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, url, service, browser string) error {
	browserPath, err := findBrowser(browser)
	if err != nil {
		return err
	}

	var svc *exec.Cmd
	if service != "" {
		svc = exec.CommandContext(ctx, service)
		svc.Stdout = os.Stdout
		svc.Stderr = os.Stderr
		if err := svc.Start(); err != nil {
			return fmt.Errorf("start service: %w", err)
		}
		defer func() {
			if svc.Process != nil {
				svc.Process.Signal(syscall.SIGTERM)
				svc.Wait()
			}
		}()
	}

	if err := waitReady(ctx, url); err != nil {
		return err
	}

	slog.Info("opening kiosk browser", "browser", browserPath, "url", url)
	cmd := exec.CommandContext(ctx, browserPath, "--kiosk", url)
	if err := cmd.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("browser: %w", err)
	}
	return nil
}

func findBrowser(preferred string) (string, error) {
	candidates := browserCandidates
	if preferred != "" {
		candidates = []string{preferred}
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no kiosk browser found (tried %v)", candidates)
}

// waitReady polls the service URL until it answers or the timeout expires.
func waitReady(ctx context.Context, url string) error {
	deadline := time.Now().Add(readyTimeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("service at %s not ready after %s", url, readyTimeout)
}
