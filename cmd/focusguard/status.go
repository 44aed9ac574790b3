package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"focusguard/internal/api/middleware"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the running daemon is monitoring",
	Long:  `Queries the daemon for the monitor state, the break and today's usage.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	base := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	client := &http.Client{}

	var monitorState struct {
		State      string `json:"state"`
		PackageID  string `json:"package_id"`
		Since      string `json:"since"`
		LastError  string `json:"last_error"`
		OverlayFor string `json:"overlay_for"`
	}
	if err := getJSON(ctx, client, base+"/v1/monitor", cfg.Security.APIKey, &monitorState); err != nil {
		return err
	}

	var breakState struct {
		Active           bool     `json:"active"`
		RemainingSeconds int64    `json:"remaining_seconds"`
		Whitelist        []string `json:"whitelist"`
	}
	if err := getJSON(ctx, client, base+"/v1/break", cfg.Security.APIKey, &breakState); err != nil {
		return err
	}

	var usage struct {
		TotalMin int64 `json:"total_min"`
		Apps     []struct {
			PackageID string `json:"package_id"`
			UsageMin  int64  `json:"usage_min"`
		} `json:"apps"`
	}
	if err := getJSON(ctx, client, base+"/v1/usage/today", cfg.Security.APIKey, &usage); err != nil {
		return err
	}

	fmt.Println("=== focusguard Status ===")
	fmt.Printf("Monitor:     %s", monitorState.State)
	if monitorState.PackageID != "" {
		fmt.Printf(" (%s since %s)", monitorState.PackageID, monitorState.Since)
	}
	fmt.Println()
	if monitorState.OverlayFor != "" {
		fmt.Printf("Overlay:     shown for %s\n", monitorState.OverlayFor)
	}
	if monitorState.LastError != "" {
		fmt.Printf("Last error:  %s\n", monitorState.LastError)
	}
	if breakState.Active {
		fmt.Printf("Break:       active, %s left, %d apps allowed\n",
			time.Duration(breakState.RemainingSeconds)*time.Second, len(breakState.Whitelist))
	} else {
		fmt.Println("Break:       inactive")
	}

	fmt.Printf("\nToday: %d min\n", usage.TotalMin)
	for _, app := range usage.Apps {
		fmt.Printf("  %-40s %4d min\n", app.PackageID, app.UsageMin)
	}
	return nil
}

func getJSON(ctx context.Context, client *http.Client, url, apiKey string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set(middleware.APIKeyHeader, apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
