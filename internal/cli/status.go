package cli

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rizal/tether/internal/config"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	Long:  `Show the current status of the Tether agent, including the proxy connection state.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()

	if !isRunning(pidFile) {
		fmt.Println("Status: stopped")
		return nil
	}

	pid, err := readPID(pidFile)
	if err != nil {
		return err
	}

	fmt.Printf("Status: running\n")
	fmt.Printf("PID: %d\n", pid)

	// Get PID file modification time for uptime calculation
	if fileInfo, err := os.Stat(pidFile); err == nil {
		uptime := time.Since(fileInfo.ModTime())
		fmt.Printf("Uptime: %s\n", formatDuration(uptime))
	}

	// Ask the local status server for the connection state
	cfg, err := config.Load(cfgFile)
	if err != nil || !cfg.Status.Enabled {
		return nil
	}

	conn, detail, err := fetchConnectionStatus(cfg.Status.Host, cfg.Status.Port)
	if err != nil {
		fmt.Printf("Connection: unknown (%v)\n", err)
		return nil
	}

	fmt.Printf("Connection: %s\n", conn)
	if detail != "" {
		fmt.Printf("Detail: %s\n", detail)
	}

	return nil
}

func fetchConnectionStatus(host string, port int) (string, string, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	resp, err := client.Get(fmt.Sprintf("http://%s/status", addr))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var body struct {
		Connection       string `json:"connection"`
		ConnectionDetail string `json:"connection_detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", err
	}

	return body.Connection, body.ConnectionDetail, nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
