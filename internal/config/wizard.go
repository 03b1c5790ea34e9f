package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== Tether Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// Proxy connection
	fmt.Println("Relay Proxy:")
	fmt.Println()

	for {
		fmt.Print("Proxy URL (ws:// or wss://): ")
		proxyURL, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if err := validator.ValidateProxyURL(proxyURL); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.Proxy.URL = proxyURL
		break
	}

	for {
		fmt.Print("Auth token: ")
		token, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if err := validator.ValidateAuthToken(token); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.Proxy.AuthToken = token
		break
	}

	fmt.Println()

	// Status server
	fmt.Print("Enable local status server? (y/n) [y]: ")
	enable, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if enable == "" || strings.ToLower(enable) == "y" {
		cfg.Status.Enabled = true

		fmt.Printf("Status server port [%d]: ", cfg.Status.Port)
		portStr, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				fmt.Printf("Warning: not a number, using default (%d)\n", cfg.Status.Port)
			} else if err := validator.ValidatePort(port); err != nil {
				fmt.Printf("Warning: %v, using default (%d)\n", err, cfg.Status.Port)
			} else {
				cfg.Status.Port = port
			}
		}
	} else {
		cfg.Status.Enabled = false
	}

	fmt.Println()

	// Log Level
	fmt.Println("Logging:")
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
