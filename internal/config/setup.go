package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration.
func RunSetupWizard(cfg *Config) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║         GameeFlow - First Run Setup          ║")
	fmt.Println("╠══════════════════════════════════════════════╣")
	fmt.Println("║  Welcome! Let's configure your account.      ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("── Account Credentials ──")

	cfg.BackendData.Login = promptString(reader, "Account login", cfg.BackendData.Login)
	cfg.BackendData.Password = promptPassword(reader, "Account password")

	fmt.Println()
	fmt.Println("── Backend ──")

	cfg.BackendData.URL = promptString(reader, "Backend WebSocket URL", cfg.BackendData.URL)
	cfg.BackendData.Namespace = promptString(reader, "Socket namespace", cfg.BackendData.Namespace)
	cfg.BackendData.GameID = promptInt(reader, "Game id", cfg.BackendData.GameID)

	fmt.Println()
	fmt.Println("── Withdrawals ──")

	cfg.BackendData.FastexUserID = promptString(reader, "Fastex user id (blank to skip payouts)", cfg.BackendData.FastexUserID)
	if cfg.BackendData.FastexUserID != "" {
		cfg.BackendData.FTNAddress = promptString(reader, "FTN wallet address", cfg.BackendData.FTNAddress)
		cfg.BackendData.WithdrawalAmount = promptString(reader, "Default withdrawal amount", cfg.BackendData.WithdrawalAmount)
	}

	fmt.Println()
	fmt.Println("── Automation ──")

	cfg.ApplicationData.Endless.Enabled = promptBool(reader, "Enable endless score submission", cfg.ApplicationData.Endless.Enabled)
	if cfg.ApplicationData.Endless.Enabled {
		cfg.ApplicationData.Endless.ScoreMultiplier = promptInt(reader, "Score multiplier", cfg.ApplicationData.Endless.ScoreMultiplier)
		cfg.ApplicationData.Endless.TargetVIP = promptFloat(reader, "Target VIP balance (0 = no target)", cfg.ApplicationData.Endless.TargetVIP)
	}
	cfg.ApplicationData.AutoRefresh.Enabled = promptBool(reader, "Enable periodic leaderboard refresh", cfg.ApplicationData.AutoRefresh.Enabled)

	fmt.Println()
	fmt.Println("── Control API ──")

	cfg.ApplicationData.API.Enabled = promptBool(reader, "Enable local REST API", cfg.ApplicationData.API.Enabled)
	if cfg.ApplicationData.API.Enabled {
		cfg.ApplicationData.API.Port = promptInt(reader, "REST API port", cfg.ApplicationData.API.Port)
		cfg.ApplicationData.Security.AuthDisabled = promptBool(reader,
			"Skip API authentication (local use only)", cfg.ApplicationData.Security.AuthDisabled)
		if !cfg.ApplicationData.Security.AuthDisabled {
			cfg.ApplicationData.Security.APIToken = promptPassword(reader, "API bearer token")
		}
	}

	fmt.Println()
	fmt.Println("── MQTT Telemetry ──")

	cfg.ApplicationData.MQTT.Enabled = promptBool(reader, "Enable MQTT telemetry", cfg.ApplicationData.MQTT.Enabled)
	if cfg.ApplicationData.MQTT.Enabled {
		cfg.ApplicationData.MQTT.BrokerURL = promptString(reader, "MQTT broker URL", cfg.ApplicationData.MQTT.BrokerURL)
		cfg.ApplicationData.MQTT.Port = promptInt(reader, "MQTT broker port", cfg.ApplicationData.MQTT.Port)
	}

	// Validate before saving
	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Println("\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Printf("  - [%s] %s\n", e.Field, e.Message)
		}
		retry := promptString(reader, "Would you like to try again? (yes/no)", "yes")
		if strings.ToLower(retry) == "yes" {
			return RunSetupWizard(cfg)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	// Save configuration
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved successfully!")
	fmt.Println("  GameeFlow will now start with your configuration.")
	fmt.Println()

	return nil
}

func promptString(reader *bufio.Reader, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Printf("  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptPassword(reader *bufio.Reader, prompt string) string {
	fmt.Printf("  %s: ", prompt)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func promptInt(reader *bufio.Reader, prompt string, defaultVal int) int {
	fmt.Printf("  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Printf("    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptFloat(reader *bufio.Reader, prompt string, defaultVal float64) float64 {
	fmt.Printf("  %s [%s]: ", prompt, strconv.FormatFloat(defaultVal, 'f', -1, 64))

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.ParseFloat(input, 64)
	if err != nil {
		fmt.Printf("    Invalid number, using default: %s\n", strconv.FormatFloat(defaultVal, 'f', -1, 64))
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Printf("  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
