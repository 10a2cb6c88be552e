package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/councilchamber/internal/config"
)

// EnvironmentCheckResult holds what the environment contributes to the
// configuration
type EnvironmentCheckResult struct {
	ConfigPath string            // File the configuration came from, empty for defaults
	Present    map[string]string // Variables that are set (masked values)
	Warnings   []string          // Non-fatal warnings
}

// CheckEnvironment reports the credential and COUNCIL_* variables in effect
func CheckEnvironment(cfg *config.Config) *EnvironmentCheckResult {
	result := &EnvironmentCheckResult{
		ConfigPath: cfg.Path,
		Present:    make(map[string]string),
		Warnings:   []string{},
	}

	for _, v := range CredentialEnvVars {
		if val := os.Getenv(v); val != "" {
			result.Present[v] = maskSecret(val)
		}
	}

	for _, kv := range os.Environ() {
		name, val, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix) && name != "COUNCIL_API_KEY" {
			result.Present[name] = val
		}
	}

	if result.Present["COUNCIL_API_KEY"] == "" && result.Present["OPENROUTER_API_KEY"] == "" {
		result.Warnings = append(result.Warnings, "no API key in the environment; the saved key (council key set) will be used")
	}
	if cfg.General.Store == config.StoreMemory {
		result.Warnings = append(result.Warnings, "memory store: the API key, model and history are lost on exit")
	}

	return result
}

// PrintEnvironmentCheck prints the environment check results
func PrintEnvironmentCheck(out io.Writer, result *EnvironmentCheckResult) {
	fmt.Fprintln(out, "=== Configuration Check ===")

	if result.ConfigPath != "" {
		fmt.Fprintf(out, "Config file: %s\n", result.ConfigPath)
	} else {
		fmt.Fprintln(out, "Config file: none (defaults)")
	}

	fmt.Fprintln(out, "")

	if len(result.Present) > 0 {
		fmt.Fprintln(out, "✓ Environment variables:")
		for k, v := range result.Present {
			fmt.Fprintf(out, "   - %s = %s\n", k, v)
		}
		fmt.Fprintln(out, "")
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(out, "⚠ Warning: %s\n", w)
	}

	fmt.Fprintln(out, "============================")
}

// maskSecret masks a secret value for display, showing only first and last 2 chars
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

// LoadEnvFile loads environment variables from a file, overwriting existing ones.
func LoadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		// Overwrite environment variable
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set env var %s: %w", key, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}
