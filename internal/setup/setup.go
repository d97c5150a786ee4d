// Package setup registers the MCP server in a desktop MCP client's configuration file.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// DefaultServerName is the key the MCP server is registered under.
const DefaultServerName = "medreport-explainer"

// ClientConfig represents the MCP client configuration file structure. Unknown top-level
// keys are preserved.
type ClientConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`

	extra map[string]json.RawMessage
}

// ServerEntry represents a single MCP server configuration.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// ClientConfigPath returns the path of the Claude Desktop configuration file on this system.
func ClientConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return clientConfigPath(runtime.GOOS, home, os.Getenv)
}

func clientConfigPath(goos, home string, getenv func(string) string) (string, error) {
	var configDir string
	switch goos {
	case "darwin":
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
		} else {
			configDir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}
	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadClientConfig loads the configuration at path. A missing file yields an empty config.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ClientConfig{MCPServers: make(map[string]ServerEntry)}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config := &ClientConfig{MCPServers: make(map[string]ServerEntry), extra: raw}
	if servers, ok := raw["mcpServers"]; ok {
		if err := json.Unmarshal(servers, &config.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		if config.MCPServers == nil {
			config.MCPServers = make(map[string]ServerEntry)
		}
		delete(config.extra, "mcpServers")
	}
	return config, nil
}

// MarshalJSON writes mcpServers alongside any preserved keys.
func (c *ClientConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.extra)+1)
	for k, v := range c.extra {
		out[k] = v
	}
	out["mcpServers"] = c.MCPServers
	return json.Marshal(out)
}

// SaveClientConfig writes config to path, creating the directory if needed.
func SaveClientConfig(path string, config *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or replaces the server entry name in the client configuration at path.
func Register(path, name string, entry ServerEntry) error {
	if entry.Command == "" {
		return fmt.Errorf("server command is required")
	}
	if name == "" {
		name = DefaultServerName
	}
	if _, err := os.Stat(entry.Command); err != nil {
		return fmt.Errorf("server binary %s: %w", entry.Command, err)
	}
	if abs, err := filepath.Abs(entry.Command); err == nil {
		entry.Command = abs
	}

	config, err := LoadClientConfig(path)
	if err != nil {
		return err
	}
	config.MCPServers[name] = entry
	return SaveClientConfig(path, config)
}

// Unregister removes the server entry name. It reports whether the entry existed.
func Unregister(path, name string) (bool, error) {
	config, err := LoadClientConfig(path)
	if err != nil {
		return false, err
	}
	if _, ok := config.MCPServers[name]; !ok {
		return false, nil
	}
	delete(config.MCPServers, name)
	return true, SaveClientConfig(path, config)
}
