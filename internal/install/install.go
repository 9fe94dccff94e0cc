// Package install registers docrag's MCP server with MCP client
// applications by editing their JSON configuration files.
package install

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ServerKey is the name docrag is registered under.
const ServerKey = "docrag"

// Client describes where an MCP client keeps its server list.
type Client struct {
	// Name is the command-line target, e.g. "opencode".
	Name string
	// Display is the human readable name.
	Display string

	configPath func() string
	section    string
	entry      func(command []string) map[string]any
	defaults   map[string]any
}

// ConfigPath returns the client's default configuration file.
func (c Client) ConfigPath() string {
	return c.configPath()
}

var clients = []Client{
	{
		Name:       "claude-code",
		Display:    "Claude Code",
		configPath: claudeCodeConfigPath,
		section:    "mcpServers",
		entry: func(command []string) map[string]any {
			return map[string]any{"command": command[0], "args": command[1:]}
		},
	},
	{
		Name:       "opencode",
		Display:    "OpenCode",
		configPath: openCodeConfigPath,
		section:    "mcp",
		entry: func(command []string) map[string]any {
			return map[string]any{"type": "local", "command": command, "enabled": true}
		},
		defaults: map[string]any{"$schema": "https://opencode.ai/config.json"},
	},
}

// Clients returns the supported clients sorted by name.
func Clients() []Client {
	out := append([]Client(nil), clients...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the client with the given name.
func Lookup(name string) (Client, bool) {
	for _, c := range clients {
		if c.Name == name {
			return c, true
		}
	}
	return Client{}, false
}

// Install adds or replaces the docrag server entry in the config at path,
// keeping every other setting. command is the argv that starts the server.
func Install(c Client, path string, command []string) error {
	if len(command) == 0 {
		return errors.New("command must not be empty")
	}

	cfg, err := readConfig(path)
	if err != nil {
		return err
	}
	for k, v := range c.defaults {
		if _, ok := cfg[k]; !ok {
			cfg[k] = v
		}
	}

	servers, ok := cfg[c.section].(map[string]any)
	if !ok {
		servers = make(map[string]any)
	}
	servers[ServerKey] = c.entry(command)
	cfg[c.section] = servers

	return writeConfig(path, cfg)
}

// Uninstall removes the docrag server entry from the config at path. It
// reports whether an entry was removed; a missing config is not an error.
func Uninstall(c Client, path string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}

	cfg, err := readConfig(path)
	if err != nil {
		return false, err
	}

	servers, ok := cfg[c.section].(map[string]any)
	if !ok {
		return false, nil
	}
	if _, ok := servers[ServerKey]; !ok {
		return false, nil
	}
	delete(servers, ServerKey)
	cfg[c.section] = servers

	return true, writeConfig(path, cfg)
}

// readConfig parses the JSON object at path. A missing file is empty.
func readConfig(path string) (map[string]any, error) {
	cfg := make(map[string]any)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse existing config %s: %w", path, err)
	}
	return cfg, nil
}

// writeConfig replaces path atomically.
func writeConfig(path string, cfg map[string]any) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func claudeCodeConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude.json")
}

func openCodeConfigPath() string {
	home, _ := os.UserHomeDir()

	// Check for both .json and .jsonc
	jsonPath := filepath.Join(home, ".config", "opencode", "opencode.json")
	jsoncPath := filepath.Join(home, ".config", "opencode", "opencode.jsonc")

	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath
	}
	if _, err := os.Stat(jsoncPath); err == nil {
		return jsoncPath
	}
	return jsonPath // Default to .json
}
