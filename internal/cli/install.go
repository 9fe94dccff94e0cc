package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nickcecere/docrag/internal/install"
	"github.com/nickcecere/docrag/internal/ui"
)

var (
	installConfig  string
	installCommand string
)

// installCmd represents the install command.
var installCmd = &cobra.Command{
	Use:   "install <client|all>",
	Short: "Register docrag's MCP server with an MCP client",
	Long: `Add docrag as an MCP server to an MCP client's configuration, so the
client starts 'docrag mcp' and can list, search and ask your indexes.

Supported clients:
` + clientList() + `
Examples:
  # Register with one client
  docrag install opencode

  # Register with every supported client
  docrag install all

  # Edit a specific config file and use an absolute binary path
  docrag install claude-code --config ./client.json --command /usr/local/bin/docrag`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

// uninstallCmd represents the uninstall command.
var uninstallCmd = &cobra.Command{
	Use:   "uninstall <client|all>",
	Short: "Remove docrag's MCP server from an MCP client",
	Args:  cobra.ExactArgs(1),
	RunE:  runUninstall,
}

func init() {
	for _, c := range []*cobra.Command{installCmd, uninstallCmd} {
		c.Flags().StringVar(&installConfig, "config-file", "", "client config file (defaults to the client's usual location)")
	}
	installCmd.Flags().StringVar(&installCommand, "command", "docrag", "docrag executable the client should launch")
}

func clientList() string {
	var sb strings.Builder
	for _, c := range install.Clients() {
		fmt.Fprintf(&sb, "  - %s: %s\n", c.Name, c.Display)
	}
	return sb.String()
}

// targets resolves a client name or "all".
func targets(name string) ([]install.Client, error) {
	if name == "all" {
		if installConfig != "" {
			return nil, fmt.Errorf("--config-file cannot be used with all")
		}
		return install.Clients(), nil
	}
	c, ok := install.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown client %q, expected one of:\n%s", name, clientList())
	}
	return []install.Client{c}, nil
}

func configPath(c install.Client) string {
	if installConfig != "" {
		return installConfig
	}
	return c.ConfigPath()
}

func runInstall(cmd *cobra.Command, args []string) error {
	clients, err := targets(args[0])
	if err != nil {
		return err
	}

	failed := 0
	for _, c := range clients {
		path := configPath(c)
		if err := install.Install(c, path, []string{installCommand, "mcp"}); err != nil {
			fmt.Fprintln(os.Stderr, ui.Warning.Render(fmt.Sprintf("%s: %v", c.Display, err)))
			failed++
			continue
		}
		fmt.Println(ui.Success.Render("Installed docrag into " + c.Display))
		fmt.Printf("  Config updated: %s\n", path)
	}

	if failed > 0 && failed == len(clients) {
		return fmt.Errorf("install failed")
	}
	fmt.Println()
	fmt.Println(ui.Dim.Render("Restart the client to pick up the change. To undo: docrag uninstall " + args[0]))
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	clients, err := targets(args[0])
	if err != nil {
		return err
	}

	for _, c := range clients {
		path := configPath(c)
		removed, err := install.Uninstall(c, path)
		if err != nil {
			return fmt.Errorf("%s: %w", c.Display, err)
		}
		if removed {
			fmt.Println(ui.Success.Render("Uninstalled docrag from " + c.Display))
		} else {
			fmt.Printf("docrag is not installed in %s (%s)\n", c.Display, path)
		}
	}
	return nil
}
