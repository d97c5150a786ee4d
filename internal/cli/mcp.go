package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/medreport-explainer/internal/config"
	"github.com/medreport-explainer/internal/setup"
)

// NewMCPCmd creates the mcp command group for desktop client registration.
func NewMCPCmd() *cobra.Command {
	var clientConfig, name string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Register the MCP server with a desktop MCP client",
	}
	cmd.PersistentFlags().StringVar(&clientConfig, "client-config", "", "client configuration file (default: the Claude Desktop config for this system)")
	cmd.PersistentFlags().StringVar(&name, "name", setup.DefaultServerName, "server name in the client configuration")

	resolvePath := func() (string, error) {
		if clientConfig != "" {
			return clientConfig, nil
		}
		return setup.ClientConfigPath()
	}

	var binary, configFile string
	install := &cobra.Command{
		Use:   "install",
		Short: "Add the MCP server to the client configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolvePath()
			if err != nil {
				return err
			}
			entry := setup.ServerEntry{Command: binary, Env: map[string]string{}}
			if configFile != "" {
				entry.Env[config.ConfigFileEnv] = configFile
			}
			if key := os.Getenv("MEDREPORT_MODELS_API_KEY"); key != "" {
				entry.Env["MEDREPORT_MODELS_API_KEY"] = key
			}
			if err := setup.Register(path, name, entry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s\n", name, path)
			return nil
		},
	}
	install.Flags().StringVar(&binary, "binary", "", "path to the mcp-server binary")
	install.Flags().StringVar(&configFile, "server-config", "", "config file the server should load")
	_ = install.MarkFlagRequired("binary")

	uninstall := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the MCP server from the client configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolvePath()
			if err != nil {
				return err
			}
			removed, err := setup.Unregister(path, name)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not registered in %s\n", name, path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", name, path)
			return nil
		},
	}

	cmd.AddCommand(install, uninstall)
	return cmd
}
