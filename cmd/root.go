package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mikann-OMO/bot/internal/config"
	"github.com/mikann-OMO/bot/pkg/protocol"
)

// Version is set at build time via -ldflags "-X github.com/mikann-OMO/bot/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "bot",
	Short: "mikann bot: keyword replies and AI chat for group chats",
	Long:  "mikann bot: answers group and private chat messages from exact and contains keyword tables, falls back to an AI model when mentioned, and exposes an admin API and MCP tools for managing keywords.",
	Run: func(cmd *cobra.Command, args []string) {
		runGateway()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $BOT_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(keywordsCmd())
	rootCmd.AddCommand(groupsCmd())
	rootCmd.AddCommand(pluginsCmd())
	rootCmd.AddCommand(migrateCmd())
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Connect to the configured channels and start answering messages",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bot %s (onebot v%d)\n", Version, protocol.ProtocolVersion)
		},
	}
}

func resolveConfigPath() string {
	return config.ResolvePath(cfgFile)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
