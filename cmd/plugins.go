package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mikann-OMO/bot/internal/config"
	"github.com/mikann-OMO/bot/internal/plugins"
)

func openPlugins(ctx context.Context) (*plugins.State, func(), error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	st, _, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	ps := plugins.NewState(cfg.Plugins, st)
	if err := ps.Load(ctx, st); err != nil {
		st.Close()
		return nil, nil, err
	}
	return ps, func() { st.Close() }, nil
}

func pluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List, enable or disable message plugins",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List plugins and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, closeFn, err := openPlugins(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			for _, p := range ps.List() {
				mark := "off"
				if p.Enabled {
					mark = "on"
				}
				fmt.Printf("%-10s %-4s %s\n", p.Name, mark, plugins.Descriptions[p.Name])
			}
			return nil
		},
	})

	toggle := func(use, short string, enable bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <name>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ps, closeFn, err := openPlugins(cmd.Context())
				if err != nil {
					return err
				}
				defer closeFn()

				if err := ps.SetEnabled(cmd.Context(), args[0], enable); err != nil {
					return err
				}
				fmt.Printf("Plugin %s %sd\n", args[0], use)
				return nil
			},
		}
	}
	cmd.AddCommand(toggle("enable", "Enable a plugin", true))
	cmd.AddCommand(toggle("disable", "Disable a plugin", false))
	return cmd
}
