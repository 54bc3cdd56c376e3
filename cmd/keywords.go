package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikann-OMO/bot/internal/config"
	"github.com/mikann-OMO/bot/internal/keyword"
	"github.com/mikann-OMO/bot/internal/store"
)

// offline is the keyword service opened straight on the configured store,
// for CLI edits while the gateway may or may not be running. The file
// backend's watcher picks the edits up in a running gateway.
type offline struct {
	cfg   *config.Config
	store store.Store
	svc   *keyword.Service
}

func openOffline(ctx context.Context) (*offline, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	st, _, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc := keyword.NewService(keyword.NewStore(), keyword.NewMemoryGate(cfg.Keyword.Cooldown()), st)
	state, err := loadKeywordState(ctx, st, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	svc.Apply(state)
	return &offline{cfg: cfg, store: st, svc: svc}, nil
}

func (o *offline) Close() { o.store.Close() }

func keywordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "keywords",
		Aliases: []string{"kw"},
		Short:   "Manage keyword reply tables",
	}
	cmd.AddCommand(keywordsListCmd())
	cmd.AddCommand(keywordsAddCmd())
	cmd.AddCommand(keywordsRemoveCmd())
	cmd.AddCommand(keywordsCountsCmd())
	cmd.AddCommand(keywordsBackupCmd())
	cmd.AddCommand(keywordsRestoreCmd())
	return cmd
}

func keywordsListCmd() *cobra.Command {
	var maxReply int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List keywords of both tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := openOffline(cmd.Context())
			if err != nil {
				return err
			}
			defer o.Close()

			st := o.svc.State()
			printTable := func(title string, entries []keyword.Entry) {
				fmt.Printf("%s (%d)\n", title, len(entries))
				if out := keyword.FormatEntries(entries, maxReply, 0); out != "" {
					fmt.Println(out)
				}
				fmt.Println()
			}
			printTable("Exact", st.Exact)
			printTable("Contains", st.Contains)
			fmt.Printf("Enabled groups: %v\n", st.EnableGroups)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxReply, "max-reply", 60, "truncate replies to this many terminal cells (0 = no limit)")
	return cmd
}

func keywordsAddCmd() *cobra.Command {
	var exact, contains bool
	cmd := &cobra.Command{
		Use:   "add <keyword> <reply>",
		Short: "Add a keyword to the exact or contains table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if exact == contains {
				return errors.New("specify exactly one of --exact or --contains")
			}
			table := keyword.Contains
			if exact {
				table = keyword.Exact
			}

			o, err := openOffline(cmd.Context())
			if err != nil {
				return err
			}
			defer o.Close()

			if err := o.svc.AddKeyword(cmd.Context(), table, keyword.Entry{Pattern: args[0], Reply: args[1]}); err != nil {
				if errors.Is(err, keyword.ErrDuplicateKeyword) {
					return fmt.Errorf("keyword %q already exists", args[0])
				}
				return err
			}
			fmt.Printf("Added %s keyword %q\n", table, args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&exact, "exact", false, "add to the exact table")
	cmd.Flags().BoolVar(&contains, "contains", false, "add to the contains table")
	return cmd
}

func keywordsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <keyword>",
		Aliases: []string{"remove"},
		Short:   "Remove a keyword (exact table first)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := openOffline(cmd.Context())
			if err != nil {
				return err
			}
			defer o.Close()

			table, err := o.svc.RemoveKeyword(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, keyword.ErrKeywordNotFound) {
					return fmt.Errorf("keyword %q not found", args[0])
				}
				return err
			}
			fmt.Printf("Removed %s keyword %q\n", table, args[0])
			return nil
		},
	}
}

func keywordsCountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Show the number of keywords per table",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := openOffline(cmd.Context())
			if err != nil {
				return err
			}
			defer o.Close()

			exact, contains := o.svc.Counts()
			fmt.Printf("exact:    %d\ncontains: %d\n", exact, contains)
			return nil
		},
	}
}

func keywordsBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup [dir]",
		Short: "Write a backup of the keyword tables now",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := openOffline(cmd.Context())
			if err != nil {
				return err
			}
			defer o.Close()

			dir := backupDir(o.cfg)
			if len(args) == 1 {
				dir = args[0]
			}
			path, err := store.WriteBackup(dir, o.svc.State(), time.Now(), o.cfg.Backup.Keep)
			if err != nil {
				return err
			}
			fmt.Println("Backup written:", path)
			return nil
		},
	}
}

func keywordsRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Replace the keyword tables with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backup, err := store.ReadBackup(args[0])
			if err != nil {
				return err
			}

			o, err := openOffline(cmd.Context())
			if err != nil {
				return err
			}
			defer o.Close()

			if backup.EnableGroups == nil {
				backup.EnableGroups = o.svc.State().EnableGroups
			}
			o.svc.Apply(backup)
			if err := o.store.SaveKeywords(cmd.Context(), o.svc.State()); err != nil {
				return err
			}
			exact, contains := o.svc.Counts()
			fmt.Printf("Restored %d exact and %d contains keywords from %s\n", exact, contains, args[0])
			return nil
		},
	}
}

func groupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Enable or disable keyword replies per group",
	}
	toggle := func(use, short string, enable bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <group-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				o, err := openOffline(cmd.Context())
				if err != nil {
					return err
				}
				defer o.Close()

				changed, err := o.svc.SetGroupEnabled(cmd.Context(), args[0], enable)
				if err != nil {
					return err
				}
				state := "disabled"
				if enable {
					state = "enabled"
				}
				if !changed {
					fmt.Printf("Group %s already %s\n", args[0], state)
					return nil
				}
				fmt.Printf("Group %s %s\n", args[0], state)
				return nil
			},
		}
	}
	cmd.AddCommand(toggle("on", "Enable keyword replies in a group (-1 = every group)", true))
	cmd.AddCommand(toggle("off", "Disable keyword replies in a group", false))
	return cmd
}
