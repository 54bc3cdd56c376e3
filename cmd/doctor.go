package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mikann-OMO/bot/internal/config"
	"github.com/mikann-OMO/bot/internal/keyword"
	"github.com/mikann-OMO/bot/internal/schedule"
	"github.com/mikann-OMO/bot/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) {
	fmt.Println("bot doctor")
	fmt.Printf("  Version:  %s (onebot v%d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	fmt.Printf("  Bot:      %s, %d owner(s)\n", cfg.Bot.Name, len(cfg.Bot.OwnerIDs))
	if len(cfg.Bot.OwnerIDs) == 0 {
		fmt.Println("            (no owners: admin commands and the online message are disabled)")
	}

	fmt.Println()
	fmt.Println("  AI:")
	checkProvider("API key", cfg.AI.APIKey)
	fmt.Printf("    %-12s %s\n", "Model:", cfg.AI.Model)
	fmt.Printf("    %-12s %s\n", "API base:", cfg.AI.APIBase)

	fmt.Println()
	fmt.Println("  Channels:")
	ob := cfg.Channels.OneBot
	obTarget := ob.WSURL
	if ob.Mode == "reverse" {
		obTarget = ob.Listen
	}
	checkChannel("OneBot", ob.Enabled, obTarget != "")
	checkChannel("Telegram", cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.Token != "")
	checkChannel("Discord", cfg.Channels.Discord.Enabled, cfg.Channels.Discord.Token != "")

	fmt.Println()
	fmt.Println("  Storage:")
	fmt.Printf("    %-12s %s\n", "Backend:", cfg.Storage.Backend)
	checkStore(ctx, cfg)

	fmt.Println()
	fmt.Println("  Cooldown:")
	if cfg.Redis.Addr == "" {
		fmt.Printf("    %-12s in process (%s)\n", "Gate:", cfg.Keyword.Cooldown())
	} else {
		checkRedis(ctx, cfg.Redis)
	}

	if cfg.Backup.Schedule != "" {
		fmt.Println()
		fmt.Println("  Backups:")
		if next, err := schedule.Next(cfg.Backup.Schedule, time.Now()); err != nil {
			fmt.Printf("    %-12s INVALID (%s)\n", "Schedule:", err)
		} else {
			fmt.Printf("    %-12s %s (next %s)\n", "Schedule:", cfg.Backup.Schedule, next.Format(time.RFC3339))
		}
		fmt.Printf("    %-12s %s\n", "Dir:", backupDir(cfg))
	}

	fmt.Println()
	if cfg.HTTP.Listen == "" {
		fmt.Println("  Admin API: disabled")
	} else {
		auth := "token"
		if cfg.HTTP.Token == "" {
			auth = "NO TOKEN"
		}
		fmt.Printf("  Admin API: %s (%s)\n", cfg.HTTP.Listen, auth)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkProvider(name, apiKey string) {
	if apiKey == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	masked := strings.Repeat("*", len(apiKey))
	if len(apiKey) > 8 {
		masked = apiKey[:4] + strings.Repeat("*", len(apiKey)-8) + apiKey[len(apiKey)-4:]
	}
	fmt.Printf("    %-12s %s\n", name+":", masked)
}

func checkChannel(name string, enabled, hasCredentials bool) {
	status := "disabled"
	if enabled && hasCredentials {
		status = "enabled"
	} else if enabled {
		status = "enabled (missing credentials)"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}

func checkStore(ctx context.Context, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, _, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Printf("    %-12s FAILED (%s)\n", "Status:", err)
		return
	}
	defer st.Close()

	state, err := st.LoadKeywords(ctx)
	if err != nil {
		fmt.Printf("    %-12s LOAD FAILED (%s)\n", "Status:", err)
		return
	}
	ks := keyword.NewStore()
	ks.Replace(state)
	exact, contains := ks.Counts()
	fmt.Printf("    %-12s OK (%d exact, %d contains)\n", "Status:", exact, contains)
}

func checkRedis(ctx context.Context, rc config.RedisConfig) {
	client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		fmt.Printf("    %-12s %s UNREACHABLE (%s)\n", "Redis:", rc.Addr, err)
		return
	}
	fmt.Printf("    %-12s %s (OK)\n", "Redis:", rc.Addr)
}
