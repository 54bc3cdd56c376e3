package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mikann-OMO/bot/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard: writes config.json",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}

// onboardAnswers collects the wizard fields before they are folded into a Config.
type onboardAnswers struct {
	name      string
	owners    string
	channel   string
	wsURL     string
	reverse   string
	aiKey     string
	storage   string
	listen    string
	saveAIKey bool
}

func runOnboard() {
	cfgPath := resolveConfigPath()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Default()
	}

	if _, statErr := os.Stat(cfgPath); statErr == nil {
		var overwrite bool
		if err := huh.NewConfirm().
			Title(fmt.Sprintf("%s already exists. Overwrite it?", cfgPath)).
			Value(&overwrite).
			Run(); err != nil || !overwrite {
			fmt.Println("Onboarding cancelled.")
			return
		}
	}

	a := onboardAnswers{
		name:    cfg.Bot.Name,
		owners:  strings.Join(cfg.Bot.OwnerIDs, ","),
		channel: "onebot-forward",
		wsURL:   "ws://127.0.0.1:3001",
		reverse: "0.0.0.0:8080",
		storage: cfg.Storage.Backend,
		listen:  cfg.HTTP.Listen,
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot name").
				Description("Announced to owners as \"<name>已上线\" when the bot connects.").
				Value(&a.name),
			huh.NewInput().
				Title("Owner IDs").
				Description("Comma-separated user IDs allowed to run admin commands.").
				Value(&a.owners),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Channel").
				Options(
					huh.NewOption("QQ via OneBot v11, bot dials NapCat (forward WS)", "onebot-forward"),
					huh.NewOption("QQ via OneBot v11, NapCat dials the bot (reverse WS)", "onebot-reverse"),
					huh.NewOption("Telegram", "telegram"),
					huh.NewOption("Discord", "discord"),
				).
				Value(&a.channel),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("OneBot WebSocket URL").
				Value(&a.wsURL),
		).WithHideFunc(func() bool { return a.channel != "onebot-forward" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Reverse WebSocket listen address").
				Value(&a.reverse),
		).WithHideFunc(func() bool { return a.channel != "onebot-reverse" }),
		huh.NewGroup(
			huh.NewInput().
				Title("AI API key").
				Description("ARK (OpenAI-compatible) key. Leave empty to disable AI replies.").
				EchoMode(huh.EchoModePassword).
				Value(&a.aiKey),
			huh.NewConfirm().
				Title("Store the API key in config.json?").
				Description("Choose No to provide it through BOT_AI_API_KEY instead.").
				Value(&a.saveAIKey),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Storage backend").
				Options(
					huh.NewOption("JSON files (compatible with the original data directory)", "file"),
					huh.NewOption("SQLite", "sqlite"),
					huh.NewOption("Postgres (DSN from BOT_POSTGRES_DSN)", "postgres"),
				).
				Value(&a.storage),
			huh.NewInput().
				Title("Admin API listen address").
				Description("Leave empty to disable the admin API.").
				Value(&a.listen),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Onboarding cancelled.")
			return
		}
		fmt.Fprintf(os.Stderr, "onboard: %v\n", err)
		os.Exit(1)
	}

	applyOnboardAnswers(cfg, a)

	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "save config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Config written to %s\n", cfgPath)
	if a.aiKey != "" && !a.saveAIKey {
		fmt.Println("Remember to export BOT_AI_API_KEY before starting the bot.")
	}
	switch a.channel {
	case "telegram":
		fmt.Println("Set BOT_TELEGRAM_TOKEN, then run: bot gateway")
	case "discord":
		fmt.Println("Set BOT_DISCORD_TOKEN, then run: bot gateway")
	default:
		fmt.Println("Start the gateway with: bot gateway")
	}
}

func applyOnboardAnswers(cfg *config.Config, a onboardAnswers) {
	cfg.Bot.Name = strings.TrimSpace(a.name)
	if cfg.Bot.Name == "" {
		cfg.Bot.Name = config.DefaultBotName
	}
	cfg.Bot.OwnerIDs = nil
	for _, id := range strings.Split(a.owners, ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.Bot.OwnerIDs = append(cfg.Bot.OwnerIDs, id)
		}
	}

	switch a.channel {
	case "onebot-forward":
		cfg.Channels.OneBot.Enabled = true
		cfg.Channels.OneBot.Mode = "forward"
		cfg.Channels.OneBot.WSURL = strings.TrimSpace(a.wsURL)
	case "onebot-reverse":
		cfg.Channels.OneBot.Enabled = true
		cfg.Channels.OneBot.Mode = "reverse"
		cfg.Channels.OneBot.Listen = strings.TrimSpace(a.reverse)
	case "telegram":
		cfg.Channels.Telegram.Enabled = true
	case "discord":
		cfg.Channels.Discord.Enabled = true
	}

	cfg.AI.APIKey = ""
	if a.saveAIKey {
		cfg.AI.APIKey = strings.TrimSpace(a.aiKey)
	}
	cfg.Storage.Backend = a.storage
	cfg.HTTP.Listen = strings.TrimSpace(a.listen)
}
