package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"genbot/internal/bot"
	"genbot/internal/config"
	"genbot/internal/history"
	"genbot/internal/leonardo"
	"genbot/internal/telegram"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagAPIKey string
	flagToken  string
	flagDBPath string
	flagDebug  bool
	flagLimit  int
)

const pollTimeoutSec = 30

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := newRootCmd()
	return rootCmd.Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genbot",
		Short: "Telegram bot that generates images through the Leonardo.ai API",
		Long: `genbot runs a Telegram bot that walks users through an image-generation
flow: describe what you want, refine the prompt with AI, optionally supply a
reference image, then generate and iterate.

Requires LEONARDO_API_KEY and TELEGRAM_BOT_TOKEN (or the matching flags).`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		RunE:    runBot,
	}

	cmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "Leonardo API key (defaults to LEONARDO_API_KEY)")
	cmd.PersistentFlags().StringVar(&flagToken, "token", "", "Telegram bot token (defaults to TELEGRAM_BOT_TOKEN)")
	cmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "history database path (defaults to ~/.genbot/history.db)")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	cmd.AddCommand(newHistoryCmd())
	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

func runBot(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(flagAPIKey, flagToken, flagDBPath, os.Getenv)
	if err != nil {
		return err
	}

	logger, err := newLogger(flagDebug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	leoClient, err := leonardo.New(&leonardo.Config{
		APIKey: cfg.LeonardoAPIKey,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create generation client: %w", err)
	}

	tg, err := telegram.New(&telegram.Config{
		Token:  cfg.TelegramToken,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create telegram client: %w", err)
	}

	hist, err := openHistory(cfg.HistoryDBPath)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer hist.Close()

	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach Telegram: %w", err)
	}
	logger.Info("bot started", zap.String("username", me.Username))

	machine := bot.NewMachine(bot.NewStore(), leoClient, tg, hist, logger)
	dispatcher := bot.NewDispatcher(ctx, machine, tg, logger)

	for ctx.Err() == nil {
		updates, err := tg.GetUpdates(ctx, pollTimeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Warn("update poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, upd := range updates {
			if in, ok := toInbound(upd); ok {
				dispatcher.Dispatch(in)
			}
		}
	}

	dispatcher.Wait()
	logger.Info("bot stopped")
	return nil
}

// toInbound maps a Telegram update onto the state machine's inbound shape.
// Unknown slash commands and non-message updates are ignored.
func toInbound(upd telegram.Update) (bot.Inbound, bool) {
	msg := upd.Message
	if msg == nil || msg.From == nil {
		return bot.Inbound{}, false
	}

	in := bot.Inbound{
		UserID: msg.From.ID,
		ChatID: msg.Chat.ID,
	}

	switch {
	case strings.HasPrefix(msg.Text, "/start"):
		in.Command = "start"
	case strings.HasPrefix(msg.Text, "/cancel"):
		in.Command = "cancel"
	case strings.HasPrefix(msg.Text, "/"):
		return bot.Inbound{}, false
	default:
		payload := bot.Message{Text: msg.Text}
		for _, p := range msg.Photo {
			payload.Photos = append(payload.Photos, bot.Photo{
				FileID: p.FileID,
				Width:  p.Width,
				Height: p.Height,
			})
		}
		in.Message = payload
	}

	return in, true
}

func openHistory(path string) (*history.Store, error) {
	if path == "" {
		return history.NewStore()
	}
	return history.NewStoreWithPath(path)
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent generations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openHistory(flagDBPath)
			if err != nil {
				return fmt.Errorf("failed to open history store: %w", err)
			}
			defer store.Close()

			generations, err := store.ListRecent(cmd.Context(), flagLimit)
			if err != nil {
				return fmt.Errorf("failed to list history: %w", err)
			}

			if len(generations) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No generations recorded yet.")
				return nil
			}

			for _, gen := range generations {
				ref := ""
				if gen.WithReference {
					ref = " [reference]"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  user %d%s  %.1fs\n  %s\n  %s\n",
					humanize.Time(gen.CreatedAt), gen.UserID, ref,
					gen.Duration.Seconds(), truncatePrompt(gen.Prompt), gen.ImageURL)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "maximum entries to show")
	return cmd
}

func truncatePrompt(prompt string) string {
	const max = 80
	runes := []rune(prompt)
	if len(runes) <= max {
		return prompt
	}
	return string(runes[:max-3]) + "..."
}
