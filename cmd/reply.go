package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apexion-ai/threadbot/internal/discord"
	"github.com/apexion-ai/threadbot/internal/dispatch"
	"github.com/apexion-ai/threadbot/internal/modlog"
)

// newDiscordClient is replaced in tests to point the client at a fake.
var newDiscordClient = discord.NewClient

func newReplyCmd() *cobra.Command {
	var (
		threadID string
		user     string
		history  int
	)

	cmd := &cobra.Command{
		Use:   "reply",
		Short: "Reply in a Discord thread",
		Long: `Fetch a Discord thread's recent messages, generate one reply and post it.

Flagged replies are posted and reported to the moderation log channel,
blocked replies are replaced by a notice, and threads whose history no
longer fits the token budget are closed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig()
			if err != nil {
				return err
			}
			if cfg.Discord.Token == "" {
				return errors.New("discord token not configured; set discord.token or DISCORD_BOT_TOKEN")
			}
			logger, err := initLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}

			client, err := newDiscordClient(ctx, discord.Options{
				Token:        cfg.Discord.Token,
				BotName:      cfg.Bot.Name,
				ClosedPrefix: cfg.Discord.ClosedPrefix,
				Logger:       logger,
			})
			if err != nil {
				return err
			}
			thread, err := client.Thread(ctx, threadID)
			if err != nil {
				return err
			}

			if history <= 0 {
				history = cfg.Discord.HistoryLimit
			}
			h, err := thread.History(ctx, history)
			if err != nil {
				return err
			}
			convo := h.Messages
			if len(convo) == 0 {
				return fmt.Errorf("thread %s has no text messages to reply to", threadID)
			}
			if user == "" {
				if h.UserID == "" {
					return fmt.Errorf("thread %s has no messages from a user; pass --user", threadID)
				}
				user = h.UserID
			}

			var logs modlog.Multi
			if ch := cfg.Discord.ModerationLogChannelID; ch != "" {
				logs = append(logs, client.ModerationLog(ch))
			}
			store, err := openModLog(cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				logs = append(logs, store)
			}
			var ml dispatch.ModerationLog
			if len(logs) > 0 {
				ml = logs
			}

			outcome := engine.Generate(ctx, convo, user)
			logger.Info("replying",
				zap.String("thread", threadID),
				zap.Stringer("status", outcome.Status()),
				zap.Int("messages", len(convo)))
			return dispatch.New(ml, logger).Dispatch(ctx, user, thread, outcome)
		},
	}

	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "Discord thread channel ID")
	cmd.Flags().StringVarP(&user, "user", "u", "", "user ID the reply is for (default: newest non-bot author)")
	cmd.Flags().IntVar(&history, "history", 0, "messages of history to fetch (default from config, max 100)")
	_ = cmd.MarkFlagRequired("thread")
	return cmd
}
