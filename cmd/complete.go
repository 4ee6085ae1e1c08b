package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/apexion-ai/threadbot/internal/completion"
	"github.com/apexion-ai/threadbot/internal/console"
	"github.com/apexion-ai/threadbot/internal/dispatch"
	"github.com/apexion-ai/threadbot/internal/session"
)

func newCompleteCmd() *cobra.Command {
	var (
		appendReply bool
		concurrency int
		noColor     bool
	)

	cmd := &cobra.Command{
		Use:   "complete FILE...",
		Short: "Generate replies for transcript files",
		Long: `Generate one reply for each YAML transcript and print the result.

Each transcript is handled like a chat thread: the reply, any moderation
notice and the close-on-overflow action are printed to stdout. With --append
the visible reply is written back into the transcript file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig()
			if err != nil {
				return err
			}
			logger, err := initLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			engine, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}

			var modlog dispatch.ModerationLog
			store, err := openModLog(cfg)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				modlog = store
			}
			dispatcher := dispatch.New(modlog, logger)

			if concurrency <= 0 {
				concurrency = cfg.Completion.Concurrency
			}
			// A zero limit would block every g.Go forever.
			concurrency = max(concurrency, 1)
			printer := console.NewPrinter(cmd.OutOrStdout(), !noColor && console.IsTerminal(os.Stdout))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.SetLimit(concurrency)
			for _, path := range args {
				path := path
				g.Go(func() error {
					return completeFile(ctx, path, cfg.Bot.Name, appendReply, engine, dispatcher, printer, logger)
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().BoolVarP(&appendReply, "append", "a", false, "write the reply back into the transcript")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0, "transcripts processed in parallel (default from config)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	return cmd
}

func completeFile(
	ctx context.Context,
	path, botName string,
	appendReply bool,
	engine *completion.Engine,
	dispatcher *dispatch.Dispatcher,
	printer *console.Printer,
	logger *zap.Logger,
) error {
	tr, err := session.Load(path)
	if err != nil {
		return err
	}
	thread := printer.Thread(tr.Thread, botName)

	outcome := engine.Generate(ctx, tr.Messages, tr.User)
	if err := dispatcher.Dispatch(ctx, tr.User, thread, outcome); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if !appendReply {
		return nil
	}
	var reply string
	switch o := outcome.(type) {
	case completion.OK:
		reply = o.Reply
	case completion.Flagged:
		reply = o.Reply
	}
	if reply == "" {
		return nil
	}
	tr.Append(botName, reply)
	if err := tr.Save(path); err != nil {
		return err
	}
	logger.Debug("transcript updated", zap.String("path", path), zap.Int("messages", len(tr.Messages)))
	return nil
}
