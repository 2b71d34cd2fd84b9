package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"azebot/internal/logging"
	"azebot/internal/poller"

	"github.com/spf13/cobra"
)

func confirmCmd(opts *options) *cobra.Command {
	var returnURL, articleID string
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Poll until the paid article is unlocked",
		Long: `Confirm a payment after returning from the gateway.

The article is taken from --article, then from the return URL
(article_id, or the article of transaction_id), then from the state file,
then from the session store. Press Enter to check again right away.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.userID == "" {
				return fmt.Errorf("--user is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			query := url.Values{}
			if returnURL != "" {
				u, err := url.Parse(returnURL)
				if err != nil {
					return fmt.Errorf("parsing return url: %w", err)
				}
				query = u.Query()
			}
			if articleID != "" {
				query.Set("article_id", articleID)
			}

			client := opts.client()
			local, session := opts.stores()
			ref, err := poller.Recovery{Local: local, Session: session, Lookup: client}.Recover(ctx, query)
			if err != nil {
				return err
			}
			return confirm(ctx, cmd, opts, client, ref, []poller.Store{local, session})
		},
	}
	cmd.Flags().StringVar(&returnURL, "url", "", "URL the gateway redirected to")
	cmd.Flags().StringVarP(&articleID, "article", "a", "", "Article id to confirm")
	return cmd
}

func confirm(ctx context.Context, cmd *cobra.Command, opts *options, rec poller.Reconciler, ref poller.Reference, stores []poller.Store) error {
	out := cmd.OutOrStdout()
	logger := logging.New(opts.logLevel, "text")
	p := poller.New(rec, poller.SystemScheduler(), poller.Config{
		Interval:    opts.interval,
		MaxAttempts: opts.maxAttempts,
	}, logger)
	defer p.Stop()

	done := make(chan poller.State, 1)
	p.Subscribe(func(s poller.State) {
		switch s.Phase {
		case poller.PhasePolling:
			if s.Attempts > 0 {
				fmt.Fprintf(out, "  attempt %d/%d: still waiting\n", s.Attempts, opts.maxAttempts)
			}
		case poller.PhaseExhausted:
			fmt.Fprintf(out, "%s (press Enter to retry, Ctrl-C to quit)\n", s.Message)
		case poller.PhaseUnlocked, poller.PhaseFailed:
			select {
			case done <- s:
			default:
			}
		}
	})

	fmt.Fprintf(out, "Confirming article %s (found in %s)\n", ref.ArticleID, ref.Source)
	p.Start(ctx, ref.ArticleID)
	go readEnter(ctx, os.Stdin, p.Refresh)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case s := <-done:
		if s.Phase == poller.PhaseUnlocked {
			if err := poller.Forget(stores...); err != nil {
				logger.Warn("could not clear stored article", "error", err)
			}
			fmt.Fprintf(out, "Article %s unlocked.\n", ref.ArticleID)
			return nil
		}
		return fmt.Errorf("payment not completed: %s", s.Message)
	}
}

func readEnter(ctx context.Context, in io.Reader, refresh func()) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		refresh()
	}
}
