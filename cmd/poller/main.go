package main

import (
	"fmt"
	"os"
	"time"

	"azebot/internal/poller"

	"github.com/spf13/cobra"
)

var Version = "dev"

type options struct {
	apiURL      string
	token       string
	userID      string
	stateFile   string
	sessionID   string
	interval    time.Duration
	maxAttempts int
	logLevel    string
}

func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:     "azebot-poller",
		Short:   "Start article payments and wait for the unlock",
		Version: Version,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api", envOr("AZEBOT_API_URL", "http://localhost:8080"), "Payment API base URL")
	flags.StringVar(&opts.token, "token", os.Getenv("AZEBOT_TOKEN"), "Bearer token for the API")
	flags.StringVarP(&opts.userID, "user", "u", os.Getenv("AZEBOT_USER_ID"), "User id")
	flags.StringVar(&opts.stateFile, "state-file", defaultStateFile(), "Where the last article id survives restarts")
	flags.StringVar(&opts.sessionID, "session", fmt.Sprint(os.Getppid()), "Session id for the short lived store")
	flags.DurationVar(&opts.interval, "interval", poller.DefaultInterval, "Delay between confirmation attempts")
	flags.IntVar(&opts.maxAttempts, "max-attempts", poller.DefaultMaxAttempts, "Attempts before giving up")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "debug, info, warn or error")

	rootCmd.AddCommand(payCmd(opts))
	rootCmd.AddCommand(confirmCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return dir + string(os.PathSeparator) + "azebot" + string(os.PathSeparator) + "state.yaml"
}

func (o *options) client() *poller.APIClient {
	return poller.NewAPIClient(o.apiURL, o.token, o.userID, o.interval)
}

func (o *options) stores() (poller.Store, poller.Store) {
	return poller.NewFileStore(o.stateFile), poller.NewSessionStore(o.sessionID)
}
