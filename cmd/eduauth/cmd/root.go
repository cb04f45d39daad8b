package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/tokenstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// cliConfig lets persistent flags override the environment
type cliConfig struct {
	config.Config
	apiURL    string
	tokenFile string
}

func (c cliConfig) GetAPIURL() string {
	if c.apiURL != "" {
		return strings.TrimRight(c.apiURL, "/")
	}
	return c.Config.GetAPIURL()
}

func (c cliConfig) GetTokenFile() string {
	if c.tokenFile != "" {
		return c.tokenFile
	}
	return c.Config.GetTokenFile()
}

var (
	flags     cliConfig
	quiet     bool
	appConfig config.Config
	manager   *session.Manager
)

var rootCmd = &cobra.Command{
	Use:           "eduauth",
	Short:         "eduauth keeps a signed-in session with the Educational Platform API",
	Long:          `A command-line client that logs in to the platform, stores the token pair between runs and refreshes it transparently when a request is rejected.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c := cliConfig{Config: config.New(), apiURL: flags.apiURL, tokenFile: flags.tokenFile}
		setupLogger(c)
		if !quiet {
			displayAppname(c.GetAppName())
		}

		m, err := newManager(c)
		if err != nil {
			return err
		}
		appConfig = c
		manager = m
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, identity.DisplayMessage(err))
		log.Debug().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flags.apiURL, "api-url", "", "platform API base URL (default $API_URL or http://localhost:8000)")
	rootCmd.PersistentFlags().StringVar(&flags.tokenFile, "token-file", "", "where the token pair is kept (default $TOKEN_FILE or ~/.eduauth/session.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "do not print the banner")
}

func setupLogger(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func newManager(c config.Config) (*session.Manager, error) {
	store, err := tokenstore.NewFileStore(c.GetTokenFile())
	if err != nil {
		return nil, fmt.Errorf("[newManager] %w", err)
	}

	api, err := identity.NewClient(c.GetAPIURL(), c)
	if err != nil {
		return nil, fmt.Errorf("[newManager] %w", err)
	}

	return session.NewManager(api, store, c, session.WithEndedHandler(func(error) {
		fmt.Fprintln(os.Stderr, "Your session has expired. Run 'eduauth login' to sign in again.")
	}))
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
