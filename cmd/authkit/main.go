package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-authkit-session/internal/app"
	"github.com/jrsteele09/go-authkit-session/internal/config"
	"github.com/jrsteele09/go-authkit-session/internal/logging"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var version = "dev"

// errSilent marks failures that were already reported to the user.
var errSilent = errors.New("silent")

// cli holds the persistent flag values.
type cli struct {
	envFile   string
	store     string
	storePath string
	logLevel  string
}

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, errSilent) {
			pterm.Error.Println(err)
		}
		os.Exit(1)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			pterm.Error.Printf("Recovered from panic: %v\n%s\n", r, debug.Stack())
			returnError = errors.New("panic recovered")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd(&cli{}).ExecuteContext(ctx)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "authkit",
		Short:         "Sign in to WorkOS AuthKit from the terminal",
		Long:          "authkit manages a WorkOS AuthKit session using the OAuth 2.0 authorization code flow with PKCE.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&c.store, "store", "", "secure store backend: memory, file or sqlite (overrides AUTHKIT_STORE)")
	root.PersistentFlags().StringVar(&c.storePath, "store-path", "", "store directory or database file (overrides AUTHKIT_STORE_PATH)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.sessionIDCmd(),
		c.logoutURLCmd(),
		c.callbackCmd(),
		c.listenCmd(),
		c.verifyCmd(),
		versionCmd(),
	)
	return root
}

// withApp loads configuration, wires the session manager and runs f. The
// app is closed afterwards, which waits for background logout navigation.
func (c *cli) withApp(f func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (returnError error) {
		cfg, err := config.New(
			config.WithEnvFile(c.envFile),
			config.WithStoreBackend(config.StoreBackend(c.store)),
			config.WithStorePath(c.storePath),
			config.WithLogLevel(c.logLevel),
		)
		if err != nil {
			return err
		}
		if err := logging.Init(cfg); err != nil {
			return err
		}

		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("starting session manager: %w", err)
		}
		defer func() {
			if err := a.Close(); err != nil && returnError == nil {
				returnError = err
			}
		}()
		return f(cmd.Context(), a, args)
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			displayAppname("authkit")
			pterm.Info.Printfln("authkit %s", version)
		},
	}
}
