package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-authkit-session/deeplink"
	"github.com/jrsteele09/go-authkit-session/internal/app"
	"github.com/jrsteele09/go-authkit-session/internal/utils"
	"github.com/jrsteele09/go-authkit-session/users"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func (c *cli) loginCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, a *app.App, _ []string) error {
			if user := a.Controller.Restore(ctx); user != nil && !force {
				pterm.Info.Printfln("Already signed in as %s", user.DisplayName())
				return nil
			}

			pterm.Info.Println("Opening the browser to sign in. Press Ctrl-C to cancel.")
			res := a.Controller.AuthContext().SignIn(ctx)
			if !res.Success {
				pterm.Error.Println(res.Error)
				return errSilent
			}
			pterm.Success.Printfln("Signed in as %s", a.Controller.AuthContext().User().DisplayName())
			return nil
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "sign in again even when a session exists")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out locally and end the provider session",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, a *app.App, _ []string) error {
			res := a.Controller.AuthContext().SignOut(ctx)
			if !res.Success {
				pterm.Error.Println(res.Error)
				return errSilent
			}
			pterm.Success.Println("Signed out")
			return nil
		}),
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user, refreshing the session if needed",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, a *app.App, _ []string) error {
			user := a.Controller.Restore(ctx)
			if user == nil {
				pterm.Warning.Println("Not signed in")
				return errSilent
			}
			return renderUser(user)
		}),
	}
}

func renderUser(u *users.User) error {
	return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Field", "Value"},
		{"ID", u.ID},
		{"Email", u.Email},
		{"Name", u.DisplayName()},
		{"Picture", utils.Value(u.ProfilePictureURL)},
	}).Render()
}

func (c *cli) sessionIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session-id",
		Short: "Print the provider session id of the stored session",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, a *app.App, _ []string) error {
			sid, ok := a.Controller.SessionID(ctx)
			if !ok {
				pterm.Warning.Println("No session id available")
				return errSilent
			}
			fmt.Println(sid)
			return nil
		}),
	}
}

func (c *cli) logoutURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout-url",
		Short: "Print the provider logout URL for the stored session",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, a *app.App, _ []string) error {
			sid, ok := a.Controller.SessionID(ctx)
			if !ok {
				pterm.Warning.Println("No session id available")
				return errSilent
			}
			fmt.Println(a.Controller.LogoutURL(sid))
			return nil
		}),
	}
}

func (c *cli) callbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "callback <url>",
		Short: "Complete a pending sign-in from a redirect URL",
		Long: "callback handles a redirect URL delivered to the process on launch, for example by a\n" +
			"custom URL scheme handler. The sign-in must have been started with `listen --print-url`\n" +
			"or `login` on the same store.",
		Args: cobra.ExactArgs(1),
		RunE: c.withApp(func(ctx context.Context, a *app.App, args []string) error {
			a.Controller.Restore(ctx)
			source := deeplink.NewChannelSource(args[0])
			source.Close()

			var outcome deeplink.Outcome
			listener, err := deeplink.NewListener(source, a.Controller, a.Config.GetRedirectURI(),
				deeplink.WithOutcomeHandler(func(o deeplink.Outcome) { outcome = o }))
			if err != nil {
				return err
			}
			if err := listener.Run(ctx); err != nil {
				return err
			}
			return reportOutcome(a, outcome)
		}),
	}
}

func (c *cli) listenCmd() *cobra.Command {
	var printURL, once bool
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Receive redirects on the loopback redirect URI until interrupted",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, a *app.App, _ []string) error {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			if user := a.Controller.Restore(ctx); user != nil {
				pterm.Info.Printfln("Currently signed in as %s", user.DisplayName())
			}

			if printURL {
				authURL, err := a.Controller.SignInURL(ctx)
				if err != nil {
					return err
				}
				pterm.Info.Println("Open this URL to sign in:")
				fmt.Println(authURL)
			}

			source := deeplink.NewLoopbackSource(a.Config.GetRedirectURI())
			listener, err := deeplink.NewListener(source, a.Controller, a.Config.GetRedirectURI(),
				deeplink.WithOutcomeHandler(func(o deeplink.Outcome) {
					_ = reportOutcome(a, o)
					if once && o == deeplink.OutcomeSignedIn {
						cancel()
					}
				}))
			if err != nil {
				return err
			}

			pterm.Info.Printfln("Listening on %s (Ctrl-C to stop)", a.Config.GetRedirectURI())
			return listener.Run(ctx)
		}),
	}
	cmd.Flags().BoolVar(&printURL, "print-url", false, "start a sign-in and print its authorization URL")
	cmd.Flags().BoolVar(&once, "once", false, "exit after the first successful sign-in")
	return cmd
}

func reportOutcome(a *app.App, o deeplink.Outcome) error {
	switch o {
	case deeplink.OutcomeSignedIn:
		if u := a.Controller.AuthContext().User(); u != nil {
			pterm.Success.Printfln("Signed in as %s", u.DisplayName())
		} else {
			pterm.Success.Println("Signed in")
		}
		return nil
	case deeplink.OutcomeIgnored:
		pterm.Debug.Println("Ignored a link that is not the auth callback")
		return nil
	default:
		pterm.Error.Printfln("Callback not completed: %s (see log for details)", o)
		return errSilent
	}
}

func (c *cli) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the stored access token signature against the provider JWKS",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(ctx context.Context, a *app.App, _ []string) error {
			// Refresh first so an expired token is not reported as invalid
			if user, err := a.Controller.GetUser(ctx); err != nil {
				return err
			} else if user == nil {
				pterm.Warning.Println("Not signed in")
				return errSilent
			}

			session, err := a.Sessions.Load(ctx)
			if err != nil {
				return err
			}
			if session == nil {
				return errors.New("session disappeared while verifying")
			}

			verifier, err := a.Verifier(ctx)
			if err != nil {
				return err
			}
			token, err := verifier.Verify(ctx, session.AccessToken)
			if err != nil {
				pterm.Error.Printfln("Access token is not valid: %v", err)
				return errSilent
			}
			pterm.Success.Println("Access token signature and claims verified")
			return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
				{"Claim", "Value"},
				{"sub", token.Subject},
				{"sid", token.SessionID},
				{"iss", token.Issuer},
				{"exp", token.ExpiresAt.Local().String()},
			}).Render()
		}),
	}
}
