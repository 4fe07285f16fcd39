package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/bnema/xhs-pilot/internal/adapters/browser"
	sessionfile "github.com/bnema/xhs-pilot/internal/adapters/session/file"
	"github.com/spf13/cobra"
)

func newSessionCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the stored login session",
	}

	cmd.AddCommand(
		newSessionImportCmd(app),
		newSessionShowCmd(app),
		newSessionResetCmd(app),
	)

	return cmd
}

func newSessionImportCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <cookies.json>",
		Short: "Import browser cookies from a cookie list or storage state export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return respond(cmd, result{}, fmt.Errorf("read cookies file: %w", err))
			}

			cookies, err := browser.ParseCookies(data)
			if err != nil {
				return respond(cmd, result{}, err)
			}
			encoded, err := browser.EncodeCookies(cookies)
			if err != nil {
				return respond(cmd, result{}, err)
			}
			if err := app.sessions.Put(cmd.Context(), sessionfile.CookiesKey, encoded); err != nil {
				return respond(cmd, result{}, err)
			}

			view := sessionSummary(app, cookies)
			detail := fmt.Sprintf("imported %d cookies", len(cookies))
			if !view.LoggedIn {
				detail += "; no web_session cookie, log in before running actions"
			}
			return respond(cmd, result{Status: statusOK, Detail: detail, Session: view}, nil)
		},
	}
}

func newSessionShowCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show whether a login session is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := app.sessions.Get(cmd.Context(), sessionfile.CookiesKey)
			if errors.Is(err, sessionfile.ErrSessionNotFound) {
				view := &sessionView{Path: app.sessions.Location(sessionfile.CookiesKey)}
				return respond(cmd, result{Status: statusOK, Detail: "no session stored", Session: view}, nil)
			}
			if err != nil {
				return respond(cmd, result{}, err)
			}

			cookies, err := browser.ParseCookies([]byte(data))
			if err != nil {
				return respond(cmd, result{}, err)
			}
			view := sessionSummary(app, cookies)
			return respond(cmd, result{Status: statusOK, Detail: fmt.Sprintf("%d cookies stored", len(cookies)), Session: view}, nil)
		},
	}
}

func newSessionResetCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the stored login session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.sessions.Delete(cmd.Context(), sessionfile.CookiesKey); err != nil {
				return respond(cmd, result{}, err)
			}
			return respond(cmd, result{Status: statusOK, Detail: "session cleared"}, nil)
		},
	}
}

func sessionSummary(app *app, cookies []browser.Cookie) *sessionView {
	return &sessionView{
		Path:     app.sessions.Location(sessionfile.CookiesKey),
		Cookies:  len(cookies),
		LoggedIn: browser.HasSession(cookies),
	}
}
