package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pageharvest/pkg/browser"
	"pageharvest/pkg/logger"
	"pageharvest/pkg/session"
	"pageharvest/pkg/ui"
)

var loginURL string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in through a visible browser and save the session",
	Long: `Open target.login_url in a browser window. Log in there, then press ENTER
in this terminal. The cookies and localStorage of the logged-in browser are
saved to session.path for later harvests.

The session is never refreshed automatically. When pages start failing with
login redirects, run this command again.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&sessionPath, "session", "s", "", "where to save the session")
	loginCmd.Flags().StringVar(&loginURL, "url", "", "login page (default target.login_url)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if sessionPath != "" {
		flags["session"] = sessionPath
	}
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("login needs an interactive terminal to confirm when you are done")
	}

	url := loginURL
	if url == "" {
		url = cfg.Target.LoginURL
	}
	if url == "" {
		return &configError{err: errors.New("no login url: set target.login_url or pass --url")}
	}

	store, err := session.NewStore(cfg.Session)
	if err != nil {
		return err
	}
	if store.Exists() {
		ui.PrintWarning("A saved session already exists and will be replaced", cfg.Session.Path)
	}

	ctx, cancel := signalContext()
	defer cancel()

	ui.PrintInfo("Opening", url)
	state, err := browser.CaptureLogin(ctx, browser.OptionsFrom(cfg.Browser), url, waitForEnter, log)
	if err != nil {
		return err
	}

	auth, err := session.Encode(state)
	if err != nil {
		return err
	}
	if err := store.Save(auth); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	log.WithField("cookies", len(state.Cookies)).Info("Session saved")
	ui.PrintSuccess(fmt.Sprintf("Session saved to %s (%d cookies)", cfg.Session.Path, len(state.Cookies)))
	return nil
}

// waitForEnter blocks until the operator presses ENTER or ctx ends
func waitForEnter(ctx context.Context) error {
	fmt.Fprint(ui.Out, ui.Yellow("Log in in the browser window, then press ENTER here... "))

	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(os.Stdin).ReadString('\n')
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
