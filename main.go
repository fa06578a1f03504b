package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"bookshare/config"
	"bookshare/market"
)

// app is the state shared by every subcommand.
type app struct {
	cfg    config.App
	log    *slog.Logger
	mgr    *market.Manager
	in     *bufio.Reader
	out    io.Writer
	driver string
	dsn    string
	as     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{in: bufio.NewReader(os.Stdin), out: os.Stdout}

	root := &cobra.Command{
		Use:          "bookshare",
		Short:        "Campus book lending and selling marketplace",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.open(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.mgr == nil {
				return nil
			}
			return a.mgr.Close()
		},
	}
	root.PersistentFlags().StringVar(&a.dsn, "db", "", "database file or DSN (overrides BOOKSHARE_DB_DSN)")
	root.PersistentFlags().StringVar(&a.driver, "driver", "", "database driver: sqlite3 or pgx (overrides BOOKSHARE_DB_DRIVER)")
	root.PersistentFlags().StringVar(&a.as, "as", "", "email of the acting user; the password is prompted")

	root.AddCommand(
		a.userCmd(),
		a.bookCmd(),
		a.txCmd(),
		a.notifCmd(),
		a.reportCmd(),
		a.adminCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.shellCmd(),
		a.serveCmd(),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.driver != "" {
		cfg.DBDriver = a.driver
	}
	if a.dsn != "" {
		cfg.DBDSN = a.dsn
	}
	a.cfg = cfg
	if cmd.Name() == "serve" {
		a.log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	} else {
		a.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	}

	a.mgr, err = market.Open(cfg.DBDriver, cfg.DBDSN,
		market.WithLogger(a.log),
		market.WithEmailDomain(cfg.EmailDomain),
	)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	return nil
}

// readPassword reads a password with masking when stdin is a terminal and
// as a plain line otherwise, so scripts can pipe it in.
func (a *app) readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(a.out, prompt)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(a.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// login authenticates the --as user and returns the caller identity.
func (a *app) login(ctx context.Context) (*market.User, market.Caller, error) {
	if a.as == "" {
		return nil, market.Caller{}, errors.New("this command needs --as <email>")
	}
	pw, err := a.readPassword(fmt.Sprintf("Password for %s: ", a.as))
	if err != nil {
		return nil, market.Caller{}, err
	}
	u, err := a.mgr.Users.Login(ctx, a.as, pw)
	if err != nil {
		return nil, market.Caller{}, fmt.Errorf("authentication failed: %w", err)
	}
	return u, market.Caller{UserID: u.ID, Role: u.Role}, nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}
