package cmd

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/etnz/vtrade/audit"
	"github.com/google/subcommands"
)

type registerCmd struct {
	password string
}

func (*registerCmd) Name() string     { return "register" }
func (*registerCmd) Synopsis() string { return "create a user and its portfolio" }
func (*registerCmd) Usage() string {
	return `vtrade register [-password <password>] <username>

  Creates a user with an empty portfolio in the configured base currency,
  credited with the configured initial balance.
  The password is prompted for when not given.
`
}

func (c *registerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.password, "password", "", "Password of the new user, prompted for if empty")
}

func (c *registerCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: register expects exactly one username")
		return subcommands.ExitUsageError
	}
	username := f.Arg(0)
	password, err := readPassword(c.password, "Password: ")
	if err != nil {
		fmt.Fprintf(stderr, "Error reading password: %v\n", err)
		return subcommands.ExitFailure
	}

	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error opening data: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	u, p, err := a.accounts().Register(ctx, username, password)
	a.audit.Record(audit.Event{Action: audit.Register, Username: username, UserID: u.ID, Err: err})
	if err != nil {
		fmt.Fprintf(stderr, "Error registering %q: %v\n", username, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "User %s registered with a %s portfolio.\n", u.Username, p.Base())
	return subcommands.ExitSuccess
}

type loginCmd struct {
	password string
}

func (*loginCmd) Name() string     { return "login" }
func (*loginCmd) Synopsis() string { return "log in as a registered user" }
func (*loginCmd) Usage() string {
	return `vtrade login [-password <password>] <username>

  Opens a session used by the following commands until logout.
`
}

func (c *loginCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.password, "password", "", "Password, prompted for if empty")
}

func (c *loginCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(stderr, "Error: login expects exactly one username")
		return subcommands.ExitUsageError
	}
	username := f.Arg(0)
	password, err := readPassword(c.password, "Password: ")
	if err != nil {
		fmt.Fprintf(stderr, "Error reading password: %v\n", err)
		return subcommands.ExitFailure
	}

	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error opening data: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	u, err := a.accounts().Login(ctx, username, password)
	a.audit.Record(audit.Event{Action: audit.Login, Username: username, UserID: u.ID, Err: err})
	if err != nil {
		fmt.Fprintf(stderr, "Error logging in: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := saveSession(a.cfg, session{UserID: u.ID, Username: u.Username, LoginAt: time.Now().UTC()}); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "Logged in as %s.\n", u.Username)
	return subcommands.ExitSuccess
}

type logoutCmd struct{}

func (*logoutCmd) Name() string             { return "logout" }
func (*logoutCmd) Synopsis() string         { return "close the current session" }
func (*logoutCmd) Usage() string            { return "vtrade logout\n" }
func (*logoutCmd) SetFlags(f *flag.FlagSet) {}

func (*logoutCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		fmt.Fprintln(stderr, "Error: no arguments expected")
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := clearSession(cfg); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(stdout, "Logged out.")
	return subcommands.ExitSuccess
}

type whoamiCmd struct{}

func (*whoamiCmd) Name() string             { return "whoami" }
func (*whoamiCmd) Synopsis() string         { return "print the logged in user" }
func (*whoamiCmd) Usage() string            { return "vtrade whoami\n" }
func (*whoamiCmd) SetFlags(f *flag.FlagSet) {}

func (*whoamiCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(stderr, "Error opening data: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	u, err := a.currentUser(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "%s (user %d, registered %s)\n", u.Username, u.ID, u.RegisteredAt.Format(time.DateOnly))
	return subcommands.ExitSuccess
}
