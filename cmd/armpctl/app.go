package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"armp/internal/apiclient"
	"armp/internal/dashboard"
	"armp/internal/featureflags"
	"armp/internal/guard"
	"armp/internal/models"
	"armp/internal/session"
	"armp/internal/tokenstore"

	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const defaultAPIURL = "http://localhost:5000/api"

var errNotSignedIn = errors.New("not signed in: run 'armpctl login' first")

// app carries the settings shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer
	// stdin serves every prompt and --password-file -.
	stdin *bufio.Reader

	apiURL    string
	tokenFile string
	output    string
	timeout   time.Duration
	flags     *featureflags.Manager
}

func newApp(stdout, stderr io.Writer, stdin io.Reader) *app {
	return &app{
		stdout:  stdout,
		stderr:  stderr,
		stdin:   bufio.NewReader(stdin),
		timeout: 15 * time.Second,
		flags:   featureflags.NewManager(os.Getenv("FEATURE_FLAGS")),
	}
}

// newFlagSet returns a flag set carrying the connection and output flags
// every command accepts.
func (a *app) newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVar(&a.apiURL, "api-url", envOr("API_BASE_URL", defaultAPIURL), "base URL of the access request API")
	fs.StringVar(&a.tokenFile, "token-file", "", "where the session token is kept (default: user config dir)")
	fs.StringVarP(&a.output, "output", "o", "table", "output format: table, json or yaml")
	fs.DurationVar(&a.timeout, "timeout", 15*time.Second, "per-call API timeout")
	return fs
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// conn is a resolved session and the clients built on it.
type conn struct {
	api   *apiclient.Client
	store *session.Store
}

// connect rehydrates the session from the token file.
func (a *app) connect(ctx context.Context) (*conn, error) {
	switch a.output {
	case "table", "json", "yaml":
	default:
		return nil, fmt.Errorf("unknown output format %q (want table, json or yaml)", a.output)
	}

	path := a.tokenFile
	if path == "" {
		var err error
		if path, err = tokenstore.DefaultFilePath(); err != nil {
			return nil, err
		}
	}
	tokens := tokenstore.NewFileStore(path)
	api := apiclient.New(apiclient.Options{
		BaseURL: a.apiURL,
		Timeout: a.timeout,
	}).WithTokenSource(tokens)

	store := session.New(api, tokens, session.Options{
		TokenRefresh: a.flags.Enabled(featureflags.TokenRefresh, path),
	})
	store.LoadSession(ctx)
	return &conn{api: api, store: store}, nil
}

// guest connects and applies the guest guard: signed-in users are refused.
func (a *app) guest(ctx context.Context) (*conn, error) {
	c, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	st := c.store.State()
	if d := guard.Guest(st); d.Action == guard.Redirect {
		return nil, fmt.Errorf("already signed in as %s (%s): run 'armpctl logout' first", st.User.Email, st.User.Role)
	}
	return c, nil
}

// access connects and applies the access guard for roles.
func (a *app) access(ctx context.Context, roles ...models.Role) (*conn, error) {
	c, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	st := c.store.State()
	if d := guard.Access(st, roles...); d.Action == guard.Redirect {
		if !st.Authenticated() {
			return nil, errNotSignedIn
		}
		return nil, fmt.Errorf("this command requires the %s role (signed in as %s)", roles[0], st.User.Role)
	}
	return c, nil
}

func (c *conn) options() dashboard.Options {
	return dashboard.Options{OnUnauthorized: c.store.Invalidate}
}

// readPassword reads a password from file, from stdin when file is "-", or
// from the terminal with echo off.
func (a *app) readPassword(prompt, file string) (string, error) {
	if file != "" {
		var data []byte
		var err error
		if file == "-" {
			data, err = io.ReadAll(a.stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available for the password prompt (use --password-file)")
	}
	fmt.Fprint(a.stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(a.stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// prompt reads one line from stdin when value is empty.
func (a *app) prompt(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(a.stderr, "%s: ", label)
	line, err := a.stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}
