// Package main はターミナルからユーザーを登録するコマンドです。
//
//	useradd --username alice
//	echo "$PW" | useradd --username alice --password-stdin
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/yourusername/authgate/internal/audit"
	"github.com/yourusername/authgate/internal/auth"
	"github.com/yourusername/authgate/internal/config"
	"github.com/yourusername/authgate/internal/logging"
	"github.com/yourusername/authgate/internal/password"
	"github.com/yourusername/authgate/internal/users"
)

// readPassword はテストで差し替えるための term.ReadPassword です。
var readPassword = term.ReadPassword

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	fs := pflag.NewFlagSet("useradd", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	username := fs.StringP("username", "u", "", "username to create")
	fromStdin := fs.Bool("password-stdin", false, "read the password from the first line of stdin")
	driver := fs.String("db-driver", cfg.DBDriver, "database driver (sqlite or mysql)")
	dsn := fs.String("db-dsn", cfg.DBDSN, "database DSN")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	reader := bufio.NewReader(stdin)

	// ユーザー名の正規化は Registrar に任せる
	name := *username
	if name == "" && !*fromStdin {
		if name, err = prompt(reader, stdout, "Username: "); err != nil {
			fmt.Fprintf(stderr, "failed to read username: %v\n", err)
			return 1
		}
	}

	plaintext, err := readSecret(reader, stdin, stdout, *fromStdin)
	if err != nil {
		fmt.Fprintf(stderr, "failed to read password: %v\n", err)
		return 1
	}

	store, err := users.Open(ctx, users.Options{Driver: *driver, DSN: *dsn, Logger: logger})
	if err != nil {
		fmt.Fprintf(stderr, "failed to open database: %v\n", err)
		return 1
	}
	defer store.Close()

	registrar, err := auth.NewRegistrar(store, password.NewHasher(cfg.HashWorkers), audit.NewLogSink(logger), logger)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	user, err := registrar.Register(audit.WithRemoteAddr(ctx, "cli"), name, plaintext)
	switch {
	case err == nil:
		fmt.Fprintf(stdout, "created user %q (id %d)\n", user.Username, user.ID)
		return 0
	case errors.Is(err, users.ErrConflict):
		fmt.Fprintf(stderr, "username %q already exists\n", auth.NormalizeUsername(name))
	case errors.Is(err, password.ErrPasswordTooLong):
		fmt.Fprintf(stderr, "password must be at most %d bytes\n", password.MaxLength)
	case errors.Is(err, auth.ErrInvalidInput):
		fmt.Fprintln(stderr, "username and password are required")
	default:
		logger.Error().Err(err).Msg("registration failed")
	}
	return 1
}

func prompt(reader *bufio.Reader, w io.Writer, label string) (string, error) {
	fmt.Fprint(w, label)
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readSecret は端末ならエコーなしで、それ以外は1行読み込んでパスワードを返します。
func readSecret(reader *bufio.Reader, stdin io.Reader, w io.Writer, fromStdin bool) (string, error) {
	if f, ok := stdin.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(w, "Password: ")
		pw, err := readPassword(int(f.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
