package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"multipost/domain/model"
)

const authTimeout = 5 * time.Minute

// BrowserFlow completes OAuth from a terminal: it listens on the redirect
// URL's host, opens the consent page and waits for the callback.
type BrowserFlow struct {
	RedirectURL string
	Timeout     time.Duration
	Out         io.Writer
	// Open shows authURL to the user; it defaults to the system browser.
	Open func(authURL string) error
}

func (f *BrowserFlow) Run(ctx context.Context, platform model.PlatformID, authURL, state string) (string, error) {
	u, err := url.Parse(f.RedirectURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid redirect url %q", f.RedirectURL)
	}
	listener, err := net.Listen("tcp", u.Host)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)
	server := &http.Server{ReadHeaderTimeout: 10 * time.Second}
	server.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != u.Path {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			sendErr(errChan, fmt.Errorf("authorization denied: %s %s", q.Get("error"), q.Get("error_description")))
			_, _ = fmt.Fprintf(w, "<html><body><h1>Error</h1><p>Authorization was not granted.</p></body></html>")
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
		case q.Get("code") == "":
			sendErr(errChan, errors.New("no code in callback"))
			_, _ = fmt.Fprintf(w, "<html><body><h1>Error</h1><p>No authorization code received.</p></body></html>")
		default:
			select {
			case codeChan <- q.Get("code"):
			default:
			}
			_, _ = fmt.Fprintf(w, "<html><body><h1>Success!</h1><p>You can close this window and return to the terminal.</p></body></html>")
		}
	})

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sendErr(errChan, err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	out := f.Out
	if out == nil {
		out = io.Discard
	}
	fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("\nOpening browser for %s authentication...", platform)))
	fmt.Fprintln(out, infoStyle.Render("If browser doesn't open, visit:\n"+authURL))
	open := f.Open
	if open == nil {
		open = browser.OpenURL
	}
	_ = open(authURL)
	fmt.Fprintln(out, infoStyle.Render("\nWaiting for authentication..."))

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = authTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case code := <-codeChan:
		return code, nil
	case err := <-errChan:
		return "", err
	case <-timer.C:
		return "", errors.New("authentication timed out")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func sendErr(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func newAuthCommand(newApp AppFactory) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "auth <platform>",
		Short: "Authorize a platform through the browser",
		Long: `Open the platform's consent page and wait for the OAuth redirect on the
configured callback URL. The resulting credential replaces any stored one.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			p := model.ParsePlatformID(args[0])
			flow := &BrowserFlow{
				RedirectURL: redirectURL(app.Config, p),
				Timeout:     timeout,
				Out:         cmd.ErrOrStderr(),
			}
			rec, err := app.Creds.Authorize(cmd.Context(), p, flow)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("✓ %s authentication complete", p)
			if rec.ExpiresAt != nil {
				msg += " (expires " + rec.ExpiresAt.Format(time.RFC3339) + ")"
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(msg))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", authTimeout, "How long to wait for the browser redirect")
	return cmd
}
