package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/acme-isv/qindex-broker/pkg/broker"
	"github.com/acme-isv/qindex-broker/pkg/config"
	"github.com/acme-isv/qindex-broker/pkg/federr"
	"github.com/acme-isv/qindex-broker/pkg/idp"
	"github.com/acme-isv/qindex-broker/pkg/session"
)

// ttiMaxAttempts bounds transport retries during the TTI exchange. The
// authorization-code flow never retries: codes are single-use.
const ttiMaxAttempts = 3

type credentialExchanger interface {
	Exchange(ctx context.Context, source broker.TokenSource) (broker.ScopedCredentials, error)
}

type codeProvider interface {
	AuthorizationURL() string
	VerifyState(state string) error
	TokenSource(code string) broker.TokenSource
}

type passwordProvider interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
	TokenSource(bearerToken string) broker.TokenSource
}

type loginDeps struct {
	cfg          *config.FederationConfig
	exchanger    credentialExchanger
	code         codeProvider
	tti          passwordProvider
	store        *session.Store
	stdin        io.Reader
	stdout       io.Writer
	stderr       io.Writer
	readPassword func() (string, error)
	open         func(url string) error
	username     string
	export       bool
}

func newLoginCmd(debug *bool) *cobra.Command {
	var username string
	var export bool

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Run the configured federation flow and obtain scoped credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := newLogger(*debug)
			defer func() { _ = logger.Sync() }()

			deps := defaultLoginDeps(cfg, logger)
			deps.username = username
			deps.export = export
			return runLogin(cmd.Context(), deps)
		},
	}

	loginCmd.Flags().StringVarP(&username, "username", "u", "", "directory username (TTI flow)")
	loginCmd.Flags().BoolVar(&export, "export", false, "print credentials as shell export lines")

	return loginCmd
}

func defaultLoginDeps(cfg *config.FederationConfig, logger *zap.Logger) loginDeps {
	stsFactory := broker.NewClientFactory(cfg.IDCRegion())
	oidcFactory := idp.NewOIDCFactory(cfg.IDCRegion())

	opts := []broker.Option{broker.WithLogger(logger.Named("broker"))}
	if cfg.TenantID() != "" {
		opts = append(opts, broker.WithTenantID(cfg.TenantID()))
	}

	return loginDeps{
		cfg:       cfg,
		exchanger: broker.New(stsFactory, cfg.RoleARN(), opts...),
		code: idp.NewAuthorizationCodeProvider(cfg, oidcFactory,
			idp.WithAuthCodeLogger(logger.Named("idp"))),
		tti: idp.NewTrustedIssuerProvider(cfg,
			idp.NewCognitoFactory(cfg.CognitoRegion()), oidcFactory,
			idp.WithTTILogger(logger.Named("idp"))),
		store:  session.NewStore(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		readPassword: func() (string, error) {
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			return string(raw), err
		},
		open: openBrowser,
	}
}

func runLogin(ctx context.Context, deps loginDeps) error {
	switch deps.cfg.Flow() {
	case config.FlowAuthorizationCode:
		return runCodeLogin(ctx, deps)
	default:
		return runTTILogin(ctx, deps)
	}
}

func runCodeLogin(ctx context.Context, deps loginDeps) error {
	authURL := deps.code.AuthorizationURL()
	fmt.Fprintf(deps.stdout, "Sign in with the enterprise identity provider:\n%s\n\n", authURL)
	if deps.open != nil {
		if err := deps.open(authURL); err != nil {
			fmt.Fprintln(deps.stderr, "Could not open a browser; use the URL above.")
		}
	}

	fmt.Fprint(deps.stdout, "Paste the redirect URL (or just the authorization code): ")
	line, err := readLine(deps.stdin)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	code := line
	if strings.Contains(line, "://") {
		var state string
		code, state, err = idp.CodeFromRedirect(line)
		if err != nil {
			return err
		}
		if state != "" {
			if err := deps.code.VerifyState(state); err != nil {
				return err
			}
		}
	}
	if code == "" {
		return federr.Authentication("authorization-redirect", "no authorization code provided", nil)
	}

	// The code is single-use; one attempt only.
	creds, err := exchangeWithRetry(ctx, deps.exchanger, deps.code.TokenSource(code), 1)
	if err != nil {
		return err
	}

	return finishLogin(deps, creds)
}

func runTTILogin(ctx context.Context, deps loginDeps) error {
	username := deps.username
	if username == "" {
		fmt.Fprint(deps.stdout, "Username: ")
		var err error
		username, err = readLine(deps.stdin)
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
	}

	fmt.Fprint(deps.stdout, "Password: ")
	password, err := deps.readPassword()
	fmt.Fprintln(deps.stdout)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	bearerToken, err := deps.tti.Authenticate(ctx, username, password)
	if err != nil {
		return err
	}

	// The directory token stays valid across a transient network failure,
	// so the exchange itself may be retried.
	creds, err := exchangeWithRetry(ctx, deps.exchanger, deps.tti.TokenSource(bearerToken), ttiMaxAttempts)
	if err != nil {
		return err
	}

	return finishLogin(deps, creds)
}

// exchangeWithRetry runs the broker exchange, retrying only transport-class
// failures. All other classes are permanent: a rejected code, assertion or
// credential pair cannot succeed on a second attempt.
func exchangeWithRetry(ctx context.Context, exchanger credentialExchanger, source broker.TokenSource, maxTries uint) (broker.ScopedCredentials, error) {
	operation := func() (broker.ScopedCredentials, error) {
		creds, err := exchanger.Exchange(ctx, source)
		if err != nil && !federr.IsRetryable(err) {
			return broker.ScopedCredentials{}, backoff.Permanent(err)
		}
		return creds, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries),
	)
}

func finishLogin(deps loginDeps, creds broker.ScopedCredentials) error {
	deps.store.Set(creds)

	fmt.Fprintf(deps.stdout, "Federated session established; credentials expire at %s.\n",
		creds.Expiration.Format(time.RFC3339))

	if deps.export {
		fmt.Fprintf(deps.stdout, "export AWS_ACCESS_KEY_ID=%s\n", creds.AccessKeyID)
		fmt.Fprintf(deps.stdout, "export AWS_SECRET_ACCESS_KEY=%s\n", creds.SecretAccessKey)
		fmt.Fprintf(deps.stdout, "export AWS_SESSION_TOKEN=%s\n", creds.SessionToken)
	}
	return nil
}

func readLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(scanner.Text()), nil
}
