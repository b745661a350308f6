// Package cli implements the inferctl command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"inferclient/internal/client"
	"inferclient/internal/config"
	"inferclient/internal/logging"
	"inferclient/internal/wire"
)

// Exit codes returned by Execute.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// usageError marks invocation mistakes, reported with ExitUsage.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

func usagef(format string, a ...any) error {
	return usageError{err: fmt.Errorf(format, a...)}
}

// cobra reports these without a typed error.
var usagePrefixes = []string{"unknown command", "required flag", "accepts ", "requires at least"}

func isUsage(err error) bool {
	var ue usageError
	if errors.As(err, &ue) {
		return true
	}
	for _, p := range usagePrefixes {
		if strings.HasPrefix(err.Error(), p) {
			return true
		}
	}
	return false
}

// flagValues are the raw persistent flags; only those set on the command
// line override file and environment values.
type flagValues struct {
	url                 string
	verbose             bool
	ssl                 bool
	keyFile             string
	certFile            string
	caCerts             string
	insecure            bool
	headers             []string
	requestCompression  string
	responseCompression string
	timeout             time.Duration
	waitReady           time.Duration
	logLevel            string
	logFile             string
}

type app struct {
	stdout io.Writer
	stderr io.Writer
	env    envconfig.Lookuper

	configPath string
	flags      flagValues
	cfg        config.Config
	log        zerolog.Logger
	closer     io.Closer
	// readyDelay is the pause between readiness probes.
	readyDelay time.Duration
}

// Execute runs inferctl with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, args, stdout, stderr, nil)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer, env envconfig.Lookuper) int {
	a := &app{stdout: stdout, stderr: stderr, env: env, log: zerolog.Nop(), readyDelay: 500 * time.Millisecond}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if a.closer != nil {
		_ = a.closer.Close()
	}
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	if isUsage(err) {
		fmt.Fprintln(stderr, "Run 'inferctl --help' for usage.")
		return ExitUsage
	}
	return ExitFailure
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "inferctl",
		Short:         "Client for KServe v2 / Triton HTTP inference servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return usagef("a command is required: run|infer|stats|health|metadata|serve-mock|completion")
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err: err} })

	pf := root.PersistentFlags()
	f := &a.flags
	pf.StringVarP(&f.url, "url", "u", config.DefaultURL, "Inference server URL")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "Log every request and response")
	pf.BoolVarP(&f.ssl, "ssl", "s", false, "Use HTTPS")
	pf.StringVar(&f.keyFile, "key-file", "", "Client private key (PEM)")
	pf.StringVar(&f.certFile, "cert-file", "", "Client certificate (PEM)")
	pf.StringVar(&f.caCerts, "ca-certs", "", "CA bundle used to verify the server (PEM)")
	pf.BoolVar(&f.insecure, "insecure", false, "Skip server certificate verification")
	pf.StringArrayVarP(&f.headers, "header", "H", nil, "Extra HTTP header Name:Value (repeatable)")
	pf.StringVar(&f.requestCompression, "request-compression-algorithm", "", "Compress request bodies: none|gzip|deflate")
	pf.StringVar(&f.responseCompression, "response-compression-algorithm", "", "Ask for compressed responses: none|gzip|deflate")
	pf.DurationVar(&f.timeout, "timeout", client.DefaultTimeout, "Per-request timeout")
	pf.DurationVar(&f.waitReady, "wait-ready", 0, "Poll server readiness for up to this long before running")
	pf.StringVar(&a.configPath, "config", "", "Config file (.yaml, .json or .toml)")
	pf.StringVar(&f.logLevel, "log-level", "info", "Log level: off|error|info|debug (env INFERCTL_LOG_LEVEL)")
	pf.StringVar(&f.logFile, "log-file", "", "Also write JSON logs to this rotating file")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.resolve(cmd)
	}

	root.AddCommand(
		a.runCmd(),
		a.inferCmd(),
		a.statsCmd(),
		a.healthCmd(),
		a.metadataCmd(),
		a.serveMockCmd(),
		a.completionCmd(root),
	)
	return root
}

// resolve merges the config file, INFERCTL_* variables and flags, in
// increasing precedence, and sets up logging.
func (a *app) resolve(cmd *cobra.Command) error {
	var cfg config.Config
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return fmt.Errorf("config %s: %w", a.configPath, err)
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(cmd.Context(), &cfg, a.env); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	fl := cmd.Flags()
	f := a.flags
	if fl.Changed("url") {
		cfg.URL = f.url
	}
	if fl.Changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if fl.Changed("ssl") {
		cfg.SSL = f.ssl
	}
	if fl.Changed("key-file") {
		cfg.KeyFile = f.keyFile
	}
	if fl.Changed("cert-file") {
		cfg.CertFile = f.certFile
	}
	if fl.Changed("ca-certs") {
		cfg.CACerts = f.caCerts
	}
	if fl.Changed("insecure") {
		cfg.Insecure = f.insecure
	}
	if fl.Changed("request-compression-algorithm") {
		cfg.RequestCompression = f.requestCompression
	}
	if fl.Changed("response-compression-algorithm") {
		cfg.ResponseCompression = f.responseCompression
	}
	if fl.Changed("timeout") {
		if f.timeout <= 0 {
			return usagef("--timeout must be positive")
		}
		cfg.Timeout = f.timeout
	}
	if fl.Changed("wait-ready") {
		cfg.WaitReadySeconds = int((f.waitReady + time.Second - 1) / time.Second)
	}
	if fl.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fl.Changed("log-file") {
		cfg.LogFile = f.logFile
	}
	if len(f.headers) > 0 {
		hs, err := parseHeaders(f.headers)
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hs {
			cfg.Headers[k] = v
		}
	}
	cfg = cfg.WithDefaults()

	if err := wire.ValidateAlgorithm(cfg.RequestCompression); err != nil {
		return usageError{err: fmt.Errorf("request compression: %w", err)}
	}
	if err := wire.ValidateAlgorithm(cfg.ResponseCompression); err != nil {
		return usageError{err: fmt.Errorf("response compression: %w", err)}
	}
	a.cfg = cfg

	lvl := logging.ParseLevel(cfg.LogLevel)
	if cfg.Verbose && lvl < logging.LevelInfo {
		lvl = logging.LevelInfo
	}
	a.log, a.closer = logging.New(a.stderr, logging.Options{Level: lvl, File: cfg.LogFile})
	a.log.Debug().Str("url", cfg.URL).Dur("timeout", cfg.EffectiveTimeout()).Msg("configuration resolved")
	return nil
}

var errNotReady = errors.New("server is not ready")

// connect builds a client. Without --wait-ready it checks liveness once;
// with it, readiness is polled until the deadline.
func (a *app) connect(ctx context.Context) (*client.Client, error) {
	cc, err := a.cfg.ClientConfig()
	if err != nil {
		return nil, err
	}
	opts := []client.Option{client.WithLogger(a.log)}
	if a.cfg.WaitReadySeconds <= 0 {
		return client.Dial(ctx, cc, opts...)
	}
	c, err := client.New(cc, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.waitReady(ctx, c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (a *app) waitReady(ctx context.Context, c *client.Client) error {
	wait := time.Duration(a.cfg.WaitReadySeconds) * time.Second
	attempts := uint(wait/a.readyDelay) + 1
	err := retry.Do(
		func() error {
			ready, err := c.IsServerReady(ctx)
			if err != nil {
				return err
			}
			if !ready {
				return errNotReady
			}
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(a.readyDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			a.log.Debug().Uint("attempt", n+1).Err(err).Msg("waiting for server readiness")
		}),
	)
	if err != nil {
		return client.ConnectionError{URL: c.URL(), Err: err}
	}
	return nil
}
