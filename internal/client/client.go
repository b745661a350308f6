// Package client is a synchronous client for model-serving endpoints that
// speak the KServe v2 / Triton HTTP inference protocol.
//
// A Client holds no per-call state: every Infer or statistics call is one
// blocking round trip that either returns a decoded result or a typed error
// (ModelNotFoundError, ServerError, TransportError). The client never
// retries; callers decide.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Defaults applied when the corresponding Config fields are unset.
const (
	DefaultTimeout          = 60 * time.Second
	DefaultMaxResponseBytes = 256 << 20
	defaultConnectTimeout   = 10 * time.Second
)

// Config describes how to reach the server.
type Config struct {
	// URL is host:port or a full http(s) URL of the server.
	URL string `validate:"required"`
	// SSL selects HTTPS. CertFile, KeyFile, CACerts and Insecure only apply
	// when it is set.
	SSL      bool
	CertFile string `validate:"omitempty,file"`
	KeyFile  string `validate:"omitempty,file"`
	CACerts  string `validate:"omitempty,file"`
	// Insecure disables peer certificate verification.
	Insecure bool
	// Verbose logs every request and response at info level.
	Verbose bool
	// Timeout bounds each call; DefaultTimeout when zero.
	Timeout        time.Duration
	ConnectTimeout time.Duration
	// MaxResponseBytes caps a response body, both as received and after
	// decompression; DefaultMaxResponseBytes when zero.
	MaxResponseBytes int64 `validate:"gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(tlsRules, Config{})
	return v
}

// tlsRules rejects TLS material without SSL and half a client key pair.
func tlsRules(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if !c.SSL {
		if c.CertFile != "" {
			sl.ReportError(c.CertFile, "CertFile", "CertFile", "requires_ssl", "")
		}
		if c.KeyFile != "" {
			sl.ReportError(c.KeyFile, "KeyFile", "KeyFile", "requires_ssl", "")
		}
		if c.CACerts != "" {
			sl.ReportError(c.CACerts, "CACerts", "CACerts", "requires_ssl", "")
		}
		if c.Insecure {
			sl.ReportError(c.Insecure, "Insecure", "Insecure", "requires_ssl", "")
		}
	}
	if c.CertFile != "" && c.KeyFile == "" {
		sl.ReportError(c.KeyFile, "KeyFile", "KeyFile", "required_with_cert", "")
	}
	if c.KeyFile != "" && c.CertFile == "" {
		sl.ReportError(c.CertFile, "CertFile", "CertFile", "required_with_key", "")
	}
}

// Validate checks field values and the SSL-dependent combinations.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: client config: %v", ErrInvalidArgument, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: client config: %s", ErrInvalidArgument, strings.Join(msgs, "; "))
}

// Client talks to one server. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	maxResp int64
	verbose bool
	log     zerolog.Logger
	newID   func() string
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger installs the logger used for request/response logging.
func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.log = l } }

// WithHTTPClient replaces the HTTP client built from Config.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithRequestIDs sets the generator for request ids when InferOptions
// leaves RequestID empty.
func WithRequestIDs(gen func() string) Option { return func(c *Client) { c.newID = gen } }

// New builds a client without touching the network.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := normalizeURL(cfg.URL, cfg.SSL)
	if err != nil {
		return nil, err
	}
	tc, err := tlsConfig(cfg)
	if err != nil {
		return nil, err
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       tc,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Response encodings are negotiated per call.
		DisableCompression: true,
	}
	c := &Client{
		baseURL: base,
		// Deadlines come from the per-call context.
		http:    &http.Client{Transport: tr, Timeout: 0},
		timeout: cfg.Timeout,
		maxResp: cfg.MaxResponseBytes,
		verbose: cfg.Verbose,
		log:     zerolog.Nop(),
		newID:   uuid.NewString,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxResp <= 0 {
		c.maxResp = DefaultMaxResponseBytes
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Dial builds a client and checks that the server answers the liveness
// probe, failing with ConnectionError otherwise.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	c, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	live, err := c.IsServerLive(ctx)
	if err != nil {
		var te TransportError
		if errors.As(err, &te) {
			err = te.Err
		}
		return nil, ConnectionError{URL: c.baseURL, Err: err}
	}
	if !live {
		return nil, ConnectionError{URL: c.baseURL, Err: errors.New("server is not live")}
	}
	return c, nil
}

// URL returns the normalized base URL.
func (c *Client) URL() string { return c.baseURL }

// Close releases idle connections.
func (c *Client) Close() { c.http.CloseIdleConnections() }

func normalizeURL(raw string, ssl bool) (string, error) {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, "://") {
		scheme := "http"
		if ssl {
			scheme = "https"
		}
		s = scheme + "://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: url %q: %v", ErrInvalidArgument, raw, err)
	}
	switch u.Scheme {
	case "http":
		if ssl {
			return "", invalidArg("url %q uses http but SSL is enabled", raw)
		}
	case "https":
	default:
		return "", invalidArg("url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", invalidArg("url %q has no host", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
