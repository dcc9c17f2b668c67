package httpc

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// MaxRedirects bounds the flexible redirect policy when redirects are followed.
const MaxRedirects = 10

// Options configures one client. Zero timeouts mean no limit.
type Options struct {
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	FollowRedirects    bool
	InsecureSkipVerify bool
	// MinTLSVersion and MaxTLSVersion accept "1.2", "tls1.3", "TLS13" and similar.
	MinTLSVersion string
	MaxTLSVersion string
}

// New returns a resty.Client owning its own transport and TLS config.
// Nothing process-wide is touched, so an insecure client never weakens other clients.
func New(opts Options) *resty.Client {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	tr := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DialContext:       deadlineDialer(dialer, opts.ReadTimeout),
		TLSClientConfig:   tlsConfig(opts),
		DisableKeepAlives: true,
		// The dialer's timeout bounds the TLS handshake as well.
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		ForceAttemptHTTP2:     false,
	}

	c := resty.NewWithClient(&http.Client{Transport: tr})
	c.SetAllowGetMethodPayload(true)
	if opts.FollowRedirects {
		c.SetRedirectPolicy(resty.FlexibleRedirectPolicy(MaxRedirects))
	} else {
		c.SetRedirectPolicy(keepRedirectResponse())
	}
	return c
}

func tlsConfig(opts Options) *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if v := parseTLSVersion(opts.MinTLSVersion); v >= tls.VersionTLS12 {
		cfg.MinVersion = v
	}
	if v := parseTLSVersion(opts.MaxTLSVersion); v != 0 && v >= cfg.MinVersion {
		cfg.MaxVersion = v
	}
	if opts.InsecureSkipVerify {
		// #nosec G402 -- opt-in per request via disableSSLValidation
		cfg.InsecureSkipVerify = true
	}
	return cfg
}

// keepRedirectResponse hands 3xx responses back to the caller instead of following them.
func keepRedirectResponse() resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})
}

func parseTLSVersion(s string) uint16 {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "tls")
	v = strings.TrimPrefix(v, "v")
	switch v {
	case "1.0", "10":
		return tls.VersionTLS10
	case "1.1", "11":
		return tls.VersionTLS11
	case "1.2", "12":
		return tls.VersionTLS12
	case "1.3", "13":
		return tls.VersionTLS13
	default:
		return 0
	}
}

func deadlineDialer(d *net.Dialer, readTimeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil || readTimeout <= 0 {
			return conn, err
		}
		return &deadlineConn{Conn: conn, timeout: readTimeout}, nil
	}
}

// deadlineConn refreshes the read deadline before every Read, giving socket-read
// timeout semantics rather than a whole-response timeout.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}
