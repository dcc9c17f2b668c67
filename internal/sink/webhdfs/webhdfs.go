// Package webhdfs writes files to HDFS through the WebHDFS REST API.
package webhdfs

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/loykin/apifetch/internal/sink/spool"
	"github.com/tidwall/gjson"
)

// DefaultPort is the namenode HTTP port used when a location has none.
const DefaultPort = "9870"

// Config holds WebHDFS settings.
type Config struct {
	// User is sent as user.name (simple authentication).
	User string `mapstructure:"user" yaml:"user"`
	// Scheme overrides http/https for webhdfs:// and hdfs:// locations.
	Scheme  string        `mapstructure:"scheme" yaml:"scheme"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Sink creates files with op=CREATE&overwrite=true.
type Sink struct {
	cfg    Config
	client *resty.Client
}

func New(cfg Config) *Sink {
	c := resty.New()
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	// the namenode answers with a 307 to a datanode; it is followed by hand
	c.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))
	return &Sink{cfg: cfg, client: c}
}

// Endpoint maps a webhdfs://, swebhdfs:// or hdfs:// location to its REST URL and file path.
func (s *Sink) Endpoint(dest string) (*url.URL, string, error) {
	u, err := url.Parse(dest)
	if err != nil {
		return nil, "", fmt.Errorf("parse hdfs location: %w", err)
	}
	scheme := "http"
	switch u.Scheme {
	case "webhdfs", "hdfs":
	case "swebhdfs":
		scheme = "https"
	default:
		return nil, "", fmt.Errorf("not an hdfs location: %s", dest)
	}
	if s.cfg.Scheme != "" {
		scheme = s.cfg.Scheme
	}
	if u.Hostname() == "" || u.Path == "" || u.Path == "/" {
		return nil, "", fmt.Errorf("hdfs location needs host and path: %s", dest)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), DefaultPort)
	}
	filePath := path.Clean("/" + strings.TrimPrefix(u.Path, "/"))
	rest := &url.URL{Scheme: scheme, Host: host, Path: "/webhdfs/v1" + filePath}
	return rest, filePath, nil
}

// Create returns a writer that creates the file on Commit.
func (s *Sink) Create(ctx context.Context, dest string) (*spool.Writer, error) {
	endpoint, _, err := s.Endpoint(dest)
	if err != nil {
		return nil, err
	}
	return spool.New(ctx, func(ctx context.Context, body io.ReadSeeker, size int64) error {
		location, err := s.createLocation(ctx, endpoint)
		if err != nil {
			return err
		}
		resp, err := s.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/octet-stream").
			SetBody(io.LimitReader(body, size)).
			Put(location)
		if err != nil {
			return fmt.Errorf("webhdfs upload: %w", err)
		}
		if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusOK {
			return remoteError("webhdfs upload", resp)
		}
		return nil
	})
}

// createLocation runs the first step of CREATE and returns the datanode URL.
func (s *Sink) createLocation(ctx context.Context, endpoint *url.URL) (string, error) {
	q := url.Values{}
	q.Set("op", "CREATE")
	q.Set("overwrite", "true")
	if s.cfg.User != "" {
		q.Set("user.name", s.cfg.User)
	}
	u := *endpoint
	u.RawQuery = q.Encode()

	resp, err := s.client.R().SetContext(ctx).Put(u.String())
	if err != nil {
		return "", fmt.Errorf("webhdfs create: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusTemporaryRedirect, http.StatusFound, http.StatusSeeOther:
		if loc := resp.Header().Get("Location"); loc != "" {
			return loc, nil
		}
	case http.StatusOK:
		// noredirect=true style answer
		if loc := gjson.GetBytes(resp.Body(), "Location"); loc.Exists() && loc.String() != "" {
			return loc.String(), nil
		}
	}
	return "", remoteError("webhdfs create", resp)
}

func remoteError(op string, resp *resty.Response) error {
	msg := gjson.GetBytes(resp.Body(), "RemoteException.message").String()
	if msg == "" {
		msg = strings.TrimSpace(resp.String())
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode(), msg)
}
