// Package overcast talks to the Overcast web site on behalf of a single user.
// Overcast has no public API, so reads scrape the HTML pages the web player
// uses and writes replay the form posts the web player makes.
package overcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/net/publicsuffix"

	"overcast-sonos/internal/markup"
)

// DefaultBaseURL is the Overcast web origin.
const DefaultBaseURL = "https://overcast.fm"

const (
	readAttempts      = 3
	defaultRetryDelay = 250 * time.Millisecond
)

var (
	// ErrAuthentication is returned when Overcast rejects the login.
	ErrAuthentication = errors.New("overcast: authentication failed")
	// ErrUnexpectedStatus is returned for responses outside the expected range.
	ErrUnexpectedStatus = errors.New("overcast: unexpected response status")
)

// DurationOverrides supplies hand-maintained durations for podcasts whose
// pages never expose a usable remaining time.
type DurationOverrides interface {
	Duration(title string) (int, bool)
}

// DurationProber estimates a duration from the audio resource itself.
type DurationProber interface {
	Duration(ctx context.Context, uri string) (int, bool)
}

// RequestObserver is notified after every remote request.
type RequestObserver interface {
	ObserveRequest(operation string, err error)
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	HTTP      *http.Client
	Overrides DurationOverrides
	Prober    DurationProber
	Observer  RequestObserver
	Logger    *log.Logger
	Now       func() time.Time
	// RetryDelay is the base backoff between page read attempts.
	RetryDelay time.Duration
}

// Client is the Episode Repository. It owns one cookie-backed session that is
// reused for every read and write.
type Client struct {
	base      *url.URL
	http      *http.Client
	overrides DurationOverrides
	prober    DurationProber
	observer  RequestObserver
	logger    *log.Logger
	now       func() time.Time

	retryDelay time.Duration
}

// New builds a Client. The session is not authenticated until Login succeeds.
func New(opts Options) (*Client, error) {
	rawBase := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if rawBase == "" {
		rawBase = DefaultBaseURL
	}
	base, err := url.Parse(rawBase)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", rawBase)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	hc := &http.Client{Timeout: 30 * time.Second}
	if opts.HTTP != nil {
		copied := *opts.HTTP
		hc = &copied
	}
	hc.Jar = jar

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	return &Client{
		base:      base,
		http:      hc,
		overrides: opts.Overrides,
		prober:    opts.Prober,
		observer:  opts.Observer,
		logger:    logger,
		now:       now,

		retryDelay: retryDelay,
	}, nil
}

// HTTPClient returns the session client. Requests made with it carry the
// Overcast session cookie.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Login establishes the authenticated session. Overcast answers a failed login
// with the login page and an alert box, so the alert is the failure signal.
func (c *Client) Login(ctx context.Context, email, password string) error {
	form := url.Values{"email": {email}, "password": {password}}
	doc, err := c.postForm(ctx, "login", c.resolve("/login"), form, true)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if alert := doc.First("div.alert"); alert != nil {
		return fmt.Errorf("%w: %s", ErrAuthentication, strings.TrimSpace(alert.Text()))
	}
	return nil
}

func (c *Client) resolve(ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return c.base.String() + "/" + strings.TrimLeft(ref, "/")
	}
	return c.base.ResolveReference(parsed).String()
}

// getDocument fetches and parses an HTML page. Client errors (a removed
// episode answering 404, say) still yield a document so callers can treat
// missing markers as "not found". Transport failures and server errors are
// retried a few times before being reported.
func (c *Client) getDocument(ctx context.Context, operation, target string) (*markup.Document, error) {
	var doc *markup.Document
	err := retry.Do(func() error {
		var err error
		doc, err = c.getDocumentOnce(ctx, operation, target)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(readAttempts),
		retry.Delay(c.retryDelay),
		retry.MaxJitter(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Printf("%s: attempt %d failed: %v", operation, n+1, err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) getDocumentOnce(ctx context.Context, operation, target string) (*markup.Document, error) {
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(operation, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		err := fmt.Errorf("%w: GET %s returned %d", ErrUnexpectedStatus, target, resp.StatusCode)
		c.observe(operation, err)
		return nil, err
	}

	doc, err := markup.Parse(resp.Body)
	c.observe(operation, err)
	return doc, err
}

// postForm submits form to target. When parse is set the response body is
// returned as a document; otherwise it is discarded.
func (c *Client) postForm(ctx context.Context, operation, target string, form url.Values, parse bool) (*markup.Document, error) {
	req, err := c.newRequest(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(operation, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: POST %s returned %d", ErrUnexpectedStatus, target, resp.StatusCode)
		c.observe(operation, err)
		return nil, err
	}

	if !parse {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.observe(operation, nil)
		return nil, nil
	}

	doc, err := markup.Parse(resp.Body)
	c.observe(operation, err)
	return doc, err
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	applyDefaultHeaders(req.Header)
	return req, nil
}

// do sends req and reports transport failures to the observer. Callers report
// the final outcome once the response has been inspected.
func (c *Client) do(operation string, req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		err = fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
		c.observe(operation, err)
		return nil, err
	}
	return resp, nil
}

func (c *Client) observe(operation string, err error) {
	if c.observer != nil {
		c.observer.ObserveRequest(operation, err)
	}
}

func applyDefaultHeaders(h http.Header) {
	defaults := map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36",
	}
	for k, v := range defaults {
		if h.Get(k) == "" {
			h.Set(k, v)
		}
	}
}
