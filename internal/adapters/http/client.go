package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/ohmynofan/qlyuker-tapper-bot/internal/platform/logger"
	"github.com/ohmynofan/qlyuker-tapper-bot/pkg/utils"
)

// RequestError covers every transport-level fault: network errors, non-200
// statuses and malformed bodies. Callers decide the retry policy.
type RequestError struct {
	StatusCode int
	Status     string
	Body       []byte
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request error: %v", e.Err)
	}
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Status)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ClientFault reports whether the server answered with a 4xx. Logged louder
// or quieter than 5xx but handled the same way by the loop.
func (e *RequestError) ClientFault() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

type FetchOptions struct {
	Method            string
	Body              interface{}
	AdditionalHeaders map[string]string
}

// Client is the authenticated HTTP client shared by all game API calls of one
// account. It pins the account's proxy and user agent and persists the session
// cookies the server rotates on every call.
type Client struct {
	Proxy      string
	UserAgent  string
	HTTPClient *http.Client
	Log        *logger.ClassLogger

	authToken   string
	baseHeaders map[string]string
}

func NewClient(proxy, cookieFile, userAgent string, baseHeaders map[string]string, log *logger.ClassLogger) (*Client, error) {
	transport := &http.Transport{}

	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		switch strings.ToLower(proxyURL.Scheme) {
		case "socks5", "socks5h":
			dialer, err := xproxy.FromURL(proxyURL, &net.Dialer{Timeout: 30 * time.Second})
			if err != nil {
				return nil, fmt.Errorf("invalid socks proxy: %w", err)
			}
			if cd, ok := dialer.(xproxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			} else {
				transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
					return dialer.Dial(network, addr)
				}
			}
		default:
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	jar, err := newFileCookieJar(cookieFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cookie jar: %w", err)
	}

	return &Client{
		Proxy:     proxy,
		UserAgent: userAgent,
		HTTPClient: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
			Jar:       jar,
		},
		Log:         log,
		baseHeaders: baseHeaders,
	}, nil
}

// SetAuthToken stores the bearer token sent with every subsequent request.
func (c *Client) SetAuthToken(token string) {
	c.authToken = token
}

func (c *Client) HasCookies() bool {
	if jar, ok := c.HTTPClient.Jar.(*fileCookieJar); ok {
		return jar.HasCookies()
	}
	return false
}

func (c *Client) ClearCookies() error {
	if jar, ok := c.HTTPClient.Jar.(*fileCookieJar); ok {
		return jar.Clear()
	}
	return nil
}

func (c *Client) generateHeaders() map[string]string {
	headers := map[string]string{
		"Accept":          "*/*",
		"Accept-Language": "ru,en-US;q=0.9,en;q=0.8",
		"Content-Type":    "application/json",
		"User-Agent":      c.UserAgent,
		"Cache-Control":   "no-cache",
		"Pragma":          "no-cache",
		"Sec-Fetch-Dest":  "empty",
		"Sec-Fetch-Mode":  "cors",
		"Sec-Fetch-Site":  "same-site",
	}
	for key, value := range c.baseHeaders {
		headers[key] = value
	}
	if c.authToken != "" {
		token := c.authToken
		if !strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = "Bearer " + token
		}
		headers["Authorization"] = token
	}
	return headers
}

// Fetch performs one request and returns the raw body. Non-2xx statuses,
// network faults and unreadable bodies all come back as *RequestError.
func (c *Client) Fetch(ctx context.Context, endpoint string, opts *FetchOptions) ([]byte, error) {
	if opts == nil {
		opts = &FetchOptions{}
	}
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}

	var reqBody io.Reader
	var bodyBytes []byte
	if opts.Body != nil && opts.Method != http.MethodGet {
		var err error
		bodyBytes, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, &RequestError{Err: fmt.Errorf("failed to marshal request body: %w", err)}
		}
		reqBody = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, endpoint, reqBody)
	if err != nil {
		return nil, &RequestError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	for key, value := range c.generateHeaders() {
		req.Header.Set(key, value)
	}
	for key, value := range opts.AdditionalHeaders {
		req.Header.Set(key, value)
	}
	if reqBody == nil {
		req.Header.Del("Content-Type")
	}

	if c.Log != nil {
		if bodyBytes != nil {
			c.Log.JustLog(fmt.Sprintf("%s %s\nBody:\n%s", opts.Method, endpoint, utils.BeautifyJSON(bodyBytes)))
		} else {
			c.Log.JustLog(fmt.Sprintf("%s %s", opts.Method, endpoint))
		}
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &RequestError{StatusCode: res.StatusCode, Status: res.Status, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if c.Log != nil {
		c.Log.JustLog(fmt.Sprintf("Response %s:\n%s", res.Status, utils.BeautifyJSON(resBody)))
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &RequestError{StatusCode: res.StatusCode, Status: res.Status, Body: resBody}
	}

	return resBody, nil
}
