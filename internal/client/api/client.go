package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/perchworks/perch/internal/client/models"
	"github.com/perchworks/perch/internal/common"
	"github.com/perchworks/perch/internal/cryptox"
	"github.com/perchworks/perch/internal/logging"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://perch.garden/api/v1/"

const userAgent = "perch-go/0.3.0 (+https://github.com/perchworks/perch)"

const (
	defaultUploadAttempts = 3
	defaultPollInterval   = 2 * time.Second
	defaultPollTimeout    = 2 * time.Minute
)

// Config holds settings for creating a Client.
type Config struct {
	// BaseURL is the API root. Defaults to DefaultBaseURL. A trailing
	// slash is added when missing.
	BaseURL string

	// HTTPClient is used for all requests. If nil, a default client is
	// used. The Client installs its own cookie jar either way: the jar is
	// owned by the Client and nothing else may read or mutate cookies.
	HTTPClient *http.Client

	// Logger is used for structured logging. If nil, a stderr slog
	// logger is used.
	Logger logging.Logger

	// UploadAttempts is the total number of tries for the byte-upload
	// phase of each attachment. Defaults to 3.
	UploadAttempts int

	// PollInterval and PollTimeout bound the confirm/poll loop for
	// attachment kinds that post-process asynchronously.
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Client talks to the perch API. It is safe for concurrent use.
//
// A Client starts unauthenticated: only Login and FetchPosts work.
// Login returns a Session for everything that needs the login cookie.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	jar            *lockedJar
	logger         logging.Logger
	uploadAttempts int
	pollInterval   time.Duration
	pollTimeout    time.Duration
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("api: invalid base URL %q: %w", cfg.BaseURL, err)
	}

	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("api: creating cookie jar: %w", err)
	}
	jar := &lockedJar{jar: inner}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	httpClient.Jar = jar

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDefault()
	}

	uploadAttempts := cfg.UploadAttempts
	if uploadAttempts <= 0 {
		uploadAttempts = defaultUploadAttempts
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	return &Client{
		baseURL:        baseURL,
		httpClient:     httpClient,
		jar:            jar,
		logger:         logger,
		uploadAttempts: uploadAttempts,
		pollInterval:   pollInterval,
		pollTimeout:    pollTimeout,
	}, nil
}

// lockedJar serializes cookie access across concurrent requests on the
// same Session. Only jar mutation is synchronized this way; request
// construction and bodies still proceed concurrently.
type lockedJar struct {
	mu  sync.Mutex
	jar http.CookieJar
}

func (j *lockedJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.SetCookies(u, cookies)
}

func (j *lockedJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// reset discards all cookies by swapping in a fresh jar.
func (j *lockedJar) reset() error {
	fresh, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("api: creating cookie jar: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar = fresh
	return nil
}

type saltResponse struct {
	Salt string `json:"salt"`
}

type loginRequest struct {
	Email      string `json:"email"`
	ClientHash string `json:"clientHash"`
}

type loginResponse struct {
	UserID uint64 `json:"userId"`
}

// Login authenticates with an email and password and returns a ready
// Session. The login cookie is stored in the Client's jar.
//
// Login is never retried: repeated wrong-credential attempts can trigger
// server-side lockouts. Wrong credentials surface as
// common.ErrUnauthorized.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var saltResp saltResponse
	query := url.Values{"email": {email}}
	if err := c.doRequest(ctx, http.MethodGet, "login/salt", query, nil, &saltResp); err != nil {
		return nil, fmt.Errorf("fetching salt: %w", err)
	}

	salt, err := cryptox.DecodeSalt(saltResp.Salt)
	if err != nil {
		return nil, err
	}
	clientHash, err := cryptox.ClientHash([]byte(password), salt)
	if err != nil {
		return nil, err
	}

	var loginResp loginResponse
	if err := c.doRequest(ctx, http.MethodPost, "login", nil, &loginRequest{Email: email, ClientHash: clientHash}, &loginResp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	c.logger.Info(ctx, "logged in", "user_id", loginResp.UserID)
	return &Session{client: c}, nil
}

// FetchPosts returns one page of a project's posts in server order. Pages
// start at 0; the first empty page means every later page is empty too.
// Each call is independent given (project, page) — there is no cursor.
//
// FetchPosts works without a login for public projects.
func (c *Client) FetchPosts(ctx context.Context, project string, page uint64) ([]models.Post, error) {
	var pageResp apiPostsPage
	query := url.Values{"page": {strconv.FormatUint(page, 10)}}
	path := fmt.Sprintf("project/%s/posts", project)
	if err := c.doRequest(ctx, http.MethodGet, path, query, nil, &pageResp); err != nil {
		return nil, fmt.Errorf("fetching posts page %d: %w", page, err)
	}

	posts := make([]models.Post, 0, len(pageResp.Items))
	for _, item := range pageResp.Items {
		post, err := postFromView(&item)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// doRequest performs a JSON request against the API root. On 2xx the
// response body is unmarshalled into responseBody (when non-nil); non-2xx
// statuses return a *StatusError.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, requestBody, responseBody any) error {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("api: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("api: building request: %w", err)
	}
	request.Header.Set("User-Agent", userAgent)
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug(ctx, "api request", "method", method, "path", path)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w: %w", method, path, common.ErrNetwork, err)
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("api: reading %s %s response: %w: %w", method, path, common.ErrNetwork, err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return newStatusError(method, path, response.StatusCode, data)
	}

	if responseBody != nil {
		if err := json.Unmarshal(data, responseBody); err != nil {
			return fmt.Errorf("api: parsing %s %s response: %w: %w", method, path, common.ErrProtocol, err)
		}
	}
	return nil
}
