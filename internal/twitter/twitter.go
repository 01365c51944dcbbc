// Package twitter validates attestation tweets: posts whose text must contain
// a verification or approval code. The verifier is a pure decision function;
// it never mutates platform state.
package twitter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Result reports what the verifier observed in a post.
type Result struct {
	Valid  bool
	Author string
	Mock   bool
	Reason string
}

// Verifier checks that the post at postURL contains expectedCode.
type Verifier interface {
	VerifyPost(ctx context.Context, postURL, expectedCode string) (Result, error)
}

var (
	tweetIDPattern = regexp.MustCompile(`(?:twitter\.com|x\.com)/[^/]+/status/(\d+)`)
	authorPattern  = regexp.MustCompile(`(?:twitter\.com|x\.com)/([^/]+)/status`)
)

// ExtractTweetID pulls the numeric post id out of a twitter.com or x.com URL.
func ExtractTweetID(postURL string) (string, bool) {
	m := tweetIDPattern.FindStringSubmatch(postURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractAuthor pulls the username slug out of a post URL.
func ExtractAuthor(postURL string) (string, bool) {
	m := authorPattern.FindStringSubmatch(postURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Mock accepts any well-formed post URL, reports the URL slug as the author,
// and always finds the code. Development and tests only; the Mock flag on the
// result tells callers to skip owner matching.
type Mock struct{}

func (Mock) VerifyPost(_ context.Context, postURL, _ string) (Result, error) {
	if _, ok := ExtractTweetID(postURL); !ok {
		return Result{Mock: true, Reason: "malformed post url"}, nil
	}
	author, _ := ExtractAuthor(postURL)
	return Result{Valid: true, Author: author, Mock: true}, nil
}

// DefaultBaseURL is the Twitter API v2 endpoint root.
const DefaultBaseURL = "https://api.twitter.com/2"

// Live fetches posts through the Twitter API v2 with a bearer token.
type Live struct {
	Token   string
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

func (v *Live) baseURL() string {
	if v.BaseURL != "" {
		return strings.TrimRight(v.BaseURL, "/")
	}
	return DefaultBaseURL
}

func (v *Live) client() *http.Client {
	if v.Client != nil {
		return v.Client
	}
	return http.DefaultClient
}

func (v *Live) timeout() time.Duration {
	if v.Timeout > 0 {
		return v.Timeout
	}
	return 10 * time.Second
}

func (v *Live) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+v.Token)
	resp, err := v.client().Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func (v *Live) VerifyPost(ctx context.Context, postURL, expectedCode string) (Result, error) {
	id, ok := ExtractTweetID(postURL)
	if !ok {
		return Result{Reason: "malformed post url"}, nil
	}
	endpoint := fmt.Sprintf("%s/tweets/%s?expansions=author_id&user.fields=username", v.baseURL(), id)
	// A fetch failure is still a verification outcome: the post could not be
	// checked, so the proof does not stand.
	body, status, err := v.get(ctx, endpoint)
	if err != nil {
		return Result{Reason: "could not fetch post"}, nil
	}
	if status != http.StatusOK {
		return Result{Reason: "post not found"}, nil
	}
	parsed := gjson.ParseBytes(body)
	text := parsed.Get("data.text").String()
	if text == "" {
		return Result{Reason: "post not found"}, nil
	}
	author := parsed.Get("includes.users.0.username").String()
	if !strings.Contains(text, expectedCode) {
		return Result{Author: author, Reason: "code not found in post"}, nil
	}
	return Result{Valid: true, Author: author}, nil
}

// Tweet is a minimal search result.
type Tweet struct {
	ID     string
	Text   string
	Author string
}

// Searcher finds recent posts matching a query. Used by the external
// verification poller, never by the core state machine.
type Searcher interface {
	SearchRecent(ctx context.Context, query string) ([]Tweet, error)
}

func (v *Live) SearchRecent(ctx context.Context, query string) ([]Tweet, error) {
	endpoint := fmt.Sprintf("%s/tweets/search/recent?query=%s&expansions=author_id&user.fields=username", v.baseURL(), url.QueryEscape(query))
	body, status, err := v.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", status)
	}
	parsed := gjson.ParseBytes(body)
	usernames := map[string]string{}
	parsed.Get("includes.users").ForEach(func(_, u gjson.Result) bool {
		usernames[u.Get("id").String()] = u.Get("username").String()
		return true
	})
	var tweets []Tweet
	parsed.Get("data").ForEach(func(_, t gjson.Result) bool {
		tweets = append(tweets, Tweet{
			ID:     t.Get("id").String(),
			Text:   t.Get("text").String(),
			Author: usernames[t.Get("author_id").String()],
		})
		return true
	})
	return tweets, nil
}

// Config selects the verifier implementation. An empty bearer token is an
// explicit choice of the mock verifier, not a silent fallback.
type Config struct {
	BearerToken string
	Timeout     time.Duration
}

// New returns a Live verifier when a bearer token is configured, otherwise
// the Mock.
func New(cfg Config) Verifier {
	if strings.TrimSpace(cfg.BearerToken) == "" {
		return Mock{}
	}
	return &Live{Token: cfg.BearerToken, Timeout: cfg.Timeout}
}
