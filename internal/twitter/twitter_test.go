package twitter_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clawwork/internal/twitter"
)

func TestExtractTweetID(t *testing.T) {
	cases := []struct {
		url  string
		id   string
		ok   bool
	}{
		{"https://twitter.com/alice/status/1234567890", "1234567890", true},
		{"https://x.com/alice/status/99", "99", true},
		{"https://x.com/alice/status/99?s=20", "99", true},
		{"https://example.com/alice/status/99", "", false},
		{"not a url", "", false},
	}
	for _, tc := range cases {
		id, ok := twitter.ExtractTweetID(tc.url)
		if ok != tc.ok || id != tc.id {
			t.Errorf("ExtractTweetID(%q) = %q, %v; want %q, %v", tc.url, id, ok, tc.id, tc.ok)
		}
	}
}

func TestExtractAuthor(t *testing.T) {
	author, ok := twitter.ExtractAuthor("https://x.com/alice_dev/status/42")
	if !ok || author != "alice_dev" {
		t.Fatalf("got %q, %v", author, ok)
	}
	if _, ok := twitter.ExtractAuthor("https://example.com/nope"); ok {
		t.Fatal("author extracted from non-twitter url")
	}
}

func TestMockVerifier(t *testing.T) {
	res, err := twitter.Mock{}.VerifyPost(context.Background(), "https://x.com/alice/status/42", "CODE-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || !res.Mock || res.Author != "alice" {
		t.Fatalf("result = %+v", res)
	}
	res, err = twitter.Mock{}.VerifyPost(context.Background(), "garbage", "CODE-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Fatal("malformed url must not verify")
	}
}

func TestNewSelectsImplementation(t *testing.T) {
	if _, ok := twitter.New(twitter.Config{}).(twitter.Mock); !ok {
		t.Fatal("empty token must select the mock")
	}
	if _, ok := twitter.New(twitter.Config{BearerToken: "tok"}).(*twitter.Live); !ok {
		t.Fatal("token must select the live client")
	}
}

func newTweetStub(t *testing.T, text, username string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `{"data":{"id":"42","text":%q,"author_id":"u1"},"includes":{"users":[{"id":"u1","username":%q}]}}`, text, username)
	}))
}

func TestLiveVerifyPost(t *testing.T) {
	srv := newTweetStub(t, "claiming my agent CLAW-ALICE-3F9A today", "alice_dev")
	defer srv.Close()
	v := &twitter.Live{Token: "tok", BaseURL: srv.URL}

	res, err := v.VerifyPost(context.Background(), "https://x.com/alice_dev/status/42", "CLAW-ALICE-3F9A")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.Author != "alice_dev" || res.Mock {
		t.Fatalf("result = %+v", res)
	}

	res, err = v.VerifyPost(context.Background(), "https://x.com/alice_dev/status/42", "OTHER-CODE")
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Reason == "" {
		t.Fatalf("code absent but result = %+v", res)
	}
	if res.Author != "alice_dev" {
		t.Fatalf("author should still be reported, got %q", res.Author)
	}
}

func TestLiveVerifyPostNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	v := &twitter.Live{Token: "tok", BaseURL: srv.URL}
	res, err := v.VerifyPost(context.Background(), "https://x.com/alice/status/404", "CODE")
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Fatal("missing post must not verify")
	}
}

func TestLiveVerifyPostFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	v := &twitter.Live{Token: "tok", BaseURL: srv.URL, Timeout: 50 * time.Millisecond}
	res, err := v.VerifyPost(context.Background(), "https://x.com/alice/status/42", "CODE")
	if err != nil {
		t.Fatalf("fetch failure must be a verification outcome, not an error: %v", err)
	}
	if res.Valid {
		t.Fatal("unreachable post must not verify")
	}
	if res.Reason != "could not fetch post" {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestLiveSearchRecent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":"1","text":"CLAW-BOB-AA11","author_id":"u9"}],"includes":{"users":[{"id":"u9","username":"bob_ai"}]}}`)
	}))
	defer srv.Close()
	v := &twitter.Live{Token: "tok", BaseURL: srv.URL}
	tweets, err := v.SearchRecent(context.Background(), `"CLAW-BOB-AA11"`)
	if err != nil {
		t.Fatal(err)
	}
	if len(tweets) != 1 || tweets[0].Author != "bob_ai" || tweets[0].Text != "CLAW-BOB-AA11" {
		t.Fatalf("tweets = %+v", tweets)
	}
}
