package overcast

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeEpisode struct {
	ID        string
	Title     string
	Elapsed   int
	Remaining string
	Unplayed  bool
	Caption   string
	AudioType string
}

type fakePodcast struct {
	ID       string
	Title    string
	Unplayed bool
	Episodes []fakeEpisode
}

type postedForm struct {
	Path string
	Form url.Values
}

// fakeOvercast serves just enough of the Overcast web site for the scraper.
type fakeOvercast struct {
	t        *testing.T
	password string
	podcasts []fakePodcast

	mu       sync.Mutex
	posts    []postedForm
	gets     map[string]int
	failures map[string]int
}

func newFakeOvercast(t *testing.T, podcasts []fakePodcast) (*fakeOvercast, *httptest.Server) {
	t.Helper()
	f := &fakeOvercast{t: t, password: "secret", podcasts: podcasts, gets: make(map[string]int), failures: make(map[string]int)}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeOvercast) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		f.mu.Lock()
		f.gets[r.URL.Path]++
		failing := f.failures[r.URL.Path] > 0
		if failing {
			f.failures[r.URL.Path]--
		}
		f.mu.Unlock()
		if failing {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
	}

	switch {
	case r.URL.Path == "/login" && r.Method == http.MethodPost:
		f.handleLogin(w, r)
	case r.URL.Path == "/podcasts" && r.Method == http.MethodGet:
		f.requireSession(w, r, f.podcastsPage)
	case strings.HasPrefix(r.URL.Path, "/podcasts/") && r.Method == http.MethodPost:
		f.recordPost(w, r)
	case r.URL.Path == "/audio/redirect":
		http.Redirect(w, r, "/audio/hop", http.StatusFound)
	case r.URL.Path == "/audio/hop":
		http.Redirect(w, r, "/audio/final.mp3", http.StatusFound)
	case r.URL.Path == "/audio/final.mp3":
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/audio/no-head.mp3":
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	case strings.HasPrefix(r.URL.Path, "/+"):
		f.requireSession(w, r, f.episodePage)
	default:
		f.requireSession(w, r, f.podcastPage)
	}
}

func (f *fakeOvercast) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("password") != f.password {
		fmt.Fprint(w, `<html><body><div class="alert"> Invalid email or password. </div><form></form></body></html>`)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "o", Value: "session", Path: "/"})
	fmt.Fprint(w, `<html><body><h1>Podcasts</h1></body></html>`)
}

func (f *fakeOvercast) requireSession(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request)) {
	if cookie, err := r.Cookie("o"); err != nil || cookie.Value != "session" {
		fmt.Fprint(w, `<html><body><form action="/login"></form></body></html>`)
		return
	}
	next(w, r)
}

func (f *fakeOvercast) recordPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.posts = append(f.posts, postedForm{Path: r.URL.Path, Form: r.PostForm})
	f.mu.Unlock()
	if strings.Contains(r.URL.Path, "fail") {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeOvercast) postsSnapshot() []postedForm {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]postedForm, len(f.posts))
	copy(out, f.posts)
	return out
}

// failNext makes the next n reads of path answer 502.
func (f *fakeOvercast) failNext(path string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = n
}

func (f *fakeOvercast) getCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[path]
}

func (f *fakeOvercast) podcastsPage(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString(`<html><body><h2>Podcasts</h2>`)
	for _, p := range f.podcasts {
		indicator := ""
		if p.Unplayed {
			indicator = `<svg class="unplayed_indicator"></svg>`
		}
		fmt.Fprintf(&b, `<a class="feedcell" href="/%s"><img src="https://art.example/%s.jpg">%s<div class="titlestack"><div class="title">%s</div></div></a>`,
			p.ID, p.ID, indicator, p.Title)
	}
	b.WriteString(`<a class="feedcell">no link</a></body></html>`)
	fmt.Fprint(w, b.String())
}

func (f *fakeOvercast) podcastPage(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/")
	for _, p := range f.podcasts {
		if p.ID != id {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, `<html><body><img class="art" src="https://art.example/%s.jpg"><h2 class="centertext">%s</h2>`, p.ID, p.Title)
		for _, ep := range p.Episodes {
			class := "extendedepisodecell"
			if ep.Unplayed {
				class += " usernewepisode"
			}
			fmt.Fprintf(&b, `<a class="%s" href="/%s"><div class="titlestack"><div class="title">
%s</div><div class="caption2">%s</div></div><div class="singleline">%s</div><div class="singleline">%s</div></a>`,
				class, ep.ID, ep.Title, ep.Caption, ep.Caption, ep.Remaining)
		}
		b.WriteString(`</body></html>`)
		fmt.Fprint(w, b.String())
		return
	}
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprint(w, `<html><body><h1>Not found</h1></body></html>`)
}

func (f *fakeOvercast) episodePage(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/")
	for _, p := range f.podcasts {
		for _, ep := range p.Episodes {
			if ep.ID != id {
				continue
			}
			audioType := ep.AudioType
			if audioType == "" {
				audioType = "audio/mpeg"
			}
			fmt.Fprintf(w, `<html><body>
<div class="fullart_container"><img src="https://art.example/%s-full.jpg"></div>
<div class="centertext"><h2>%s</h2><h3><a href="/%s">%s</a></h3></div>
<audio id="audioplayer" data-start-time="%d" data-item-id="item-%s" data-sync-version="7">
  <source src="https://cdn.example/%s.mp3" type="%s">
</audio>
<a id="delete_episode_button" href="/podcasts/delete/item-%s">Delete</a>
</body></html>`, p.ID, ep.Title, p.ID, p.Title, ep.Elapsed, ep.ID, ep.ID, audioType, ep.ID)
			return
		}
	}
	// Overcast redirects removed episodes to a page without a player.
	fmt.Fprint(w, `<html><body><h2>Overcast</h2></body></html>`)
}

func newTestClient(t *testing.T, server *httptest.Server, opts Options) *Client {
	t.Helper()
	opts.BaseURL = server.URL
	opts.HTTP = server.Client()
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	client, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func loggedInClient(t *testing.T, server *httptest.Server, opts Options) *Client {
	t.Helper()
	client := newTestClient(t, server, opts)
	if err := client.Login(testContext(t), "me@example.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	return client
}
