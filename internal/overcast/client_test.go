package overcast

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"overcast-sonos/internal/models"
)

func samplePodcasts() []fakePodcast {
	return []fakePodcast{
		{
			ID:       "itunes200/zebra-show",
			Title:    "Zebra Show",
			Unplayed: true,
			Episodes: []fakeEpisode{
				{ID: "+zA", Title: "Zebra A", Elapsed: 600, Remaining: "20 min left", Caption: "Jan 5, 2024"},
			},
		},
		{
			ID:    "itunes100/alpha-show",
			Title: "Alpha Show",
			Episodes: []fakeEpisode{
				{ID: "+aA", Title: "A", Elapsed: 120, Remaining: "1 hr 2 min left", Caption: "Mar 4 • 1 hr 2 min left"},
				{ID: "+aB", Title: "B", Unplayed: true, Remaining: "30 min left", Caption: "Feb 1"},
				{ID: "+aC", Title: "C", Unplayed: true, Remaining: "played"},
				{ID: "+aD", Title: "D", Remaining: "0 min left"},
			},
		},
		{
			ID:       "itunes300/scorchin",
			Title:    "Scorchin’ Radio",
			Unplayed: true,
			Episodes: []fakeEpisode{
				{ID: "+sA", Title: "Scorchin’ Radio 101", Elapsed: 60, Remaining: ""},
			},
		},
	}
}

type staticOverrides map[string]int

func (s staticOverrides) Duration(title string) (int, bool) {
	for match, seconds := range s {
		if strings.Contains(title, match) {
			return seconds, true
		}
	}
	return 0, false
}

type fakeProber struct {
	mu      sync.Mutex
	seconds int
	uris    []string
}

func (p *fakeProber) Duration(_ context.Context, uri string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uris = append(p.uris, uri)
	return p.seconds, p.seconds > 0
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string][]error
}

func (o *recordingObserver) ObserveRequest(operation string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string][]error)
	}
	o.outcomes[operation] = append(o.outcomes[operation], err)
}

func TestLoginFailureIsAuthenticationError(t *testing.T) {
	_, server := newFakeOvercast(t, samplePodcasts())
	client := newTestClient(t, server, Options{})

	err := client.Login(testContext(t), "me@example.com", "wrong")
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid email or password.") {
		t.Fatalf("expected alert text in error, got %v", err)
	}
}

func TestSessionIsReusedAfterLogin(t *testing.T) {
	_, server := newFakeOvercast(t, samplePodcasts())
	client := newTestClient(t, server, Options{})

	if _, ok, err := client.FetchEpisodeDetail(testContext(t), "+zA"); err != nil || ok {
		t.Fatalf("expected not found before login, got ok=%t err=%v", ok, err)
	}

	if err := client.Login(testContext(t), "me@example.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, ok, err := client.FetchEpisodeDetail(testContext(t), "+zA"); err != nil || !ok {
		t.Fatalf("expected episode after login, got ok=%t err=%v", ok, err)
	}
}

func TestFetchEpisodeDetail(t *testing.T) {
	fake, server := newFakeOvercast(t, samplePodcasts())
	client := loggedInClient(t, server, Options{})

	episode, ok, err := client.FetchEpisodeDetail(testContext(t), "+aA")
	if err != nil || !ok {
		t.Fatalf("FetchEpisodeDetail: ok=%t err=%v", ok, err)
	}

	want := models.Episode{
		ID:           "+aA",
		Title:        "A",
		PodcastTitle: "Alpha Show",
		AlbumArtURI:  "https://art.example/itunes100/alpha-show-full.jpg",
		OffsetMillis: 120_000,
		Duration:     120 + 3720,
		AudioType:    "audio/mpeg",
		AudioURI:     "https://cdn.example/+aA.mp3",
		ItemID:       "item-+aA",
		SyncVersion:  "7",
		DeleteURI:    "/podcasts/delete/item-+aA",
	}
	if !reflect.DeepEqual(episode, want) {
		t.Fatalf("unexpected episode\n got: %+v\nwant: %+v", episode, want)
	}
	if fake.getCount("/itunes100/alpha-show") != 1 {
		t.Fatalf("expected podcast page to be consulted for remaining time")
	}
}

func TestFetchEpisodeDetailMissingPlayerIsNotFound(t *testing.T) {
	_, server := newFakeOvercast(t, samplePodcasts())
	client := loggedInClient(t, server, Options{})

	episode, ok, err := client.FetchEpisodeDetail(testContext(t), "+deleted")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ok || episode.ID != "" {
		t.Fatalf("expected not found, got %+v", episode)
	}

	if _, ok, err := client.FetchEpisodeDetail(testContext(t), "  "); ok || err != nil {
		t.Fatalf("expected blank id to be not found, got ok=%t err=%v", ok, err)
	}
}

func TestFetchEpisodeDetailDurationFallbacks(t *testing.T) {
	_, server := newFakeOvercast(t, samplePodcasts())

	t.Run("zero remaining is unknown", func(t *testing.T) {
		client := loggedInClient(t, server, Options{})
		episode, ok, err := client.FetchEpisodeDetail(testContext(t), "+aD")
		if err != nil || !ok {
			t.Fatalf("FetchEpisodeDetail: ok=%t err=%v", ok, err)
		}
		if episode.Duration != models.DurationUnknown {
			t.Fatalf("expected unknown duration, got %d", episode.Duration)
		}
	})

	t.Run("unparseable remaining is unknown", func(t *testing.T) {
		client := loggedInClient(t, server, Options{})
		episode, _, _ := client.FetchEpisodeDetail(testContext(t), "+aC")
		if episode.Duration != models.DurationUnknown {
			t.Fatalf("expected unknown duration, got %d", episode.Duration)
		}
	})

	t.Run("override table", func(t *testing.T) {
		prober := &fakeProber{seconds: 999}
		client := loggedInClient(t, server, Options{
			Overrides: staticOverrides{"Scorchin’ Radio": 3600},
			Prober:    prober,
		})
		episode, _, _ := client.FetchEpisodeDetail(testContext(t), "+sA")
		if episode.Duration != 3600 {
			t.Fatalf("expected override duration, got %d", episode.Duration)
		}
		if len(prober.uris) != 0 {
			t.Fatalf("expected prober to be skipped when an override matches")
		}
	})

	t.Run("prober", func(t *testing.T) {
		prober := &fakeProber{seconds: 2400}
		client := loggedInClient(t, server, Options{Prober: prober})
		episode, _, _ := client.FetchEpisodeDetail(testContext(t), "+aD")
		if episode.Duration != 2400 {
			t.Fatalf("expected probed duration, got %d", episode.Duration)
		}
		if len(prober.uris) != 1 || prober.uris[0] != "https://cdn.example/+aD.mp3" {
			t.Fatalf("unexpected probe calls %v", prober.uris)
		}
	})

	t.Run("prober failure stays unknown", func(t *testing.T) {
		client := loggedInClient(t, server, Options{Prober: &fakeProber{}})
		episode, _, _ := client.FetchEpisodeDetail(testContext(t), "+aD")
		if episode.Duration != models.DurationUnknown {
			t.Fatalf("expected unknown duration, got %d", episode.Duration)
		}
	})
}

func TestFetchAllPodcasts(t *testing.T) {
	_, server := newFakeOvercast(t, samplePodcasts())
	client := loggedInClient(t, server, Options{})

	all, err := client.FetchAllPodcasts(testContext(t), false)
	if err != nil {
		t.Fatalf("FetchAllPodcasts: %v", err)
	}
	if got := podcastTitles(all); !reflect.DeepEqual(got, []string{"Alpha Show", "Scorchin’ Radio", "Zebra Show"}) {
		t.Fatalf("unexpected order %v", got)
	}
	if all[0].ID != "itunes100/alpha-show" || all[0].AlbumArtURI != "https://art.example/itunes100/alpha-show.jpg" {
		t.Fatalf("unexpected podcast %+v", all[0])
	}

	unplayed, err := client.FetchAllPodcasts(testContext(t), true)
	if err != nil {
		t.Fatalf("FetchAllPodcasts unplayed: %v", err)
	}
	if got := podcastTitles(unplayed); !reflect.DeepEqual(got, []string{"Scorchin’ Radio", "Zebra Show"}) {
		t.Fatalf("unexpected unplayed podcasts %v", got)
	}
	for _, p := range unplayed {
		if !p.Unplayed {
			t.Fatalf("expected unplayed flag on %+v", p)
		}
	}
}

func TestFetchAllEpisodesOrdering(t *testing.T) {
	_, server := newFakeOvercast(t, samplePodcasts())
	client := loggedInClient(t, server, Options{})

	all, err := client.FetchAllEpisodes(testContext(t), "itunes100/alpha-show", false)
	if err != nil {
		t.Fatalf("FetchAllEpisodes: %v", err)
	}
	if got := episodeIDs(all); !reflect.DeepEqual(got, []string{"+aA", "+aB", "+aC", "+aD"}) {
		t.Fatalf("unexpected page order %v", got)
	}

	unplayed, err := client.FetchAllEpisodes(testContext(t), "itunes100/alpha-show", true)
	if err != nil {
		t.Fatalf("FetchAllEpisodes unplayed: %v", err)
	}
	// Unplayed episodes are front-inserted one at a time, reversing their
	// relative page order.
	if got := episodeIDs(unplayed); !reflect.DeepEqual(got, []string{"+aC", "+aB", "+aA", "+aD"}) {
		t.Fatalf("unexpected unplayed order %v", got)
	}
}

func TestFetchAllEpisodesFields(t *testing.T) {
	_, server := newFakeOvercast(t, samplePodcasts())
	client := loggedInClient(t, server, Options{})

	episodes, err := client.FetchAllEpisodes(testContext(t), "/itunes100/alpha-show", false)
	if err != nil {
		t.Fatalf("FetchAllEpisodes: %v", err)
	}

	first := episodes[0]
	if first.Title != "A" || first.Unplayed {
		t.Fatalf("unexpected played episode %+v", first)
	}
	if first.PodcastTitle != "Alpha Show" || first.AlbumArtURI != "https://art.example/itunes100/alpha-show.jpg" {
		t.Fatalf("unexpected podcast fields %+v", first)
	}
	if first.AudioType != "audio/mpeg" || first.Duration != models.DurationUnknown {
		t.Fatalf("unexpected defaults %+v", first)
	}
	if want := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC); !first.ReleaseDate.Equal(want) {
		t.Fatalf("expected release date %s, got %s", want, first.ReleaseDate)
	}

	second := episodes[1]
	if second.Title != UnplayedTitlePrefix+"B" || !second.Unplayed {
		t.Fatalf("expected unplayed prefix, got %+v", second)
	}
}

func TestFetchAllEpisodesUnknownPodcastIsEmpty(t *testing.T) {
	_, server := newFakeOvercast(t, samplePodcasts())
	client := loggedInClient(t, server, Options{})

	episodes, err := client.FetchAllEpisodes(testContext(t), "itunes999/gone", true)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(episodes) != 0 {
		t.Fatalf("expected empty listing, got %d", len(episodes))
	}
}

func TestReportOffsetAndDelete(t *testing.T) {
	fake, server := newFakeOvercast(t, samplePodcasts())
	observer := &recordingObserver{}
	client := loggedInClient(t, server, Options{Observer: observer})

	episode, _, err := client.FetchEpisodeDetail(testContext(t), "+zA")
	if err != nil {
		t.Fatalf("FetchEpisodeDetail: %v", err)
	}

	if err := client.ReportOffset(testContext(t), episode, 754); err != nil {
		t.Fatalf("ReportOffset: %v", err)
	}
	if err := client.DeleteEpisode(testContext(t), episode); err != nil {
		t.Fatalf("DeleteEpisode: %v", err)
	}

	posts := fake.postsSnapshot()
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].Path != "/podcasts/set_progress/item-+zA" {
		t.Fatalf("unexpected progress path %s", posts[0].Path)
	}
	if posts[0].Form.Get("p") != "754" || posts[0].Form.Get("speed") != "0" || posts[0].Form.Get("v") != "7" {
		t.Fatalf("unexpected progress form %v", posts[0].Form)
	}
	if posts[1].Path != "/podcasts/delete/item-+zA" {
		t.Fatalf("unexpected delete path %s", posts[1].Path)
	}

	if got := observer.outcomes["set_progress"]; len(got) != 1 || got[0] != nil {
		t.Fatalf("expected one successful set_progress observation, got %v", got)
	}
}

func TestWriteFailuresPropagate(t *testing.T) {
	_, server := newFakeOvercast(t, samplePodcasts())
	client := loggedInClient(t, server, Options{})

	failing := models.Episode{ID: "+x", ItemID: "fail", DeleteURI: "/podcasts/delete/fail"}
	if err := client.ReportOffset(testContext(t), failing, 10); !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected status error from progress write, got %v", err)
	}
	if err := client.DeleteEpisode(testContext(t), failing); !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected status error from delete, got %v", err)
	}

	if err := client.ReportOffset(testContext(t), models.Episode{ID: "+y"}, 10); err == nil {
		t.Fatalf("expected error without item id")
	}
	if err := client.DeleteEpisode(testContext(t), models.Episode{ID: "+y"}); err == nil {
		t.Fatalf("expected error without delete uri")
	}
}

func TestReadsRetryServerErrors(t *testing.T) {
	fake, server := newFakeOvercast(t, samplePodcasts())
	client := loggedInClient(t, server, Options{})

	fake.failNext("/podcasts", 2)
	podcasts, err := client.FetchAllPodcasts(testContext(t), false)
	if err != nil {
		t.Fatalf("FetchAllPodcasts after transient failures: %v", err)
	}
	if len(podcasts) != 3 {
		t.Fatalf("expected 3 podcasts, got %d", len(podcasts))
	}
	if got := fake.getCount("/podcasts"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}

	fake.failNext("/podcasts", 10)
	if _, err := client.FetchAllPodcasts(testContext(t), false); !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected status error once retries are exhausted, got %v", err)
	}
	if got := fake.getCount("/podcasts"); got != 6 {
		t.Fatalf("expected 3 more attempts, got %d", got)
	}
}

func TestResolveAudioURI(t *testing.T) {
	_, server := newFakeOvercast(t, samplePodcasts())
	client := loggedInClient(t, server, Options{})

	got, err := client.ResolveAudioURI(testContext(t), server.URL+"/audio/redirect")
	if err != nil {
		t.Fatalf("ResolveAudioURI: %v", err)
	}
	if got != server.URL+"/audio/final.mp3" {
		t.Fatalf("unexpected final uri %s", got)
	}

	got, err = client.ResolveAudioURI(testContext(t), server.URL+"/audio/no-head.mp3")
	if err != nil {
		t.Fatalf("ResolveAudioURI GET fallback: %v", err)
	}
	if got != server.URL+"/audio/no-head.mp3" {
		t.Fatalf("unexpected fallback uri %s", got)
	}
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	if _, err := New(Options{BaseURL: "overcast.fm"}); err == nil {
		t.Fatalf("expected error for relative base url")
	}
}

func TestEpisodeIDFromHref(t *testing.T) {
	cases := map[string]string{
		"/+AbCd":                    "+AbCd",
		"https://overcast.fm/+AbCd": "+AbCd",
		"/+AbCd/":                   "+AbCd",
		"/+AbCd?t=10":               "+AbCd",
		"":                          "",
	}
	for in, want := range cases {
		if got := episodeIDFromHref(in); got != want {
			t.Fatalf("episodeIDFromHref(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseReleaseDate(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		caption string
		want    time.Time
	}{
		{"Jan 5, 2021 • 45 min left", time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"Mar 4", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"Dec 24 · played", time.Date(2023, 12, 24, 0, 0, 0, 0, time.UTC)},
		{"", time.Time{}},
		{"yesterday", time.Time{}},
	}
	for _, tc := range cases {
		if got := parseReleaseDate(tc.caption, now); !got.Equal(tc.want) {
			t.Fatalf("parseReleaseDate(%q) = %s, want %s", tc.caption, got, tc.want)
		}
	}
}

func podcastTitles(podcasts []models.Podcast) []string {
	out := make([]string, 0, len(podcasts))
	for _, p := range podcasts {
		out = append(out, p.Title)
	}
	return out
}

func episodeIDs(episodes []models.Episode) []string {
	out := make([]string, 0, len(episodes))
	for _, e := range episodes {
		out = append(out, e.ID)
	}
	return out
}
