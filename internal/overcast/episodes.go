package overcast

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"overcast-sonos/internal/duration"
	"overcast-sonos/internal/markup"
	"overcast-sonos/internal/models"
)

// UnplayedTitlePrefix marks unplayed episodes in listing titles.
const UnplayedTitlePrefix = "* "

const defaultAudioType = "audio/mpeg"

// FetchEpisodeDetail loads the episode page for id. The audio player element
// is what distinguishes a real episode page from the fallback page Overcast
// redirects to for deleted episodes, so its absence reports not found.
func (c *Client) FetchEpisodeDetail(ctx context.Context, id string) (models.Episode, bool, error) {
	id = strings.Trim(strings.TrimSpace(id), "/")
	if id == "" {
		return models.Episode{}, false, nil
	}

	c.logger.Printf("fetching episode %s from overcast", id)
	doc, err := c.getDocument(ctx, "episode_detail", c.resolve("/"+id))
	if err != nil {
		return models.Episode{}, false, fmt.Errorf("fetch episode %s: %w", id, err)
	}

	player := doc.First("audio#audioplayer")
	if player == nil {
		return models.Episode{}, false, nil
	}

	elapsed, _ := strconv.Atoi(strings.TrimSpace(player.AttrOr("data-start-time", "0")))
	if elapsed < 0 {
		elapsed = 0
	}

	podcastLink := doc.First("div.centertext h3 a")
	source := doc.First("audio#audioplayer source")

	episode := models.Episode{
		ID:           id,
		Title:        strings.TrimSpace(doc.First("div.centertext h2").Text()),
		PodcastTitle: strings.TrimSpace(podcastLink.Text()),
		AlbumArtURI:  doc.First("div.fullart_container img").AttrOr("src", ""),
		OffsetMillis: int64(elapsed) * 1000,
		AudioType:    source.AttrOr("type", defaultAudioType),
		AudioURI:     source.AttrOr("src", ""),
		ItemID:       player.AttrOr("data-item-id", ""),
		SyncVersion:  player.AttrOr("data-sync-version", ""),
		DeleteURI:    doc.First("a#delete_episode_button").AttrOr("href", ""),
	}

	remaining := models.DurationUnknown
	if href, ok := podcastLink.Attr("href"); ok {
		remaining = c.remainingSeconds(ctx, id, href)
	}
	episode.Duration = c.resolveDuration(ctx, episode, elapsed, remaining)

	return episode, true, nil
}

// resolveDuration derives the total length. Overcast only publishes the time
// remaining, on the podcast page, so the total is elapsed plus remaining. A
// zero remaining time carries no information and is treated as unknown.
func (c *Client) resolveDuration(ctx context.Context, episode models.Episode, elapsed, remaining int) int {
	if remaining > 0 {
		return elapsed + remaining
	}

	if c.overrides != nil {
		if seconds, ok := c.overrides.Duration(episode.Title); ok {
			c.logger.Printf("overriding duration for %q to %ds", episode.Title, seconds)
			return seconds
		}
	}

	if c.prober != nil && episode.AudioURI != "" {
		if seconds, ok := c.prober.Duration(ctx, episode.AudioURI); ok && seconds > 0 {
			c.logger.Printf("probed duration for %q: %ds", episode.Title, seconds)
			return seconds
		}
	}

	return models.DurationUnknown
}

// remainingSeconds looks the episode up on its podcast page, which is the only
// place Overcast prints a remaining time.
func (c *Client) remainingSeconds(ctx context.Context, episodeID, podcastHref string) int {
	doc, err := c.getDocument(ctx, "podcast_page", c.resolve(podcastHref))
	if err != nil {
		c.logger.Printf("remaining time lookup for %s failed: %v", episodeID, err)
		return models.DurationUnknown
	}

	for _, cell := range doc.Query("a.extendedepisodecell") {
		href, ok := cell.Attr("href")
		if !ok || !strings.Contains(href, episodeID) {
			continue
		}
		lines := cell.Query("div.singleline")
		if len(lines) < 2 {
			return models.DurationUnknown
		}
		return duration.Parse(lines[1].Text())
	}
	return models.DurationUnknown
}

// FetchAllPodcasts lists subscribed podcasts sorted by title. With
// unplayedOnly set, only podcasts showing the unplayed indicator are returned.
func (c *Client) FetchAllPodcasts(ctx context.Context, unplayedOnly bool) ([]models.Podcast, error) {
	doc, err := c.getDocument(ctx, "podcast_list", c.resolve("/podcasts"))
	if err != nil {
		return nil, fmt.Errorf("fetch podcasts: %w", err)
	}

	podcasts := make([]models.Podcast, 0)
	for _, cell := range doc.Query("a.feedcell") {
		href, ok := cell.Attr("href")
		if !ok {
			continue
		}
		unplayed := cell.First("svg.unplayed_indicator") != nil
		if unplayedOnly && !unplayed {
			continue
		}
		podcasts = append(podcasts, models.Podcast{
			ID:          strings.TrimLeft(href, "/"),
			Title:       strings.TrimSpace(cell.First("div.title").Text()),
			AlbumArtURI: cell.First("img").AttrOr("src", ""),
			Unplayed:    unplayed,
		})
	}

	sort.SliceStable(podcasts, func(i, j int) bool {
		return podcasts[i].Title < podcasts[j].Title
	})
	return podcasts, nil
}

// FetchAllEpisodes lists the episodes on a podcast page. With unplayedOnly
// set, each unplayed episode is inserted at the front as it is encountered,
// so unplayed episodes lead the result in reverse page order and played
// episodes follow in page order.
func (c *Client) FetchAllEpisodes(ctx context.Context, podcastID string, unplayedOnly bool) ([]models.Episode, error) {
	podcastID = strings.Trim(strings.TrimSpace(podcastID), "/")
	if podcastID == "" {
		return []models.Episode{}, nil
	}

	doc, err := c.getDocument(ctx, "podcast_page", c.resolve("/"+podcastID))
	if err != nil {
		return nil, fmt.Errorf("fetch podcast %s: %w", podcastID, err)
	}

	albumArt := doc.First("img.art").AttrOr("src", "")
	podcastTitle := strings.TrimSpace(doc.First("h2.centertext").Text())

	episodes := make([]models.Episode, 0)
	for _, cell := range doc.Query("a.extendedepisodecell") {
		episode, ok := c.episodeFromCell(cell, podcastTitle, albumArt)
		if !ok {
			continue
		}
		if unplayedOnly && episode.Unplayed {
			episodes = append([]models.Episode{episode}, episodes...)
		} else {
			episodes = append(episodes, episode)
		}
	}
	return episodes, nil
}

func (c *Client) episodeFromCell(cell *markup.Element, podcastTitle, albumArt string) (models.Episode, bool) {
	href, ok := cell.Attr("href")
	if !ok {
		return models.Episode{}, false
	}
	id := episodeIDFromHref(href)
	if id == "" {
		return models.Episode{}, false
	}

	unplayed := cell.HasClass("usernewepisode")
	title := singleLine(cell.First("div.titlestack div.title").Text())
	if unplayed {
		title = UnplayedTitlePrefix + title
	}
	summary := singleLine(cell.First("div.titlestack div.caption2").Text())

	return models.Episode{
		ID:           id,
		Title:        title,
		PodcastTitle: podcastTitle,
		AlbumArtURI:  albumArt,
		Duration:     models.DurationUnknown,
		AudioType:    defaultAudioType,
		Summary:      summary,
		ReleaseDate:  parseReleaseDate(summary, c.now()),
		Unplayed:     unplayed,
	}, true
}

// episodeIDFromHref returns the last path segment of an episode link, which is
// the id Overcast uses in its episode URLs ("/+AbCdEf" -> "+AbCdEf").
func episodeIDFromHref(href string) string {
	href = strings.TrimSpace(href)
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		href = href[i+1:]
	}
	return href
}

func singleLine(text string) string {
	return strings.ReplaceAll(strings.TrimSpace(text), "\n", "")
}
