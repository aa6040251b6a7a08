package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"overcast-sonos/internal/models"
)

// Collection and item ids understood by the control point.
const (
	RootID             = "root"
	AllPodcastsID      = "all_podcasts"
	UnplayedPodcastsID = "unplayed_podcasts"

	PodcastPrefix         = "podcast"
	UnplayedPodcastPrefix = "podcast_unplayed"
	EpisodePrefix         = "episodes"
)

// DefaultAlbumArtURI is shown for the synthetic collections.
const DefaultAlbumArtURI = "http://is3.mzstatic.com/image/thumb/Purple111/v4/20/5b/5e/205b5ef7-ee0e-7d0c-2d11-12f611c579f4/source/175x175bb.jpg"

// PollInterval is how often the control point should call PollForUpdates.
const PollInterval = 60 * time.Second

// Item is one entry of a Listing: either a MediaCollection or a MediaMetadata.
type Item interface {
	isItem()
}

// MediaCollection is a browsable container (the synthetic lists or a podcast).
type MediaCollection struct {
	ID           string
	Title        string
	ItemType     string
	SemanticType string
	AlbumArtURI  string
	CanPlay      bool
	CanEnumerate bool
}

// MediaMetadata is a playable episode.
type MediaMetadata struct {
	ID            string
	Title         string
	MimeType      string
	ItemType      string
	SemanticType  string
	Summary       string
	ReleaseDate   string
	TrackMetadata TrackMetadata
}

// TrackMetadata carries the per-track fields of a MediaMetadata.
type TrackMetadata struct {
	Artist      string
	AlbumArtist string
	AlbumArtURI string
	GenreID     string
	// Duration is nil in listings, where Overcast gives no length.
	Duration  *int
	CanResume bool
}

func (MediaCollection) isItem() {}
func (MediaMetadata) isItem()   {}

// Listing is one page of a collection. Count is the number of items on the
// page and Total the size of the whole sequence at the time of the call.
type Listing struct {
	Index int
	Count int
	Total int
	Items []Item
}

// Locator tells the control point where to stream an episode from.
type Locator struct {
	URI          string
	ItemID       string
	OffsetMillis int64
}

// LastUpdate is the answer to a freshness poll.
type LastUpdate struct {
	Catalog      string
	Favorites    string
	PollInterval time.Duration
}

// ListTopLevel lists the root: the two synthetic collections followed by
// every podcast with unplayed episodes.
func (s *Service) ListTopLevel(ctx context.Context, index, count int) (Listing, error) {
	podcasts, err := s.repo.FetchAllPodcasts(ctx, true)
	if err != nil {
		return Listing{}, err
	}

	items := make([]Item, 0, len(podcasts)+2)
	items = append(items,
		MediaCollection{ID: AllPodcastsID, Title: "All Podcasts", ItemType: "collection", AlbumArtURI: s.albumArt},
		MediaCollection{ID: UnplayedPodcastsID, Title: "Unplayed Podcasts", ItemType: "collection", AlbumArtURI: s.albumArt},
	)
	for _, p := range podcasts {
		items = append(items, podcastCollection(p, true))
	}
	return paginate(items, index, count), nil
}

// ListCollection lists the collection named by id. Unknown ids produce an
// empty listing.
func (s *Service) ListCollection(ctx context.Context, id string, index, count int) (Listing, error) {
	switch id {
	case RootID:
		return s.ListTopLevel(ctx, index, count)
	case AllPodcastsID, UnplayedPodcastsID:
		unplayed := id == UnplayedPodcastsID
		podcasts, err := s.repo.FetchAllPodcasts(ctx, unplayed)
		if err != nil {
			return Listing{}, err
		}
		items := make([]Item, 0, len(podcasts))
		for _, p := range podcasts {
			items = append(items, podcastCollection(p, unplayed))
		}
		return paginate(items, index, count), nil
	}

	prefix, podcastID, ok := strings.Cut(id, "/")
	if !ok || podcastID == "" || (prefix != PodcastPrefix && prefix != UnplayedPodcastPrefix) {
		s.logger.Printf("unknown collection id %q", id)
		return Listing{Items: []Item{}}, nil
	}

	episodes, err := s.repo.FetchAllEpisodes(ctx, podcastID, prefix == UnplayedPodcastPrefix)
	if err != nil {
		return Listing{}, err
	}
	items := make([]Item, 0, len(episodes))
	for _, e := range episodes {
		items = append(items, s.episodeMetadata(e, false))
	}
	return paginate(items, index, count), nil
}

// FetchItemDetail returns the metadata for a single episode item id.
func (s *Service) FetchItemDetail(ctx context.Context, itemID string) (MediaMetadata, bool, error) {
	episode, ok, err := s.EpisodeDetail(ctx, EpisodeIDFromItemID(itemID))
	if err != nil || !ok {
		return MediaMetadata{}, false, err
	}
	metadata := s.episodeMetadata(episode, true)
	metadata.ID = itemID
	return metadata, true, nil
}

// FetchPlaybackLocator resolves the stream URI for an episode item id and
// returns it with the last known offset.
func (s *Service) FetchPlaybackLocator(ctx context.Context, itemID string) (Locator, bool, error) {
	episode, ok, err := s.EpisodeDetail(ctx, EpisodeIDFromItemID(itemID))
	if err != nil || !ok {
		return Locator{}, false, err
	}
	if episode.AudioURI == "" {
		s.logger.Printf("episode %s has no audio source", episode.ID)
		return Locator{}, false, nil
	}

	uri, err := s.repo.ResolveAudioURI(ctx, episode.AudioURI)
	if err != nil {
		return Locator{}, false, err
	}
	return Locator{
		URI:          uri,
		ItemID:       EpisodeItemID(episode.ID),
		OffsetMillis: episode.OffsetMillis,
	}, true, nil
}

// PollForUpdates always reports a new catalog token so the control point
// re-lists; Overcast gives no cheap way to detect changes.
func (s *Service) PollForUpdates() LastUpdate {
	return LastUpdate{
		Catalog:      uuid.NewString(),
		Favorites:    "0",
		PollInterval: PollInterval,
	}
}

// EpisodeItemID is the control point item id for an episode id.
func EpisodeItemID(episodeID string) string {
	return EpisodePrefix + "/" + episodeID
}

// EpisodeIDFromItemID strips everything up to the last slash of an item id.
func EpisodeIDFromItemID(itemID string) string {
	if i := strings.LastIndex(itemID, "/"); i >= 0 {
		return itemID[i+1:]
	}
	return itemID
}

func podcastCollection(p models.Podcast, unplayed bool) MediaCollection {
	prefix := PodcastPrefix
	if unplayed {
		prefix = UnplayedPodcastPrefix
	}
	return MediaCollection{
		ID:           prefix + "/" + p.ID,
		Title:        p.Title,
		ItemType:     "album",
		SemanticType: "podcast",
		AlbumArtURI:  p.AlbumArtURI,
		CanEnumerate: true,
	}
}

func (s *Service) episodeMetadata(e models.Episode, withDuration bool) MediaMetadata {
	metadata := MediaMetadata{
		ID:           EpisodeItemID(e.ID),
		Title:        e.Title,
		MimeType:     s.mediaTypes.MediaType(e.Title, e.AudioType),
		ItemType:     "track",
		SemanticType: "episode.podcast",
		Summary:      e.Summary,
		TrackMetadata: TrackMetadata{
			Artist:      e.PodcastTitle,
			AlbumArtist: e.PodcastTitle,
			AlbumArtURI: e.AlbumArtURI,
			GenreID:     "podcast",
			CanResume:   true,
		},
	}
	if !e.ReleaseDate.IsZero() {
		metadata.ReleaseDate = e.ReleaseDate.Format(time.RFC3339)
	}
	if withDuration {
		d := e.Duration
		metadata.TrackMetadata.Duration = &d
	}
	return metadata
}

// paginate slices items to the requested page. A negative index starts at
// zero and a non-positive count takes everything from index on.
func paginate(items []Item, index, count int) Listing {
	if index < 0 {
		index = 0
	}
	total := len(items)
	start := min(index, total)
	end := total
	if count > 0 && count < total-start {
		end = start + count
	}
	page := items[start:end]
	return Listing{Index: index, Count: len(page), Total: total, Items: page}
}
