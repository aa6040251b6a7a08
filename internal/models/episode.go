package models

import "time"

// DurationUnknown marks an episode whose total length could not be determined.
const DurationUnknown = -1

// Episode represents a single Overcast episode as seen by the control point.
type Episode struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	PodcastTitle string    `json:"podcast_title"`
	AlbumArtURI  string    `json:"album_art_uri"`
	OffsetMillis int64     `json:"offset_millis"`
	Duration     int       `json:"duration"`
	AudioType    string    `json:"audio_type"`
	AudioURI     string    `json:"audio_uri"`
	Summary      string    `json:"summary,omitempty"`
	ReleaseDate  time.Time `json:"release_date,omitempty"`
	Unplayed     bool      `json:"unplayed,omitempty"`

	// Write tokens required by the progress and delete endpoints.
	ItemID      string `json:"-"`
	SyncVersion string `json:"-"`
	DeleteURI   string `json:"-"`
}

// DurationKnown reports whether the total duration was resolved.
func (e Episode) DurationKnown() bool {
	return e.Duration >= 0
}

// Podcast is a subscribed show. It is produced fresh on every listing call.
type Podcast struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	AlbumArtURI string `json:"album_art_uri"`
	Unplayed    bool   `json:"unplayed"`
}
