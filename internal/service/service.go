// Package service ties the Overcast repository to the episode cache and
// answers the control point's requests. One Service is built per process and
// shared by every request handler.
package service

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/singleflight"

	"overcast-sonos/internal/cache"
	"overcast-sonos/internal/models"
)

// Repository is the remote episode store.
type Repository interface {
	FetchEpisodeDetail(ctx context.Context, id string) (models.Episode, bool, error)
	FetchAllPodcasts(ctx context.Context, unplayedOnly bool) ([]models.Podcast, error)
	FetchAllEpisodes(ctx context.Context, podcastID string, unplayedOnly bool) ([]models.Episode, error)
	ReportOffset(ctx context.Context, episode models.Episode, offsetSeconds int64) error
	DeleteEpisode(ctx context.Context, episode models.Episode) error
	ResolveAudioURI(ctx context.Context, uri string) (string, error)
}

// MediaTypes maps an episode title and detected content type to the type
// exposed to the control point.
type MediaTypes interface {
	MediaType(title, fallback string) string
}

// Recorder receives reconciliation events.
type Recorder interface {
	ProgressReported()
	EpisodeDeleted()
}

type nopRecorder struct{}

func (nopRecorder) ProgressReported() {}
func (nopRecorder) EpisodeDeleted()   {}

type passthroughTypes struct{}

func (passthroughTypes) MediaType(_, fallback string) string { return fallback }

// Options configures a Service. Repository is required.
type Options struct {
	Repository         Repository
	Cache              *cache.EpisodeCache
	MediaTypes         MediaTypes
	Recorder           Recorder
	Logger             *log.Logger
	DefaultAlbumArtURI string
}

// Service owns the episode cache and mediates every access to the repository.
type Service struct {
	repo       Repository
	cache      *cache.EpisodeCache
	mediaTypes MediaTypes
	recorder   Recorder
	logger     *log.Logger
	albumArt   string

	fetches singleflight.Group
}

// New builds a Service.
func New(opts Options) (*Service, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("service: repository is required")
	}

	s := &Service{
		repo:       opts.Repository,
		cache:      opts.Cache,
		mediaTypes: opts.MediaTypes,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		albumArt:   opts.DefaultAlbumArtURI,
	}
	if s.cache == nil {
		s.cache = cache.New(cache.DefaultCapacity)
	}
	if s.mediaTypes == nil {
		s.mediaTypes = passthroughTypes{}
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.albumArt == "" {
		s.albumArt = DefaultAlbumArtURI
	}
	return s, nil
}

// EpisodeDetail returns the detail record for id, from the cache when it holds
// a record with a known duration and from Overcast otherwise.
func (s *Service) EpisodeDetail(ctx context.Context, id string) (models.Episode, bool, error) {
	if episode, ok := s.cache.Get(id); ok {
		return episode, true, nil
	}

	episode, ok, err := s.fetch(ctx, id)
	if err != nil || !ok {
		return models.Episode{}, ok, err
	}
	s.cache.Put(episode)
	return episode, true, nil
}

// episodeAtOffset returns the detail record for id with its offset set to
// offsetMillis. A cached record is patched in place; a cached record whose
// duration is still unknown is dropped and fetched again so reconciliation
// gets another chance at a real duration.
func (s *Service) episodeAtOffset(ctx context.Context, id string, offsetMillis int64) (models.Episode, bool, error) {
	if episode, ok := s.cache.GetWithOffset(id, offsetMillis); ok {
		if episode.DurationKnown() {
			return episode, true, nil
		}
		s.cache.Remove(id)
	}

	episode, ok, err := s.fetch(ctx, id)
	if err != nil || !ok {
		return models.Episode{}, ok, err
	}
	episode.OffsetMillis = offsetMillis
	s.cache.Put(episode)
	return episode, true, nil
}

type fetchResult struct {
	episode models.Episode
	found   bool
}

// fetch loads id from the repository. Concurrent fetches of the same id share
// one remote request, which outlives the cancellation of whichever caller
// started it; each caller still stops waiting when its own ctx is done.
func (s *Service) fetch(ctx context.Context, id string) (models.Episode, bool, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.fetches.DoChan(id, func() (interface{}, error) {
		episode, found, err := s.repo.FetchEpisodeDetail(shared, id)
		if err != nil {
			return nil, err
		}
		return fetchResult{episode: episode, found: found}, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return models.Episode{}, false, ctx.Err()
	}
	if res.Err != nil {
		return models.Episode{}, false, res.Err
	}
	result := res.Val.(fetchResult)
	if !result.found {
		s.logger.Printf("episode %s not found on overcast", id)
	}
	return result.episode, result.found, nil
}
