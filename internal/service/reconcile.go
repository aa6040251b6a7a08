package service

import (
	"context"
	"time"

	"overcast-sonos/internal/models"
)

// FinishedToleranceSeconds is how close to the end an offset must be for the
// episode to count as finished. Durations are assembled from the podcast
// page's remaining-time caption and run short by up to a minute.
const FinishedToleranceSeconds = 60

// ReportInterval is how often the control point is asked to report progress.
const ReportInterval = 30 * time.Second

// Finished reports whether offsetSeconds puts episode within the finished
// tolerance. Episodes with an unknown duration are never finished.
func Finished(episode models.Episode, offsetSeconds int64) bool {
	if !episode.DurationKnown() {
		return false
	}
	return offsetSeconds >= int64(episode.Duration)-FinishedToleranceSeconds
}

// Reconcile reports offsetSeconds to Overcast and, when the episode is
// finished, deletes it remotely and drops it from the cache.
func (s *Service) Reconcile(ctx context.Context, episode models.Episode, offsetSeconds int64) error {
	if err := s.repo.ReportOffset(ctx, episode, offsetSeconds); err != nil {
		return err
	}
	s.recorder.ProgressReported()

	if !Finished(episode, offsetSeconds) {
		return nil
	}

	s.logger.Printf("episode %s finished at %ds of %ds; deleting", episode.ID, offsetSeconds, episode.Duration)
	if err := s.repo.DeleteEpisode(ctx, episode); err != nil {
		return err
	}
	s.cache.Remove(episode.ID)
	s.recorder.EpisodeDeleted()
	return nil
}

// ReportProgress handles a playback position report for an item id. Unknown
// episodes are acknowledged without any remote write.
func (s *Service) ReportProgress(ctx context.Context, itemID string, offsetMillis int64) (time.Duration, error) {
	id := EpisodeIDFromItemID(itemID)
	if offsetMillis < 0 {
		offsetMillis = 0
	}

	episode, ok, err := s.episodeAtOffset(ctx, id, offsetMillis)
	if err != nil {
		return 0, err
	}
	if !ok {
		return ReportInterval, nil
	}

	if err := s.Reconcile(ctx, episode, offsetMillis/1000); err != nil {
		return 0, err
	}
	return ReportInterval, nil
}
