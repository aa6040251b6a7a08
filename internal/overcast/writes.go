package overcast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"overcast-sonos/internal/models"
)

// ReportOffset records the playback position remotely. It never deletes the
// episode; deciding whether the episode is finished is left to the caller.
func (c *Client) ReportOffset(ctx context.Context, episode models.Episode, offsetSeconds int64) error {
	if episode.ItemID == "" {
		return fmt.Errorf("report offset for %s: episode has no item id", episode.ID)
	}
	if offsetSeconds < 0 {
		offsetSeconds = 0
	}

	form := url.Values{
		"p":     {strconv.FormatInt(offsetSeconds, 10)},
		"speed": {"0"},
		"v":     {episode.SyncVersion},
	}
	c.logger.Printf("updating offset of episode %s to %ds", episode.ID, offsetSeconds)
	if _, err := c.postForm(ctx, "set_progress", c.resolve("/podcasts/set_progress/"+url.PathEscape(episode.ItemID)), form, false); err != nil {
		return fmt.Errorf("report offset for %s: %w", episode.ID, err)
	}
	return nil
}

// DeleteEpisode removes the episode from the user's Overcast account.
func (c *Client) DeleteEpisode(ctx context.Context, episode models.Episode) error {
	if episode.DeleteURI == "" {
		return fmt.Errorf("delete episode %s: episode has no delete uri", episode.ID)
	}

	c.logger.Printf("deleting episode %s", episode.ID)
	if _, err := c.postForm(ctx, "delete_episode", c.resolve(episode.DeleteURI), url.Values{}, false); err != nil {
		return fmt.Errorf("delete episode %s: %w", episode.ID, err)
	}
	return nil
}

// ResolveAudioURI follows the redirect chain of an enclosure URL (tracking
// prefixes, CDN hops) and returns the final location.
func (c *Client) ResolveAudioURI(ctx context.Context, uri string) (string, error) {
	final, err := c.finalLocation(ctx, http.MethodHead, uri)
	var status statusError
	if errors.As(err, &status) && (status.code == http.StatusMethodNotAllowed || status.code == http.StatusNotImplemented) {
		final, err = c.finalLocation(ctx, http.MethodGet, uri)
	}
	if err != nil {
		return "", fmt.Errorf("resolve audio uri: %w", err)
	}
	return final, nil
}

type statusError struct {
	code int
}

func (e statusError) Error() string {
	return fmt.Sprintf("status %d", e.code)
}

func (e statusError) Unwrap() error {
	return ErrUnexpectedStatus
}

func (c *Client) finalLocation(ctx context.Context, method, uri string) (string, error) {
	req, err := c.newRequest(ctx, method, uri, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.do("resolve_audio", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		err := statusError{code: resp.StatusCode}
		c.observe("resolve_audio", err)
		return "", err
	}

	c.observe("resolve_audio", nil)
	return resp.Request.URL.String(), nil
}
