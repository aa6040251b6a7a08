// Package probe estimates an episode's length from the head of its audio file
// when Overcast's pages do not give a usable duration.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"
)

const (
	defaultHeadBytes = 256 * 1024
	maxFrames        = 64
)

// Prober downloads the first chunk of an audio resource and reads its length
// from ID3 tags or from the MPEG frame layout.
type Prober struct {
	client    *http.Client
	headBytes int64
	logger    *log.Logger
}

// New creates a Prober. A nil client uses http.DefaultClient.
func New(client *http.Client, logger *log.Logger) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Prober{client: client, headBytes: defaultHeadBytes, logger: logger}
}

// Duration returns the length in whole seconds of the audio at uri.
func (p *Prober) Duration(ctx context.Context, uri string) (int, bool) {
	head, total, err := p.fetchHead(ctx, uri)
	if err != nil {
		p.logger.Printf("duration probe for %s failed: %v", uri, err)
		return 0, false
	}

	if seconds, ok := durationFromTags(head); ok {
		return seconds, true
	}

	if total <= 0 {
		return 0, false
	}
	return durationFromFrames(head, total)
}

func (p *Prober) fetchHead(ctx context.Context, uri string) ([]byte, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", p.headBytes-1))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var total int64
	switch resp.StatusCode {
	case http.StatusPartialContent:
		total = contentRangeTotal(resp.Header.Get("Content-Range"))
	case http.StatusOK:
		total = resp.ContentLength
	default:
		return nil, 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	head, err := io.ReadAll(io.LimitReader(resp.Body, p.headBytes))
	if err != nil {
		return nil, 0, err
	}
	return head, total, nil
}

func durationFromTags(head []byte) (int, bool) {
	meta, err := tag.ReadFrom(bytes.NewReader(head))
	if err != nil {
		return 0, false
	}

	raw := meta.Raw()
	for _, key := range []string{"TLEN", "TLE"} {
		value, ok := raw[key].(string)
		if !ok {
			continue
		}
		millis, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(value), "\x00"), 10, 64)
		if err != nil || millis <= 0 {
			continue
		}
		return int(millis / 1000), true
	}
	return 0, false
}

// durationFromFrames averages the byte rate of the frames in head and
// extrapolates it over the full resource length.
func durationFromFrames(head []byte, total int64) (int, bool) {
	decoder := mp3.NewDecoder(bytes.NewReader(head))
	var frame mp3.Frame
	var skipped int
	var frameBytes int
	var frameSeconds float64

	for i := 0; i < maxFrames; i++ {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			break
		}
		frameBytes += frame.Size()
		frameSeconds += frame.Duration().Seconds()
	}

	if frameBytes == 0 || frameSeconds <= 0 {
		return 0, false
	}

	bytesPerSecond := float64(frameBytes) / frameSeconds
	return int(math.Round(float64(total) / bytesPerSecond)), true
}

func contentRangeTotal(header string) int64 {
	slash := strings.LastIndex(header, "/")
	if slash < 0 {
		return 0
	}
	total, err := strconv.ParseInt(strings.TrimSpace(header[slash+1:]), 10, 64)
	if err != nil {
		return 0
	}
	return total
}
