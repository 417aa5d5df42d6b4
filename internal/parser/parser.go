// Package parser builds segment indexes from HLS media playlists.
package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agleyzer/hlsclip/internal/segment"
	"github.com/grafov/m3u8"
)

// ParseError reports a source playlist that cannot produce a timeline.
// No partial index accompanies a ParseError.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse playlist: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse playlist: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Build parses playlist text into a segment index.
func Build(text string) (*segment.Index, error) {
	return BuildFrom(strings.NewReader(text))
}

// BuildFrom parses a playlist from r into a segment index.
// Directives the decoder does not understand are ignored. Text without the
// #EXTM3U header is not a playlist and fails with a ParseError.
func BuildFrom(r io.Reader) (*segment.Index, error) {
	playlist, listType, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return nil, &ParseError{Reason: "malformed playlist", Err: err}
	}

	if listType == m3u8.MASTER {
		return nil, &ParseError{Reason: "expected media playlist, got master playlist"}
	}

	mediaPlaylist, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, &ParseError{Reason: "unexpected playlist type"}
	}

	var chunks []segment.Chunk
	for i, seg := range mediaPlaylist.Segments {
		if seg == nil {
			break
		}

		if seg.Duration < 0 {
			return nil, &ParseError{Reason: fmt.Sprintf("negative duration %v for chunk %d", seg.Duration, i)}
		}

		chunks = append(chunks, segment.Chunk{
			URI:      seg.URI,
			Duration: seg.Duration,
		})
	}

	if len(chunks) == 0 {
		return nil, &ParseError{Reason: "playlist contains no segments"}
	}

	return segment.NewIndex(chunks), nil
}

// Fetch downloads a media playlist and builds its index.
// Chunk URIs are resolved against playlistURL.
func Fetch(ctx context.Context, playlistURL string) (*segment.Index, error) {
	body, err := FetchContent(ctx, playlistURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	defer body.Close()

	idx, err := BuildFrom(body)
	if err != nil {
		return nil, err
	}

	resolved, err := idx.Resolve(playlistURL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve segment URL: %w", err)
	}
	return resolved, nil
}

// FetchContent fetches content from a URL. The caller closes the body.
func FetchContent(ctx context.Context, url string) (io.ReadCloser, error) {
	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return resp.Body, nil
}
