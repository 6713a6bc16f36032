package capture

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// ParseManifest parses a live media playlist into its advertised parts, in
// playlist order. Every part must carry a program date time: the segment id
// arithmetic is anchored on it, so a playlist without them cannot be
// captured.
func ParseManifest(data []byte, manifestURL string) ([]Part, error) {
	parsed, err := playlist.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parse media playlist: %w", err)
	}
	media, ok := parsed.(*playlist.Media)
	if !ok {
		return nil, errors.New("manifest is not a media playlist")
	}

	parts := make([]Part, 0, len(media.Segments))
	for _, seg := range media.Segments {
		if seg.DateTime == nil {
			return nil, fmt.Errorf("part %s has no program date time", seg.URI)
		}
		parts = append(parts, Part{
			URL:       absolutizeURL(manifestURL, seg.URI),
			Timestamp: wallClockUTC(*seg.DateTime),
			Duration:  seg.Duration,
			Label:     seg.Title,
		})
	}
	return parts, nil
}

// absolutizeURL converts a relative part URI to absolute based on the
// manifest URL.
func absolutizeURL(manifestURL, uri string) string {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return uri
	}
	base, err := url.Parse(manifestURL)
	if err != nil {
		return uri
	}
	ref, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return base.ResolveReference(ref).String()
}
