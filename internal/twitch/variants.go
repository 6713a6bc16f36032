package twitch

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// selectVariant picks the variant matching the requested quality. "best" is
// the first listed variant (usher orders best first), "worst" the lowest
// bandwidth video variant. A named quality such as "720p60" matches on
// resolution height plus frame rate; the frame rate part may be omitted.
func selectVariant(mv *playlist.Multivariant, quality string) (*playlist.MultivariantVariant, error) {
	if len(mv.Variants) == 0 {
		return nil, fmt.Errorf("multivariant playlist has no variants")
	}

	switch quality {
	case "", "best":
		return mv.Variants[0], nil
	case "worst":
		return worstVideoVariant(mv.Variants), nil
	}

	height, fps, err := parseQuality(quality)
	if err != nil {
		return nil, err
	}
	for _, v := range mv.Variants {
		if resolutionHeight(v.Resolution) != height {
			continue
		}
		if fps != 0 && variantFPS(v) != fps {
			continue
		}
		return v, nil
	}
	return nil, fmt.Errorf("quality %q not offered (available: %s)",
		quality, strings.Join(variantNames(mv.Variants), ", "))
}

// worstVideoVariant returns the lowest-bandwidth variant that carries
// video. Audio-only variants have no resolution attribute.
func worstVideoVariant(variants []*playlist.MultivariantVariant) *playlist.MultivariantVariant {
	var worst *playlist.MultivariantVariant
	for _, v := range variants {
		if v.Resolution == "" {
			continue
		}
		if worst == nil || v.Bandwidth < worst.Bandwidth {
			worst = v
		}
	}
	if worst == nil {
		worst = variants[len(variants)-1]
	}
	return worst
}

// parseQuality splits a "[height]p[rate]" spec like "1080p60" or "480p".
func parseQuality(quality string) (height, fps int, err error) {
	hs, fs, found := strings.Cut(strings.ToLower(quality), "p")
	height, convErr := strconv.Atoi(hs)
	if convErr != nil || height <= 0 {
		return 0, 0, fmt.Errorf("quality %q is not in [height]p[rate] form", quality)
	}
	if found && fs != "" {
		fps, convErr = strconv.Atoi(fs)
		if convErr != nil || fps <= 0 {
			return 0, 0, fmt.Errorf("quality %q is not in [height]p[rate] form", quality)
		}
	}
	return height, fps, nil
}

func resolutionHeight(resolution string) int {
	_, hs, found := strings.Cut(resolution, "x")
	if !found {
		return 0
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0
	}
	return h
}

func variantFPS(v *playlist.MultivariantVariant) int {
	if v.FrameRate == nil {
		return 0
	}
	return int(math.Round(*v.FrameRate))
}

func variantNames(variants []*playlist.MultivariantVariant) []string {
	names := make([]string, 0, len(variants))
	for _, v := range variants {
		h := resolutionHeight(v.Resolution)
		if h == 0 {
			continue
		}
		if fps := variantFPS(v); fps != 0 {
			names = append(names, fmt.Sprintf("%dp%d", h, fps))
		} else {
			names = append(names, fmt.Sprintf("%dp", h))
		}
	}
	return names
}
