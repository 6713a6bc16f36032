package capture

import (
	"fmt"
	"time"
)

// Segment is an ordered group of up to five parts forming one archive
// segment. Parts are appended in arrival order and never reordered or
// removed; ownership of the whole segment transfers when it is popped from
// the SegmentList.
type Segment struct {
	ID    int
	Parts []Part
}

func (s *Segment) append(p Part) {
	s.Parts = append(s.Parts, p)
}

// Full reports whether the segment holds its complete complement of parts.
func (s *Segment) Full() bool {
	return len(s.Parts) == partsPerSegment
}

// Duration is the combined duration of the parts collected so far.
func (s *Segment) Duration() time.Duration {
	var d time.Duration
	for _, p := range s.Parts {
		d += p.Duration
	}
	return d
}

// FileName returns the zero-padded name the segment is stored under.
func (s *Segment) FileName() string {
	return fmt.Sprintf("%05d.ts", s.ID)
}
