package capture

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// SegmentList assigns incoming parts to numbered segments and holds them
// until they are complete enough to download. In aligned mode ids are
// derived from part timestamps so they reproduce the archive's own
// numbering; otherwise a plain incrementing sequence is used.
type SegmentList struct {
	segments  map[int]*Segment
	currentID int
	aligned   bool
	startedAt time.Time
}

// NewSegmentList creates a list whose first segment follows startID. Pass
// the highest already-captured id to resume an interrupted session, or -1
// to begin at zero. startedAt anchors the timestamp arithmetic in aligned
// mode.
func NewSegmentList(startedAt time.Time, aligned bool, startID int) *SegmentList {
	return &SegmentList{
		segments:  make(map[int]*Segment),
		currentID: startID + 1,
		aligned:   aligned,
		startedAt: wallClockUTC(startedAt),
	}
}

// AddPart places a part in its segment, creating segments as needed, and
// returns the id it landed in. A part whose target segment is already full
// spills into the following id: clock drift must not grow a segment past
// its five parts.
func (l *SegmentList) AddPart(p Part) int {
	id := l.currentID
	if l.aligned {
		id = l.idForPart(p)
	}

	seg := l.ensure(id)
	for seg.Full() {
		id++
		seg = l.ensure(id)
	}
	seg.append(p)
	return id
}

// idForPart buckets a part into the platform's native 10 second segment
// windows, which sit at a 4 second phase offset from the broadcast start.
func (l *SegmentList) idForPart(p Part) int {
	return int(math.Floor((4 + p.Timestamp.Sub(l.startedAt).Seconds()) / 10))
}

func (l *SegmentList) ensure(id int) *Segment {
	seg, ok := l.segments[id]
	if !ok {
		seg = &Segment{ID: id}
		l.segments[id] = seg
		l.currentID = id
	}
	return seg
}

// CompletedIDs returns the ids holding a full set of parts, in ascending
// order so downloads happen oldest first.
func (l *SegmentList) CompletedIDs() []int {
	ids := make([]int, 0, len(l.segments))
	for id, seg := range l.segments {
		if seg.Full() {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// PopSegment removes and returns a segment, transferring ownership to the
// caller. currentID moves past the popped id so sequential numbering never
// rebuilds a segment that has already been handed out.
func (l *SegmentList) PopSegment(id int) (*Segment, error) {
	seg, ok := l.segments[id]
	if !ok {
		return nil, fmt.Errorf("pop segment %d: %w", id, ErrSegmentNotFound)
	}
	delete(l.segments, id)
	if id >= l.currentID {
		l.currentID = id + 1
	}
	return seg, nil
}

// HasSegment reports whether a segment exists for id.
func (l *SegmentList) HasSegment(id int) bool {
	_, ok := l.segments[id]
	return ok
}

// SegmentByID returns the segment for id without removing it.
func (l *SegmentList) SegmentByID(id int) (*Segment, error) {
	seg, ok := l.segments[id]
	if !ok {
		return nil, fmt.Errorf("segment %d: %w", id, ErrSegmentNotFound)
	}
	return seg, nil
}

// CurrentID returns the id where the next sequential part lands. When the
// broadcast ends this is where the trailing partial segment lives.
func (l *SegmentList) CurrentID() int {
	return l.currentID
}

// Aligned reports whether ids are derived from part timestamps.
func (l *SegmentList) Aligned() bool {
	return l.aligned
}

// DisableAlignment switches to plain incrementing ids. Used when no archive
// identity ever appears, leaving nothing to align to.
func (l *SegmentList) DisableAlignment() {
	l.aligned = false
}

// Len returns the number of segments currently queued.
func (l *SegmentList) Len() int {
	return len(l.segments)
}
