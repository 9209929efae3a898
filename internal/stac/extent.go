package stac

import (
	"fmt"
	"math"
	"time"
)

// TimeLayout is the timestamp format STAC documents carry.
const TimeLayout = "2006-01-02T15:04:05Z"

// timestamps arrive from configs and sidecar metadata in a few close-but-
// not-identical shapes, so parsing is lenient
var timeLayouts = []string{
	TimeLayout,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
}

// ParseTime parses a STAC-ish timestamp, trying each known layout.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// SpatialExtent is a geographic bounding box. The empty extent starts at
// {+Inf,+Inf,-Inf,-Inf} so the first Include adopts the incoming bounds.
type SpatialExtent struct {
	Left   float64
	Bottom float64
	Right  float64
	Top    float64
}

func EmptySpatialExtent() SpatialExtent {
	return SpatialExtent{
		Left:   math.Inf(1),
		Bottom: math.Inf(1),
		Right:  math.Inf(-1),
		Top:    math.Inf(-1),
	}
}

func (e SpatialExtent) IsEmpty() bool {
	return math.IsInf(e.Left, 1)
}

// Include grows the extent to cover b. Merging is commutative and
// monotonic: the result always contains both inputs.
func (e *SpatialExtent) Include(b SpatialExtent) {
	if b.Left < e.Left {
		e.Left = b.Left
	}
	if b.Bottom < e.Bottom {
		e.Bottom = b.Bottom
	}
	if b.Right > e.Right {
		e.Right = b.Right
	}
	if b.Top > e.Top {
		e.Top = b.Top
	}
}

// Contains reports whether b lies fully inside the extent.
func (e SpatialExtent) Contains(b SpatialExtent) bool {
	return e.Left <= b.Left && e.Bottom <= b.Bottom && e.Right >= b.Right && e.Top >= b.Top
}

func (e SpatialExtent) Slice() []float64 {
	return []float64{e.Left, e.Bottom, e.Right, e.Top}
}

// TemporalExtent tracks the earliest and latest observed acquisition
// times. Nil bounds mean no constraint yet; the first observation adopts
// both.
type TemporalExtent struct {
	Earliest *time.Time
	Latest   *time.Time
}

func (e *TemporalExtent) Observe(t time.Time) {
	t = t.UTC()
	if e.Earliest == nil || t.Before(*e.Earliest) {
		cp := t
		e.Earliest = &cp
	}
	if e.Latest == nil || t.After(*e.Latest) {
		cp := t
		e.Latest = &cp
	}
}

// ObserveValue folds a datetime into the extent whether it arrives as a
// normalized string or a native time.Time. Nil and empty values carry no
// constraint and are skipped.
func (e *TemporalExtent) ObserveValue(v any) error {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		e.Observe(t)
		return nil
	case *string:
		if t == nil {
			return nil
		}
		return e.ObserveValue(*t)
	case string:
		if t == "" {
			return nil
		}
		parsed, err := ParseTime(t)
		if err != nil {
			return err
		}
		e.Observe(parsed)
		return nil
	default:
		return fmt.Errorf("unsupported datetime value %T", v)
	}
}

func (e TemporalExtent) IsEmpty() bool {
	return e.Earliest == nil && e.Latest == nil
}

// Slice renders the extent as the two-element temporal interval STAC
// collections carry, with nulls for unbounded ends.
func (e TemporalExtent) Slice() []*string {
	out := make([]*string, 2)
	if e.Earliest != nil {
		s := e.Earliest.Format(TimeLayout)
		out[0] = &s
	}
	if e.Latest != nil {
		s := e.Latest.Format(TimeLayout)
		out[1] = &s
	}
	return out
}

// Accumulator folds per-item bounds and acquisition times into running
// collection extents.
type Accumulator struct {
	Spatial  SpatialExtent
	Temporal TemporalExtent
}

func NewAccumulator() *Accumulator {
	return &Accumulator{Spatial: EmptySpatialExtent()}
}

// SeededAccumulator starts from a collection's persisted extent so re-runs
// extend the recorded extent monotonically instead of resetting it. A
// missing or malformed persisted extent yields the empty seed.
func SeededAccumulator(c *Collection) *Accumulator {
	acc := NewAccumulator()
	if c == nil {
		return acc
	}
	if sp, ok := c.persistedSpatial(); ok {
		acc.Spatial = sp
	}
	if earliest, latest, ok := c.persistedTemporal(); ok {
		acc.Temporal = TemporalExtent{Earliest: earliest, Latest: latest}
	}
	return acc
}
