package areas

import (
	"errors"
	"fmt"

	"github.com/lucasaxm/RegataSimulator/internal/models"
)

var ErrDegenerate = errors.New("area corners enclose no surface")

// Validate checks the invariants every template must satisfy before it can
// be composed: unique indexes, one area per source slot and well formed quads.
func Validate(list []models.Area) error {
	if len(list) == 0 {
		return ErrNoAreas
	}

	indexes := make(map[int]struct{}, len(list))
	slots := make(map[int]struct{}, len(list))
	for _, a := range list {
		if _, dup := indexes[a.Index]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateIndex, a.Index)
		}
		indexes[a.Index] = struct{}{}

		if a.SourceSlot < 1 || a.SourceSlot > len(list) {
			return fmt.Errorf("%w: area %d uses slot %d of %d", ErrSlotRange, a.Index, a.SourceSlot, len(list))
		}
		if _, dup := slots[a.SourceSlot]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateSlot, a.SourceSlot)
		}
		slots[a.SourceSlot] = struct{}{}

		if err := ValidateQuad(a.Corners()); err != nil {
			return fmt.Errorf("area %d: %w", a.Index, err)
		}
	}
	return nil
}

// ValidateQuad rejects quads that cross themselves, have no area, or are not
// wound clockwise in image coordinates (y grows downwards).
func ValidateQuad(q [4]models.Corner) error {
	if segmentsIntersect(q[0], q[1], q[2], q[3]) || segmentsIntersect(q[1], q[2], q[3], q[0]) {
		return ErrSelfIntersecting
	}
	area := signedArea(q)
	if area == 0 {
		return ErrDegenerate
	}
	if area < 0 {
		return ErrWinding
	}
	return nil
}

// signedArea is twice the shoelace area; positive means clockwise on screen
func signedArea(q [4]models.Corner) int64 {
	var sum int64
	for i := range q {
		a, b := q[i], q[(i+1)%len(q)]
		sum += int64(a.X)*int64(b.Y) - int64(b.X)*int64(a.Y)
	}
	return sum
}

func cross(o, a, b models.Corner) int64 {
	return int64(a.X-o.X)*int64(b.Y-o.Y) - int64(a.Y-o.Y)*int64(b.X-o.X)
}

func sign(v int64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func onSegment(p, q, r models.Corner) bool {
	return min(p.X, r.X) <= q.X && q.X <= max(p.X, r.X) &&
		min(p.Y, r.Y) <= q.Y && q.Y <= max(p.Y, r.Y)
}

// segmentsIntersect reports whether p1p2 and p3p4 share any point
func segmentsIntersect(p1, p2, p3, p4 models.Corner) bool {
	d1 := sign(cross(p3, p4, p1))
	d2 := sign(cross(p3, p4, p2))
	d3 := sign(cross(p1, p2, p3))
	d4 := sign(cross(p1, p2, p4))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	switch {
	case d1 == 0 && onSegment(p3, p1, p4):
		return true
	case d2 == 0 && onSegment(p3, p2, p4):
		return true
	case d3 == 0 && onSegment(p1, p3, p2):
		return true
	case d4 == 0 && onSegment(p1, p4, p2):
		return true
	}
	return false
}
