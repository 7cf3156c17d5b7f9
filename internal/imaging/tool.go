// Package imaging is the boundary to whatever actually moves pixels. The
// composition pipeline only talks to the Tool interface so the backend can be
// an external ImageMagick process or the native Go implementation.
package imaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/lucasaxm/RegataSimulator/internal/models"
)

// ErrTimeout wraps tool invocations that ran past their deadline
var ErrTimeout = errors.New("image tool timed out")

// Size is an image size in pixels
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// CompositeMode selects how an overlay is combined with a base image
type CompositeMode int

const (
	// Over is plain alpha blending of the overlay on top of the base
	Over CompositeMode = iota
	// CopyOpacity uses the overlay's intensity as the base's opacity
	CopyOpacity
)

func (m CompositeMode) String() string {
	if m == CopyOpacity {
		return "CopyOpacity"
	}
	return "Over"
}

// Tool performs the image operations the pipeline needs. Every operation
// reads files and writes its result to dst; dst is always PNG.
type Tool interface {
	Dimensions(ctx context.Context, path string) (Size, error)
	Resize(ctx context.Context, src string, size Size, dst string) error
	// Warp maps the from corners of src onto the to corners, keeping the
	// canvas size of src and leaving everything outside transparent.
	Warp(ctx context.Context, src string, from, to [4]models.Corner, dst string) error
	// Mask draws the quad filled white on a black canvas of the given size
	Mask(ctx context.Context, size Size, quad [4]models.Corner, dst string) error
	Composite(ctx context.Context, base, overlay string, mode CompositeMode, dst string) error
}

// CanvasCorners are the corners of a size-sized image in TL, TR, BR, BL order
func CanvasCorners(s Size) [4]models.Corner {
	return [4]models.Corner{
		{X: 0, Y: 0},
		{X: s.Width, Y: 0},
		{X: s.Width, Y: s.Height},
		{X: 0, Y: s.Height},
	}
}
