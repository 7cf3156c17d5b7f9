package imaging

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/lucasaxm/RegataSimulator/internal/models"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// Native implements Tool in pure Go. It needs no external binaries, which
// makes it the backend used by tests and small deployments.
type Native struct{}

func NewNative() *Native { return &Native{} }

func (n *Native) Dimensions(ctx context.Context, path string) (Size, error) {
	file, err := os.Open(path)
	if err != nil {
		return Size{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return Size{}, fmt.Errorf("failed to decode image config: %w", err)
	}
	return Size{Width: cfg.Width, Height: cfg.Height}, nil
}

func (n *Native) Resize(ctx context.Context, src string, size Size, dst string) error {
	if size.Width <= 0 || size.Height <= 0 {
		return fmt.Errorf("invalid target size %s", size)
	}
	img, err := decode(src)
	if err != nil {
		return err
	}
	out := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	xdraw.BiLinear.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return encode(ctx, out, dst)
}

func (n *Native) Warp(ctx context.Context, src string, from, to [4]models.Corner, dst string) error {
	img, err := decode(src)
	if err != nil {
		return err
	}
	// sample backwards: every output pixel asks where it came from
	inverse, err := SolveHomography(to, from)
	if err != nil {
		return err
	}

	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	minX, minY, maxX, maxY := quadBounds(to, out.Bounds())
	for y := minY; y < maxY; y++ {
		if y%64 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		for x := minX; x < maxX; x++ {
			sx, sy, ok := inverse.Apply(float64(x)+0.5, float64(y)+0.5)
			if !ok {
				continue
			}
			if c, inside := bilinear(img, sx-0.5+float64(b.Min.X), sy-0.5+float64(b.Min.Y)); inside {
				out.SetRGBA(x, y, c)
			}
		}
	}
	return encode(ctx, out, dst)
}

func (n *Native) Mask(ctx context.Context, size Size, quad [4]models.Corner, dst string) error {
	out := image.NewGray(image.Rect(0, 0, size.Width, size.Height))
	r := vector.NewRasterizer(size.Width, size.Height)
	r.MoveTo(float32(quad[0].X), float32(quad[0].Y))
	for _, c := range quad[1:] {
		r.LineTo(float32(c.X), float32(c.Y))
	}
	r.ClosePath()
	r.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{})
	return encode(ctx, out, dst)
}

func (n *Native) Composite(ctx context.Context, base, overlay string, mode CompositeMode, dst string) error {
	baseImg, err := decode(base)
	if err != nil {
		return err
	}
	overlayImg, err := decode(overlay)
	if err != nil {
		return err
	}

	b := baseImg.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), baseImg, b.Min, draw.Src)

	switch mode {
	case CopyOpacity:
		alpha := intensity(overlayImg)
		masked := image.NewRGBA(out.Bounds())
		draw.DrawMask(masked, masked.Bounds(), out, image.Point{}, alpha, alpha.Bounds().Min, draw.Src)
		out = masked
	default:
		draw.Draw(out, out.Bounds(), overlayImg, overlayImg.Bounds().Min, draw.Over)
	}
	return encode(ctx, out, dst)
}

// intensity turns an image's luminance into an alpha mask
func intensity(img image.Image) *image.Alpha {
	b := img.Bounds()
	alpha := image.NewAlpha(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			alpha.SetAlpha(x-b.Min.X, y-b.Min.Y, color.Alpha{A: g.Y})
		}
	}
	return alpha
}

// bilinear samples img at a fractional pixel position. Samples outside the
// image are transparent and reported as not inside.
func bilinear(img image.Image, fx, fy float64) (color.RGBA, bool) {
	b := img.Bounds()
	if fx < float64(b.Min.X)-0.5 || fy < float64(b.Min.Y)-0.5 ||
		fx > float64(b.Max.X)-0.5 || fy > float64(b.Max.Y)-0.5 {
		return color.RGBA{}, false
	}

	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	tx, ty := fx-float64(x0), fy-float64(y0)

	at := func(x, y int) [4]float64 {
		x = min(max(x, b.Min.X), b.Max.X-1)
		y = min(max(y, b.Min.Y), b.Max.Y-1)
		r, g, bl, a := img.At(x, y).RGBA()
		return [4]float64{float64(r), float64(g), float64(bl), float64(a)}
	}
	c00, c10 := at(x0, y0), at(x0+1, y0)
	c01, c11 := at(x0, y0+1), at(x0+1, y0+1)

	var out [4]uint8
	for i := range out {
		top := c00[i]*(1-tx) + c10[i]*tx
		bottom := c01[i]*(1-tx) + c11[i]*tx
		out[i] = uint8(math.Round((top*(1-ty) + bottom*ty) / 257))
	}
	return color.RGBA{R: out[0], G: out[1], B: out[2], A: out[3]}, true
}

// quadBounds is the pixel box covering the quad, clipped to bounds
func quadBounds(q [4]models.Corner, bounds image.Rectangle) (minX, minY, maxX, maxY int) {
	minX, minY = q[0].X, q[0].Y
	maxX, maxY = q[0].X, q[0].Y
	for _, c := range q[1:] {
		minX, maxX = min(minX, c.X), max(maxX, c.X)
		minY, maxY = min(minY, c.Y), max(maxY, c.Y)
	}
	minX, minY = max(minX, bounds.Min.X), max(minY, bounds.Min.Y)
	maxX, maxY = min(maxX+1, bounds.Max.X), min(maxY+1, bounds.Max.Y)
	return minX, minY, maxX, maxY
}

func decode(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// encode writes PNG through a temp file so dst is never left half written
func encode(ctx context.Context, img image.Image, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".native-*.png")
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode png: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

var _ Tool = (*Native)(nil)
