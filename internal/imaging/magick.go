package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/lucasaxm/RegataSimulator/internal/models"
)

// Magick shells out to the ImageMagick 7 command line
type Magick struct {
	Binary  string
	Timeout time.Duration
}

func NewMagick(binary string, timeout time.Duration) *Magick {
	if binary == "" {
		binary = "magick"
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Magick{Binary: binary, Timeout: timeout}
}

func (m *Magick) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.Binary, args...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	slog.Debug("Image tool invoked", "binary", m.Binary, "args", len(args), "duration", time.Since(start))

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s: %s", ErrTimeout, m.Timeout, strings.Join(args, " "))
	}
	if err != nil {
		return "", fmt.Errorf("%s failed: %w, stderr: %s", m.Binary, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (m *Magick) Dimensions(ctx context.Context, path string) (Size, error) {
	out, err := m.run(ctx, "identify", "-format", "%w %h", path+"[0]")
	if err != nil {
		return Size{}, err
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return Size{}, fmt.Errorf("unexpected identify output %q", out)
	}
	w, errW := strconv.Atoi(fields[0])
	h, errH := strconv.Atoi(fields[1])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("unexpected identify output %q", out)
	}
	return Size{Width: w, Height: h}, nil
}

func (m *Magick) Resize(ctx context.Context, src string, size Size, dst string) error {
	_, err := m.run(ctx, src, "-resize", size.String()+"!", "png:"+dst)
	return err
}

func (m *Magick) Warp(ctx context.Context, src string, from, to [4]models.Corner, dst string) error {
	pairs := make([]string, 0, 4)
	for i := range from {
		pairs = append(pairs, fmt.Sprintf("%d,%d %d,%d", from[i].X, from[i].Y, to[i].X, to[i].Y))
	}
	_, err := m.run(ctx, src,
		"-alpha", "set",
		"-virtual-pixel", "transparent",
		"-distort", "Perspective", strings.Join(pairs, "  "),
		"png:"+dst)
	return err
}

func (m *Magick) Mask(ctx context.Context, size Size, quad [4]models.Corner, dst string) error {
	points := make([]string, 0, 4)
	for _, c := range quad {
		points = append(points, fmt.Sprintf("%d,%d", c.X, c.Y))
	}
	_, err := m.run(ctx,
		"-size", size.String(), "xc:black",
		"-fill", "white",
		"-draw", "polygon "+strings.Join(points, " "),
		"png:"+dst)
	return err
}

func (m *Magick) Composite(ctx context.Context, base, overlay string, mode CompositeMode, dst string) error {
	var args []string
	switch mode {
	case CopyOpacity:
		args = []string{base, "(", overlay, "-alpha", "off", ")", "-compose", "CopyOpacity", "-composite", "png:" + dst}
	default:
		args = []string{base, overlay, "-compose", "Over", "-composite", "png:" + dst}
	}
	_, err := m.run(ctx, args...)
	return err
}

var _ Tool = (*Magick)(nil)
