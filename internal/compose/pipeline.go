// Package compose assembles a meme: every source is resized to the template
// canvas, warped onto its area, masked to the area polygon and layered around
// the template.
package compose

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lucasaxm/RegataSimulator/internal/areas"
	"github.com/lucasaxm/RegataSimulator/internal/imaging"
	"github.com/lucasaxm/RegataSimulator/internal/models"
	"golang.org/x/sync/singleflight"
)

// Pipeline is safe for concurrent use; every Compose call works in its own
// temporary directory.
type Pipeline struct {
	tool    imaging.Tool
	workDir string
	maskDir string
	masks   *lru.Cache[string, string]
	group   singleflight.Group
}

// New creates a pipeline working under workDir. Masks are kept between runs
// in an LRU of maskCacheSize entries; evicted masks are deleted from disk.
func New(tool imaging.Tool, workDir string, maskCacheSize int) (*Pipeline, error) {
	maskDir := filepath.Join(workDir, "masks")
	if err := os.MkdirAll(maskDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mask directory: %w", err)
	}
	if maskCacheSize <= 0 {
		maskCacheSize = 64
	}
	masks, err := lru.NewWithEvict[string, string](maskCacheSize, func(_ string, path string) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove evicted mask", "path", path, "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mask cache: %w", err)
	}
	return &Pipeline{tool: tool, workDir: workDir, maskDir: maskDir, masks: masks}, nil
}

// Close drops every cached mask
func (p *Pipeline) Close() {
	p.masks.Purge()
}

// Compose renders templateFile with one source per area into out. Source i
// (zero based) fills the area whose SourceSlot is i+1. Nothing is written to
// out unless every stage succeeds.
func (p *Pipeline) Compose(ctx context.Context, templateFile string, list []models.Area, sourceFiles []string, out string) error {
	if err := areas.Validate(list); err != nil {
		return fmt.Errorf("invalid template areas: %w", err)
	}
	if len(sourceFiles) != len(list) {
		return fmt.Errorf("template needs %d sources, got %d", len(list), len(sourceFiles))
	}

	runDir, err := os.MkdirTemp(p.workDir, "compose-*")
	if err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	defer os.RemoveAll(runDir)

	size, err := p.tool.Dimensions(ctx, templateFile)
	if err != nil {
		return fmt.Errorf("failed to read template dimensions: %w", err)
	}
	slog.Debug("Composing meme", "template", templateFile, "size", size, "areas", len(list))

	var background, foreground []string
	for _, area := range list {
		layer, err := p.areaLayer(ctx, runDir, size, area, sourceFiles[area.SourceSlot-1])
		if err != nil {
			return fmt.Errorf("area %d: %w", area.Index, err)
		}
		if area.Background {
			background = append(background, layer)
		} else {
			foreground = append(foreground, layer)
		}
	}

	stack := append(append(background, templateFile), foreground...)
	result := stack[0]
	for i, layer := range stack[1:] {
		dst := filepath.Join(runDir, fmt.Sprintf("stack-%02d.png", i+1))
		if err := p.tool.Composite(ctx, result, layer, imaging.Over, dst); err != nil {
			return fmt.Errorf("failed to stack layer %d: %w", i+1, err)
		}
		result = dst
	}

	if err := publish(result, out); err != nil {
		return err
	}
	slog.Info("Meme composed", "output", out, "size", size, "background_layers", len(background), "foreground_layers", len(foreground))
	return nil
}

func (p *Pipeline) areaLayer(ctx context.Context, runDir string, size imaging.Size, area models.Area, source string) (string, error) {
	prefix := filepath.Join(runDir, fmt.Sprintf("area-%02d", area.Index))
	resized := prefix + "-resized.png"
	warped := prefix + "-warped.png"
	layer := prefix + "-layer.png"

	if err := p.tool.Resize(ctx, source, size, resized); err != nil {
		return "", fmt.Errorf("failed to resize source: %w", err)
	}
	if err := p.tool.Warp(ctx, resized, imaging.CanvasCorners(size), area.Corners(), warped); err != nil {
		return "", fmt.Errorf("failed to warp source: %w", err)
	}
	mask := prefix + "-mask.png"
	if err := p.pinMask(ctx, size, area.Corners(), mask); err != nil {
		return "", fmt.Errorf("failed to build mask: %w", err)
	}
	if err := p.tool.Composite(ctx, warped, mask, imaging.CopyOpacity, layer); err != nil {
		return "", fmt.Errorf("failed to apply mask: %w", err)
	}
	return layer, nil
}

// mask returns the cached mask for the polygon, drawing it at most once even
// when concurrent runs ask for the same one.
func (p *Pipeline) mask(ctx context.Context, size imaging.Size, quad [4]models.Corner) (string, error) {
	key := fmt.Sprintf("%s|%v", size, quad)
	if path, ok := p.masks.Get(key); ok {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		p.masks.Remove(key)
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		sum := sha256.Sum256([]byte(key))
		path := filepath.Join(p.maskDir, hex.EncodeToString(sum[:12])+".png")
		// every caller waiting on key shares this draw
		if err := p.tool.Mask(context.WithoutCancel(ctx), size, quad, path); err != nil {
			return "", err
		}
		p.masks.Add(key, path)
		return path, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// pinMask links the cached mask into dst so that an eviction during the run
// cannot take it away. A mask evicted before it was linked is drawn again.
func (p *Pipeline) pinMask(ctx context.Context, size imaging.Size, quad [4]models.Corner, dst string) error {
	for attempt := 0; ; attempt++ {
		cached, err := p.mask(ctx, size, quad)
		if err != nil {
			return err
		}
		err = os.Link(cached, dst)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			err = copyFile(cached, dst)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) || attempt > 0 {
			return err
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// publish copies the finished image next to out and renames it into place
func publish(src, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open composed image: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(out), ".meme-*")
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
