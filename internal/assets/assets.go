// Package assets knows where template and source files live on disk.
//
//	<templates>/<id>/template.{jpg,jpeg,png}
//	<templates>/<id>/areas.csv
//	<sources>/<id>/source.{jpg,jpeg,png}
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasaxm/RegataSimulator/internal/areas"
	"github.com/lucasaxm/RegataSimulator/internal/models"
)

var ErrMissingFile = errors.New("asset file not found")

// Extensions in lookup order
var Extensions = []string{".jpg", ".jpeg", ".png"}

const AreasFile = "areas.csv"

type Library struct {
	TemplatesDir string
	SourcesDir   string
}

func New(templatesDir, sourcesDir string) (*Library, error) {
	for _, dir := range []string{templatesDir, sourcesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create asset directory %s: %w", dir, err)
		}
	}
	return &Library{TemplatesDir: templatesDir, SourcesDir: sourcesDir}, nil
}

func (l *Library) TemplateDir(id string) string { return filepath.Join(l.TemplatesDir, id) }
func (l *Library) SourceDir(id string) string   { return filepath.Join(l.SourcesDir, id) }

func find(dir, base string) (string, error) {
	for _, ext := range Extensions {
		path := filepath.Join(dir, base+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s/%s.*", ErrMissingFile, dir, base)
}

// TemplateFile is the first existing template image of id
func (l *Library) TemplateFile(id string) (string, error) {
	return find(l.TemplateDir(id), "template")
}

// SourceFile is the first existing source image of id
func (l *Library) SourceFile(id string) (string, error) {
	return find(l.SourceDir(id), "source")
}

// ImageExtension maps a document's file name or MIME type to a stored extension
func ImageExtension(fileName, mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == ".jpeg" || ext == ".png" {
		return ext
	}
	return ".jpg"
}

// NewTemplatePath creates the template directory and returns where its image goes
func (l *Library) NewTemplatePath(id, ext string) (string, error) {
	dir := l.TemplateDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create template directory: %w", err)
	}
	return filepath.Join(dir, "template"+ext), nil
}

// NewSourcePath creates the source directory and returns where its image goes
func (l *Library) NewSourcePath(id, ext string) (string, error) {
	dir := l.SourceDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create source directory: %w", err)
	}
	return filepath.Join(dir, "source"+ext), nil
}

// WriteAreas stores the canonical CSV next to the template image
func (l *Library) WriteAreas(id string, list []models.Area) error {
	path := filepath.Join(l.TemplateDir(id), AreasFile)
	if err := os.WriteFile(path, []byte(areas.Format(list)), 0o644); err != nil {
		return fmt.Errorf("failed to write areas: %w", err)
	}
	return nil
}

// ReadAreas parses the areas.csv of a template directory
func ReadAreas(dir string) ([]models.Area, error) {
	f, err := os.Open(filepath.Join(dir, AreasFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open areas: %w", err)
	}
	defer f.Close()
	return areas.Parse(f)
}

func (l *Library) RemoveTemplate(id string) error {
	return removeDir(l.TemplatesDir, id)
}

func (l *Library) RemoveSource(id string) error {
	return removeDir(l.SourcesDir, id)
}

func removeDir(root, id string) error {
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return fmt.Errorf("refusing to remove asset directory %q", id)
	}
	if err := os.RemoveAll(filepath.Join(root, id)); err != nil {
		return fmt.Errorf("failed to remove asset directory: %w", err)
	}
	return nil
}
