package cmd

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucasaxm/RegataSimulator/internal/areas"
	"github.com/lucasaxm/RegataSimulator/internal/imaging"
	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

var square = models.Area{
	Index: 1, SourceSlot: 1,
	TopLeft: models.Corner{X: 0, Y: 0}, TopRight: models.Corner{X: 100, Y: 0},
	BottomRight: models.Corner{X: 100, Y: 100}, BottomLeft: models.Corner{X: 0, Y: 100},
	Background: true,
}

func TestAreasValidate(t *testing.T) {
	tests := []struct {
		name    string
		record  string
		wantErr bool
		want    []string
	}{
		{
			name:   "valid record",
			record: areas.Format([]models.Area{square}),
			want:   []string{"- index: 1", "source_slot: 1", "background: true", "x: 100"},
		},
		{
			name:    "wrong header",
			record:  "Area,Slot\n1,1,0,0,100,0,100,100,0,100,1\n",
			wantErr: true,
		},
		{
			name:    "counter-clockwise corners",
			record:  "Area,Source,TLx,TLy,TRx,TRy,BRx,BRy,BLx,BLy,Background\n1,1,0,0,0,100,100,100,100,0,0\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.record, "areas", "validate", "-")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestAreasValidateMissingFile(t *testing.T) {
	_, err := execute(t, "", "areas", "validate", filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestComposeCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REGATA_IMAGE_BACKEND", "native")
	t.Setenv("REGATA_WORK_DIR", filepath.Join(dir, "work"))
	t.Setenv("REGATA_STORAGE_DRIVER", "memory")

	templateDir := filepath.Join(dir, "templates", "abc")
	writePNG(t, filepath.Join(templateDir, "template.png"), 100, 100, color.RGBA{})
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "areas.csv"), []byte(areas.Format([]models.Area{square})), 0o644))
	source := filepath.Join(dir, "source.png")
	writePNG(t, source, 40, 40, color.RGBA{B: 255, A: 255})
	output := filepath.Join(dir, "out", "meme.png")

	out, err := execute(t, "", "compose", templateDir, source, "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, output)

	size, err := imaging.NewNative().Dimensions(context.Background(), output)
	require.NoError(t, err)
	assert.Equal(t, imaging.Size{Width: 100, Height: 100}, size)
}

func TestComposeCommandNeedsOneSourcePerArea(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REGATA_IMAGE_BACKEND", "native")
	t.Setenv("REGATA_WORK_DIR", filepath.Join(dir, "work"))

	templateDir := filepath.Join(dir, "templates", "abc")
	writePNG(t, filepath.Join(templateDir, "template.png"), 100, 100, color.RGBA{})
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "areas.csv"), []byte(areas.Format([]models.Area{square})), 0o644))
	source := filepath.Join(dir, "source.png")
	writePNG(t, source, 10, 10, color.White)

	_, err := execute(t, "", "compose", templateDir, source, source, "-o", filepath.Join(dir, "meme.png"))
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "meme.png"))
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "", "--log-level", "loud", "areas", "validate", "-")
	assert.Error(t, err)
}

func TestGenerateOutputWithEmptyCatalog(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REGATA_IMAGE_BACKEND", "native")
	t.Setenv("REGATA_STORAGE_DRIVER", "memory")
	t.Setenv("REGATA_DATA_DIR", dir)
	t.Setenv("REGATA_WORK_DIR", filepath.Join(dir, "work"))

	_, err := execute(t, "", "generate", "--output", filepath.Join(dir, "meme.png"))
	assert.ErrorContains(t, err, "GET_RANDOM_TEMPLATE")
}

func TestRunError(t *testing.T) {
	sent := []workflow.Action{workflow.GetRandomTemplate, workflow.GetRandomSource, workflow.BuildMeme, workflow.SendMeme}
	tests := []struct {
		name  string
		trail []workflow.Action
		err   error
		want  string
	}{
		{"delivered", sent, nil, ""},
		{"delivery failed", sent, errors.New("Failed to send meme: chat not found"), "stopped at SEND_MEME: Failed to send meme: chat not found"},
		{"stopped early", sent[:2], nil, "stopped at GET_RANDOM_SOURCE"},
		{"nothing ran", nil, nil, "did not start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wc := workflow.NewContext(nil)
			wc.Err = tt.err
			err := runError(tt.trail, wc, workflow.SendMeme)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.want)
		})
	}
}
