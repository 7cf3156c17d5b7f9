// Package backup packs the asset directories and the generation history into
// files that can be shipped to a backup chat.
package backup

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// ZipDirs zips every subdirectory of root into outDir. A subdirectory is never
// split: a new archive starts whenever adding the next one would push the
// current archive's uncompressed size over limit. Archives are named
// <prefix>-<n>.zip and hold paths relative to root.
func ZipDirs(root, outDir, prefix string, limit int64) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}

	var (
		archives []string
		current  *zipFile
		size     int64
	)
	closeCurrent := func() error {
		if current == nil {
			return nil
		}
		err := current.Close()
		current = nil
		return err
	}
	fail := func(err error) ([]string, error) {
		if current != nil {
			current.Close()
		}
		for _, a := range archives {
			os.Remove(a)
		}
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		dirSize, err := dirSize(dir)
		if err != nil {
			return fail(err)
		}

		if current != nil && size+dirSize > limit {
			if err := closeCurrent(); err != nil {
				return fail(err)
			}
		}
		if current == nil {
			path := filepath.Join(outDir, fmt.Sprintf("%s-%d.zip", prefix, len(archives)))
			current, err = createZip(path)
			if err != nil {
				return fail(err)
			}
			archives = append(archives, path)
			size = 0
		}
		if err := current.addDir(root, dir); err != nil {
			return fail(err)
		}
		size += dirSize
	}
	if err := closeCurrent(); err != nil {
		return fail(err)
	}

	slog.Info("Zipped directories", "root", root, "archives", len(archives))
	return archives, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to size %s: %w", dir, err)
	}
	return total, nil
}

type zipFile struct {
	f *os.File
	w *zip.Writer
}

func createZip(path string) (*zipFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	return &zipFile{f: f, w: zip.NewWriter(f)}, nil
}

func (z *zipFile) addDir(root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		w, err := z.w.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", rel, err)
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		if _, err := io.Copy(w, src); err != nil {
			return fmt.Errorf("failed to add %s: %w", rel, err)
		}
		return nil
	})
}

func (z *zipFile) Close() error {
	if err := z.w.Close(); err != nil {
		z.f.Close()
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return z.f.Close()
}
