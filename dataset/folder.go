package dataset

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var (
	ErrNoDirectory = errors.New("data directory not found")
	ErrNoImages    = errors.New("no images found")
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// Sample is one labeled image on disk.
type Sample struct {
	Path  string
	Label int
}

// Folder is an image dataset laid out as root/<class>/<image>. Classes are
// indexed in sorted order; samples are listed class by class, by file name.
type Folder struct {
	Root    string
	Classes []string
	Samples []Sample
}

// ScanFolder lists the images under root.
func ScanFolder(fs afero.Fs, root string) (*Folder, error) {
	if ok, err := afero.IsDir(fs, root); err != nil || !ok {
		return nil, errors.Wrapf(ErrNoDirectory, "%s", root)
	}

	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", root)
	}

	f := &Folder{Root: root}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		classDir := filepath.Join(root, entry.Name())
		files, err := afero.ReadDir(fs, classDir)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s", classDir)
		}

		label := len(f.Classes)
		f.Classes = append(f.Classes, entry.Name())
		for _, file := range files {
			if file.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(file.Name()))] {
				continue
			}
			f.Samples = append(f.Samples, Sample{Path: filepath.Join(classDir, file.Name()), Label: label})
		}
	}

	if len(f.Samples) == 0 {
		return nil, errors.Wrapf(ErrNoImages, "%s", root)
	}
	return f, nil
}

func (f *Folder) Len() int {
	return len(f.Samples)
}

// Distribution counts samples per class name.
func (f *Folder) Distribution() map[string]int {
	dist := make(map[string]int, len(f.Classes))
	for _, s := range f.Samples {
		dist[f.Classes[s.Label]]++
	}
	return dist
}

// SameClasses reports whether other indexes the same classes in the same order.
func (f *Folder) SameClasses(other *Folder) bool {
	if len(f.Classes) != len(other.Classes) {
		return false
	}
	for i := range f.Classes {
		if f.Classes[i] != other.Classes[i] {
			return false
		}
	}
	return true
}
