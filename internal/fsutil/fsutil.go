package fsutil

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var imageExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
	".webp": {},
}

const diffSuffix = ".diff"

// FrameSet is every capture of one identity found in an inbox, in frame
// order. A capture is stored as <name>.png, or as <name>@<n>.png when a
// page was captured several times.
type FrameSet struct {
	Name  string
	Paths []string
}

// ListImages returns all image-like files under root, skipping diff
// renders and hidden files.
func ListImages(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if IsImageFile(path) && !IsDiffArtifact(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// IsImageFile checks if a file is any decodable image format.
func IsImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, isImage := imageExts[ext]
	return isImage
}

// IsDiffArtifact reports whether path is a rendered diff (name.diff.png).
func IsDiffArtifact(path string) bool {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.HasSuffix(base, diffSuffix)
}

// FrameName splits an inbox path into its identity name and frame index.
// ok is false for files that are not captures.
func FrameName(root, path string) (name string, frame int, ok bool) {
	if !IsImageFile(path) || IsDiffArtifact(path) {
		return "", 0, false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", 0, false
	}
	rel = filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
	if i := strings.LastIndex(rel, "@"); i > 0 && !strings.Contains(rel[i:], "/") {
		n, err := strconv.Atoi(rel[i+1:])
		if err != nil || n < 0 {
			return "", 0, false
		}
		return rel[:i], n, true
	}
	return rel, 0, true
}

// GroupFrames collects the captures under root by identity name.
func GroupFrames(root string) ([]FrameSet, error) {
	files, err := ListImages(root)
	if err != nil {
		return nil, err
	}
	type frame struct {
		n    int
		path string
	}
	byName := map[string][]frame{}
	for _, f := range files {
		name, n, ok := FrameName(root, f)
		if !ok {
			continue
		}
		byName[name] = append(byName[name], frame{n, f})
	}

	sets := make([]FrameSet, 0, len(byName))
	for name, frames := range byName {
		sort.Slice(frames, func(i, j int) bool { return frames[i].n < frames[j].n })
		set := FrameSet{Name: name}
		for _, f := range frames {
			set.Paths = append(set.Paths, f.path)
		}
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Name < sets[j].Name })
	return sets, nil
}

// FramesFor returns the captures of a single identity under root.
func FramesFor(root, name string) (FrameSet, error) {
	sets, err := GroupFrames(root)
	if err != nil {
		return FrameSet{}, err
	}
	for _, s := range sets {
		if s.Name == name {
			return s, nil
		}
	}
	return FrameSet{Name: name}, nil
}
