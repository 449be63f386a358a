// Package frameset discovers extracted frames on disk and orders them by
// their numeric index.
package frameset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
)

// Load returns every regular file in dir whose extension matches
// frameFileFormat (case-insensitively), ordered by the integer value of its
// name. "10.jpg" sorts after "9.jpg". Files with other extensions and
// subdirectories are ignored.
func Load(dir, frameFileFormat string) ([]types.FrameRecord, error) {
	const op = "load_frames"

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tperrors.DirectoryMissing(op, tperrors.ErrDirectoryMissing).WithPath(dir)
		}
		return nil, tperrors.DirectoryMissing(op, err).WithPath(dir)
	}
	if !info.IsDir() {
		return nil, tperrors.DirectoryMissing(op, fmt.Errorf("%w: not a directory", tperrors.ErrDirectoryMissing)).WithPath(dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, tperrors.DirectoryMissing(op, err).WithPath(dir)
	}

	ext := "." + types.NormalizeFormat(frameFileFormat)
	seen := make(map[int]string)
	frames := make([]types.FrameRecord, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}

		index, err := ParseIndex(name)
		if err != nil {
			return nil, tperrors.FilenameParseError(op, err).WithPath(filepath.Join(dir, name))
		}
		if prev, dup := seen[index]; dup {
			return nil, tperrors.FilenameParseError(op,
				fmt.Errorf("%w: %s and %s", tperrors.ErrDuplicateFrame, prev, name)).
				WithIndex(index).
				WithPath(filepath.Join(dir, name))
		}
		seen[index] = name

		frames = append(frames, types.FrameRecord{
			Index: index,
			Path:  filepath.Join(dir, name),
		})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Index < frames[j].Index
	})
	return frames, nil
}

// ParseIndex parses the stem of a frame file name as a non-negative
// base-10 integer.
func ParseIndex(name string) (int, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	index, err := strconv.Atoi(stem)
	if err != nil || index < 0 || strings.HasPrefix(stem, "+") {
		return 0, fmt.Errorf("%w: %q", tperrors.ErrBadFrameName, name)
	}
	return index, nil
}

// VerifyContiguous checks that frames, in order, carry the indices 0..n-1.
func VerifyContiguous(frames []types.FrameRecord) error {
	for i, f := range frames {
		if f.Index != i {
			return tperrors.PackingError("verify_frames",
				fmt.Errorf("%w: expected index %d, found %d", tperrors.ErrFrameSequenceGap, i, f.Index)).
				WithIndex(i).
				WithPath(f.Path)
		}
	}
	return nil
}
