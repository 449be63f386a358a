package frameset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
}

func indices(frames []types.FrameRecord) []int {
	out := make([]int, len(frames))
	for i, f := range frames {
		out[i] = f.Index
	}
	return out
}

func TestLoadOrdersNumerically(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "10.jpg", "2.jpg", "0.jpg", "11.jpg", "1.jpg", "7.jpg",
		"3.jpg", "9.jpg", "4.jpg", "8.jpg", "5.jpg", "6.jpg")

	frames, err := Load(dir, "jpg")
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, indices(frames))
	assert.Equal(t, filepath.Join(dir, "10.jpg"), frames[10].Path)
	assert.NoError(t, VerifyContiguous(frames))
}

func TestLoadIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "0.jpg", "1.JPG", "2.png", "notes.txt", ".DS_Store")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "3.jpg"), 0755))

	frames, err := Load(dir, "jpg")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, indices(frames))
}

func TestLoadFormatIsCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "0.png", "1.PNG")

	frames, err := Load(dir, ".PNG")
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestLoadEmptyDirectory(t *testing.T) {
	frames, err := Load(t.TempDir(), "jpg")
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.NoError(t, VerifyContiguous(frames))
}

func TestLoadMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")

	_, err := Load(dir, "jpg")
	require.Error(t, err)
	assert.Equal(t, tperrors.ErrorTypeDirectoryMissing, tperrors.GetType(err))
	assert.True(t, errors.Is(err, tperrors.ErrDirectoryMissing))
}

func TestLoadPathIsFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "frames")

	_, err := Load(filepath.Join(dir, "frames"), "jpg")
	assert.Equal(t, tperrors.ErrorTypeDirectoryMissing, tperrors.GetType(err))
}

func TestLoadRejectsBadNames(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		sentinel error
	}{
		{"non-integer stem", []string{"0.jpg", "frameA.jpg"}, tperrors.ErrBadFrameName},
		{"negative stem", []string{"-1.jpg"}, tperrors.ErrBadFrameName},
		{"explicit plus sign", []string{"+2.jpg"}, tperrors.ErrBadFrameName},
		{"empty stem", []string{".jpg"}, tperrors.ErrBadFrameName},
		{"duplicate index", []string{"01.jpg", "1.jpg"}, tperrors.ErrDuplicateFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			touch(t, dir, tt.files...)

			_, err := Load(dir, "jpg")
			require.Error(t, err)
			assert.Equal(t, tperrors.ErrorTypeFilenameParse, tperrors.GetType(err))
			assert.True(t, errors.Is(err, tt.sentinel))
		})
	}
}

func TestVerifyContiguousDetectsGaps(t *testing.T) {
	frames := []types.FrameRecord{{Index: 0}, {Index: 1}, {Index: 3}}

	err := VerifyContiguous(frames)
	require.Error(t, err)
	assert.Equal(t, tperrors.ErrorTypePacking, tperrors.GetType(err))
	assert.True(t, errors.Is(err, tperrors.ErrFrameSequenceGap))

	index, ok := tperrors.GetIndex(err)
	require.True(t, ok)
	assert.Equal(t, 2, index)
}

func TestVerifyContiguousRequiresZeroStart(t *testing.T) {
	err := VerifyContiguous([]types.FrameRecord{{Index: 1}, {Index: 2}})
	assert.Error(t, err)
}

func TestParseIndex(t *testing.T) {
	n, err := ParseIndex("042.webp")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = ParseIndex("1.5.jpg")
	assert.Error(t, err)
}
