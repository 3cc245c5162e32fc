package farmbrief

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mp3WithID3 builds a fake MPEG stream with an ID3v2 tag of the given
// payload size wrapped around the frame bytes.
func mp3WithID3(tagPayload, frames []byte) []byte {
	header := []byte{
		'I', 'D', '3', 3, 0, 0,
		byte(len(tagPayload) >> 21 & 0x7f),
		byte(len(tagPayload) >> 14 & 0x7f),
		byte(len(tagPayload) >> 7 & 0x7f),
		byte(len(tagPayload) & 0x7f),
	}
	out := append(header, tagPayload...)
	return append(out, frames...)
}

func TestStripID3v2(t *testing.T) {
	t.Run(
		"strips a leading tag", func(t *testing.T) {
			data := mp3WithID3([]byte("tag-payload"), []byte("frames"))
			assert.Equal(t, []byte("frames"), stripID3v2(data))
		},
	)
	t.Run(
		"syncsafe size spanning multiple bytes", func(t *testing.T) {
			payload := make([]byte, 300)
			data := mp3WithID3(payload, []byte("frames"))
			assert.Equal(t, []byte("frames"), stripID3v2(data))
		},
	)
	t.Run(
		"no tag is a no-op", func(t *testing.T) {
			data := []byte("\xff\xfbframe data")
			assert.Equal(t, data, stripID3v2(data))
		},
	)
	t.Run(
		"truncated stream left intact", func(t *testing.T) {
			data := []byte("ID3")
			assert.Equal(t, data, stripID3v2(data))
		},
	)
	t.Run(
		"tag size past the end left intact", func(t *testing.T) {
			data := mp3WithID3(make([]byte, 100), nil)[:50]
			assert.Equal(t, data, stripID3v2(data))
		},
	)
}

func TestConcatMP3(t *testing.T) {
	first := mp3WithID3([]byte("tag1"), []byte("AAA"))
	second := mp3WithID3([]byte("tag2"), []byte("BBB"))
	third := []byte("CCC")

	combined := concatMP3([][]byte{first, second, third})

	// first segment keeps its tag, later tags are stripped
	assert.Equal(t, append(append([]byte{}, first...), 'B', 'B', 'B', 'C', 'C', 'C'), combined)
}

func TestCombineSegmentFiles(t *testing.T) {
	dir := t.TempDir()

	segments := [][]byte{
		mp3WithID3([]byte("tag"), []byte("one")),
		mp3WithID3([]byte("tag"), []byte("two")),
	}
	paths := make([]string, 0, len(segments))
	for i, seg := range segments {
		p := filepath.Join(dir, fmt.Sprintf("seg_%d.mp3", i))
		require.NoError(t, os.WriteFile(p, seg, 0o644))
		paths = append(paths, p)
	}

	out := filepath.Join(dir, "combined.mp3")
	require.NoError(t, combineSegmentFiles(paths, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, concatMP3(segments), data)

	t.Run(
		"missing segment file", func(t *testing.T) {
			err := combineSegmentFiles(
				[]string{filepath.Join(dir, "absent.mp3")},
				out,
			)
			assert.Error(t, err)
		},
	)
	t.Run(
		"no segments", func(t *testing.T) {
			assert.Error(t, combineSegmentFiles(nil, out))
		},
	)
}

func TestRemoveFiles(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "temp.mp3")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	// absent paths are ignored
	removeFiles([]string{p, filepath.Join(dir, "never-existed.mp3")})
	assert.NoFileExists(t, p)
}
