package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngWithAlpha(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{R: 200, A: 0})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFromBytesImageReencodesAsOpaqueJPEG(t *testing.T) {
	it, err := FromBytes(Image, pngWithAlpha(t), "room.png")
	require.NoError(t, err)
	assert.Equal(t, Image, it.Kind())
	assert.Equal(t, "image/jpeg", it.MIME())

	decoded, err := jpeg.Decode(bytes.NewReader(it.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 4, decoded.Bounds().Dx())
	assert.Equal(t, 3, decoded.Bounds().Dy())

	// fully transparent pixels end up white
	r, g, b, _ := decoded.At(1, 1).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestFromBytesImageDecodeFailure(t *testing.T) {
	_, err := FromBytes(Image, []byte("not an image"), "x.jpg")
	require.Error(t, err)

	var me *Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, Image, me.Kind)
}

func TestFromBytesMIMEInference(t *testing.T) {
	cases := []struct {
		kind Kind
		name string
		want string
	}{
		{Video, "clip.mov", "video/quicktime"},
		{Video, "clip.webm", "video/webm"},
		{Video, "clip.bin", FallbackVideoMIME},
		{Video, "clip", FallbackVideoMIME},
		{Video, "song.mp3", FallbackVideoMIME},
		{Audio, "noise.wav", "audio/wav"},
		{Audio, "noise.ogg", "audio/ogg"},
		{Audio, "noise.txt", FallbackAudioMIME},
		{Audio, "", FallbackAudioMIME},
	}
	for _, tc := range cases {
		it, err := FromBytes(tc.kind, []byte{1, 2, 3}, tc.name)
		require.NoError(t, err)
		assert.Equal(t, tc.want, it.MIME(), "%s %s", tc.kind, tc.name)
		assert.Equal(t, []byte{1, 2, 3}, it.Bytes())
	}
}

func TestItemIsImmutable(t *testing.T) {
	src := []byte{9, 9, 9}
	it, err := FromBytes(Audio, src, "a.mp3")
	require.NoError(t, err)

	src[0] = 0
	got := it.Bytes()
	got[1] = 0
	assert.Equal(t, []byte{9, 9, 9}, it.Bytes())
}

func TestIngestOrdersAndSkipsEmpty(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "room.png")
	audioPath := filepath.Join(dir, "drip.wav")
	require.NoError(t, os.WriteFile(imgPath, pngWithAlpha(t), 0o644))
	require.NoError(t, os.WriteFile(audioPath, []byte("RIFF"), 0o644))

	items, err := Ingest(map[Kind]string{
		Audio: audioPath,
		Image: imgPath,
		Video: "",
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, Image, items[0].Kind())
	assert.Equal(t, Audio, items[1].Kind())
	assert.Equal(t, "audio/wav", items[1].MIME())
}

func TestIngestMissingFile(t *testing.T) {
	_, err := Ingest(map[Kind]string{Video: filepath.Join(t.TempDir(), "nope.mp4")})
	var me *Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, Video, me.Kind)
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind(" Image ")
	assert.True(t, ok)
	assert.Equal(t, Image, k)

	_, ok = ParseKind("pdf")
	assert.False(t, ok)
}
