// Package media turns user supplied image, video and audio files into the
// payloads handed to the diagnosis backend.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"mime"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type Kind string

const (
	Image Kind = "image"
	Video Kind = "video"
	Audio Kind = "audio"
)

// Order in which items are submitted to the backend.
var Kinds = []Kind{Image, Video, Audio}

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Image, Video, Audio:
		return k, true
	}
	return "", false
}

const (
	FallbackVideoMIME = "video/mp4"
	FallbackAudioMIME = "audio/mpeg"
	imageMIME         = "image/jpeg"
	jpegQuality       = 90
)

// Item is an immutable, normalized media payload.
type Item struct {
	kind Kind
	data []byte
	mime string
}

func (it Item) Kind() Kind     { return it.kind }
func (it Item) MIME() string   { return it.mime }
func (it Item) Len() int       { return len(it.data) }
func (it Item) Bytes() []byte  { return append([]byte(nil), it.data...) }
func (it Item) String() string { return fmt.Sprintf("%s(%s, %d bytes)", it.kind, it.mime, len(it.data)) }

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("media %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Ingest reads every provided path and returns items ordered image, video, audio.
// Unknown kinds are ignored.
func Ingest(paths map[Kind]string) ([]Item, error) {
	items := make([]Item, 0, len(paths))
	for _, k := range Kinds {
		p, ok := paths[k]
		if !ok || strings.TrimSpace(p) == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, &Error{Kind: k, Err: err}
		}
		it, err := FromBytes(k, b, filepath.Base(p))
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// FromBytes normalizes an in-memory payload. filename is used only for MIME
// inference of video/audio.
func FromBytes(kind Kind, data []byte, filename string) (Item, error) {
	switch kind {
	case Image:
		jpg, err := normalizeImage(data)
		if err != nil {
			return Item{}, &Error{Kind: Image, Err: err}
		}
		return Item{kind: Image, data: jpg, mime: imageMIME}, nil
	case Video:
		return Item{kind: Video, data: append([]byte(nil), data...), mime: mimeFromName(filename, "video/", FallbackVideoMIME)}, nil
	case Audio:
		return Item{kind: Audio, data: append([]byte(nil), data...), mime: mimeFromName(filename, "audio/", FallbackAudioMIME)}, nil
	default:
		return Item{}, &Error{Kind: kind, Err: fmt.Errorf("unsupported media kind %q", kind)}
	}
}

func mimeFromName(name, prefix, fallback string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return fallback
	}
	t := extraTypes[ext]
	if t == "" {
		t = mime.TypeByExtension(ext)
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	if !strings.HasPrefix(t, prefix) {
		return fallback
	}
	return t
}

// Checked before the system mime table, which varies between hosts.
var extraTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".aac":  "audio/aac",
}

// normalizeImage decodes any registered format, composites it onto an opaque
// white RGB canvas and re-encodes as JPEG.
func normalizeImage(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	src, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("empty image bounds")
	}
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return out.Bytes(), nil
}
