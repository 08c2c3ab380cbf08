package telegram

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"repair-assistant/api/internal/httpclient"
	"repair-assistant/api/internal/media"
)

var downloadClient = httpclient.New(60 * time.Second)

type attachment struct {
	kind   media.Kind
	fileID string
	name   string
}

// attachments lists the files of msg in image, video, audio order.
func attachments(msg *tgbotapi.Message) []attachment {
	var out []attachment
	if len(msg.Photo) > 0 {
		ph := msg.Photo[len(msg.Photo)-1]
		out = append(out, attachment{kind: media.Image, fileID: ph.FileID, name: tempName(".jpg")})
	}
	if msg.Document != nil && isImageMIME(msg.Document.MimeType) {
		out = append(out, attachment{kind: media.Image, fileID: msg.Document.FileID, name: nameOr(msg.Document.FileName, ".jpg")})
	}
	if msg.Video != nil {
		out = append(out, attachment{kind: media.Video, fileID: msg.Video.FileID, name: nameOr(msg.Video.FileName, ".mp4")})
	}
	if msg.VideoNote != nil {
		out = append(out, attachment{kind: media.Video, fileID: msg.VideoNote.FileID, name: tempName(".mp4")})
	}
	if msg.Voice != nil {
		out = append(out, attachment{kind: media.Audio, fileID: msg.Voice.FileID, name: tempName(".ogg")})
	}
	if msg.Audio != nil {
		out = append(out, attachment{kind: media.Audio, fileID: msg.Audio.FileID, name: nameOr(msg.Audio.FileName, ".mp3")})
	}
	return out
}

func isImageMIME(m string) bool {
	return len(m) > 6 && m[:6] == "image/"
}

// tempName gives nameless uploads a unique file name with the right extension
// for MIME inference.
func tempName(ext string) string { return uuid.NewString() + ext }

func nameOr(name, ext string) string {
	if filepath.Ext(name) == "" {
		return tempName(ext)
	}
	return name
}

// collectMedia downloads and normalizes every attachment. Only the first
// attachment of each kind is used.
func (r *Router) collectMedia(msg *tgbotapi.Message) ([]media.Item, error) {
	seen := map[media.Kind]bool{}
	var items []media.Item
	for _, a := range attachments(msg) {
		if seen[a.kind] {
			continue
		}
		url, err := r.Bot.GetFileDirectURL(a.fileID)
		if err != nil {
			return nil, fmt.Errorf("get %s file: %w", a.kind, err)
		}
		data, err := download(url)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", a.kind, err)
		}
		it, err := media.FromBytes(a.kind, data, a.name)
		if err != nil {
			return nil, err
		}
		seen[a.kind] = true
		items = append(items, it)
	}
	return items, nil
}

func download(url string) ([]byte, error) {
	resp, err := downloadClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}
