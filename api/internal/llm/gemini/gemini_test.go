package gemini

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/media"
)

func TestPartsLayout(t *testing.T) {
	audio, err := media.FromBytes(media.Audio, []byte("ID3"), "a.mp3")
	require.NoError(t, err)
	video, err := media.FromBytes(media.Video, []byte("ftyp"), "v.webm")
	require.NoError(t, err)

	parts := Parts("prompt", []media.Item{video, audio})
	require.Len(t, parts, 3)
	assert.Equal(t, genai.Text("prompt"), parts[0])
	assert.Equal(t, genai.Blob{MIMEType: "video/webm", Data: []byte("ftyp")}, parts[1])
	assert.Equal(t, genai.Blob{MIMEType: "audio/mpeg", Data: []byte("ID3")}, parts[2])
}

func TestFirstText(t *testing.T) {
	assert.Equal(t, "", firstText(nil))
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png"}, genai.Text("{}")}}},
		},
	}
	assert.Equal(t, "{}", firstText(resp))
}

func TestGenerateWithoutKey(t *testing.T) {
	_, err := New("  ", "m").Generate(context.Background(), "p", nil)
	assert.True(t, apperr.Is(err, apperr.Validation))
}
