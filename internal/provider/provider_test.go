package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aistudio/pkg/httputil"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRun struct {
	model string
	input map[string]any
}

func fakeRunner(output any, err error, calls *[]recordedRun) RunFunc {
	return func(_ context.Context, model string, input map[string]any) (any, error) {
		*calls = append(*calls, recordedRun{model: model, input: input})
		return output, err
	}
}

func TestFirstURL(t *testing.T) {
	cases := []struct {
		name   string
		output any
		want   string
	}{
		{"string", "https://cdn/x.png", "https://cdn/x.png"},
		{"array", []any{"https://cdn/a.png", "https://cdn/b.png"}, "https://cdn/a.png"},
		{"string array", []string{"not-a-url", "https://cdn/b.mp4"}, "https://cdn/b.mp4"},
		{"object", map[string]any{"model_file": "https://cdn/m.glb"}, "https://cdn/m.glb"},
		{"nested", map[string]any{"output": []any{"https://cdn/v.mp4"}}, "https://cdn/v.mp4"},
		{"plain text", "hello", ""},
		{"nil", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, firstURL(tc.output))
		})
	}
}

func TestReplicateGenerateImageModes(t *testing.T) {
	var calls []recordedRun
	p := NewReplicateProviderWithRunner(fakeRunner([]any{"https://cdn/out.png"}, nil, &calls), map[string]string{
		TaskImage: "custom/image-model",
	}, nil)
	ctx := context.Background()

	res, err := p.GenerateImage(ctx, ImageRequest{Prompt: "a fox", AspectRatio: "16:9"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/out.png", res.URL)
	assert.Equal(t, "custom/image-model", calls[0].model)
	assert.Equal(t, "a fox", calls[0].input["prompt"])
	assert.Equal(t, "16:9", calls[0].input["aspect_ratio"])

	_, err = p.GenerateImage(ctx, ImageRequest{Mode: ImageEnhance, ImageURL: "https://in/x.png"})
	require.NoError(t, err)
	assert.Equal(t, DefaultReplicateModels[TaskImageEnhance], calls[1].model)
	assert.Equal(t, 2, calls[1].input["scale"])

	_, err = p.GenerateImage(ctx, ImageRequest{Mode: ImageProduct, Prompt: "sneaker", ImageURL: "https://in/s.png", Background: "marble"})
	require.NoError(t, err)
	assert.Contains(t, calls[2].input["prompt"], "marble")
	assert.Equal(t, "https://in/s.png", calls[2].input["input_image"])
}

func TestReplicateGenerateVideo(t *testing.T) {
	var calls []recordedRun
	p := NewReplicateProviderWithRunner(fakeRunner("https://cdn/clip.mp4", nil, &calls), nil, nil)

	res, err := p.GenerateVideo(context.Background(), VideoRequest{Prompt: "waves", ImageURL: "https://in/first.png", Duration: 6.5})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/clip.mp4", res.URL)
	assert.Equal(t, 6.5, res.Quantities["duration_seconds"])
	assert.Equal(t, 7, calls[0].input["duration"])
	assert.Equal(t, "https://in/first.png", calls[0].input["first_frame_image"])
}

func TestReplicateErrors(t *testing.T) {
	var calls []recordedRun
	p := NewReplicateProviderWithRunner(fakeRunner(nil, errors.New("model offline"), &calls), nil, nil)
	_, err := p.GenerateMusic(context.Background(), MusicRequest{Prompt: "jazz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model offline")

	p = NewReplicateProviderWithRunner(fakeRunner(map[string]any{"status": "ok"}, nil, &calls), nil, nil)
	_, err = p.GenerateMesh(context.Background(), MeshRequest{ImageURL: "https://in/chair.png"})
	assert.Error(t, err)

	p = NewReplicateProviderWithRunner(fakeRunner("https://x", nil, &calls), map[string]string{}, nil)
	p.models = map[string]string{}
	_, err = p.CloneVoice(context.Background(), VoiceRequest{Text: "hi"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewReplicateProvider("", nil, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func newOpenAITestServer(t *testing.T) (*openai.Client, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "image_url")
		_, _ = w.Write([]byte(`{"id":"v","choices":[{"message":{"role":"assistant","content":"A red fox in snow."}}]}`))
	})
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, openai.Whisper1, r.FormValue("model"))
		_, _ = w.Write([]byte(`{"task":"transcribe","language":"english","duration":3.2,"text":"hello world"}`))
	})
	mux.HandleFunc("/files/clip.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("fake-mp3"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = server.URL + "/v1"
	return openai.NewClientWithConfig(cfg), server
}

func TestOpenAIMediaDescribeAndTranscribe(t *testing.T) {
	client, server := newOpenAITestServer(t)
	media, err := NewOpenAIMedia(client, "", "", httputil.NewClient())
	require.NoError(t, err)

	text, err := media.DescribeImage(context.Background(), VisionRequest{ImageURL: "https://in/fox.png"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(text, "fox"))

	tr, err := media.Transcribe(context.Background(), TranscribeRequest{AudioURL: server.URL + "/files/clip.mp3"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", tr.Text)
	assert.InDelta(t, 3.2, tr.DurationSeconds, 0.001)

	_, err = media.DescribeImage(context.Background(), VisionRequest{})
	assert.Error(t, err)

	_, err = NewOpenAIMedia(nil, "", "", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
