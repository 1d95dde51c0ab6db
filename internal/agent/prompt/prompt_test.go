package prompt

import (
	"context"
	"strings"
	"testing"

	"aistudio/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemBuilder(t *testing.T) {
	b := NewSystemBuilder("Always answer in French.")
	defs := []*tools.ToolDefinition{
		{Name: "image_generation", Description: "Create an image"},
		{Name: "video_generation", Description: "Create a video"},
	}

	out, err := b.Build(context.Background(), defs, "https://files.test/photo.jpg")
	require.NoError(t, err)
	assert.Contains(t, out, "- image_generation: Create an image")
	assert.Contains(t, out, "https://files.test/photo.jpg")
	assert.Contains(t, out, "Always answer in French.")
	assert.Contains(t, out, `"imageUrl"`)
	assert.True(t, strings.Index(out, "image_generation") < strings.Index(out, "video_generation"))

	plain, err := b.Build(context.Background(), nil, "")
	require.NoError(t, err)
	assert.NotContains(t, plain, "Available tools")
	assert.NotContains(t, plain, "attached a file")
}

func TestEngineCachesCompiledTemplate(t *testing.T) {
	loader := NewInMemoryLoader(&Template{ID: "t", Name: "t", Content: "hello {{.Name}}"})
	e := NewEngine(loader)

	out, err := e.Render(context.Background(), "t", map[string]string{"Name": "a"})
	require.NoError(t, err)
	assert.Equal(t, "hello a", out)

	// 缓存命中时不再读取 Loader
	loader.Register(&Template{ID: "t", Name: "t", Content: "bye {{.Name}}"})
	out, err = e.Render(context.Background(), "t", map[string]string{"Name": "b"})
	require.NoError(t, err)
	assert.Equal(t, "hello b", out)

	e.ClearCache("t")
	out, err = e.Render(context.Background(), "t", map[string]string{"Name": "c"})
	require.NoError(t, err)
	assert.Equal(t, "bye c", out)

	_, err = e.Render(context.Background(), "missing", nil)
	assert.Error(t, err)
}

func TestTemplateMissingKey(t *testing.T) {
	tmpl := &Template{ID: "x", Name: "x", Content: "{{.Absent}}"}
	_, err := tmpl.Render(map[string]any{})
	assert.Error(t, err)
}
