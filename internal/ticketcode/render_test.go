package ticketcode

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderPNG_ProducesDecodablePNGOfExpectedSize(t *testing.T) {
	data := RenderPNG("AAAA-1111")
	require.NotEmpty(t, data)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	bounds := img.Bounds()
	assert.Equal(t, canvasSize, bounds.Dx())
	assert.Equal(t, canvasSize, bounds.Dy())
}

func TestRenderPNG_IsDeterministicForSameCode(t *testing.T) {
	first := RenderPNG("AAAA-1111")
	second := RenderPNG("AAAA-1111")
	assert.Equal(t, first, second)
}

func TestRenderPNG_DiffersAcrossCodes(t *testing.T) {
	first := RenderPNG("AAAA-1111")
	second := RenderPNG("BBBB-2222")
	assert.NotEqual(t, first, second)
}
