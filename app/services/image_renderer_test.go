package services

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T) ImageRenderer {
	t.Helper()
	r, err := NewImageRenderer()
	require.NoError(t, err)
	return r
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		count int64
		width int
		want  string
	}{
		{7, 3, "007"},
		{1234, 3, "1234"},
		{0, 1, "0"},
		{42, 8, "00000042"},
		{100, 3, "100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCount(tt.count, tt.width))
	}
}

func TestOrdinal(t *testing.T) {
	cases := map[int64]string{1: "st", 2: "nd", 3: "rd", 4: "th", 11: "th", 12: "th", 13: "th", 100: "th", 111: "th", 222: "nd", 1001: "st", 3333: "rd"}
	for n, want := range cases {
		assert.Equal(t, want, Ordinal(n), "n=%d", n)
	}
}

func TestRenderCounter_Deterministic(t *testing.T) {
	r := newTestRenderer(t)

	first, err := r.RenderCounter(7, 3, false)
	require.NoError(t, err)
	second, err := r.RenderCounter(7, 3, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	img := decodePNG(t, first)
	assert.Greater(t, img.Bounds().Dx(), img.Bounds().Dy())
}

func TestRenderCounter_WidthFollowsText(t *testing.T) {
	r := newTestRenderer(t)

	padded, err := r.RenderCounter(7, 3, false)
	require.NoError(t, err)
	overflow, err := r.RenderCounter(1234, 3, false)
	require.NoError(t, err)

	paddedImg := decodePNG(t, padded)
	overflowImg := decodePNG(t, overflow)
	assert.Greater(t, overflowImg.Bounds().Dx(), paddedImg.Bounds().Dx(), "four digits need a wider canvas than three")
	assert.Equal(t, paddedImg.Bounds().Dy(), overflowImg.Bounds().Dy())
}

func TestRenderCounter_IssuedFrame(t *testing.T) {
	r := newTestRenderer(t)

	plain, err := r.RenderCounter(100, 3, false)
	require.NoError(t, err)
	issued, err := r.RenderCounter(100, 3, true)
	require.NoError(t, err)
	assert.NotEqual(t, plain, issued)

	img := decodePNG(t, issued)
	cr, cg, cb, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xd4), cr>>8)
	assert.Equal(t, uint32(0xaf), cg>>8)
	assert.Equal(t, uint32(0x37), cb>>8)

	plainImg := decodePNG(t, plain)
	pr, pg, pb, _ := plainImg.At(0, 0).RGBA()
	assert.Equal(t, []uint32{0xff, 0xff, 0xff}, []uint32{pr >> 8, pg >> 8, pb >> 8})
}

func TestRenderAsset(t *testing.T) {
	r := newTestRenderer(t)

	meta, data, err := r.RenderAsset("17", 1000)
	require.NoError(t, err)
	assert.Equal(t, "Kiriban #17", meta.Name)
	assert.Contains(t, meta.Description, "1,000")
	assert.Empty(t, meta.Image)

	img := decodePNG(t, data)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 400, img.Bounds().Dy())

	_, again, err := r.RenderAsset("17", 1000)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestRenderAsset_GrowsForLongText(t *testing.T) {
	r := newTestRenderer(t)

	_, data, err := r.RenderAsset("115792089237316195423570985008687907853269984665640564039457584007913129639935", 1000)
	require.NoError(t, err)
	img := decodePNG(t, data)
	assert.Greater(t, img.Bounds().Dx(), 400)
	assert.Equal(t, img.Bounds().Dx(), img.Bounds().Dy())
}
