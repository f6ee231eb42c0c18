package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"

	"github.com/amirphl/Kiriban/models"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ImageRenderer draws counter badges and commemorative token images.
// Output depends only on the arguments.
type ImageRenderer interface {
	RenderCounter(count int64, digitWidth int, issued bool) ([]byte, error)
	// RenderAsset returns metadata without the image reference; callers fill it in.
	RenderAsset(tokenID string, count int64) (*models.AssetMetadata, []byte, error)
}

const (
	counterFontSize  = 20
	counterPadding   = 4
	issuedFrameWidth = 2

	assetMinSize      = 400
	assetPadding      = 24
	assetTitleSize    = 32
	assetSubtitleSize = 24
	assetFooterSize   = 18
)

var (
	colorWhite       = color.RGBA{0xff, 0xff, 0xff, 0xff}
	colorBlack       = color.RGBA{0x00, 0x00, 0x00, 0xff}
	colorGold        = color.RGBA{0xd4, 0xaf, 0x37, 0xff}
	colorIssuedBG    = color.RGBA{0xff, 0xf8, 0xdc, 0xff}
	colorFooter      = color.RGBA{0xdd, 0xdd, 0xdd, 0xff}
	colorGradientTop = color.RGBA{0x89, 0xf7, 0xfe, 0xff}
	colorGradientEnd = color.RGBA{0x66, 0xa6, 0xff, 0xff}
)

type imageRenderer struct {
	regular *opentype.Font
	bold    *opentype.Font
	printer *message.Printer
}

// NewImageRenderer parses the embedded Go fonts
func NewImageRenderer() (ImageRenderer, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bold font: %w", err)
	}
	return &imageRenderer{
		regular: regular,
		bold:    bold,
		printer: message.NewPrinter(language.English),
	}, nil
}

// FormatCount zero-pads count to digitWidth. Longer values are never truncated.
func FormatCount(count int64, digitWidth int) string {
	s := strconv.FormatInt(count, 10)
	if len(s) >= digitWidth {
		return s
	}
	return strings.Repeat("0", digitWidth-len(s)) + s
}

// Ordinal returns the English ordinal suffix for n
func Ordinal(n int64) string {
	if n < 0 {
		n = -n
	}
	switch n % 100 {
	case 11, 12, 13:
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// newFace returns a fresh face; faces keep per-instance buffers and are not
// safe for concurrent use
func newFace(f *opentype.Font, size float64) (font.Face, error) {
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

func (r *imageRenderer) RenderCounter(count int64, digitWidth int, issued bool) ([]byte, error) {
	text := FormatCount(count, digitWidth)

	face, err := newFace(r.regular, counterFontSize)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	metrics := face.Metrics()
	textWidth := font.MeasureString(face, text).Ceil()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()

	pad := counterPadding
	if issued {
		pad += issuedFrameWidth
	}
	width := textWidth + pad*2
	height := textHeight + pad*2

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	bg, fg := colorWhite, colorBlack
	if issued {
		bg = colorIssuedBG
	}
	draw.Draw(img, img.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)
	if issued {
		drawFrame(img, colorGold, issuedFrameWidth)
	}

	drawCentered(img, face, text, fg, width/2, pad+metrics.Ascent.Ceil())
	return encodePNG(img)
}

func (r *imageRenderer) RenderAsset(tokenID string, count int64) (*models.AssetMetadata, []byte, error) {
	title := "Congratulations!"
	subtitle := fmt.Sprintf("You are the %s%s visitor!", r.printer.Sprintf("%d", count), Ordinal(count))
	footer := fmt.Sprintf("Token ID: %s", tokenID)

	titleFace, err := newFace(r.bold, assetTitleSize)
	if err != nil {
		return nil, nil, err
	}
	defer titleFace.Close()
	subtitleFace, err := newFace(r.regular, assetSubtitleSize)
	if err != nil {
		return nil, nil, err
	}
	defer subtitleFace.Close()
	footerFace, err := newFace(r.regular, assetFooterSize)
	if err != nil {
		return nil, nil, err
	}
	defer footerFace.Close()

	widest := 0
	for _, line := range []struct {
		face font.Face
		text string
	}{{titleFace, title}, {subtitleFace, subtitle}, {footerFace, footer}} {
		if w := font.MeasureString(line.face, line.text).Ceil(); w > widest {
			widest = w
		}
	}
	size := max(assetMinSize, widest+assetPadding*2)

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	drawDiagonalGradient(img, colorGradientTop, colorGradientEnd)

	center := size / 2
	drawCentered(img, titleFace, title, colorWhite, center, size/2-40+assetTitleSize/3)
	drawCentered(img, subtitleFace, subtitle, colorWhite, center, size/2+10+assetSubtitleSize/3)
	drawCentered(img, footerFace, footer, colorFooter, center, size-30+assetFooterSize/3)

	data, err := encodePNG(img)
	if err != nil {
		return nil, nil, err
	}

	meta := &models.AssetMetadata{
		Name: fmt.Sprintf("Kiriban #%s", tokenID),
		Description: fmt.Sprintf(
			"A commemorative token for reaching a milestone on the visit counter at number %s.",
			r.printer.Sprintf("%d", count),
		),
	}
	return meta, data, nil
}

// drawCentered draws text horizontally centered on cx with its baseline at y
func drawCentered(dst draw.Image, face font.Face, text string, c color.Color, cx, y int) {
	w := font.MeasureString(face, text)
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(cx) - w/2, Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func drawFrame(img *image.RGBA, c color.Color, width int) {
	b := img.Bounds()
	src := &image.Uniform{C: c}
	draw.Draw(img, image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+width), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Min.X, b.Max.Y-width, b.Max.X, b.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+width, b.Max.Y), src, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(b.Max.X-width, b.Min.Y, b.Max.X, b.Max.Y), src, image.Point{}, draw.Src)
}

// drawDiagonalGradient blends from top-left to bottom-right
func drawDiagonalGradient(img *image.RGBA, from, to color.RGBA) {
	b := img.Bounds()
	span := b.Dx() + b.Dy() - 2
	if span <= 0 {
		span = 1
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			t := (x - b.Min.X) + (y - b.Min.Y)
			img.SetRGBA(x, y, color.RGBA{
				R: lerp(from.R, to.R, t, span),
				G: lerp(from.G, to.G, t, span),
				B: lerp(from.B, to.B, t, span),
				A: 0xff,
			})
		}
	}
}

func lerp(a, b uint8, t, span int) uint8 {
	return uint8((int(a)*(span-t) + int(b)*t) / span)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
