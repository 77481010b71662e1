// Cover image for EPUB output: horizontal bars derived from the book title,
// with the title and note count on a white band.
package main

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	coverWidth  = 1200
	coverHeight = 1800

	bandTop    = 650
	bandBottom = 1150
)

// generateCover renders a PNG cover. The same title always yields the same
// image.
func generateCover(title string, noteCount int) ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, coverWidth, coverHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Gray{0xFF}), image.Point{}, draw.Src)

	drawBars(img, sha256.Sum256([]byte(title)))

	titleFace, err := loadFace(gobold.TTF, 64)
	if err != nil {
		return nil, fmt.Errorf("loading bold font: %w", err)
	}
	metaFace, err := loadFace(goregular.TTF, 32)
	if err != nil {
		return nil, fmt.Errorf("loading regular font: %w", err)
	}
	drawTitleBand(img, title, noteCountLabel(noteCount), titleFace, metaFace)

	label := "enex2md"
	w := font.MeasureString(metaFace, label).Ceil()
	drawString(img, label, metaFace, coverWidth-40-w, coverHeight-40)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding cover PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func noteCountLabel(n int) string {
	if n == 1 {
		return "1 note"
	}
	return fmt.Sprintf("%d notes", n)
}

// drawBars stacks horizontal bars above and below the title band. Each
// hash byte picks a bar's height, shade and left indent.
func drawBars(img *image.Gray, hash [32]byte) {
	fill := func(top, bottom int, offset int) {
		y := top
		for i := 0; y < bottom; i++ {
			b := hash[(i+offset)%len(hash)]
			h := 24 + int(b%5)*16
			shade := uint8(0x30 + int(b>>3)*(0xC0-0x30)/31)
			indent := int(hash[(i+offset+11)%len(hash)]%4) * 60
			r := image.Rect(indent, y, coverWidth, min(y+h, bottom))
			draw.Draw(img, r, image.NewUniform(color.Gray{shade}), image.Point{}, draw.Src)
			y += h + 12
		}
	}
	fill(60, bandTop-40, 0)
	fill(bandBottom+40, coverHeight-120, 16)
}

// drawTitleBand clears the middle band and centres the wrapped title and a
// meta line in it.
func drawTitleBand(img *image.Gray, title, meta string, titleFace, metaFace font.Face) {
	const padX = 80
	draw.Draw(img, image.Rect(0, bandTop, coverWidth, bandBottom),
		image.NewUniform(color.Gray{0xFF}), image.Point{}, draw.Src)

	lines := wrapText(title, titleFace, coverWidth-padX*2)
	lineHeight := titleFace.Metrics().Height.Ceil() + 8
	metaHeight := metaFace.Metrics().Height.Ceil() + 16
	total := len(lines)*lineHeight + metaHeight
	y := bandTop + (bandBottom-bandTop-total)/2 + titleFace.Metrics().Ascent.Ceil()

	for _, line := range lines {
		w := font.MeasureString(titleFace, line).Ceil()
		drawString(img, line, titleFace, (coverWidth-w)/2, y)
		y += lineHeight
	}
	y += 16
	w := font.MeasureString(metaFace, meta).Ceil()
	drawString(img, meta, metaFace, (coverWidth-w)/2, y)
}

func drawString(img *image.Gray, s string, face font.Face, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{0x00}),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// wrapText splits text into lines that fit within maxWidth pixels. A single
// word wider than maxWidth gets a line of its own.
func wrapText(text string, face font.Face, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{text}
	}
	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		trial := current + " " + word
		if font.MeasureString(face, trial).Ceil() <= maxWidth {
			current = trial
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}

// loadFace parses an OpenType font and returns a Face at the given size in points.
func loadFace(ttf []byte, sizePt float64) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    sizePt,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
