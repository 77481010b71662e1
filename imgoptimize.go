// Image attachment optimization: downscaling for disk output and JPEG
// re-encoding for e-readers.
package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

func humanSize(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	f := float64(n)
	for _, u := range units {
		if math.Abs(f) < 1024 {
			return fmt.Sprintf("%.1f%s", f, u)
		}
		f /= 1024
	}
	return fmt.Sprintf("%.1f%s", f, units[len(units)-1])
}

// resize downscales an image using BiLinear resampling.
func resize(src image.Image, dstW, dstH int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

func toGrayscale(src image.Image) *image.Gray {
	b := src.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return gray
}

// flattenAlpha composites src onto a white background.
func flattenAlpha(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, b, src, b.Min, draw.Over)
	return dst
}

func isAnimatedGIF(data []byte) bool {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return len(g.Image) > 1
}

type optimizeOpts struct {
	maxWidth  int // 0 keeps the original size
	quality   int // JPEG quality 1-100
	grayscale bool
}

// stats accumulates byte counts of optimized images for a summary line.
type stats struct {
	count          int
	originalTotal  int64
	optimizedTotal int64
}

func (st *stats) add(before, after int) {
	st.count++
	st.originalTotal += int64(before)
	st.optimizedTotal += int64(after)
}

func (st *stats) log() {
	if st.count == 0 {
		return
	}
	slog.Info("optimized images", "count", st.count,
		"before", humanSize(st.originalTotal), "after", humanSize(st.optimizedTotal))
}

// skipOptimize reports formats that are passed through untouched.
func skipOptimize(data []byte, mime string) bool {
	switch {
	case strings.Contains(mime, "svg"), strings.Contains(mime, "avif"):
		return true
	case strings.Contains(mime, "gif"):
		return isAnimatedGIF(data)
	}
	return false
}

// scaleToWidth downscales img to maxWidth keeping the aspect ratio. It never
// upscales.
func scaleToWidth(img image.Image, maxWidth int) (image.Image, bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxWidth <= 0 || w <= maxWidth {
		return img, false
	}
	newH := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
	return resize(img, maxWidth, max(newH, 1)), true
}

// downscaleImage shrinks an attachment wider than opts.maxWidth and encodes
// it again in its original format. ok is false when the data should be
// written unchanged.
func downscaleImage(data []byte, mime string, opts optimizeOpts, st *stats) ([]byte, bool) {
	if skipOptimize(data, mime) {
		return nil, false
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("could not decode image", "mime", mime, "err", err)
		return nil, false
	}
	img, scaled := scaleToWidth(img, opts.maxWidth)
	if !scaled && !opts.grayscale {
		return nil, false
	}
	if opts.grayscale {
		img = toGrayscale(img)
	}

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.quality})
	case "png":
		err = png.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		// No encoder for this format (webp); keep the original.
		return nil, false
	}
	if err != nil {
		slog.Warn("image encode failed", "format", format, "err", err)
		return nil, false
	}
	st.add(len(data), buf.Len())
	return buf.Bytes(), true
}

// optimizeForEreader re-encodes an image as JPEG, flattened onto white and
// optionally downscaled and grayscaled. It returns "" as MIME type when the
// image should be embedded as is.
func optimizeForEreader(data []byte, mime string, opts optimizeOpts, st *stats) ([]byte, string) {
	if skipOptimize(data, mime) {
		return nil, ""
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Warn("could not decode image", "mime", mime, "err", err)
		return nil, ""
	}
	img = flattenAlpha(img)
	img, _ = scaleToWidth(img, opts.maxWidth)
	if opts.grayscale {
		img = toGrayscale(img)
	}

	quality := opts.quality
	if quality <= 0 {
		quality = 60
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		slog.Warn("JPEG encode failed", "err", err)
		return nil, ""
	}
	st.add(len(data), buf.Len())
	return buf.Bytes(), "image/jpeg"
}
