// Package render draws reply text onto PNG images.
package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/crystaldolphin/outpipe/internal/schema"
)

// TextImageRenderer renders plain text into PNG files under a cache directory.
// It implements schema.ImageRenderer.
type TextImageRenderer struct {
	dir string

	mu   sync.Mutex // font.Face is not safe for concurrent use
	face font.Face
}

var _ schema.ImageRenderer = (*TextImageRenderer)(nil)

// NewTextImageRenderer loads the font at fontPath (Go Regular when empty).
func NewTextImageRenderer(dir, fontPath string, size float64) (*TextImageRenderer, error) {
	data := goregular.TTF
	if fontPath != "" {
		b, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("read font %s: %w", fontPath, err)
		}
		data = b
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	return &TextImageRenderer{dir: dir, face: face}, nil
}

// Dir returns the cache directory.
func (r *TextImageRenderer) Dir() string { return r.dir }

// RenderTextToImage writes text as a PNG and returns its absolute path.
func (r *TextImageRenderer) RenderTextToImage(ctx context.Context, text string, style schema.RenderStyle) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	bg, err := ParseHexColor(style.Background)
	if err != nil {
		return "", fmt.Errorf("background: %w", err)
	}
	fg, err := ParseHexColor(style.Foreground)
	if err != nil {
		return "", fmt.Errorf("foreground: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inner := style.Width - 2*style.Padding
	if inner <= 0 {
		return "", fmt.Errorf("width %d leaves no room for padding %d", style.Width, style.Padding)
	}
	lines := wrapLines(r.face, text, fixed.I(inner))
	height := 2*style.Padding + len(lines)*style.LineHeight

	img := image.NewRGBA(image.Rect(0, 0, style.Width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{Dst: img, Src: image.NewUniform(fg), Face: r.face}
	ascent := r.face.Metrics().Ascent.Ceil()
	for i, line := range lines {
		d.Dot = fixed.P(style.Padding, style.Padding+i*style.LineHeight+ascent)
		d.DrawString(line)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	path := filepath.Join(r.dir, uuid.NewString()+".png")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create image: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close image: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// wrapLines breaks text at newlines and wherever a line would exceed limit.
func wrapLines(face font.Face, text string, limit fixed.Int26_6) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var cur []rune
		for _, ch := range para {
			next := append(cur, ch)
			if len(cur) > 0 && font.MeasureString(face, string(next)) > limit {
				lines = append(lines, string(cur))
				cur = []rune{ch}
				continue
			}
			cur = next
		}
		lines = append(lines, string(cur))
	}
	return lines
}

// ParseHexColor parses "#rgb" or "#rrggbb".
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// CleanDir empties dir, recreating it.
func CleanDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
