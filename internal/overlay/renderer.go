// Package overlay draws recognition results onto frames and keeps the most
// recent annotated frames for the dashboard.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"facegate/internal/core/models"
	"facegate/internal/core/recognition"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	// MatchColor frames faces of registered identities
	MatchColor = color.RGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff}
	// UnknownColor frames faces without a match
	UnknownColor = color.RGBA{R: 0xef, G: 0x44, B: 0x44, A: 0xff}
)

const strokeWidth = 2

// Renderer is a recognition.Renderer implemented with the image packages only
type Renderer struct {
	buffer  *Buffer
	quality int
}

// NewRenderer creates a Renderer writing into buffer
func NewRenderer(buffer *Buffer) *Renderer {
	return &Renderer{buffer: buffer, quality: 80}
}

// Render decodes the frame, draws one box and label per face and stores the JPEG
func (r *Renderer) Render(frame models.Frame, faces []recognition.FaceResult) error {
	src, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	matches := 0
	for _, f := range faces {
		col := UnknownColor
		if f.Matched {
			col = MatchColor
			matches++
		}
		rect := image.Rect(f.Box.X, f.Box.Y, f.Box.X+f.Box.Width, f.Box.Y+f.Box.Height).Intersect(canvas.Bounds())
		drawBox(canvas, rect, col)
		drawLabel(canvas, rect, f.Label, col)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: r.quality}); err != nil {
		return fmt.Errorf("failed to encode overlay: %w", err)
	}
	r.buffer.Add(frame.CapturedAt, buf.Bytes(), len(faces), matches)
	return nil
}

func drawBox(dst *image.RGBA, r image.Rectangle, col color.Color) {
	if r.Empty() {
		return
	}
	u := image.NewUniform(col)
	for i := 0; i < strokeWidth; i++ {
		draw.Draw(dst, image.Rect(r.Min.X, r.Min.Y+i, r.Max.X, r.Min.Y+i+1), u, image.Point{}, draw.Src)
		draw.Draw(dst, image.Rect(r.Min.X, r.Max.Y-i-1, r.Max.X, r.Max.Y-i), u, image.Point{}, draw.Src)
		draw.Draw(dst, image.Rect(r.Min.X+i, r.Min.Y, r.Min.X+i+1, r.Max.Y), u, image.Point{}, draw.Src)
		draw.Draw(dst, image.Rect(r.Max.X-i-1, r.Min.Y, r.Max.X-i, r.Max.Y), u, image.Point{}, draw.Src)
	}
}

// drawLabel writes text on a filled strip above the box, or inside it at the top edge
func drawLabel(dst *image.RGBA, box image.Rectangle, text string, col color.Color) {
	if text == "" || box.Empty() {
		return
	}
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 6
	height := face.Metrics().Height.Ceil() + 4

	top := box.Min.Y - height
	if top < dst.Bounds().Min.Y {
		top = box.Min.Y
	}
	strip := image.Rect(box.Min.X, top, box.Min.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, strip, image.NewUniform(col), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(strip.Min.X+3, strip.Min.Y+face.Metrics().Ascent.Ceil()+2),
	}
	d.DrawString(text)
}
