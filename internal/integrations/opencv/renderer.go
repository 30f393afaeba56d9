package opencv

import (
	"fmt"
	"image"

	"facegate/internal/core/models"
	"facegate/internal/core/recognition"
	"facegate/internal/overlay"

	"gocv.io/x/gocv"
)

// Renderer zeichnet Gesichtsrahmen und Beschriftungen mit OpenCV
type Renderer struct {
	buffer *overlay.Buffer
}

// NewRenderer erstellt einen Renderer, der in buffer schreibt
func NewRenderer(buffer *overlay.Buffer) *Renderer {
	return &Renderer{buffer: buffer}
}

// Render dekodiert das Bild, zeichnet alle Gesichter und speichert das Ergebnis
func (r *Renderer) Render(frame models.Frame, faces []recognition.FaceResult) error {
	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("fehler beim Dekodieren des Bildes: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return fmt.Errorf("leeres Bild")
	}

	matches := 0
	for _, f := range faces {
		col := overlay.UnknownColor
		if f.Matched {
			col = overlay.MatchColor
			matches++
		}
		rect := image.Rect(f.Box.X, f.Box.Y, f.Box.X+f.Box.Width, f.Box.Y+f.Box.Height)
		gocv.Rectangle(&img, rect, col, 2)

		// Text oberhalb des Rahmens, bei Platzmangel innerhalb
		y := rect.Min.Y - 5
		if y < 12 {
			y = rect.Min.Y + 15
		}
		gocv.PutText(&img, f.Label, image.Point{X: rect.Min.X, Y: y}, gocv.FontHersheyPlain, 1.2, col, 2)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return fmt.Errorf("fehler beim Kodieren des Overlays: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	r.buffer.Add(frame.CapturedAt, data, len(faces), matches)
	return nil
}
