package overlay

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Image is one annotated frame
type Image struct {
	ID        uint64    // fortlaufende Nummer
	Timestamp time.Time // Zeitstempel des Frames
	Data      []byte    // JPEG mit eingezeichneten Gesichtern
	Faces     int       // Anzahl erkannter Gesichter
	Matches   int       // davon erkannte Identitäten
}

// Buffer keeps the most recent annotated frames in memory
type Buffer struct {
	mu        sync.RWMutex
	images    []*Image // oldest first
	maxImages int
	nextID    uint64
}

// NewBuffer creates a Buffer holding up to maxImages frames
func NewBuffer(maxImages int) *Buffer {
	if maxImages <= 0 {
		maxImages = 10
	}
	return &Buffer{
		images:    make([]*Image, 0, maxImages),
		maxImages: maxImages,
	}
}

// Add stores a new annotated frame and evicts the oldest one if full
func (b *Buffer) Add(ts time.Time, data []byte, faces, matches int) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.images = append(b.images, &Image{
		ID:        b.nextID,
		Timestamp: ts,
		Data:      data,
		Faces:     faces,
		Matches:   matches,
	})
	if len(b.images) > b.maxImages {
		b.images[0] = nil
		b.images = b.images[1:]
	}
	return b.nextID
}

// Latest returns the newest frame
func (b *Buffer) Latest() (*Image, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.images) == 0 {
		return nil, false
	}
	return b.images[len(b.images)-1], true
}

// List returns up to count frames, newest first
func (b *Buffer) List(count int) []*Image {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if count <= 0 || count > len(b.images) {
		count = len(b.images)
	}
	out := make([]*Image, 0, count)
	for i := len(b.images) - 1; i >= len(b.images)-count; i-- {
		out = append(out, b.images[i])
	}
	return out
}

// Get returns the frame with the given id
func (b *Buffer) Get(id uint64) (*Image, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, img := range b.images {
		if img.ID == id {
			return img, true
		}
	}
	return nil, false
}

// RegisterRoutes registriert die API-Routen für das Overlay
func (b *Buffer) RegisterRoutes(router gin.IRouter) {
	router.GET("/api/overlay.jpg", b.handleLatest)
	router.GET("/api/overlay/frames", b.handleList)
	router.GET("/api/overlay/frames/:id", b.handleGet)
	log.Debug("Overlay routes registered: /api/overlay.jpg, /api/overlay/frames, /api/overlay/frames/:id")
}

func (b *Buffer) handleLatest(c *gin.Context) {
	img, ok := b.Latest()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	writeJPEG(c, img.Data)
}

func (b *Buffer) handleList(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "10"))
	if err != nil {
		count = 10
	}

	// Nur die Metadaten zurückgeben, nicht die Bilddaten
	type imageMetadata struct {
		ID        uint64    `json:"id"`
		Timestamp time.Time `json:"timestamp"`
		Faces     int       `json:"faces"`
		Matches   int       `json:"matches"`
		URL       string    `json:"url"`
	}
	images := b.List(count)
	metadata := make([]imageMetadata, len(images))
	for i, img := range images {
		metadata[i] = imageMetadata{
			ID:        img.ID,
			Timestamp: img.Timestamp,
			Faces:     img.Faces,
			Matches:   img.Matches,
			URL:       "/api/overlay/frames/" + strconv.FormatUint(img.ID, 10),
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(metadata),
		"images": metadata,
	})
}

func (b *Buffer) handleGet(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input"})
		return
	}
	img, ok := b.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	writeJPEG(c, img.Data)
}

func writeJPEG(c *gin.Context, data []byte) {
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Data(http.StatusOK, "image/jpeg", data)
}
