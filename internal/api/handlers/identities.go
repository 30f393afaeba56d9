package handlers

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"facegate/internal/api/middleware"
	"facegate/internal/core/models"
	"facegate/internal/core/registration"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// identityView ist eine Identität ohne Deskriptor
type identityView struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	ImageURL         string     `json:"imageUrl"`
	RegisteredAt     time.Time  `json:"registeredAt"`
	LastSeen         *time.Time `json:"lastSeen,omitempty"`
	RecognitionCount int        `json:"recognitionCount"`
}

func newIdentityView(i models.Identity) identityView {
	return identityView{
		ID:               i.ID,
		Name:             i.Name,
		Email:            i.Email,
		ImageURL:         i.ImageURL,
		RegisteredAt:     i.RegisteredAt,
		LastSeen:         i.LastSeen,
		RecognitionCount: i.RecognitionCount,
	}
}

// ListIdentities listet alle Identitäten, optional gefiltert über ?q=
func (h *APIHandler) ListIdentities(c *gin.Context) {
	q := strings.ToLower(strings.TrimSpace(c.Query("q")))

	snapshot := h.Gallery.Snapshot()
	views := make([]identityView, 0, len(snapshot))
	for _, identity := range snapshot {
		if q != "" &&
			!strings.Contains(strings.ToLower(identity.Name), q) &&
			!strings.Contains(strings.ToLower(identity.Email), q) {
			continue
		}
		views = append(views, newIdentityView(identity))
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].RegisteredAt.After(views[j].RegisteredAt)
	})

	c.JSON(http.StatusOK, gin.H{
		"count":      len(views),
		"identities": views,
	})
}

// GetIdentity gibt eine einzelne Identität zurück
func (h *APIHandler) GetIdentity(c *gin.Context) {
	identity, ok := h.Gallery.Get(c.Param("id"))
	if !ok {
		respondError(c, fmt.Errorf("identity %q: %w", c.Param("id"), models.ErrNotFound))
		return
	}
	c.JSON(http.StatusOK, newIdentityView(identity))
}

// CreateIdentity registriert eine Identität aus einem hochgeladenen Bild
func (h *APIHandler) CreateIdentity(c *gin.Context) {
	req := registration.Request{
		Name:     c.PostForm("name"),
		Email:    c.PostForm("email"),
		ImageURL: c.PostForm("imageUrl"),
	}

	if fh, err := c.FormFile("image"); err == nil {
		f, err := fh.Open()
		if err != nil {
			respondError(c, fmt.Errorf("%w: image upload unreadable: %v", models.ErrValidation, err))
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, MaxUploadSize+1))
		f.Close()
		if err != nil {
			respondError(c, fmt.Errorf("%w: image upload unreadable: %v", models.ErrValidation, err))
			return
		}
		if len(data) > MaxUploadSize {
			respondError(c, fmt.Errorf("%w: image larger than %d bytes", models.ErrValidation, MaxUploadSize))
			return
		}
		req.Image = data
	}

	identity, err := h.Registrar.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.Hub != nil {
		h.Hub.BroadcastIdentity(*identity)
	}
	c.JSON(http.StatusCreated, gin.H{
		"identity": newIdentityView(*identity),
		"message":  middleware.T(c, models.ReasonRegistered, map[string]interface{}{"Name": identity.Name}),
	})
}

// DeleteIdentity entfernt eine Identität samt ihrer Erkennungsereignisse
func (h *APIHandler) DeleteIdentity(c *gin.Context) {
	id := c.Param("id")
	if err := h.Gallery.Remove(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	if h.Events != nil {
		if err := h.Events.DeleteByIdentity(c.Request.Context(), id); err != nil {
			log.WithError(err).WithField("identity", id).Warn("Failed to delete recognition events of removed identity")
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"message": middleware.T(c, "identity_deleted", nil),
	})
}

// ClearIdentities entfernt alle Identitäten und den Erkennungsverlauf
func (h *APIHandler) ClearIdentities(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.Gallery.Clear(ctx); err != nil {
		respondError(c, err)
		return
	}

	var removed int64
	if h.Events != nil {
		n, err := h.Events.DeleteAll(ctx)
		if err != nil {
			log.WithError(err).Warn("Failed to delete recognition events after clearing the gallery")
		}
		removed = n
	}
	c.JSON(http.StatusOK, gin.H{
		"events":  removed,
		"message": middleware.T(c, "gallery_cleared", nil),
	})
}
