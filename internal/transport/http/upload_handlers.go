package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/majlischat/majlis-server/internal/blob"
	"github.com/majlischat/majlis-server/internal/core"
)

// maxUploadBytes caps a single attachment.
const maxUploadBytes = 20 << 20 // 20 MiB

// UploadHandlers accepts chat attachments and hands them to the room.
type UploadHandlers struct {
	blobs *blob.Store
	hub   *core.Hub
	log   *zerolog.Logger
}

// NewUploadHandlers creates a new upload handlers instance.
func NewUploadHandlers(blobs *blob.Store, hub *core.Hub, logger *zerolog.Logger) *UploadHandlers {
	return &UploadHandlers{blobs: blobs, hub: hub, log: logger}
}

// UploadResponse describes a stored attachment.
type UploadResponse struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Upload stores one multipart attachment on behalf of a connected
// session and broadcasts it to the room. The session id comes from the
// user_id form field; the hub checks the upload capability.
// POST /upload
func (h *UploadHandlers) Upload(c *gin.Context) {
	userID := c.PostForm("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user_id is required"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "a file is required"})
		return
	}
	if header.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file too large"})
		return
	}
	if !blob.Allowed(header.Filename) {
		c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{Error: core.ErrCodeUnsupportedFile})
		return
	}

	file, err := header.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to open multipart file")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	defer file.Close()

	stored, err := h.blobs.Put(header.Filename, file)
	if err != nil {
		if errors.Is(err, blob.ErrUnsupportedType) {
			c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{Error: core.ErrCodeUnsupportedFile})
			return
		}
		h.log.Error().Err(err).Str("filename", header.Filename).Msg("failed to store upload")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if err := h.hub.ShareAttachment(c.Request.Context(), userID, stored.URL, stored.OriginalName); err != nil {
		// Refused uploads leave no file behind.
		if rmErr := h.blobs.Remove(stored.DiskName); rmErr != nil {
			h.log.Warn().Err(rmErr).Str("disk_name", stored.DiskName).Msg("failed to remove refused upload")
		}
		var cerr *core.CoreError
		if errors.As(err, &cerr) {
			switch cerr.Code {
			case core.ErrCodeUnknownUser:
				c.JSON(http.StatusNotFound, ErrorResponse{Error: cerr.Message})
			case core.ErrCodeUnauthorized:
				c.JSON(http.StatusForbidden, ErrorResponse{Error: cerr.Message})
			default:
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: cerr.Message})
			}
			return
		}
		h.log.Error().Err(err).Msg("failed to share attachment")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("user_id", userID).Str("filename", stored.OriginalName).Int64("size", stored.SizeBytes).Msg("attachment uploaded")
	c.JSON(http.StatusCreated, UploadResponse{URL: stored.URL, Filename: stored.OriginalName, Size: stored.SizeBytes})
}
