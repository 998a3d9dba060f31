package httpapi

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/sachinfortude/RAMP-UP/internal/apperrors"
)

func (h *handler) startImport(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		h.writeError(c, apperrors.Validation("No file uploaded"))
		return
	}
	src, err := fh.Open()
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer src.Close()

	path, err := h.Jobs.SaveUpload(src, fh.Filename)
	if err != nil {
		h.writeError(c, err)
		return
	}
	handle, err := h.Jobs.StartImport(c.Request.Context(), path)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": handle.ID, "message": "Import process started"})
}

type filterRequest struct {
	MinAge *int `json:"minAge" binding:"required"`
	MaxAge *int `json:"maxAge" binding:"required"`
}

func (h *handler) startFilter(c *gin.Context) {
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, apperrors.Validation("minAge and maxAge are required"))
		return
	}
	handle, err := h.Jobs.StartFilter(c.Request.Context(), *req.MinAge, *req.MaxAge)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": handle.ID, "message": "Filter process started"})
}

func (h *handler) download(c *gin.Context) {
	path, err := h.Jobs.DownloadPath(c.Query("filePath"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

func (h *handler) jobStatus(c *gin.Context) {
	st, err := h.Status.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	// Pollers must not cache a job that can still move.
	if st.State.Terminal() {
		c.Header("Cache-Control", "private, max-age=60")
	} else {
		c.Header("Cache-Control", "no-store")
	}
	c.JSON(http.StatusOK, st)
}
