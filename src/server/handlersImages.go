package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	app "imghost/src/app"
)

const (
	imageFormField = "image"

	// room for multipart boundaries and part headers on top of the file
	multipartOverhead = 1 << 20
)

type ImageHandler struct {
	images   *app.ImageService
	maxBytes int64
	log      logrus.FieldLogger
}

func NewImageHandler(images *app.ImageService, maxBytes int64, log logrus.FieldLogger) *ImageHandler {
	return &ImageHandler{
		images:   images,
		maxBytes: maxBytes,
		log:      log,
	}
}

func (h *ImageHandler) PostImage(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	}

	fileHeader, err := c.FormFile(imageFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrMissingFile):
			c.String(http.StatusBadRequest, "No image file provided")
		case errors.As(err, &tooLarge):
			c.String(http.StatusBadRequest, fmt.Sprintf("File exceeds %d bytes", h.maxBytes))
		default:
			c.String(http.StatusBadRequest, fmt.Sprintf("Failed to parse form data: %v", err))
		}
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("Failed to process image: %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.String(http.StatusInternalServerError, fmt.Sprintf("Failed to process image: %v", err))
		return
	}

	result, err := h.images.Upload(c.Request.Context(), app.UploadInput{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ImageHandler) GetImageList(c *gin.Context) {
	images, err := h.images.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, images)
}

func (h *ImageHandler) DeleteImage(c *gin.Context) {
	if err := h.images.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail writes err as a plain-text body with the status its kind maps to.
func (h *ImageHandler) fail(c *gin.Context, err error) {
	status := statusFor(app.KindOf(err))
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.String(status, err.Error())
}

func statusFor(kind app.ErrorKind) int {
	switch kind {
	case app.KindInvalidInput:
		return http.StatusBadRequest
	case app.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
