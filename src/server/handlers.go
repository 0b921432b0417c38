package server

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	app "imghost/src/app"
)

//go:embed templates/*.html
var templateFS embed.FS

const healthTimeout = 3 * time.Second

type AppHandler struct {
	images *app.ImageService
	title  string
}

type galleryPage struct {
	Title  string
	Images []app.ImageRecord
	Error  string
}

func NewHandler(images *app.ImageService, title string) *AppHandler {
	return &AppHandler{images: images, title: title}
}

func loadTemplates() *template.Template {
	funcs := template.FuncMap{
		"bytes": func(size int64) string {
			if size < 0 {
				size = 0
			}
			return humanize.Bytes(uint64(size))
		},
		"date": func(record app.ImageRecord) string {
			if t, ok := record.UploadedTime(); ok {
				return t.Format("Jan 2, 2006")
			}
			return record.UploadedAt
		},
		"ago": func(record app.ImageRecord) string {
			if t, ok := record.UploadedTime(); ok {
				return humanize.Time(t)
			}
			return ""
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

func (a *AppHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if err := a.images.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Gallery renders the upload form and every stored image.
func (a *AppHandler) Gallery(c *gin.Context) {
	page := galleryPage{Title: a.title}
	images, err := a.images.List(c.Request.Context())
	if err != nil {
		page.Error = err.Error()
		c.HTML(http.StatusInternalServerError, "gallery.html", page)
		return
	}
	page.Images = images
	c.HTML(http.StatusOK, "gallery.html", page)
}
