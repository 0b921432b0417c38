package app

import (
	"encoding/json"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"
)

const (
	// RecordPrefix is prepended to the image id to form the metadata key.
	RecordPrefix = "image:"

	defaultExtension = "jpg"

	// uploadedAtLayout matches the ISO-8601 form browsers produce with
	// Date.prototype.toISOString.
	uploadedAtLayout = "2006-01-02T15:04:05.000Z07:00"
)

var errMissingID = errors.New("image record has no id")

// ImageRecord is the metadata persisted for one uploaded image.
type ImageRecord struct {
	// Unique identifier (UUID v4).
	ID string `json:"id"`

	// Name of the file as sent by the client.
	Filename string `json:"filename"`

	// Public address of the stored blob.
	URL string `json:"url"`

	// Size of the image in bytes.
	Size int64 `json:"size"`

	// Declared MIME type (e.g. "image/png").
	Type string `json:"type"`

	// Upload time, UTC, millisecond precision.
	UploadedAt string `json:"uploadedAt"`
}

func RecordKey(id string) string {
	return RecordPrefix + id
}

// StorageKey builds the object key for an id and the client's filename.
func StorageKey(id, filename string) string {
	return id + "." + extensionOf(filename)
}

func extensionOf(filename string) string {
	ext := strings.TrimPrefix(path.Ext(path.Base(filename)), ".")
	if ext == "" {
		return defaultExtension
	}
	return ext
}

// StorageKey recovers the object key from the recorded URL: its last path
// segment, or "{id}.jpg" when the URL has none.
func (r *ImageRecord) StorageKey() string {
	fallback := r.ID + "." + defaultExtension
	if r.URL == "" {
		return fallback
	}
	p := r.URL
	if u, err := url.Parse(r.URL); err == nil {
		p = u.Path
	}
	segment := path.Base(p)
	if segment == "" || segment == "." || segment == "/" {
		return fallback
	}
	return segment
}

// UploadedTime parses UploadedAt; ok is false when the value is malformed.
func (r *ImageRecord) UploadedTime() (t time.Time, ok bool) {
	t, err := time.Parse(time.RFC3339Nano, r.UploadedAt)
	return t, err == nil
}

func formatUploadedAt(t time.Time) string {
	return t.UTC().Format(uploadedAtLayout)
}

func (r *ImageRecord) ToJson() ([]byte, error) {
	return json.Marshal(r)
}

func ImageRecordFromJson(data []byte) (*ImageRecord, error) {
	record := &ImageRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, err
	}
	if record.ID == "" {
		return nil, errMissingID
	}
	return record, nil
}
