package app

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	cfg "imghost/src/configuration"
	"imghost/src/repository"
)

const (
	metadataWarning = "Image uploaded but metadata storage failed"

	defaultListConcurrency = 16
)

type (
	Options struct {
		// MetadataFailure is one of the configuration.MetadataFailure* policies.
		MetadataFailure string
		// VerifyContent sniffs uploaded bytes and rejects non-images.
		VerifyContent bool
		// MaxBytes caps the upload size; zero disables the check.
		MaxBytes int64
		// ListConcurrency bounds parallel metadata reads while listing.
		ListConcurrency int
		// Clock defaults to time.Now.
		Clock func() time.Time
	}

	// ImageService ties the object store and the metadata store together.
	// It keeps no state of its own.
	ImageService struct {
		objects ObjectStore
		records repository.MetadataStore
		opts    Options
		log     logrus.FieldLogger
	}

	UploadInput struct {
		Filename    string
		ContentType string
		Data        []byte
	}

	UploadResult struct {
		Success bool         `json:"success"`
		Image   *ImageRecord `json:"image"`
		Warning string       `json:"warning,omitempty"`
	}
)

// OptionsFromConfig maps the UPLOAD_ settings onto service options.
func OptionsFromConfig(config *cfg.Properties) Options {
	return Options{
		MetadataFailure: config.Upload.MetadataFailure,
		VerifyContent:   config.Upload.VerifyContent,
		MaxBytes:        config.Upload.MaxBytes,
	}
}

func NewImageService(objects ObjectStore, records repository.MetadataStore, opts Options, log logrus.FieldLogger) *ImageService {
	if opts.MetadataFailure == "" {
		opts.MetadataFailure = cfg.MetadataFailureFail
	}
	if opts.ListConcurrency <= 0 {
		opts.ListConcurrency = defaultListConcurrency
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &ImageService{
		objects: objects,
		records: records,
		opts:    opts,
		log:     log,
	}
}

// Upload stores the blob, then its metadata. The two writes are not atomic;
// see Options.MetadataFailure for what happens when the second one fails.
func (s *ImageService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if err := s.validateUpload(in); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	key := StorageKey(id, in.Filename)
	log := s.log.WithFields(logrus.Fields{"id": id, "key": key})

	size := int64(len(in.Data))
	if err := s.objects.UploadFile(ctx, key, bytes.NewReader(in.Data), size, in.ContentType); err != nil {
		log.WithError(err).Error("object upload failed")
		return nil, storeError("Failed to upload image", err)
	}

	record := &ImageRecord{
		ID:         id,
		Filename:   in.Filename,
		URL:        s.objects.PublicURL(key),
		Size:       size,
		Type:       in.ContentType,
		UploadedAt: formatUploadedAt(s.opts.Clock()),
	}
	data, err := record.ToJson()
	if err == nil {
		err = s.records.Put(ctx, RecordKey(id), data)
	}
	if err != nil {
		log.WithError(err).WithField("policy", s.opts.MetadataFailure).Error("metadata write failed")
		switch s.opts.MetadataFailure {
		case cfg.MetadataFailureWarn:
			return &UploadResult{Success: true, Image: record, Warning: metadataWarning}, nil
		case cfg.MetadataFailureRollback:
			if rmErr := s.objects.DeleteFile(ctx, key); rmErr != nil {
				log.WithError(rmErr).Warn("rollback of orphan object failed")
			}
		}
		return nil, storeError("Failed to store image metadata", err)
	}

	log.WithField("size", size).Info("image uploaded")
	return &UploadResult{Success: true, Image: record}, nil
}

func (s *ImageService) validateUpload(in UploadInput) error {
	if !strings.HasPrefix(in.ContentType, "image/") {
		return invalidInput("File must be an image")
	}
	if s.opts.MaxBytes > 0 && int64(len(in.Data)) > s.opts.MaxBytes {
		return invalidInput("File exceeds %d bytes", s.opts.MaxBytes)
	}
	if s.opts.VerifyContent {
		detected := mimetype.Detect(in.Data)
		if !strings.HasPrefix(detected.String(), "image/") {
			return invalidInput("File content is %s, not an image", detected.String())
		}
	}
	return nil
}

// List returns every readable record, newest first. Records that fail to
// decode or disappear while listing are skipped.
func (s *ImageService) List(ctx context.Context) ([]ImageRecord, error) {
	keys, err := s.records.List(ctx, RecordPrefix)
	if err != nil {
		return nil, storeError("Failed to fetch images", err)
	}

	found := make([]*ImageRecord, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ListConcurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			data, err := s.records.Get(gctx, key)
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			record, err := ImageRecordFromJson(data)
			if err != nil {
				s.log.WithError(err).WithField("key", key).Warn("skipping malformed image record")
				return nil
			}
			found[i] = record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeError("Failed to fetch images", err)
	}

	images := make([]ImageRecord, 0, len(found))
	for _, record := range found {
		if record != nil {
			images = append(images, *record)
		}
	}
	SortNewestFirst(images)
	return images, nil
}

// SortNewestFirst orders records by upload time, most recent first. Records
// with an unparseable timestamp go last; ties are broken by id.
func SortNewestFirst(images []ImageRecord) {
	sort.SliceStable(images, func(i, j int) bool {
		ti, _ := images[i].UploadedTime()
		tj, _ := images[j].UploadedTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return images[i].ID < images[j].ID
	})
}

// Delete removes the blob and then the record for id.
func (s *ImageService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalidInput("Image ID is required")
	}
	log := s.log.WithField("id", id)

	data, err := s.records.Get(ctx, RecordKey(id))
	if errors.Is(err, repository.ErrNotFound) {
		return NewError(KindNotFound, "Image not found", nil)
	}
	if err != nil {
		return storeError("Failed to delete image", err)
	}

	record, err := ImageRecordFromJson(data)
	if err != nil {
		// the blob key is unknown without the recorded url
		log.WithError(err).Error("malformed image record")
		return storeError("Failed to delete image", err)
	}
	key := record.StorageKey()

	if err := s.objects.DeleteFile(ctx, key); err != nil {
		return storeError("Failed to delete image", err)
	}
	if err := s.records.Delete(ctx, RecordKey(id)); err != nil {
		log.WithError(err).WithField("key", key).Error("object removed but metadata delete failed")
		return storeError("Failed to delete image", err)
	}
	log.WithField("key", key).Info("image deleted")
	return nil
}

// Ping checks that both stores answer.
func (s *ImageService) Ping(ctx context.Context) error {
	return errors.Join(s.records.Ping(ctx), s.objects.Ping(ctx))
}

// storeError classifies a store failure. Network-level errors mean the store
// could not be reached at all.
func storeError(message string, err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewError(KindStoreUnavailable, message, err)
	}
	return NewError(KindStoreOperationFailed, message, err)
}
