package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"imghost/src/repository"
)

type (
	ReconcileOptions struct {
		// Objects younger than Grace are never treated as orphans; their
		// metadata may still be on its way.
		Grace  time.Duration
		DryRun bool
	}

	ReconcileReport struct {
		DanglingRecords []string `json:"danglingRecords"`
		OrphanObjects   []string `json:"orphanObjects"`
		CorruptRecords  []string `json:"corruptRecords"`
		YoungObjects    []string `json:"youngObjects"`
		// ForeignObjects were not written by Upload and are never removed.
		ForeignObjects  []string `json:"foreignObjects"`
		DryRun          bool     `json:"dryRun"`
	}
)

// Reconcile repairs the two ways the stores drift apart: records whose blob
// is gone, and blobs nobody references. Running it twice is harmless.
//
// Records are listed before objects. Uploads write the blob before the
// record, so every record in the snapshot already has its blob in the object
// listing unless the blob was really removed.
func (s *ImageService) Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	report := &ReconcileReport{DryRun: opts.DryRun}
	log := s.log.WithField("dry_run", opts.DryRun)

	keys, err := s.records.List(ctx, RecordPrefix)
	if err != nil {
		return nil, storeError("Failed to list image records", err)
	}
	files, err := s.objects.ListFiles(ctx, "")
	if err != nil {
		return nil, storeError("Failed to list objects", err)
	}
	objects := make(map[string]ObjectInfo, len(files))
	for _, f := range files {
		objects[f.Key] = f
	}

	referenced := make(map[string]struct{}, len(keys))
	var protected []string
	for _, key := range keys {
		data, err := s.records.Get(ctx, key)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storeError("Failed to read image record", err)
		}
		record, err := ImageRecordFromJson(data)
		if err != nil {
			// The blob key is unknown, so keep every blob this id could own.
			report.CorruptRecords = append(report.CorruptRecords, key)
			protected = append(protected, strings.TrimPrefix(key, RecordPrefix)+".")
			log.WithField("key", key).Warn("corrupt image record left in place")
			continue
		}
		objectKey := record.StorageKey()
		referenced[objectKey] = struct{}{}
		if _, ok := objects[objectKey]; ok {
			continue
		}
		report.DanglingRecords = append(report.DanglingRecords, key)
		log.WithFields(logrus.Fields{"key": key, "object": objectKey}).Info("dangling image record")
		if !opts.DryRun {
			if err := s.records.Delete(ctx, key); err != nil {
				return nil, storeError("Failed to delete dangling record", err)
			}
		}
	}

	now := s.opts.Clock()
	for key, info := range objects {
		if _, ok := referenced[key]; ok || hasAnyPrefix(key, protected) {
			continue
		}
		if !isImageKey(key) {
			report.ForeignObjects = append(report.ForeignObjects, key)
			continue
		}
		if now.Sub(info.LastModified) < opts.Grace {
			report.YoungObjects = append(report.YoungObjects, key)
			continue
		}
		report.OrphanObjects = append(report.OrphanObjects, key)
		log.WithField("object", key).Info("orphan object")
		if !opts.DryRun {
			if err := s.objects.DeleteFile(ctx, key); err != nil {
				return nil, storeError("Failed to delete orphan object", err)
			}
		}
	}

	sort.Strings(report.DanglingRecords)
	sort.Strings(report.OrphanObjects)
	sort.Strings(report.CorruptRecords)
	sort.Strings(report.YoungObjects)
	sort.Strings(report.ForeignObjects)
	return report, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// isImageKey reports whether key has the "{uuid}.{ext}" shape Upload gives
// every blob.
func isImageKey(key string) bool {
	id, ext, ok := strings.Cut(key, ".")
	if !ok || ext == "" || strings.Contains(ext, "/") || len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
