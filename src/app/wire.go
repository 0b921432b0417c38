package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	cfg "imghost/src/configuration"
	"imghost/src/repository"
)

// NewImageServiceFromConfig connects both stores described by config. The
// returned close function releases the metadata store.
func NewImageServiceFromConfig(ctx context.Context, config *cfg.Properties, log logrus.FieldLogger) (*ImageService, func() error, error) {
	objects, err := NewMinioS3Client(
		config.S3.Host,
		config.S3.AccessKey,
		config.S3.SecretKey,
		config.S3.Region,
		config.S3.Bucket,
		config.S3.PublicBaseURL(),
		config.S3.UseSSL,
		log)
	if err != nil {
		return nil, nil, err
	}
	if config.S3.CreateBucket {
		if err := objects.EnsureBucket(ctx, config.S3.Region); err != nil {
			return nil, nil, err
		}
	}

	records, err := repository.NewMetadataStore(config)
	if err != nil {
		return nil, nil, fmt.Errorf("can not open metadata store: %w", err)
	}
	log.WithField("driver", config.Metadata.Driver).Info("metadata store opened")

	return NewImageService(objects, records, OptionsFromConfig(config), log), records.Close, nil
}
