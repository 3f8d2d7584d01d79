package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/fofxtools/api-cache/internal/config"
)

type S3Archiver struct {
	uploader *s3manager.Uploader
	cfg      *config.Config
	log      *logrus.Entry
}

func NewS3Archiver(logger *logrus.Logger, cfg *config.Config) *S3Archiver {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.S3Region),
		Credentials:      credentials.NewStaticCredentials(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	}

	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
	}

	sess := session.Must(session.NewSession(awsConfig))

	return &S3Archiver{
		uploader: s3manager.NewUploader(sess),
		cfg:      cfg,
		log:      logger.WithField("component", "s3_archiver"),
	}
}

// Archive uploads one response body under <client>/<key>. Bodies are stored
// decompressed; the object key is stable, so re-archiving the same row is an
// overwrite, not a duplicate.
func (a *S3Archiver) Archive(ctx context.Context, client, key string, body []byte) error {
	objectKey := fmt.Sprintf("%s/%s", client, key)

	_, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.cfg.S3Bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]*string{
			"Api-Cache-Client": aws.String(client),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"client": client,
		"key":    key,
		"bytes":  len(body),
	}).Debug("Archived response body")
	return nil
}
