package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/config"
)

// ReportArchive stores run reports and hands out temporary download links.
type ReportArchive interface {
	Archive(ctx context.Context, runID string, at time.Time, contentType string, data []byte) (string, error)
}

// ObjectPutter is the subset of the S3 client the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// GetPresigner is the subset of the S3 presign client the archive uses.
type GetPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Archive implements ReportArchive on an S3 bucket.
type S3Archive struct {
	bucket    string
	linkTTL   time.Duration
	client    ObjectPutter
	presigner GetPresigner
}

// NewS3Archive builds an archive from config. It returns nil, nil when no
// bucket is configured so callers can skip archiving.
func NewS3Archive(cfg *config.Config) (*S3Archive, error) {
	if cfg.AwsS3Bucket == "" {
		return nil, nil
	}
	awsCfg, err := aws_config.LoadDefaultConfig(context.TODO(),
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return NewS3ArchiveWithClient(cfg.AwsS3Bucket, cfg.ReportURLTTL, client, s3.NewPresignClient(client)), nil
}

func NewS3ArchiveWithClient(bucket string, linkTTL time.Duration, client ObjectPutter, presigner GetPresigner) *S3Archive {
	return &S3Archive{bucket: bucket, linkTTL: linkTTL, client: client, presigner: presigner}
}

// ReportKey is the object key of a run report: reports/<yyyy>/<mm>/<runID>.csv.
func ReportKey(runID string, at time.Time) string {
	return fmt.Sprintf("reports/%04d/%02d/%s.csv", at.Year(), int(at.Month()), runID)
}

// Archive uploads data and returns a presigned GET URL for it.
func (a *S3Archive) Archive(ctx context.Context, runID string, at time.Time, contentType string, data []byte) (string, error) {
	key := ReportKey(runID, at.UTC())

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report %s: %w", key, err)
	}

	req, err := a.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.linkTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign report %s: %w", key, err)
	}

	log.WithField("key", key).Debug("Report archived")
	return req.URL, nil
}
