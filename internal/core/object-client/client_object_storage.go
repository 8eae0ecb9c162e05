package objectclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	cfg "github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/logger"
)

// S3 accepts at most this many keys per DeleteObjects call.
const deleteBatchSize = 1000

type S3Client struct {
	api      s3API
	uploader *manager.Uploader
	bucket   string
	log      zerolog.Logger
}

var _ core.ObjectClient = (*S3Client)(nil)

// NewS3Client builds a client bound to cfg.BucketName. Static keys are used when
// both are set, otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg *cfg.Config, log zerolog.Logger) (*S3Client, error) {
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AwsRegion)}
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	c := newS3Client(s3.NewFromConfig(awsCfg), cfg.BucketName, log)
	c.log.Info().Str("bucket", cfg.BucketName).Str("region", cfg.AwsRegion).Msg("object storage ready")
	return c, nil
}

func newS3Client(api s3API, bucket string, log zerolog.Logger) *S3Client {
	return &S3Client{
		api:      api,
		uploader: manager.NewUploader(api),
		bucket:   bucket,
		log:      logger.Component(log, "object-storage"),
	}
}

func (c *S3Client) UploadFile(ctx context.Context, key string, data []byte, contentType string) error {
	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := c.uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", key, err)
	}
	c.log.Debug().Str("key", key).Int("bytes", len(data)).Msg("uploaded")
	return nil
}

// GetFile downloads key in full. Failures are *core.DownloadError carrying the HTTP status.
func (c *S3Client) GetFile(ctx context.Context, key string) ([]byte, error) {
	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := c.api.GetObject(ctxGet, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &core.DownloadError{Status: downloadStatus(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.DownloadError{Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// RemoveFiles deletes keys in batches. Missing keys are not an error.
func (c *S3Client) RemoveFiles(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}

		ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
		out, err := c.api.DeleteObjects(ctxDel, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		cancel()
		if err != nil {
			return fmt.Errorf("s3 delete failed: %w", err)
		}

		var errs []error
		for _, e := range out.Errors {
			errs = append(errs, fmt.Errorf("%s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("s3 delete failed: %w", err)
		}
	}
	return nil
}

func downloadStatus(err error) int {
	var re *awshttp.ResponseError
	if errors.As(err, &re) && re.ResponseError != nil && re.Response != nil {
		return re.HTTPStatusCode()
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return http.StatusNotFound
	}
	return 0
}
