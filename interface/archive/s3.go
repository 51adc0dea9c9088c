package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Public buckets of the NOAA Open Data Dissemination program
const (
	GOES16Bucket  = "noaa-goes16"
	GOES18Bucket  = "noaa-goes18"
	GOESAwsRegion = "us-east-1"
)

// S3Archive implements Client for an AWS S3 bucket
type S3Archive struct {
	client     *s3.Client
	downloader *manager.Downloader
	bucket     string
}

// NewS3Archive creates a client of an S3 bucket.
// If accessKeyId is empty, requests are anonymous (public buckets).
// The SDK retries are disabled: throttling is handled by the caller.
func NewS3Archive(ctx context.Context, bucket, region, accessKeyId, secretAccessKey string) (*S3Archive, error) {
	var creds aws.CredentialsProvider = aws.AnonymousCredentials{}
	if accessKeyId != "" {
		creds = credentials.NewStaticCredentialsProvider(accessKeyId, secretAccessKey, "")
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(creds),
		config.WithRegion(region),
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	)
	if err != nil {
		return nil, fmt.Errorf("NewS3Archive config.LoadDefaultConfig: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = 10 * 1024 * 1024 // 10MB per part
	})
	return &S3Archive{client: client, downloader: downloader, bucket: bucket}, nil
}

// Name implements Client
func (a *S3Archive) Name() string {
	return "s3://" + a.bucket
}

// List implements Client
func (a *S3Archive) List(ctx context.Context, prefix string) ([]Entry, error) {
	prefix = normalizePrefix(prefix)
	paginator := s3.NewListObjectsV2Paginator(a.client,
		&s3.ListObjectsV2Input{
			Bucket:    aws.String(a.bucket),
			Prefix:    aws.String(prefix),
			Delimiter: aws.String("/"),
		},
	)

	var entries []Entry
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3Archive.List[%s] paginator.NextPage: %w", prefix, err)
		}
		for _, p := range page.CommonPrefixes {
			entries = append(entries, Entry{Key: aws.ToString(p.Prefix), IsDir: true})
		}
		for _, object := range page.Contents {
			entries = append(entries, Entry{Key: aws.ToString(object.Key), Size: aws.ToInt64(object.Size)})
		}
	}
	return entries, nil
}

// Get implements Client
func (a *S3Archive) Get(ctx context.Context, keys []string, destDir string) error {
	for _, key := range keys {
		if err := a.downloadSingleObjectToFile(ctx, key, filepath.Join(destDir, path.Base(key))); err != nil {
			return fmt.Errorf("S3Archive.%w", err)
		}
	}
	return nil
}

func (a *S3Archive) downloadSingleObjectToFile(ctx context.Context, objectKey string, localPath string) error {
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("downloadSingleObjectToFile: failed to create file %s: %w", localPath, err)
	}
	defer file.Close()

	_, err = a.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		os.Remove(localPath)
		return fmt.Errorf("downloadSingleObjectToFile: failed to download object %s:%s: %w",
			a.bucket, objectKey, err)
	}

	return nil
}
