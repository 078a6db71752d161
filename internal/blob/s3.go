package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Provider stores attachments in an S3-compatible bucket.
type S3Provider struct {
	cfg    S3Config
	client *s3.Client
}

func NewS3Provider(cfg S3Config) *S3Provider {
	return &S3Provider{cfg: cfg}
}

func (p *S3Provider) getClient(ctx context.Context) (*s3.Client, error) {
	if p.client != nil {
		return p.client, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(p.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			p.cfg.AccessKey,
			p.cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	p.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if p.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(p.cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	return p.client, nil
}

// storageKey spreads objects by date so bucket listings stay navigable.
func storageKey(dir, name string) string {
	d := time.Now()
	return path.Join(dir, fmt.Sprintf("%d/%d/%d", d.Year(), d.Month(), d.Day()),
		uuid.NewString(), name)
}

func (p *S3Provider) UploadFile(ctx context.Context, data []byte, name, dir string) (string, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return "", err
	}

	key := storageKey(dir, name)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return key, nil
}

func (p *S3Provider) DownloadFile(ctx context.Context, cloudID string) ([]byte, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(cloudID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", cloudID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", cloudID, err)
	}
	return data, nil
}

func (p *S3Provider) DeleteFile(ctx context.Context, cloudID string) error {
	client, err := p.getClient(ctx)
	if err != nil {
		return err
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(cloudID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", cloudID, err)
	}
	return nil
}

func (p *S3Provider) ListFiles(ctx context.Context, dir string) ([]FileInfo, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(dir, "/")
	if prefix != "" {
		prefix += "/"
	}

	var files []FileInfo
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, obj := range page.Contents {
			info := FileInfo{
				CloudID: aws.ToString(obj.Key),
				Name:    path.Base(aws.ToString(obj.Key)),
				Size:    aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.Modified = *obj.LastModified
			}
			files = append(files, info)
		}
	}
	return files, nil
}
