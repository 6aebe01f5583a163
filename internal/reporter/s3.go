package reporter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dreamup/visionclick/internal/agent"
)

// ObjectPutter is the part of the S3 client the uploader needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader handles uploading run artifacts to S3
type S3Uploader struct {
	client     ObjectPutter
	bucketName string
	region     string
}

// NewS3Uploader creates a new S3 uploader from the default AWS config chain
func NewS3Uploader(ctx context.Context, bucketName, region string) (*S3Uploader, error) {
	if bucketName == "" {
		bucketName = os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			return nil, fmt.Errorf("no S3 bucket configured")
		}
	}

	if region == "" {
		region = os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1"
		}
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3UploaderWithClient(s3.NewFromConfig(cfg), bucketName, region), nil
}

// NewS3UploaderWithClient creates an uploader around an existing client
func NewS3UploaderWithClient(client ObjectPutter, bucketName, region string) *S3Uploader {
	return &S3Uploader{
		client:     client,
		bucketName: bucketName,
		region:     region,
	}
}

// UploadBytes uploads data under s3Key and returns its URL
func (u *S3Uploader) UploadBytes(ctx context.Context, data []byte, s3Key, contentType string) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucketName),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return u.objectURL(s3Key), nil
}

// UploadFile uploads a file to S3
func (u *S3Uploader) UploadFile(ctx context.Context, path, s3Key string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return u.UploadBytes(ctx, data, s3Key, contentTypeFor(path))
}

// UploadScreenshot uploads the image that was sent to the model
func (u *S3Uploader) UploadScreenshot(ctx context.Context, shot *agent.Screenshot, reportID string) (string, error) {
	ext := shot.Format
	if ext == "" {
		ext = "png"
	}
	s3Key := fmt.Sprintf("runs/%s/screenshot_%s.%s", reportID, shot.Timestamp.Format("20060102_150405"), ext)
	return u.UploadBytes(ctx, shot.Data, s3Key, shot.MIMEType())
}

// UploadReport uploads a report JSON file
func (u *S3Uploader) UploadReport(ctx context.Context, reportPath, reportID string) (string, error) {
	return u.UploadFile(ctx, reportPath, fmt.Sprintf("runs/%s/report.json", reportID))
}

// UploadRunArtifacts uploads the screenshot (if any) and the report, recording the
// screenshot URL in the report before it is uploaded.
func (u *S3Uploader) UploadRunArtifacts(ctx context.Context, report *Report, shot *agent.Screenshot) (string, error) {
	if shot != nil && len(shot.Data) > 0 {
		s3URL, err := u.UploadScreenshot(ctx, shot, report.ReportID)
		if err != nil {
			return "", fmt.Errorf("failed to upload screenshot: %w", err)
		}
		if report.Screenshot != nil {
			report.Screenshot.S3URL = s3URL
		}
	}

	reportPath, err := report.SaveToTemp()
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	defer os.Remove(reportPath)

	reportURL, err := u.UploadReport(ctx, reportPath, report.ReportID)
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}
	return reportURL, nil
}

func (u *S3Uploader) objectURL(s3Key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucketName, u.region, s3Key)
}

// contentTypeFor determines content type from file extension
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
