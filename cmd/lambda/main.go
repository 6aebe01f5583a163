package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dreamup/visionclick/internal/agent"
	"github.com/dreamup/visionclick/internal/observability"
	"github.com/dreamup/visionclick/internal/reporter"
	"go.uber.org/zap"
)

// LambdaEvent represents the input event for Lambda
type LambdaEvent struct {
	// Target is the element description to locate
	Target string `json:"target"`
	// ImageBase64 is the screenshot, base64 encoded
	ImageBase64 string `json:"image_base64"`
	// Model overrides the vision model (optional)
	Model string `json:"model,omitempty"`
	// UploadToS3 determines if the screenshot and report should be uploaded
	UploadToS3 bool `json:"upload_to_s3"`
	// BucketName for S3 uploads (optional, defaults to env var)
	BucketName string `json:"bucket_name,omitempty"`
	// Metadata for the run
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LambdaResponse represents the Lambda function output
type LambdaResponse struct {
	// Success indicates if a coordinate was resolved
	Success bool `json:"success"`
	// ReportID is the unique report identifier
	ReportID string `json:"report_id,omitempty"`
	// ReportURL is the S3 URL (if uploaded)
	ReportURL string `json:"report_url,omitempty"`
	// Coordinate is the resolved point
	Coordinate *agent.Coordinate `json:"coordinate,omitempty"`
	// Raw is the model answer
	Raw string `json:"raw,omitempty"`
	// Error message and category if failed
	Error         string              `json:"error,omitempty"`
	ErrorCategory agent.ErrorCategory `json:"error_category,omitempty"`
	// Duration in seconds
	Duration float64 `json:"duration_seconds,omitempty"`
}

var logger = observability.NewLogger(observability.LoggerConfig{
	Level:  os.Getenv("LOG_LEVEL"),
	Format: "json",
})

// HandleRequest is the Lambda handler function
func HandleRequest(ctx context.Context, event LambdaEvent) (LambdaResponse, error) {
	startTime := time.Now()

	if event.Target == "" {
		return LambdaResponse{Success: false, Error: "target is required"}, fmt.Errorf("missing target")
	}

	image, err := base64.StdEncoding.DecodeString(event.ImageBase64)
	if err != nil || len(image) == 0 {
		return LambdaResponse{Success: false, Error: "image_base64 must be a non-empty base64 image"},
			fmt.Errorf("invalid image_base64")
	}

	builder := newReportBuilder(event)
	result, err := locate(ctx, event, image)
	builder.SetResult(result)
	if err != nil {
		builder.SetError(err)
	}
	report := builder.Build()

	response := LambdaResponse{
		Success:  err == nil,
		ReportID: report.ReportID,
		Raw:      report.RawResponse,
		Duration: time.Since(startTime).Seconds(),
	}
	if err != nil {
		response.Error = err.Error()
		response.ErrorCategory = agent.CategoryOf(err)
	} else {
		coord := result.Coordinate()
		response.Coordinate = &coord
	}

	if event.UploadToS3 {
		var shot *agent.Screenshot
		if result != nil {
			shot = result.Screenshot
		}
		uploader, uerr := newUploader(ctx, event.BucketName)
		if uerr != nil {
			logger.Warn("S3 upload skipped", zap.Error(uerr))
		} else if url, uerr := uploader.UploadRunArtifacts(ctx, report, shot); uerr != nil {
			logger.Warn("S3 upload failed", zap.Error(uerr))
		} else {
			response.ReportURL = url
		}
	}

	// Failures are reported in the response, not as Lambda errors
	return response, nil
}

// newReportBuilder starts a report tagged with the Lambda environment; event
// metadata is applied last and may override those tags
func newReportBuilder(event LambdaEvent) *reporter.ReportBuilder {
	builder := reporter.NewReportBuilder(event.Target)
	builder.AddMetadata("lambda_execution", "true")
	builder.AddMetadata("lambda_region", os.Getenv("AWS_REGION"))
	for k, v := range event.Metadata {
		builder.AddMetadata(k, v)
	}
	return builder
}

// newUploader is swapped out in tests
var newUploader = func(ctx context.Context, bucket string) (*reporter.S3Uploader, error) {
	return reporter.NewS3Uploader(ctx, bucket, "")
}

func locate(ctx context.Context, event LambdaEvent, image []byte) (*agent.LocateResult, error) {
	resolver, err := agent.NewVisionResolver(agent.ResolverConfig{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   event.Model,
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
	}, logger)
	if err != nil {
		return nil, err
	}

	preparer := agent.NewImagePreparer(nil, logger)
	return agent.NewLocator(preparer, resolver, logger).LocateImage(ctx, event.Target, image)
}

func main() {
	lambda.Start(HandleRequest)
}
