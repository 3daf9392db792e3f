package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"agent-arena/models"
)

// ArchiveClient stores settled-tournament transcripts in S3-compatible
// object storage. Constructed once at service start and passed in; there is
// no package-global client.
type ArchiveClient struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

func NewArchiveClient(ctx context.Context) (*ArchiveClient, error) {
	endpoint := os.Getenv("ARCHIVE_ENDPOINT")
	accessKeyID := os.Getenv("ARCHIVE_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("ARCHIVE_ACCESS_KEY_SECRET")
	bucket := os.Getenv("ARCHIVE_BUCKET_NAME")
	if endpoint == "" || bucket == "" {
		return nil, fmt.Errorf("ARCHIVE_ENDPOINT and ARCHIVE_BUCKET_NAME are required")
	}
	baseURL := os.Getenv("ARCHIVE_BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("%s/%s", endpoint, bucket)
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &ArchiveClient{client: client, bucket: bucket, baseURL: baseURL}, nil
}

// StoreTranscript uploads the full message history of a settled tournament
// as JSON and returns the public URL.
func (a *ArchiveClient) StoreTranscript(ctx context.Context, tournamentID string, messages []models.ChatMessage) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"tournament_id": tournamentID,
		"messages":      messages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript: %w", err)
	}

	key := fmt.Sprintf("transcripts/%s.json", tournamentID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload transcript: %w", err)
	}

	return fmt.Sprintf("%s/%s", a.baseURL, key), nil
}
