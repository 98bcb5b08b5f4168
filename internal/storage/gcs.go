package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gallery-app/apiserver/config"
	"google.golang.org/api/option"
)

const (
	gcsAllUsers     = "allUsers"
	gcsObjectViewer = "roles/storage.objectViewer"
)

// GCSClient wraps the Google Cloud Storage SDK client and bucket name.
type GCSClient struct {
	client    *storage.Client
	bucket    string
	projectID string
}

// NewGCSClient constructs a GCS client from config.
func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*GCSClient, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &GCSClient{
		client:    client,
		bucket:    cfg.Bucket,
		projectID: cfg.ProjectID,
	}, nil
}

// EnsureBucket creates the bucket with uniform access when missing, then
// grants anonymous object reads so image URLs resolve without signing.
func (g *GCSClient) EnsureBucket(ctx context.Context) error {
	bucket := g.client.Bucket(g.bucket)
	if _, err := bucket.Attrs(ctx); err != nil {
		if !errors.Is(err, storage.ErrBucketNotExist) {
			return err
		}
		if strings.TrimSpace(g.projectID) == "" {
			return errors.New("gcs project id is required to create bucket")
		}
		attrs := &storage.BucketAttrs{
			UniformBucketLevelAccess: storage.UniformBucketLevelAccess{Enabled: true},
		}
		if err := bucket.Create(ctx, g.projectID, attrs); err != nil {
			return fmt.Errorf("create bucket %s: %w", g.bucket, err)
		}
	}

	policy, err := bucket.IAM().Policy(ctx)
	if err != nil {
		return err
	}
	if policy.HasRole(gcsAllUsers, gcsObjectViewer) {
		return nil
	}
	policy.Add(gcsAllUsers, gcsObjectViewer)
	return bucket.IAM().SetPolicy(ctx, policy)
}

// PresignPut returns a V4 signed URL accepting a PUT of key with contentType.
// Signing uses the client's service account credentials.
func (g *GCSClient) PresignPut(_ context.Context, key, contentType string, expiry time.Duration) (string, error) {
	return g.client.Bucket(g.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		ContentType: contentType,
		Expires:     time.Now().Add(expiry),
	})
}

// Delete removes an object from the configured bucket. Deleting a missing
// object is not an error.
func (g *GCSClient) Delete(ctx context.Context, key string) error {
	err := g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (g *GCSClient) Bucket() string {
	return g.bucket
}

// DefaultPublicBaseURL returns the public storage.googleapis.com URL of the bucket.
func (g *GCSClient) DefaultPublicBaseURL() string {
	return "https://storage.googleapis.com/" + g.bucket
}
