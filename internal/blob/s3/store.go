package s3blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

// keyPrefix namespaces mirrored content inside the bucket.
const keyPrefix = "content/"

var contentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

// Store implements domain.ContentStorePort on an S3-compatible bucket.
// Objects are keyed by content ID and written at most once; publish tags are
// carried as object metadata. Object storage is pre-provisioned, so publishes
// are never gated on an account balance.
type Store struct {
	client *s3.Client
	bucket string
}

var _ domain.ContentStorePort = (*Store)(nil)

// NewStore creates a Store over the given client's bucket.
func NewStore(c *Client) *Store {
	return &Store{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// Publish writes data under its content ID, the base64url encoding of
// SHA-256(data). Re-publishing identical content is a no-op returning the
// same ID.
func (s *Store) Publish(ctx context.Context, data []byte, tags map[string]string) (string, error) {
	sum := sha256.Sum256(data)
	id := base64.RawURLEncoding.EncodeToString(sum[:])
	key := keyPrefix + id

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return id, nil
	}
	if !isNotFound(err) {
		return "", fmt.Errorf("s3blob: head object %s: %w", id, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata:    tags,
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: put object %s: %w", id, err)
	}
	return id, nil
}

// Retrieve returns the stored bytes or domain.ErrNotFound.
func (s *Store) Retrieve(ctx context.Context, id string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(keyPrefix + id),
	})
	if isNotFound(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("s3blob: get object %s: %w", id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read object %s: %w", id, err)
	}
	return data, nil
}

// Balance reports an unmetered balance: bucket storage has no per-account
// publish funds.
func (s *Store) Balance(ctx context.Context, address string) (float64, error) {
	return math.Inf(1), nil
}

// EstimateCost reports zero: there is no per-publish fee on object storage.
func (s *Store) EstimateCost(ctx context.Context, size int) (float64, error) {
	return 0, nil
}

// ValidateID reports whether id has the 43-character base64url shape.
func (s *Store) ValidateID(id string) bool {
	return contentIDPattern.MatchString(id)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
