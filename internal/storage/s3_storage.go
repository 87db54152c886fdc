package storage

import (
	"context"
	"fmt"
	"log"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/sharon232323/bidmate/internal/config"
)

// IS3Storage defines the interface for S3 operations.
type IS3Storage interface {
	// GeneratePresignedPutURL returns an upload URL and the object key the
	// client must later attach to the item.
	GeneratePresignedPutURL(ctx context.Context, owner, itemID, filename, contentType string) (url string, key string, err error)
	// PublicURL is where an uploaded object can be fetched from.
	PublicURL(key string) string
}

// presigner is the part of *s3.PresignClient we use.
type presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// s3Storage implements IS3Storage.
type s3Storage struct {
	cfg       *config.Config
	presigner presigner
}

// NewS3Storage creates a new S3 storage service.
func NewS3Storage(ctx context.Context, cfg *config.Config) (IS3Storage, error) {
	awsCfg, err := aws_config.LoadDefaultConfig(ctx,
		aws_config.WithRegion(cfg.AwsRegion),
		aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AwsAccessKeyID,
			cfg.AwsSecretAccessKey,
			"", // session token
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return newS3Storage(cfg, s3.NewPresignClient(s3Client)), nil
}

func newS3Storage(cfg *config.Config, p presigner) *s3Storage {
	return &s3Storage{cfg: cfg, presigner: p}
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFilename keeps the base name and replaces anything outside a
// conservative character set.
func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "image"
	}
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	return base
}

func keyPrefix(owner, itemID string) string {
	return fmt.Sprintf("uploads/%s/%s/", sanitizeFilename(owner), itemID)
}

// ObjectKey builds the key an item image is uploaded under.
func ObjectKey(owner, itemID, filename string) string {
	return keyPrefix(owner, itemID) + uuid.NewString() + "_" + sanitizeFilename(filename)
}

// KeyBelongsTo reports whether key could have been issued by ObjectKey for
// this owner and item.
func KeyBelongsTo(key, owner, itemID string) bool {
	rest, ok := strings.CutPrefix(key, keyPrefix(owner, itemID))
	return ok && rest != "" && !strings.Contains(rest, "/")
}

func (s *s3Storage) GeneratePresignedPutURL(ctx context.Context, owner, itemID, filename, contentType string) (string, string, error) {
	objectKey := ObjectKey(owner, itemID, filename)

	expiration := s.cfg.PresignTTL
	if expiration <= 0 {
		expiration = 15 * time.Minute
	}

	presignParams := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AwsS3Bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}

	presignedReq, err := s.presigner.PresignPutObject(ctx, presignParams, s3.WithPresignExpires(expiration))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", objectKey, err)
	}

	log.Printf("Generated presigned URL for key: %s", objectKey)
	return presignedReq.URL, objectKey, nil
}

func (s *s3Storage) PublicURL(key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.ImageBaseS3URL, "/") + "/" + key
}
