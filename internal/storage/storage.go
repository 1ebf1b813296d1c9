// Package storage saves uploaded posters, videos and avatars on local disk
// or in an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Kind tags what an upload is for; it becomes a path segment
type Kind string

const (
	KindPoster Kind = "posters"
	KindVideo  Kind = "videos"
	KindAvatar Kind = "avatars"
)

// Storage persists an uploaded file and returns the path recorded on the owning record
type Storage interface {
	Save(ctx context.Context, fileHeader *multipart.FileHeader, kind Kind) (string, error)
	Remove(ctx context.Context, path string) error
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// normalizeFilename creates a unique, normalized filename without spaces
func normalizeFilename(originalFilename string) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	baseName := strings.TrimSuffix(filepath.Base(originalFilename), filepath.Ext(originalFilename))

	baseName = strings.ReplaceAll(baseName, " ", "_")
	baseName = unsafeChars.ReplaceAllString(baseName, "")
	if baseName == "" {
		baseName = "file"
	}
	if len(baseName) > 64 {
		baseName = baseName[:64]
	}

	// timestamp keeps names traceable, the short id keeps concurrent uploads apart
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s%s", baseName, timestamp, uuid.NewString()[:8], ext)
}

// LocalStorage writes files below a directory served under a URL prefix
type LocalStorage struct {
	uploadDir string
	urlPrefix string
}

// NewLocalStorage creates a LocalStorage; stored paths look like <urlPrefix>/<kind>/<name>
func NewLocalStorage(uploadDir, urlPrefix string) *LocalStorage {
	return &LocalStorage{uploadDir: uploadDir, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}
}

func (ls *LocalStorage) Save(ctx context.Context, fileHeader *multipart.FileHeader, kind Kind) (string, error) {
	name := normalizeFilename(fileHeader.Filename)
	dir := filepath.Join(ls.uploadDir, string(kind))
	log.Debug().Str("original", fileHeader.Filename).Str("normalized", name).Msg("file upload normalized")

	// Ensure upload directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	dstPath := filepath.Join(dir, name)
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", ls.urlPrefix, kind, name), nil
}

func (ls *LocalStorage) Remove(ctx context.Context, path string) error {
	rel := strings.TrimPrefix(path, ls.urlPrefix+"/")
	if rel == path || strings.Contains(rel, "..") {
		return fmt.Errorf("path %q is not managed by this storage", path)
	}
	err := os.Remove(filepath.Join(ls.uploadDir, filepath.FromSlash(rel)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// SpacesStorage writes files to an S3-compatible bucket behind a CDN
type SpacesStorage struct {
	client *s3.S3
	bucket string
	cdnURL string
}

func NewSpacesStorage(endpoint, region, bucket, cdnURL, accessKey, secretKey string) (*SpacesStorage, error) {
	config := &aws.Config{
		Credentials:      credentials.NewStaticCredentials(accessKey, secretKey, ""),
		Endpoint:         aws.String(endpoint),
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(false),
	}

	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &SpacesStorage{
		client: s3.New(sess),
		bucket: bucket,
		cdnURL: strings.TrimSuffix(cdnURL, "/"),
	}, nil
}

func (ss *SpacesStorage) Save(ctx context.Context, fileHeader *multipart.FileHeader, kind Kind) (string, error) {
	name := normalizeFilename(fileHeader.Filename)

	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	key := fmt.Sprintf("uploads/%s/%s", kind, name)
	_, err = ss.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(ss.bucket),
		Key:         aws.String(key),
		Body:        src,
		ContentType: aws.String(ContentType(name)),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to upload file to spaces")
		return "", fmt.Errorf("failed to upload to Spaces: %w", err)
	}

	return fmt.Sprintf("%s/%s", ss.cdnURL, key), nil
}

func (ss *SpacesStorage) Remove(ctx context.Context, path string) error {
	key := strings.TrimPrefix(path, ss.cdnURL+"/")
	if key == path {
		return fmt.Errorf("path %q is not managed by this storage", path)
	}
	_, err := ss.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(ss.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from Spaces: %w", err)
	}
	return nil
}

// ContentType guesses a MIME type from the file extension
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}
