// Package content resolves track locators to readable audio content: local
// files below the library root and objects in a MinIO/S3 bucket.
package content

import (
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is returned when the locator points at nothing.
	ErrNotFound = errors.New("content not found")
	// ErrForbidden is returned for a path outside the served root.
	ErrForbidden = errors.New("content outside served root")
	// ErrUnsupported is returned for a locator no resolver handles.
	ErrUnsupported = errors.New("unsupported locator")
)

// S3Scheme prefixes object store locators: s3://bucket/key.
const S3Scheme = "s3://"

// Content is an open track stream.
type Content struct {
	io.ReadSeekCloser
	Name        string
	Size        int64
	ModTime     time.Time
	ContentType string
}

// Object describes one stored object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Resolver opens the content behind a locator.
type Resolver interface {
	Open(ctx context.Context, locator string) (*Content, error)
}

// FileResolver serves files below Root.
type FileResolver struct {
	Root string
}

// Open opens a file locator. Relative locators are taken relative to Root.
func (r *FileResolver) Open(_ context.Context, locator string) (*Content, error) {
	if r.Root == "" {
		return nil, errors.Wrap(ErrForbidden, "no content root configured")
	}
	root, err := filepath.Abs(r.Root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve content root")
	}

	path := filepath.FromSlash(locator)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, errors.Wrapf(ErrForbidden, "path=%s", locator)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "path=%s", locator)
		}
		return nil, errors.Wrapf(err, "failed to open %s", locator)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "failed to stat %s", locator)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, errors.Wrapf(ErrNotFound, "path=%s is a directory", locator)
	}

	return &Content{
		ReadSeekCloser: f,
		Name:           info.Name(),
		Size:           info.Size(),
		ModTime:        info.ModTime(),
		ContentType:    ContentType(info.Name()),
	}, nil
}

// ContentType guesses an audio MIME type from a file name.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// ParseS3 splits an s3://bucket/key locator.
func ParseS3(locator string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(locator, S3Scheme)
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// S3Locator builds an s3://bucket/key locator.
func S3Locator(bucket, key string) string {
	return S3Scheme + bucket + "/" + strings.TrimPrefix(key, "/")
}

// Router dispatches s3:// locators to a bucket and everything else to files.
type Router struct {
	Files   Resolver
	Buckets map[string]Resolver
}

// Open implements Resolver.
func (r *Router) Open(ctx context.Context, locator string) (*Content, error) {
	switch {
	case strings.HasPrefix(locator, S3Scheme):
		bucket, _, ok := ParseS3(locator)
		if !ok {
			return nil, errors.Wrapf(ErrUnsupported, "malformed locator %q", locator)
		}
		b, ok := r.Buckets[bucket]
		if !ok {
			return nil, errors.Wrapf(ErrUnsupported, "bucket %q is not configured", bucket)
		}
		return b.Open(ctx, locator)
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return nil, errors.Wrapf(ErrUnsupported, "remote locator %q", locator)
	case r.Files == nil:
		return nil, errors.Wrap(ErrUnsupported, "no file resolver configured")
	default:
		return r.Files.Open(ctx, locator)
	}
}
