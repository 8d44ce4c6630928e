// Package archive copies finished artifact sets to S3-compatible object
// storage (MinIO in development).
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/oremus-labs/lockin/internal/logutil"
)

// ManifestName is the object written next to the files of each session.
const ManifestName = "manifest.json"

// Config describes the object store. An empty Endpoint disables archiving.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Manifest lists what was archived for one session.
type Manifest struct {
	SessionID  string    `json:"sessionId"`
	Files      []string  `json:"files"`
	TotalBytes int64     `json:"totalBytes"`
	ArchivedAt time.Time `json:"archivedAt"`
}

type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archiver uploads session files under <bucket>/<sessionID>/.
type Archiver struct {
	client objectStore
	bucket string
	now    func() time.Time
}

// New builds an Archiver. It returns a disabled Archiver when cfg has no
// endpoint or credentials.
func New(cfg Config) (*Archiver, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		logutil.Info("archive disabled", nil)
		return &Archiver{}, nil
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init object storage client: %w", err)
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "lockin-sessions"
	}
	return &Archiver{client: client, bucket: bucket, now: time.Now}, nil
}

// Enabled reports whether uploads will happen.
func (a *Archiver) Enabled() bool {
	return a != nil && a.client != nil
}

// EnsureBucket creates the bucket when missing.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	if !a.Enabled() {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Archive uploads every file and then the manifest. It returns the s3:// URI
// of the session prefix.
func (a *Archiver) Archive(ctx context.Context, sessionID string, files map[string]string) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("archive not configured")
	}
	if sessionID == "" {
		return "", fmt.Errorf("session id is required")
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	manifest := Manifest{SessionID: sessionID, Files: paths, ArchivedAt: a.now().UTC()}
	for _, p := range paths {
		content := []byte(files[p])
		if err := a.put(ctx, objectName(sessionID, p), content, contentType(p)); err != nil {
			return "", err
		}
		manifest.TotalBytes += int64(len(content))
	}

	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", err
	}
	if err := a.put(ctx, objectName(sessionID, ManifestName), body, "application/json"); err != nil {
		return "", err
	}
	logutil.Info("session archived", map[string]interface{}{
		"sessionId":  sessionID,
		"files":      len(paths),
		"totalBytes": manifest.TotalBytes,
	})
	return fmt.Sprintf("s3://%s/%s/", a.bucket, sessionID), nil
}

func (a *Archiver) put(ctx context.Context, name string, content []byte, ctype string) error {
	_, err := a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: ctype})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func objectName(sessionID, p string) string {
	return path.Join(sessionID, strings.TrimPrefix(path.Clean("/"+p), "/"))
}

func contentType(p string) string {
	switch path.Ext(p) {
	case ".jsx", ".js":
		return "text/javascript"
	}
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct
	}
	return "text/plain; charset=utf-8"
}
