// Package backup exports a snapshot of the local database to S3-compatible
// storage so trial data can be recovered if a device is lost. Record
// payloads in the snapshot stay sealed with the user's key.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cradle5/cradlesync/internal/client/repositories/metadata"
	"github.com/cradle5/cradlesync/internal/logging"
)

// ErrNoDevice means the database has no device ID yet; log in online once.
var ErrNoDevice = errors.New("device is not registered")

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ObjectPutter is the part of *s3.Client the exporter needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config locates the backup bucket. An empty Endpoint means AWS itself.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Client builds an S3 client. Custom endpoints (MinIO and the like)
// use path-style addressing.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(c.Region)}
	if c.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

type Exporter struct {
	db     *sql.DB
	putter ObjectPutter
	bucket string
	logger logging.Logger
	now    func() time.Time
	tmpDir string
}

func NewExporter(db *sql.DB, putter ObjectPutter, bucket string, logger logging.Logger) *Exporter {
	return &Exporter{db: db, putter: putter, bucket: bucket, logger: logger, now: time.Now}
}

// Key returns the object key of a backup taken at t.
func Key(deviceID string, t time.Time) string {
	return fmt.Sprintf("backups/%s/%s.db", deviceID, t.UTC().Format("20060102T150405Z"))
}

// Export snapshots the database, uploads it and records the time. It
// returns the object key.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	meta := metadata.NewSQLiteRepository(e.db)

	deviceID, err := metadata.GetString(ctx, meta, metadata.KeyDeviceID)
	if err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	}
	if deviceID == "" {
		return "", ErrNoDevice
	}

	dir, err := os.MkdirTemp(e.tmpDir, "cradlesync-backup-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "snapshot.db")
	if _, err := e.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return "", fmt.Errorf("snapshot database: %w", err)
	}

	f, err := os.Open(snapshot)
	if err != nil {
		return "", fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat snapshot: %w", err)
	}

	at := e.now()
	key := Key(deviceID, at)
	_, err = e.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(st.Size()),
		ContentType:   aws.String("application/vnd.sqlite3"),
	})
	if err != nil {
		return "", fmt.Errorf("upload backup: %w", err)
	}

	if err := metadata.SetTime(ctx, meta, metadata.KeyLastBackupAt, at); err != nil {
		return key, fmt.Errorf("save backup time: %w", err)
	}

	e.logger.Info(ctx, "backup uploaded", "bucket", e.bucket, "key", key, "bytes", st.Size())
	return key, nil
}
