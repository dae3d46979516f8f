package storage

import (
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/jack-merrell/offley.fm/internal/config"
)

// Client wraps a storage backend with the two buckets this system uses:
// the archive (original uploads, overwritten per station id) and the
// assets bucket (transcoded audio, artwork, the catalog document).
type Client struct {
	backend       Provider
	bucketArchive string
	bucketAssets  string
}

func New(cfg *config.Config) *Client {
	var backend Provider

	if cfg.Storage.Provider == "local" {
		backend = NewLocalProvider(cfg.Storage.LocalRoot)
	} else {
		s3Config := &aws.Config{
			Credentials:      credentials.NewStaticCredentials(cfg.Storage.KeyID, cfg.Storage.AppKey, ""),
			Endpoint:         aws.String(cfg.Storage.Endpoint),
			Region:           aws.String(cfg.Storage.Region),
			S3ForcePathStyle: aws.Bool(true),
		}
		sess := session.Must(session.NewSession(s3Config))
		backend = NewS3Provider(sess)
	}

	return &Client{
		backend:       backend,
		bucketArchive: cfg.Storage.BucketArchive,
		bucketAssets:  cfg.Storage.BucketAssets,
	}
}

// NewWithProvider builds a client over an explicit backend. Tests use
// this with a LocalProvider rooted in a temp dir.
func NewWithProvider(backend Provider, bucketArchive, bucketAssets string) *Client {
	return &Client{
		backend:       backend,
		bucketArchive: bucketArchive,
		bucketAssets:  bucketAssets,
	}
}

// --- Archive (originals) ---

func (c *Client) UploadArchive(key string, body io.ReadSeeker, contentType string) error {
	return c.backend.Put(c.bucketArchive, key, body, contentType, "")
}

func (c *Client) DownloadArchive(key string) (*FileObject, error) {
	return c.backend.Get(c.bucketArchive, key)
}

// --- Assets (transcoded audio, artwork, catalog) ---

func (c *Client) UploadAsset(key string, body io.ReadSeeker, contentType, cacheControl string) error {
	return c.backend.Put(c.bucketAssets, key, body, contentType, cacheControl)
}

func (c *Client) DownloadAsset(key string) (*FileObject, error) {
	return c.backend.Get(c.bucketAssets, key)
}

func (c *Client) ListAssets(prefix string) ([]string, error) {
	return c.backend.List(c.bucketAssets, prefix)
}
