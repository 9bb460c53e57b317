package commands

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/voyago/blobstore"
	minioblob "github.com/hupe1980/voyago/blobstore/minio"
	s3blob "github.com/hupe1980/voyago/blobstore/s3"
)

// location is a parsed index address.
type location struct {
	scheme   string // "file", "s3" or "minio"
	endpoint string // minio only
	bucket   string
	key      string
}

func parseLocation(raw string) (location, error) {
	switch {
	case strings.HasPrefix(raw, "s3://"), strings.HasPrefix(raw, "minio://"):
	default:
		if raw == "" {
			return location{}, fmt.Errorf("empty index location")
		}
		return location{scheme: "file", key: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return location{}, fmt.Errorf("invalid index location %q: %w", raw, err)
	}
	path := strings.TrimPrefix(u.Path, "/")

	switch u.Scheme {
	case "s3":
		if u.Host == "" || path == "" {
			return location{}, fmt.Errorf("invalid index location %q: want s3://bucket/key", raw)
		}
		return location{scheme: "s3", bucket: u.Host, key: path}, nil
	default:
		bucket, key, ok := strings.Cut(path, "/")
		if u.Host == "" || !ok || bucket == "" || key == "" {
			return location{}, fmt.Errorf("invalid index location %q: want minio://endpoint/bucket/key", raw)
		}
		return location{scheme: "minio", endpoint: u.Host, bucket: bucket, key: key}, nil
	}
}

// open returns the store holding the index and the blob name inside it.
func (l location) open(ctx context.Context, rateLimit int) (blobstore.Store, string, error) {
	var (
		store blobstore.Store
		err   error
	)
	name := l.key

	switch l.scheme {
	case "file":
		abs, aerr := filepath.Abs(l.key)
		if aerr != nil {
			return nil, "", aerr
		}
		store, err = blobstore.NewLocalStore(filepath.Dir(abs))
		name = filepath.Base(abs)
	case "s3":
		store, err = openS3(ctx, l.bucket)
	case "minio":
		store, err = openMinio(l.endpoint, l.bucket)
	default:
		err = fmt.Errorf("unsupported scheme %q", l.scheme)
	}
	if err != nil {
		return nil, "", err
	}

	if l.scheme != "file" {
		store = blobstore.Throttled(store, rateLimit)
	}
	return store, name, nil
}

func openS3(ctx context.Context, bucket string) (blobstore.Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	objects := s3blob.NewStore(awss3.NewFromConfig(cfg), bucket, "")
	if table := os.Getenv("VOYAGO_DDB_TABLE"); table != "" {
		return s3blob.NewCommitStore(objects, dynamodb.NewFromConfig(cfg), table, "s3://"+bucket+"/"), nil
	}
	return objects, nil
}

func openMinio(endpoint, bucket string) (blobstore.Store, error) {
	client, err := miniogo.New(endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
		Secure: os.Getenv("MINIO_SECURE") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}
	return minioblob.NewStore(client, bucket, ""), nil
}
