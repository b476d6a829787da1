package s3

import (
	"bytes"
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

/*
Conn wraps a minio client bound to one bucket.
*/
type Conn struct {
	client *minio.Client
	bucket string
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

/*
NewConn connects to an S3 compatible endpoint and makes sure the bucket
exists.
*/
func NewConn(ctx context.Context, cfg Config) (*Conn, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})

	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)

	if err != nil {
		return nil, err
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}

		log.Info("created bucket", "bucket", cfg.Bucket)
	}

	return &Conn{client: client, bucket: cfg.Bucket}, nil
}

func (conn *Conn) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := conn.client.GetObject(ctx, conn.bucket, key, minio.GetObjectOptions{})

	if err != nil {
		return nil, err
	}

	defer obj.Close()

	buf := bytes.NewBuffer([]byte{})

	if _, err := io.Copy(buf, obj); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (conn *Conn) Put(ctx context.Context, key string, data []byte) error {
	_, err := conn.client.PutObject(
		ctx, conn.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)

	return err
}

func (conn *Conn) Delete(ctx context.Context, key string) error {
	return conn.client.RemoveObject(ctx, conn.bucket, key, minio.RemoveObjectOptions{})
}

// IsNoSuchKey reports whether err is the S3 "missing object" response.
func IsNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
