package storage

import (
	"os"
	"strings"

	"artcache/db"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

type StorageType uint8

const (
	StorageTypeFile StorageType = 0
	StorageTypeS3   StorageType = 1
)

// Content layout inside a bucket: full-size artifacts and their thumbnails
// live in separate subtrees, both named by Asset ID.
const (
	LocationFull   = "full"
	LocationThumbs = "thumbs"
)

type Bucket struct {
	ID            uint64 `gorm:"primaryKey"`
	CreatedAt     int64
	UpdatedAt     int64
	Name          string `gorm:"type:varchar(200)"`
	StorageType   StorageType
	Path          string // Path on a drive or a prefix in a S3 bucket
	AuthDetails   string // Authentication details. In case of S3 bucket - "key:secret"
	Region        string `gorm:"type:varchar(50)"`  // S3 region
	Endpoint      string `gorm:"type:varchar(300)"` // Custom S3 endpoint (minio, etc)
	SSEEncryption string `gorm:"type:varchar(50)"`
}

func (b *Bucket) Create() error {
	err := db.Instance.Create(b).Error
	if err != nil {
		return err
	}
	if b.StorageType == StorageTypeFile {
		// Pre-create content locations on disk
		if err = os.MkdirAll(b.Path+"/"+LocationFull, 0777); err != nil {
			return err
		}
		if err = os.MkdirAll(b.Path+"/"+LocationThumbs, 0777); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bucket) IsS3() bool {
	return b.StorageType == StorageTypeS3
}

// GetRemotePath prefixes the bucket-relative path with the configured
// S3 key prefix (Bucket.Path).
func (b *Bucket) GetRemotePath(path string) string {
	if b.Path == "" {
		return path
	}
	return strings.TrimRight(b.Path, "/") + "/" + path
}

// CreateSVC creates an S3 client from the bucket's auth details
func (b *Bucket) CreateSVC() *s3.S3 {
	auth := strings.SplitN(b.AuthDetails, ":", 2)
	conf := aws.Config{
		Region:      aws.String(b.Region),
		Credentials: credentials.NewStaticCredentials(auth[0], auth[1], ""),
	}
	if b.Endpoint != "" {
		conf.Endpoint = aws.String(b.Endpoint)
		conf.S3ForcePathStyle = aws.Bool(true)
	}
	return s3.New(session.Must(session.NewSession(&conf)))
}
