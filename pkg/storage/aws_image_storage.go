package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mandyreed223/rekognition-image-labeling-pipeline/pkg/config"
)

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type ImageStorageAWS struct {
	Client S3Client
	Bucket string
}

func NewImageStorageAWS(client S3Client, bucketName string) (*ImageStorageAWS, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("S3_BUCKET is not defined")
	}
	return &ImageStorageAWS{
		Client: client,
		Bucket: bucketName,
	}, nil
}

// ObjectKey returns the bucket key an image is stored under. The key depends
// only on the file's base name, so re-uploading the same file always hits the
// same object.
func (isa *ImageStorageAWS) ObjectKey(fileName string) string {
	return config.S3Prefix + "/" + filepath.Base(fileName)
}

func (isa *ImageStorageAWS) UploadImage(ctx context.Context, localPath string) (string, error) {
	contents, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("unable to read image file %v: %v", localPath, err)
	}

	key := isa.ObjectKey(localPath)
	input := &s3.PutObjectInput{
		Body:   bytes.NewReader(contents),
		Bucket: aws.String(isa.Bucket),
		Key:    aws.String(key),
	}

	_, err = isa.Client.PutObject(ctx, input)
	if err != nil {
		slog.Error("Failed to write image to bucket", "bucket", isa.Bucket, "key", key, "error", err)
		return "", fmt.Errorf("unable to upload %v to bucket: %v", localPath, err)
	}
	slog.Debug("Image uploaded", "bucket", isa.Bucket, "key", key, "bytes", len(contents))
	return key, nil
}
