package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/envault/envault/internal/server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	sc "github.com/envault/envault/internal/server/config"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}
)

// Archiver receives versions about to be pruned from the hot store. The
// content stays encrypted under its project content key; the archive never
// sees plaintext.
type Archiver interface {
	Archive(ctx context.Context, v *models.SecretVersion) error
}

// S3Archiver writes pruned versions to an S3 bucket.
type S3Archiver struct {
	config *sc.Config
}

func NewS3Archiver(config *sc.Config) *S3Archiver {
	return &S3Archiver{config: config}
}

func (a *S3Archiver) getClient() (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(a.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.config.S3RootUser,
			a.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(a.config.S3BaseEndpoint)
	}), nil
}

func archiveStorageKey(v *models.SecretVersion) string {
	return fmt.Sprintf("projects/%s/%s", v.ProjectID, v.ID)
}

func (a *S3Archiver) Archive(ctx context.Context, v *models.SecretVersion) error {
	client, err := a.getClient()
	if err != nil {
		return err
	}

	bucket := a.config.S3Bucket
	key := archiveStorageKey(v)

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(v.EncryptedContent),
	})
	if err != nil {
		return fmt.Errorf("error archiving version %s: %w", v.ID, err)
	}

	return nil
}
