package config

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// profileForBucket returns Loader.Profile, then the bucket's aws-profile, then the [aws] profile.
func (l *Loader) profileForBucket(bucket string) string {
	if l.Profile != "" {
		return l.Profile
	}

	if p := l.ForBucket(bucket).AWSProfile; p != "" {
		return p
	}

	return l.AWSProfile()
}

// NewS3ClientForBucket returns a client for reading from the given bucket, cached per bucket.
func (l *Loader) NewS3ClientForBucket(ctx context.Context, bucket string, optFns ...func(*s3.Options)) (*s3.Client, error) {
	key := "s3://" + bucket
	if c, ok := l.s3clientCache.Load(key); ok {
		return c.(*s3.Client), nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithSharedConfigProfile(l.profileForBucket(bucket)))
	if err != nil {
		return nil, err
	}

	c := s3.NewFromConfig(cfg, optFns...)
	l.s3clientCache.Store(key, c)
	return c, nil
}

// NewS3ClientForBucket calls Loader.NewS3ClientForBucket on the DefaultLoader instance.
func NewS3ClientForBucket(ctx context.Context, bucket string, optFns ...func(*s3.Options)) (*s3.Client, error) {
	return DefaultLoader.NewS3ClientForBucket(ctx, bucket, optFns...)
}
