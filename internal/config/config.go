// Package config reads the optional .unalz ini file.
package config

import (
	"github.com/aws/aws-sdk-go-v2/aws"
)

// ExtractConfig contains the defaults for extraction; command-line flags take precedence.
type ExtractConfig struct {
	Dir         string
	Quiet       bool
	NoOverwrite bool
	AutoDir     bool
}

// ForExtract returns configuration for extraction from the [extract] section.
//
// Invalid boolean values are treated as false.
func (l *Loader) ForExtract() (c ExtractConfig) {
	sec, err := l.file().GetSection("extract")
	if err != nil {
		return c
	}

	c.Dir = sec.Key("dir").String()
	c.Quiet = sec.Key("quiet").MustBool(false)
	c.NoOverwrite = sec.Key("no-overwrite").MustBool(false)
	c.AutoDir = sec.Key("auto-dir").MustBool(false)

	return
}

// ForExtract calls Loader.ForExtract on the DefaultLoader instance.
func ForExtract() ExtractConfig {
	return DefaultLoader.ForExtract()
}

// AWSProfile returns the profile from the [aws] section, empty if there is none.
func (l *Loader) AWSProfile() string {
	sec, err := l.file().GetSection("aws")
	if err != nil {
		return ""
	}

	return sec.Key("profile").String()
}

// BucketConfig contains configuration settings for a specific bucket.
type BucketConfig struct {
	Bucket              string
	AWSProfile          string
	ExpectedBucketOwner *string
}

// ForBucket returns configuration for a specific bucket from the [s3://bucket] section.
func (l *Loader) ForBucket(bucket string) (c BucketConfig) {
	c.Bucket = bucket

	sec, err := l.file().GetSection("s3://" + bucket)
	if err != nil {
		return c
	}

	c.AWSProfile = sec.Key("aws-profile").String()

	if sec.HasKey("expected-bucket-owner") {
		c.ExpectedBucketOwner = aws.String(sec.Key("expected-bucket-owner").String())
	}

	return
}

// ForBucket calls Loader.ForBucket on the DefaultLoader instance.
func ForBucket(bucket string) BucketConfig {
	return DefaultLoader.ForBucket(bucket)
}
