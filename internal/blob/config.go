package blob

import (
	"context"
	"fmt"
	"time"
)

type S3Config struct {
	BucketName    string `mapstructure:"bucket" yaml:"bucket"`
	Region        string `mapstructure:"region" yaml:"region,omitempty"`
	AccessKey     string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey     string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`
	Endpoint      string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Prefix        string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	UseAccelerate bool   `mapstructure:"use_accelerate" yaml:"use_accelerate,omitempty"`
}

type MinioConfig struct {
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
	BucketName string `mapstructure:"bucket" yaml:"bucket"`
	AccessKey  string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey  string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`
	Prefix     string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	UseSSL     bool   `mapstructure:"use_ssl" yaml:"use_ssl,omitempty"`
}

type SFTPConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port,omitempty"`
	User           string        `mapstructure:"user" yaml:"user"`
	Password       string        `mapstructure:"password" yaml:"password,omitempty"`
	PrivateKeyPath string        `mapstructure:"private_key_path" yaml:"private_key_path,omitempty"`
	KnownHostsPath string        `mapstructure:"known_hosts_path" yaml:"known_hosts_path,omitempty"`
	Root           string        `mapstructure:"root" yaml:"root"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

type FSConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// Config selects and configures one backend.
type Config struct {
	Type  ServiceType `mapstructure:"type" yaml:"type"`
	S3    S3Config    `mapstructure:"s3" yaml:"s3,omitempty"`
	Minio MinioConfig `mapstructure:"minio" yaml:"minio,omitempty"`
	SFTP  SFTPConfig  `mapstructure:"sftp" yaml:"sftp,omitempty"`
	FS    FSConfig    `mapstructure:"fs" yaml:"fs,omitempty"`
}

func (c *Config) Validate() error {
	switch c.Type {
	case ServiceS3:
		if c.S3.BucketName == "" {
			return fmt.Errorf("s3 backend requires a bucket")
		}
		if c.S3.Region == "" {
			c.S3.Region = "us-east-1"
		}
	case ServiceMinio:
		if c.Minio.Endpoint == "" || c.Minio.BucketName == "" {
			return fmt.Errorf("minio backend requires an endpoint and a bucket")
		}
	case ServiceSFTP:
		if c.SFTP.Host == "" || c.SFTP.User == "" {
			return fmt.Errorf("sftp backend requires a host and a user")
		}
		if c.SFTP.Port == 0 {
			c.SFTP.Port = 22
		}
		if c.SFTP.Timeout == 0 {
			c.SFTP.Timeout = 30 * time.Second
		}
	case ServiceFS:
		if c.FS.Root == "" {
			return fmt.Errorf("fs backend requires a root directory")
		}
	default:
		return fmt.Errorf("unknown backend type %q", c.Type)
	}
	return nil
}

// NewBackend builds the backend selected by cfg.
func NewBackend(ctx context.Context, cfg *Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case ServiceS3:
		return NewS3Backend(ctx, &cfg.S3)
	case ServiceMinio:
		return NewMinioBackend(&cfg.Minio)
	case ServiceSFTP:
		return NewSFTPBackend(&cfg.SFTP)
	case ServiceFS:
		return NewFSBackendWithRoot(cfg.FS.Root)
	}
	return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
}
