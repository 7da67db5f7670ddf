package blob

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMtime(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]string
		want int64
	}{
		{"missing", nil, 0},
		{"lowercase", map[string]string{"mtime": "1700000000123"}, 1700000000123},
		{"canonical", map[string]string{"Mtime": "42"}, 42},
		{"amz prefix", map[string]string{"X-Amz-Meta-Mtime": "7"}, 7},
		{"float", map[string]string{"mtime": "1700000000123.0"}, 1700000000123},
		{"garbage", map[string]string{"mtime": "yesterday"}, 0},
		{"other keys", map[string]string{"owner": "me"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseMtime(tt.meta))
		})
	}
	assert.Equal(t, "123", formatMtime(123))
}

func TestWithParentFolders(t *testing.T) {
	ts := time.Unix(100, 0)
	objects := withParentFolders([]*ObjectInfo{
		{Key: "a/b/c.md", Size: 3, LastModified: ts},
		{Key: "a/", LastModified: ts},
		{Key: "top.md", Size: 1, LastModified: ts},
		{Key: "x/y/", LastModified: ts},
	})

	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	sort.Strings(keys)
	assert.Equal(t, []string{"a/", "a/b/", "a/b/c.md", "top.md", "x/", "x/y/"}, keys)

	for _, o := range objects {
		if o.Key == "a/b/" {
			assert.Zero(t, o.Size)
			assert.Equal(t, ts, o.LastModified)
		}
	}
}

func TestIsFolderKey(t *testing.T) {
	assert.True(t, IsFolderKey("a/"))
	assert.False(t, IsFolderKey("a"))
	assert.False(t, IsFolderKey(""))
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{Type: ServiceS3, S3: S3Config{BucketName: "vault"}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "us-east-1", cfg.S3.Region)

	cfg = &Config{Type: ServiceSFTP, SFTP: SFTPConfig{Host: "nas", User: "me"}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 22, cfg.SFTP.Port)
	assert.Equal(t, 30*time.Second, cfg.SFTP.Timeout)

	invalid := []*Config{
		{Type: ServiceS3},
		{Type: ServiceMinio, Minio: MinioConfig{Endpoint: "localhost:9000"}},
		{Type: ServiceSFTP, SFTP: SFTPConfig{Host: "nas"}},
		{Type: ServiceFS},
		{Type: "dropbox"},
	}
	for _, c := range invalid {
		assert.Error(t, c.Validate(), "type %q", c.Type)
	}
}

func TestSSHClientConfig(t *testing.T) {
	_, err := sshClientConfig(&SFTPConfig{Host: "nas", User: "me"})
	require.Error(t, err, "no auth method")

	cfg, err := sshClientConfig(&SFTPConfig{Host: "nas", User: "me", Password: "pw", Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "me", cfg.User)
	assert.Len(t, cfg.Auth, 1)
	assert.Equal(t, time.Second, cfg.Timeout)

	_, err = sshClientConfig(&SFTPConfig{Host: "nas", User: "me", PrivateKeyPath: "/does/not/exist"})
	require.Error(t, err)
}
