package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/openmined/vaultsync/internal/utils"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPBackend keeps objects as files under Root on an SSH server.
type SFTPBackend struct {
	ssh    *ssh.Client
	client *sftp.Client
	config *SFTPConfig
}

func NewSFTPBackend(cfg *SFTPConfig) (*SFTPBackend, error) {
	clientConfig, err := sshClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	sshClient, err := ssh.Dial("tcp", addr, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("sftp client: %w", err)
	}

	return &SFTPBackend{ssh: sshClient, client: client, config: cfg}, nil
}

func sshClientConfig(cfg *SFTPConfig) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if cfg.PrivateKeyPath != "" {
		keyPath, err := utils.ResolvePath(cfg.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		keyBytes, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("sftp backend requires a password or a private key")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		knownHostsPath, err := utils.ResolvePath(cfg.KnownHostsPath)
		if err != nil {
			return nil, err
		}
		hostKeyCallback, err = knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	}, nil
}

func (s *SFTPBackend) Close() error {
	return errors.Join(s.client.Close(), s.ssh.Close())
}

func (s *SFTPBackend) ServiceType() ServiceType {
	return ServiceSFTP
}

func (s *SFTPBackend) root() string {
	if s.config.Root == "" {
		return "."
	}
	return strings.TrimSuffix(s.config.Root, "/")
}

func (s *SFTPBackend) fullPath(key string) string {
	return path.Join(s.root(), strings.TrimSuffix(key, "/"))
}

func (s *SFTPBackend) ListObjects(ctx context.Context) ([]*ObjectInfo, error) {
	root := s.root()
	var objects []*ObjectInfo

	walker := s.client.Walk(root)
	for walker.Step() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := walker.Err(); err != nil {
			if walker.Path() == root && errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("walk %s: %w", walker.Path(), err)
		}
		if walker.Path() == root {
			continue
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(walker.Path(), root), "/")
		info := walker.Stat()
		if info.IsDir() {
			objects = append(objects, &ObjectInfo{Key: rel + "/", LastModified: info.ModTime()})
			continue
		}
		objects = append(objects, &ObjectInfo{
			Key:          rel,
			Size:         info.Size(),
			LastModified: info.ModTime(),
			ClientMtime:  info.ModTime().UnixMilli(),
		})
	}

	return objects, nil
}

func (s *SFTPBackend) PutObject(_ context.Context, params *PutObjectParams) (*ObjectInfo, error) {
	target := s.fullPath(params.Key)

	if IsFolderKey(params.Key) {
		if err := s.client.MkdirAll(target); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", target, err)
		}
		info, err := s.client.Stat(target)
		if err != nil {
			return nil, err
		}
		return &ObjectInfo{Key: params.Key, LastModified: info.ModTime()}, nil
	}

	if err := s.client.MkdirAll(path.Dir(target)); err != nil {
		return nil, fmt.Errorf("mkdir parent of %s: %w", target, err)
	}

	f, err := s.client.Create(target)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(f, params.Body); err != nil {
		f.Close()
		return nil, fmt.Errorf("write %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", target, err)
	}

	if params.ClientMtime > 0 {
		t := time.UnixMilli(params.ClientMtime)
		if err := s.client.Chtimes(target, t, t); err != nil {
			return nil, fmt.Errorf("set mtime of %s: %w", target, err)
		}
	}

	info, err := s.client.Stat(target)
	if err != nil {
		return nil, err
	}
	return &ObjectInfo{
		Key:          params.Key,
		Size:         info.Size(),
		LastModified: info.ModTime(),
		ClientMtime:  info.ModTime().UnixMilli(),
	}, nil
}

func (s *SFTPBackend) GetObject(_ context.Context, key string) (*GetObjectResponse, error) {
	f, err := s.client.Open(s.fullPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &GetObjectResponse{Body: f, Size: info.Size(), LastModified: info.ModTime()}, nil
}

func (s *SFTPBackend) DeleteObject(_ context.Context, key string) error {
	target := s.fullPath(key)
	var err error
	if IsFolderKey(key) {
		err = s.client.RemoveDirectory(target)
	} else {
		err = s.client.Remove(target)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

var _ Backend = (*SFTPBackend)(nil)
