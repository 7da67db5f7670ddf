package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/openmined/vaultsync/internal/blob"
	"github.com/openmined/vaultsync/internal/vaultcrypt"
)

// RemoteStore is the RemoteClient over a raw blob.Backend. With a password, object keys
// are encrypted names and object bodies are encrypted payloads.
type RemoteStore struct {
	backend blob.Backend
	local   LocalTree
}

func NewRemoteStore(backend blob.Backend, local LocalTree) *RemoteStore {
	return &RemoteStore{backend: backend, local: local}
}

func (r *RemoteStore) ServiceType() blob.ServiceType {
	return r.backend.ServiceType()
}

func (r *RemoteStore) List(ctx context.Context) ([]*Entity, error) {
	objects, err := r.backend.ListObjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remote: %w", err)
	}

	entities := make([]*Entity, 0, len(objects))
	for _, obj := range objects {
		entities = append(entities, &Entity{
			Key:      obj.Key,
			KeyEnc:   obj.Key,
			Size:     obj.Size,
			SizeEnc:  obj.Size,
			MtimeCli: obj.ClientMtime,
			MtimeSvr: unixMilli(obj),
		})
	}
	return entities, nil
}

func (r *RemoteStore) Upload(ctx context.Context, key string, isFolder bool, password, knownKeyEnc string) (*Entity, error) {
	keyEnc, err := atRestKey(key, password, knownKeyEnc)
	if err != nil {
		return nil, err
	}

	if isFolder {
		var body []byte
		if password != "" {
			if body, err = vaultcrypt.EncryptBytes(nil, password); err != nil {
				return nil, err
			}
		}
		info, err := r.backend.PutObject(ctx, &blob.PutObjectParams{
			Key:  keyEnc,
			Body: bytes.NewReader(body),
			Size: int64(len(body)),
		})
		if err != nil {
			return nil, err
		}
		return &Entity{
			Key:      key,
			KeyEnc:   keyEnc,
			SizeEnc:  info.Size,
			MtimeSvr: unixMilli(info),
		}, nil
	}

	rc, local, err := r.local.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open local %s: %w", key, err)
	}
	defer rc.Close()

	params := &blob.PutObjectParams{
		Key:         keyEnc,
		Body:        rc,
		Size:        local.Size,
		ClientMtime: local.MtimeCli,
	}
	if password != "" {
		plain, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read local %s: %w", key, err)
		}
		enc, err := vaultcrypt.EncryptBytes(plain, password)
		if err != nil {
			return nil, err
		}
		params.Body = bytes.NewReader(enc)
		params.Size = int64(len(enc))
	}

	info, err := r.backend.PutObject(ctx, params)
	if err != nil {
		return nil, err
	}

	return &Entity{
		Key:      key,
		KeyEnc:   keyEnc,
		Size:     local.Size,
		SizeEnc:  info.Size,
		MtimeCli: local.MtimeCli,
		MtimeSvr: unixMilli(info),
	}, nil
}

func (r *RemoteStore) Download(ctx context.Context, key string, mtimeCli int64, password, keyEnc string) error {
	if isFolderKey(key) {
		return r.local.EnsureDir(ctx, key)
	}

	objKey := key
	if password != "" && keyEnc != "" {
		objKey = keyEnc
	}

	resp, err := r.backend.GetObject(ctx, objKey)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if password != "" {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read remote %s: %w", key, err)
		}
		plain, err := vaultcrypt.DecryptBytes(data, password)
		if err != nil {
			return fmt.Errorf("decrypt %s: %w", key, err)
		}
		body = bytes.NewReader(plain)
	}

	return r.local.Write(ctx, key, body, mtimeCli)
}

func (r *RemoteStore) Delete(ctx context.Context, key, password, keyEnc string) error {
	objKey := key
	if password != "" && keyEnc != "" {
		objKey = keyEnc
	}
	return r.backend.DeleteObject(ctx, objKey)
}

func atRestKey(key, password, knownKeyEnc string) (string, error) {
	if password == "" {
		return key, nil
	}
	if knownKeyEnc != "" && knownKeyEnc != key {
		return knownKeyEnc, nil
	}
	enc, err := vaultcrypt.EncryptName(key, password)
	if err != nil {
		return "", fmt.Errorf("encrypt name %s: %w", key, err)
	}
	return enc, nil
}

func unixMilli(info *blob.ObjectInfo) int64 {
	if info.LastModified.IsZero() {
		return 0
	}
	return info.LastModified.UnixMilli()
}

var _ RemoteClient = (*RemoteStore)(nil)
