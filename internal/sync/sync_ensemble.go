package sync

import (
	"fmt"

	"github.com/openmined/vaultsync/internal/vaultcrypt"
)

// NameCipher encrypts logical keys into at-rest keys and back.
// *vaultcrypt.Cipher is the production implementation.
type NameCipher interface {
	Enabled() bool
	EncryptName(name string) (string, error)
	DecryptName(enc string) (string, error)
}

type EnsembleOptions struct {
	FilterOptions

	// Password builds a vaultcrypt cipher when Cipher is nil
	Password string
	Cipher   NameCipher
}

func (o *EnsembleOptions) cipher() (NameCipher, error) {
	if o.Cipher != nil {
		return o.Cipher, nil
	}
	if o.Password == "" {
		return nil, nil
	}
	c, err := vaultcrypt.NewCipher(o.Password)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Ensemble merges the three entity lists into one plan keyed by logical path.
// Remote entries go first so their at-rest keys can be reused for the other two sides.
// The input entities are not modified.
func Ensemble(local, prevSync, remote []*Entity, opts EnsembleOptions) (SyncPlan, error) {
	filter, err := NewNameFilter(opts.FilterOptions)
	if err != nil {
		return nil, err
	}
	cipher, err := opts.cipher()
	if err != nil {
		return nil, err
	}
	if cipher != nil && !cipher.Enabled() {
		cipher = nil
	}

	plan := make(SyncPlan, len(remote)+len(local))

	for _, r := range remote {
		e := r.copyNormalized()
		if err := decryptRemote(e, cipher); err != nil {
			return nil, err
		}
		if !e.IsFolder() && e.MtimeCli == 0 && e.MtimeSvr == 0 {
			if e.Key == e.KeyEnc {
				return nil, fmt.Errorf("%w: %s", ErrZeroMtime, e.Key)
			}
			return nil, fmt.Errorf("%w: %s (encrypted as %s)", ErrZeroMtime, e.Key, e.KeyEnc)
		}
		if filter.Skip(e.Key) {
			continue
		}
		plan[e.Key] = &MixedEntity{Key: e.Key, Remote: e}
	}

	for _, p := range prevSync {
		if filter.Skip(p.Key) {
			continue
		}
		mixed := plan.entry(p.Key)
		e := p.copyNormalized()
		var known string
		if mixed.Remote != nil {
			known = mixed.Remote.KeyEnc
		}
		if err := encryptLocal(e, cipher, known, false); err != nil {
			return nil, err
		}
		mixed.PrevSync = e
	}

	for _, l := range local {
		if filter.Skip(l.Key) {
			continue
		}
		mixed := plan.entry(l.Key)
		e := l.copyNormalized()
		var known string
		if mixed.Remote != nil {
			known = mixed.Remote.KeyEnc
		} else if mixed.PrevSync != nil {
			known = mixed.PrevSync.KeyEnc
		}
		if err := encryptLocal(e, cipher, known, true); err != nil {
			return nil, err
		}
		mixed.Local = e
	}

	plan.addMissingParents(filter)
	return plan, nil
}

// addMissingParents gives every folder above a live entry its own entry, so a kept child
// always has a folder to be kept in. Encrypted stores have no parent markers to list.
func (p SyncPlan) addMissingParents(filter *NameFilter) {
	keys := make([]string, 0, len(p))
	for k, m := range p {
		if m.Local != nil || m.Remote != nil {
			keys = append(keys, k)
		}
	}
	for _, key := range keys {
		for parent := parentFolder(key); parent != "/"; parent = parentFolder(parent) {
			if _, ok := p[parent]; ok {
				continue
			}
			if filter.Skip(parent) {
				break
			}
			p[parent] = &MixedEntity{Key: parent}
		}
	}
}

func (p SyncPlan) entry(key string) *MixedEntity {
	if m, ok := p[key]; ok {
		return m
	}
	m := &MixedEntity{Key: key}
	p[key] = m
	return m
}

func decryptRemote(e *Entity, cipher NameCipher) error {
	if e.KeyEnc == "" {
		e.KeyEnc = e.Key
	}
	if cipher == nil {
		e.Key = e.KeyEnc
		e.Size = e.SizeEnc
		return nil
	}

	name, err := cipher.DecryptName(e.KeyEnc)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAmbiguousDecrypt, e.KeyEnc, err)
	}
	if !vaultcrypt.IsPlausibleText(name) {
		return fmt.Errorf("%w: %s decrypts to invalid text", ErrAmbiguousDecrypt, e.KeyEnc)
	}
	e.Key = name
	return nil
}

// encryptLocal derives the at-rest form of a local or history entity. knownKeyEnc is reused
// when present so a path keeps its encrypted name across runs. History records already
// carry the stored size, local scans need it computed.
func encryptLocal(e *Entity, cipher NameCipher, knownKeyEnc string, computeSize bool) error {
	if cipher == nil {
		if e.KeyEnc == "" {
			e.KeyEnc = e.Key
		}
		if e.SizeEnc == 0 {
			e.SizeEnc = e.Size
		}
		return nil
	}

	if computeSize && e.Size == e.SizeEnc {
		e.SizeEnc = vaultcrypt.EncryptedSize(e.Size)
	}
	if e.KeyEnc != "" && e.KeyEnc != e.Key {
		return nil
	}
	if knownKeyEnc != "" && knownKeyEnc != e.Key {
		e.KeyEnc = knownKeyEnc
		return nil
	}

	enc, err := cipher.EncryptName(e.Key)
	if err != nil {
		return fmt.Errorf("encrypt name %s: %w", e.Key, err)
	}
	e.KeyEnc = enc
	return nil
}
