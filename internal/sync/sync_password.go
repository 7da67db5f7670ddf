package sync

import (
	"github.com/openmined/vaultsync/internal/vaultcrypt"
)

type PasswordReason string

const (
	PasswordEmptyRemote            PasswordReason = "empty_remote"
	PasswordRemoteEncryptedNoLocal PasswordReason = "remote_encrypted_local_no_password"
	PasswordMatched                PasswordReason = "password_matched"
	PasswordNotMatched             PasswordReason = "password_not_matched"
	PasswordInvalidText            PasswordReason = "invalid_text_after_decryption"
	PasswordRemotePlainLocalHas    PasswordReason = "remote_not_encrypted_local_has_password"
	PasswordNoneBothSides          PasswordReason = "no_password_both_sides"
)

type PasswordCheck struct {
	OK     bool           `json:"ok"`
	Reason PasswordReason `json:"reason"`
}

// CheckPassword samples the first remote entity and tells whether password fits the store.
// A successful decrypt is only trusted when the result is plausible text: a wrong key can
// still produce valid padding.
func CheckPassword(remote []*Entity, password string, cipher NameCipher) PasswordCheck {
	if len(remote) == 0 {
		return PasswordCheck{OK: true, Reason: PasswordEmptyRemote}
	}

	sample := remote[0].KeyEnc
	if sample == "" {
		sample = remote[0].Key
	}

	if vaultcrypt.SchemeOf(sample) == vaultcrypt.SchemeNone {
		if password != "" {
			return PasswordCheck{OK: false, Reason: PasswordRemotePlainLocalHas}
		}
		return PasswordCheck{OK: true, Reason: PasswordNoneBothSides}
	}

	if password == "" {
		return PasswordCheck{OK: false, Reason: PasswordRemoteEncryptedNoLocal}
	}

	var (
		name string
		err  error
	)
	if cipher != nil && cipher.Enabled() {
		name, err = cipher.DecryptName(sample)
	} else {
		name, err = vaultcrypt.DecryptName(sample, password)
	}
	if err != nil {
		return PasswordCheck{OK: false, Reason: PasswordNotMatched}
	}
	if !vaultcrypt.IsPlausibleText(name) {
		return PasswordCheck{OK: false, Reason: PasswordInvalidText}
	}
	return PasswordCheck{OK: true, Reason: PasswordMatched}
}
