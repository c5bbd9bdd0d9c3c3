package verify

import (
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"           //nolint:staticcheck // Using ProtonMail's maintained fork
	"github.com/ProtonMail/go-crypto/openpgp/clearsign" //nolint:staticcheck
	"github.com/ProtonMail/go-crypto/openpgp/packet"    //nolint:staticcheck
)

var pgpConfig = packet.Config{
	DefaultHash: crypto.SHA512,
}

// SignatureError reports a checksum list whose signature could not be
// verified against the keyring.
type SignatureError struct {
	Source string
	Err    error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature verification failed for %s: %v", e.Source, e.Err)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}

// LoadKeyring reads a public keyring file, armored or binary.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer f.Close()

	return ReadKeyring(f)
}

// ReadKeyring parses a public keyring, trying the armored form first.
func ReadKeyring(r io.ReadSeeker) (openpgp.EntityList, error) {
	keyring, err := openpgp.ReadArmoredKeyRing(r)
	if err != nil {
		if _, serr := r.Seek(0, io.SeekStart); serr != nil {
			return nil, fmt.Errorf("rewind keyring: %w", serr)
		}
		keyring, err = openpgp.ReadKeyRing(r)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, errors.New("keyring is empty")
	}
	return keyring, nil
}

// VerifyClearsigned checks a clearsigned document and returns its plaintext.
func VerifyClearsigned(keyring openpgp.KeyRing, source string, data []byte) ([]byte, error) {
	block, _ := clearsign.Decode(data)
	if block == nil {
		return nil, &SignatureError{Source: source, Err: errors.New("signature block not found")}
	}

	_, err := openpgp.CheckDetachedSignature(
		keyring,
		bytes.NewReader(block.Bytes),
		block.ArmoredSignature.Body,
		&pgpConfig,
	)
	if err != nil {
		return nil, &SignatureError{Source: source, Err: err}
	}

	return block.Plaintext, nil
}
