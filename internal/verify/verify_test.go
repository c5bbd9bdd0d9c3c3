package verify

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"           //nolint:staticcheck
	"github.com/ProtonMail/go-crypto/openpgp/armor"     //nolint:staticcheck
	"github.com/ProtonMail/go-crypto/openpgp/clearsign" //nolint:staticcheck
	"github.com/ProtonMail/go-crypto/openpgp/packet"    //nolint:staticcheck

	"github.com/ZebulonRouseFrantzich/nodepack/internal/fetch"
)

const sampleSums = `0a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f9  node-v14.0.0-darwin-x64.tar.gz
AABBCCDDEEFF00112233445566778899AABBCCDDEEFF00112233445566778899  node-v14.0.0.tar.gz
1111111111111111111111111111111111111111111111111111111111111111 *win-x64/node.exe

garbage
`

func testEntity(t *testing.T) *openpgp.Entity {
	t.Helper()
	entity, err := openpgp.NewEntity("Release Signer", "test", "signer@example.test", &packet.Config{
		Algorithm: packet.PubKeyAlgoEdDSA,
	})
	if err != nil {
		t.Fatalf("failed to create entity: %v", err)
	}
	return entity
}

func clearsignText(t *testing.T, entity *openpgp.Entity, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, entity.PrivateKey, nil)
	if err != nil {
		t.Fatalf("failed to start clearsign: %v", err)
	}
	if _, err := w.Write([]byte(text)); err != nil {
		t.Fatalf("failed to write clearsign body: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	return buf.Bytes()
}

func TestParseChecksums(t *testing.T) {
	sums, err := ParseChecksums([]byte(sampleSums))
	if err != nil {
		t.Fatalf("ParseChecksums() error = %v", err)
	}

	tests := []struct {
		name    string
		file    string
		want    string
		wantErr bool
	}{
		{"exact", "node-v14.0.0-darwin-x64.tar.gz", "0a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f9", false},
		{"lowercased", "node-v14.0.0.tar.gz", "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899", false},
		{"binary marker and directory", "node.exe", "1111111111111111111111111111111111111111111111111111111111111111", false},
		{"missing", "node-v15.0.0.tar.gz", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sums.Lookup(tt.file)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Lookup(%q) error = %v, wantErr %v", tt.file, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Lookup(%q) = %q, want %q", tt.file, got, tt.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeNone, false},
		{"none", ModeNone, false},
		{"checksum", ModeChecksum, false},
		{"signature", ModeSignature, false},
		{"gpg", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChecksumURL(t *testing.T) {
	got, err := ChecksumURL("https://nodejs.org/dist/v14.0.0/node-v14.0.0.tar.gz", false)
	if err != nil {
		t.Fatalf("ChecksumURL() error = %v", err)
	}
	if want := "https://nodejs.org/dist/v14.0.0/SHASUMS256.txt"; got != want {
		t.Errorf("ChecksumURL() = %q, want %q", got, want)
	}

	got, err = ChecksumURL("https://nodejs.org/dist/v14.0.0/node-v14.0.0.tar.gz?x=1", true)
	if err != nil {
		t.Fatalf("ChecksumURL() error = %v", err)
	}
	if want := "https://nodejs.org/dist/v14.0.0/SHASUMS256.txt.asc"; got != want {
		t.Errorf("ChecksumURL() = %q, want %q", got, want)
	}
}

func TestVerifyClearsigned(t *testing.T) {
	entity := testEntity(t)
	keyring := openpgp.EntityList{entity}
	signed := clearsignText(t, entity, sampleSums)

	plain, err := VerifyClearsigned(keyring, "SHASUMS256.txt.asc", signed)
	if err != nil {
		t.Fatalf("VerifyClearsigned() error = %v", err)
	}
	if !strings.Contains(string(plain), "node-v14.0.0.tar.gz") {
		t.Errorf("plaintext missing entries: %q", plain)
	}

	t.Run("tampered", func(t *testing.T) {
		tampered := bytes.Replace(signed, []byte("AABBCCDDEEFF"), []byte("FFBBCCDDEEFF"), 1)
		if bytes.Equal(tampered, signed) {
			t.Fatal("fixture did not change")
		}
		_, err := VerifyClearsigned(keyring, "SHASUMS256.txt.asc", tampered)
		var sigErr *SignatureError
		if !errors.As(err, &sigErr) {
			t.Fatalf("error = %v, want *SignatureError", err)
		}
	})

	t.Run("unknown signer", func(t *testing.T) {
		other := openpgp.EntityList{testEntity(t)}
		if _, err := VerifyClearsigned(other, "SHASUMS256.txt.asc", signed); err == nil {
			t.Fatal("expected error but got none")
		}
	})

	t.Run("not clearsigned", func(t *testing.T) {
		_, err := VerifyClearsigned(keyring, "SHASUMS256.txt", []byte(sampleSums))
		var sigErr *SignatureError
		if !errors.As(err, &sigErr) {
			t.Fatalf("error = %v, want *SignatureError", err)
		}
	})
}

func TestLoadKeyring(t *testing.T) {
	entity := testEntity(t)
	dir := t.TempDir()

	var armored bytes.Buffer
	w, err := armor.Encode(&armored, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatalf("failed to start armor: %v", err)
	}
	if err := entity.Serialize(w); err != nil {
		t.Fatalf("failed to serialize key: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close armor: %v", err)
	}

	var binary bytes.Buffer
	if err := entity.Serialize(&binary); err != nil {
		t.Fatalf("failed to serialize key: %v", err)
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"armored", armored.Bytes(), false},
		{"binary", binary.Bytes(), false},
		{"garbage", []byte("not a key"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".gpg")
			if err := os.WriteFile(path, tt.data, 0644); err != nil {
				t.Fatalf("failed to write keyring: %v", err)
			}

			keyring, err := LoadKeyring(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadKeyring() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(keyring) != 1 {
				t.Errorf("LoadKeyring() returned %d entities, want 1", len(keyring))
			}
		})
	}

	if _, err := LoadKeyring(filepath.Join(dir, "missing.gpg")); err == nil {
		t.Error("expected error for missing keyring")
	}
}

func TestChecker_Expected(t *testing.T) {
	entity := testEntity(t)
	signed := clearsignText(t, entity, sampleSums)

	mux := http.NewServeMux()
	mux.HandleFunc("/dist/v14.0.0/SHASUMS256.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleSums))
	})
	mux.HandleFunc("/dist/v14.0.0/SHASUMS256.txt.asc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(signed)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	artifact := server.URL + "/dist/v14.0.0/node-v14.0.0.tar.gz"
	want := "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899"

	tests := []struct {
		name    string
		mode    Mode
		keyring openpgp.EntityList
		want    string
	}{
		{"none", ModeNone, nil, ""},
		{"checksum", ModeChecksum, nil, want},
		{"signature", ModeSignature, openpgp.EntityList{entity}, want},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker, err := NewChecker(fetch.NewFetcher(), tt.mode, tt.keyring)
			if err != nil {
				t.Fatalf("NewChecker() error = %v", err)
			}
			got, err := checker.Expected(context.Background(), artifact, fetch.Options{})
			if err != nil {
				t.Fatalf("Expected() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("signature with wrong key", func(t *testing.T) {
		checker, err := NewChecker(fetch.NewFetcher(), ModeSignature, openpgp.EntityList{testEntity(t)})
		if err != nil {
			t.Fatalf("NewChecker() error = %v", err)
		}
		_, err = checker.Expected(context.Background(), artifact, fetch.Options{})
		var sigErr *SignatureError
		if !errors.As(err, &sigErr) {
			t.Fatalf("error = %v, want *SignatureError", err)
		}
	})

	t.Run("artifact not listed", func(t *testing.T) {
		checker, _ := NewChecker(fetch.NewFetcher(), ModeChecksum, nil)
		if _, err := checker.Expected(context.Background(), server.URL+"/dist/v14.0.0/other.tar.gz", fetch.Options{}); err == nil {
			t.Fatal("expected error but got none")
		}
	})
}

func TestNewChecker_SignatureNeedsKeyring(t *testing.T) {
	if _, err := NewChecker(fetch.NewFetcher(), ModeSignature, nil); err == nil {
		t.Fatal("expected error but got none")
	}
}
