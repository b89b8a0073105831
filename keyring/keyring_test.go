package keyring

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ocguard/ocguard/common"
)

// forceBackend pins the storage backend for a test and restores the
// package state afterwards.
func forceBackend(t *testing.T, local bool) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	initMu.Lock()
	initialized = true
	useLocalStorage = local
	initMu.Unlock()
	localStore = nil
	localStoreFile = ""
	encryptionKey = nil
	if local {
		initLocalStorage()
	}

	t.Cleanup(func() {
		initMu.Lock()
		initialized = false
		useLocalStorage = false
		initMu.Unlock()
		localStore = nil
		localStoreFile = ""
		encryptionKey = nil
	})
}

func TestLocalStore_RoundTrip(t *testing.T) {
	forceBackend(t, true)

	if err := Store(KeyPIN, "1234"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	got, err := Get(KeyPIN)
	if err != nil || got != "1234" {
		t.Fatalf("Get() = %q, %v, want 1234", got, err)
	}
	if !Exists(KeyPIN) {
		t.Error("Exists() = false for a stored credential")
	}

	info, err := os.Stat(localStoreFile)
	if err != nil {
		t.Fatalf("credentials file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("credentials file mode = %o, want 0600", perm)
	}
	data, err := os.ReadFile(localStoreFile)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "1234") {
		t.Error("credentials file holds the plaintext value")
	}

	if err := Delete(KeyPIN); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := Get(KeyPIN); err != ErrNotFound {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
}

func TestLocalStore_SurvivesReload(t *testing.T) {
	forceBackend(t, true)

	if err := Store(KeyOTPSecret, "JBSWY3DPEHPK3PXP"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	// A fresh process re-derives the key and re-reads the file.
	localStore = nil
	encryptionKey = nil
	initLocalStorage()

	got, err := Get(KeyOTPSecret)
	if err != nil || got != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("Get() after reload = %q, %v", got, err)
	}
}

func TestDelete_SystemKeyringSkipsLocalStore(t *testing.T) {
	forceBackend(t, false)

	if err := Delete("no-such-entry"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	credFile := filepath.Join(os.Getenv("HOME"), ".config", common.ConfigDirName, common.CredentialsFileName)
	if common.FileExists(credFile) {
		t.Error("Delete on the system keyring path must not create a credentials file")
	}
	if localStore != nil || encryptionKey != nil {
		t.Error("Delete on the system keyring path must not initialize the local store")
	}
}

// A credentials file written during an earlier fallback must not be
// rewritten by deletes that go to the system keyring.
func TestDelete_SystemKeyringDoesNotClobberCredentialsFile(t *testing.T) {
	forceBackend(t, true)

	if err := Store(KeyOTPSecret, "JBSWY3DPEHPK3PXP"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	before, err := os.ReadFile(localStoreFile)
	if err != nil {
		t.Fatal(err)
	}

	// The system keyring is back; the in-memory store is gone but the
	// file and key material linger.
	initMu.Lock()
	useLocalStorage = false
	initMu.Unlock()
	localStore = nil

	if err := Delete("no-such-entry"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	after, err := os.ReadFile(localStoreFile)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("Delete on the system keyring path rewrote the credentials file")
	}
}
