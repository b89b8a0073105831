// Package keyring provides secure credential storage.
// It uses the system keyring when available, falling back to
// encrypted local file storage when not.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/scrypt"

	"github.com/ocguard/ocguard/common"
)

// Well-known credential entries.
const (
	// KeyPIN is the user's static PIN prefix.
	KeyPIN = "pin"
	// KeyOTPSecret is the base32 TOTP seed.
	KeyOTPSecret = "otp-secret"
	// KeyOTPAlgorithm is the OTP hash algorithm name.
	KeyOTPAlgorithm = "otp-algorithm"
)

// Common errors returned by keyring operations.
var (
	ErrNotFound = errors.New("credential not found")
)

// Storage backend state
var (
	useLocalStorage bool
	localStoreMu    sync.RWMutex
	localStore      map[string]string
	localStoreFile  string
	encryptionKey   []byte
	initialized     bool
	initMu          sync.Mutex
)

func initStorage() {
	initMu.Lock()
	defer initMu.Unlock()
	if initialized {
		return
	}

	// Try system keyring first
	testKey := common.KeyringService + "-test-init"
	err := keyring.Set(common.KeyringService, testKey, "test")
	if err == nil {
		keyring.Delete(common.KeyringService, testKey)
		useLocalStorage = false
	} else {
		useLocalStorage = true
		initLocalStorage()
	}
	initialized = true
}

func initLocalStorage() {
	configDir, err := common.GetConfigDir()
	if err != nil {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config", common.ConfigDirName)
		os.MkdirAll(configDir, 0700)
	}
	localStoreFile = filepath.Join(configDir, common.CredentialsFileName)

	// Derive the encryption key from machine-specific data so the file is
	// unreadable when copied to another host.
	hostname, _ := os.Hostname()
	keyData := fmt.Sprintf("%s-%s-%s-%d", common.KeyringService, hostname, getMachineID(), os.Getuid())
	key, err := scrypt.Key([]byte(keyData), []byte(common.KeyringService), 1<<15, 8, 1, 32)
	if err != nil {
		// scrypt only fails on bad parameters.
		panic(err)
	}
	encryptionKey = key

	// Load existing credentials
	localStore = make(map[string]string)
	loadLocalStore()
}

func getMachineID() string {
	data, err := os.ReadFile("/etc/machine-id")
	if err == nil {
		return strings.TrimSpace(string(data))
	}
	return "default-machine-id"
}

func loadLocalStore() {
	data, err := os.ReadFile(localStoreFile)
	if err != nil {
		return
	}

	decrypted, err := decrypt(data)
	if err != nil {
		return
	}

	json.Unmarshal(decrypted, &localStore)
}

func saveLocalStore() error {
	localStoreMu.RLock()
	data, err := json.Marshal(localStore)
	localStoreMu.RUnlock()
	if err != nil {
		return err
	}

	encrypted, err := encrypt(data)
	if err != nil {
		return err
	}

	return os.WriteFile(localStoreFile, encrypted, 0600)
}

func encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return []byte(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func decrypt(data []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// Store saves a credential under the given key.
func Store(key string, value string) error {
	if key == "" {
		return errors.New("credential key cannot be empty")
	}
	if value == "" {
		return errors.New("credential value cannot be empty")
	}
	initStorage()

	if useLocalStorage {
		localStoreMu.Lock()
		localStore[key] = value
		localStoreMu.Unlock()
		return saveLocalStore()
	}

	if err := keyring.Set(common.KeyringService, key, value); err != nil {
		// Fallback to local storage
		useLocalStorage = true
		initLocalStorage()
		localStoreMu.Lock()
		localStore[key] = value
		localStoreMu.Unlock()
		return saveLocalStore()
	}
	return nil
}

// Get retrieves a credential by key.
func Get(key string) (string, error) {
	if key == "" {
		return "", errors.New("credential key cannot be empty")
	}
	initStorage()

	if useLocalStorage {
		localStoreMu.RLock()
		value, exists := localStore[key]
		localStoreMu.RUnlock()
		if !exists {
			return "", ErrNotFound
		}
		return value, nil
	}

	value, err := keyring.Get(common.KeyringService, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", ErrNotFound
		}
		// Try local storage as fallback
		localStoreMu.RLock()
		value, exists := localStore[key]
		localStoreMu.RUnlock()
		if exists {
			return value, nil
		}
		return "", ErrNotFound
	}
	return value, nil
}

// Delete removes a credential by key.
func Delete(key string) error {
	if key == "" {
		return errors.New("credential key cannot be empty")
	}
	initStorage()

	if useLocalStorage {
		localStoreMu.Lock()
		delete(localStore, key)
		localStoreMu.Unlock()
		return saveLocalStore()
	}

	keyring.Delete(common.KeyringService, key)

	// The local store only exists once a fallback initialized it; with
	// no store there is no file or key material to touch.
	localStoreMu.Lock()
	fallback := localStore != nil
	if fallback {
		delete(localStore, key)
	}
	localStoreMu.Unlock()
	if fallback {
		if err := saveLocalStore(); err != nil {
			common.LogWarn("Failed to update credential store: %v", err)
		}
	}
	return nil
}

// Exists checks whether a credential is stored under the given key.
func Exists(key string) bool {
	_, err := Get(key)
	return err == nil
}
