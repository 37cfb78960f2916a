package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// Keyring coordinates for the vendor API key.
const (
	KeyringService   = "scriptreel"
	KeyringVendorKey = "vendor_api_key"
)

// SecretStore reads and writes credentials. The default uses the OS keyring.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// Keyring returns the OS keyring store.
func Keyring() SecretStore {
	return osKeyring{}
}

// ApplyKeyringFallback fills Vendor.APIKey from store when neither the file
// nor the environment supplied one. An empty keyring is not an error.
func (c *Config) ApplyKeyringFallback(store SecretStore) error {
	if c.Vendor.APIKey != "" || store == nil {
		return nil
	}
	value, err := store.Get(KeyringService, KeyringVendorKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read vendor key from keyring: %w", err)
	}
	c.Vendor.APIKey = strings.TrimSpace(value)
	return nil
}

// StoreVendorKey saves key in store. An empty key removes the entry.
func StoreVendorKey(store SecretStore, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		err := store.Delete(KeyringService, KeyringVendorKey)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("remove vendor key: %w", err)
		}
		return nil
	}
	if err := store.Set(KeyringService, KeyringVendorKey, key); err != nil {
		return fmt.Errorf("store vendor key: %w", err)
	}
	return nil
}
