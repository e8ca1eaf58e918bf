// Package secrets provides a thread-safe secret vault with hot reload support.
package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Well-known secret keys. Config carries non-secret settings only; these are
// resolved through the vault so a SIGHUP can rotate them without a restart.
const (
	KeyPaymentKeySecret = "TENANTFORGE_PAYMENT_KEY_SECRET"
	KeyWebhookSecret    = "TENANTFORGE_WEBHOOK_SECRET"
	KeySessionSecret    = "TENANTFORGE_SESSION_SECRET"
	KeySMTPPassword     = "TENANTFORGE_SMTP_PASSWORD"
)

// All lists every secret the server reads.
var All = []string{KeyPaymentKeySecret, KeyWebhookSecret, KeySessionSecret, KeySMTPPassword}

// Loader retrieves secrets from a source (env vars, .env file, etc.).
type Loader func() (map[string]string, error)

// Vault holds secret values in memory and supports atomic reloading.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{
		values: vals,
		loader: loader,
	}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Func returns a getter bound to key. Callers hold the getter, not the value,
// so a reload is picked up on the next call.
func (v *Vault) Func(key string) func() string {
	return func() string { return v.Get(key) }
}

// Require fails when any of keys is missing or empty.
func (v *Vault) Require(keys ...string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var missing []string
	for _, k := range keys {
		if v.values[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing secrets: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Reload calls the loader and swaps in the new values atomically.
// If the loader returns an error, existing values are preserved.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	v.mu.Unlock()
	return nil
}

// Keys returns the names of all loaded secrets, sorted.
func (v *Vault) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.values))
	for k := range v.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Redacted returns a masked form of the secret safe for logs.
func (v *Vault) Redacted(key string) string {
	return mask(v.Get(key))
}

// RedactString masks every loaded secret value that occurs in s.
func (v *Vault) RedactString(s string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, val := range v.values {
		if len(val) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, val, mask(val))
	}
	return s
}

func mask(val string) string {
	switch {
	case val == "":
		return ""
	case len(val) <= 4:
		return "****"
	default:
		return val[:2] + "****"
	}
}
