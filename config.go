// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package sixlab

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Well-known provider configuration keys shared by all providers.
const (
	ConfigAPIKey             = "api_key"
	ConfigAPIEndpoint        = "api_endpoint"
	ConfigModel              = "model"
	ConfigTemperature        = "temperature"
	ConfigMaxTokens          = "max_tokens"
	ConfigTimeout            = "timeout"
	ConfigRateLimitPerMinute = "rate_limit_per_minute"
	ConfigRateLimitPerHour   = "rate_limit_per_hour"
	ConfigRateLimitPerDay    = "rate_limit_per_day"
	ConfigInputTokenRate     = "input_token_rate"
	ConfigOutputTokenRate    = "output_token_rate"
	ConfigContentFilter      = "content_filter"
	ConfigEnabled            = "enabled"
)

// DefaultTimeout is used when a provider config does not set ConfigTimeout.
const DefaultTimeout = 30 * time.Second

// ProviderConfig is the configuration of a single provider instance.
type ProviderConfig map[string]any

// MarshalJSON redacts sensitive fields during JSON serialization
func (c ProviderConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.redactSecrets())
}

// String redacts sensitive fields in string representations
func (c ProviderConfig) String() string {
	return fmt.Sprintf("%v", c.redactSecrets())
}

// RedactedValue stands in for secrets in JSON and string output.
const RedactedValue = "********"

// IsSecretKey reports whether values under key are redacted.
func IsSecretKey(key string) bool {
	switch key {
	case ConfigAPIKey, "secret", "password":
		return true
	default:
		return false
	}
}

func (c ProviderConfig) redactSecrets() map[string]any {
	redacted := make(map[string]any, len(c))
	for k, v := range c {
		if IsSecretKey(k) {
			redacted[k] = RedactedValue
			continue
		}
		redacted[k] = v
	}
	return redacted
}

// WithoutRedacted returns a copy of c without the secret keys that still
// hold RedactedValue, so a redacted config sent back as an update leaves the
// stored secrets alone.
func (c ProviderConfig) WithoutRedacted() ProviderConfig {
	out := make(ProviderConfig, len(c))
	for k, v := range c {
		if s, ok := v.(string); ok && s == RedactedValue && IsSecretKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of the config.
func (c ProviderConfig) Clone() ProviderConfig {
	out := make(ProviderConfig, len(c))
	maps.Copy(out, c)
	return out
}

// Merge returns a copy of c with every key of override applied on top.
func (c ProviderConfig) Merge(override ProviderConfig) ProviderConfig {
	out := c.Clone()
	maps.Copy(out, override)
	return out
}

// GetString returns the value of key as a string, or "" when absent.
func (c ProviderConfig) GetString(key string) string {
	switch v := c[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// GetFloat returns the value of key as a float64, or def when absent or not numeric.
func (c ProviderConfig) GetFloat(key string, def float64) float64 {
	if f, ok := toFloat(c[key]); ok {
		return f
	}
	return def
}

// GetInt returns the value of key as an int64, or def when absent or not numeric.
func (c ProviderConfig) GetInt(key string, def int64) int64 {
	if f, ok := toFloat(c[key]); ok {
		return int64(f)
	}
	return def
}

// GetBool returns the value of key as a bool, or def when absent.
func (c ProviderConfig) GetBool(key string, def bool) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	case int, int64, float64:
		f, _ := toFloat(v)
		return f != 0
	default:
		return def
	}
}

// Timeout returns the configured request timeout (seconds in the config).
func (c ProviderConfig) Timeout() time.Duration {
	secs := c.GetFloat(ConfigTimeout, 0)
	if secs <= 0 {
		return DefaultTimeout
	}
	return time.Duration(secs * float64(time.Second))
}

// IsEmptyValue reports whether v counts as "not set" for required fields.
func IsEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToFloat converts numeric values (and numeric strings) to float64.
func ToFloat(v any) (float64, bool) {
	return toFloat(v)
}

// FieldType is the input type of a configuration field, consumed by
// the settings rendering collaborator.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypePassword FieldType = "password"
	FieldTypeNumber   FieldType = "number"
	FieldTypeURL      FieldType = "url"
	FieldTypeSelect   FieldType = "select"
	FieldTypeCheckbox FieldType = "checkbox"
)

// ConfigField describes one entry of a provider's configuration schema.
type ConfigField struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Label       string    `json:"label" yaml:"label"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	// Validation is a pipe-delimited rule list, e.g. "required|min:8".
	Validation string   `json:"validation,omitempty" yaml:"validation,omitempty"`
	Options    []string `json:"options,omitempty" yaml:"options,omitempty"`
	Default    any      `json:"default,omitempty" yaml:"default,omitempty"`
}

// ConfigStore is durable key/value storage for provider configuration and
// other options.
type ConfigStore interface {
	// GetOption returns the raw JSON value stored under key, or ErrNotFound.
	GetOption(ctx context.Context, key string) (json.RawMessage, error)

	// SetOption stores value (JSON) under key, replacing any previous value.
	SetOption(ctx context.Context, key string, value json.RawMessage) error
}

// Option keys used in the ConfigStore.
const (
	OptionMonthlyBudget = "monthly_budget"
)

// ProviderOptionKey is the ConfigStore key that holds the configuration of providerType.
func ProviderOptionKey(providerType string) string {
	return "provider:" + providerType
}

// LoadProviderConfig reads the stored configuration of providerType.
func LoadProviderConfig(ctx context.Context, store ConfigStore, providerType string) (ProviderConfig, error) {
	raw, err := store.GetOption(ctx, ProviderOptionKey(providerType))
	if err != nil {
		return nil, err
	}
	var cfg ProviderConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config for provider %s: %w", providerType, err)
	}
	return cfg, nil
}

// SaveProviderConfig stores cfg for providerType. Secrets are stored unredacted.
func SaveProviderConfig(ctx context.Context, store ConfigStore, providerType string, cfg ProviderConfig) error {
	raw, err := json.Marshal(map[string]any(cfg))
	if err != nil {
		return fmt.Errorf("failed to encode config for provider %s: %w", providerType, err)
	}
	return store.SetOption(ctx, ProviderOptionKey(providerType), raw)
}
