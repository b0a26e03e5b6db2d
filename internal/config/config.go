// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/jeranaias/ragchat/internal/attach"
	"github.com/jeranaias/ragchat/internal/backend"
	"github.com/jeranaias/ragchat/internal/chat"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// CurrentVersion is written into new config files.
const CurrentVersion = "1"

// Config is the root configuration structure for ragchat.
type Config struct {
	Version     string            `toml:"version" json:"version"`
	Backend     BackendConfig     `toml:"backend" json:"backend"`
	Chat        ChatConfig        `toml:"chat" json:"chat"`
	Attachments AttachmentsConfig `toml:"attachments" json:"attachments"`
	Logging     LoggingConfig     `toml:"logging" json:"logging"`
	UI          UIConfig          `toml:"ui" json:"ui"`
}

// BackendConfig locates and paces the backend API.
type BackendConfig struct {
	// URL of the backend API (default: http://localhost:8001)
	URL string `toml:"url" json:"url"`

	// TimeoutSecs bounds storage requests (default: 30)
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`

	// RequestsPerSecond paces storage requests; 0 disables pacing (default: 20)
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`

	// Burst is the pacing bucket size (default: 10)
	Burst int `toml:"burst" json:"burst"`
}

// ChatConfig controls submissions.
type ChatConfig struct {
	// DefaultModel is used when a thread has no model selected
	DefaultModel string `toml:"default_model" json:"default_model"`

	// Models lists extra model ids offered by the model picker
	Models []string `toml:"models" json:"models"`

	// SubmitTimeoutSecs bounds a whole submission, stream included (default: 300)
	SubmitTimeoutSecs int `toml:"submit_timeout_secs" json:"submit_timeout_secs"`

	// FallbackAnswer is shown in place of an answer when a submission fails
	FallbackAnswer string `toml:"fallback_answer" json:"fallback_answer"`
}

// AttachmentsConfig controls document attachments.
type AttachmentsConfig struct {
	// MaxSizeMB is the largest accepted attachment (default: 10)
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb"`

	// ProcessingMode is "offline" or "online" (default: offline)
	ProcessingMode string `toml:"processing_mode" json:"processing_mode"`
}

// LoggingConfig controls diagnostics output.
type LoggingConfig struct {
	// Level is debug, info, warn or error (default: warn)
	Level string `toml:"level" json:"level"`

	// Format is text or json (default: text)
	Format string `toml:"format" json:"format"`

	// File receives logs instead of stderr when set
	File string `toml:"file" json:"file"`
}

// UIConfig controls terminal rendering.
type UIConfig struct {
	// Markdown renders answers with glamour when stdout is a terminal (default: true)
	Markdown bool `toml:"markdown" json:"markdown"`

	// ShowThinking prints the model's thinking section above the answer
	ShowThinking bool `toml:"show_thinking" json:"show_thinking"`

	// HistoryFile stores REPL history; empty uses ~/.ragchat/history
	HistoryFile string `toml:"history_file" json:"history_file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Backend: BackendConfig{
			URL:               backend.DefaultBaseURL,
			TimeoutSecs:       30,
			RequestsPerSecond: 20,
			Burst:             10,
		},
		Chat: ChatConfig{
			DefaultModel:      model.DefaultModelID,
			Models:            []string{},
			SubmitTimeoutSecs: 300,
			FallbackAnswer:    chat.DefaultFallbackAnswer,
		},
		Attachments: AttachmentsConfig{
			MaxSizeMB:      int(attach.DefaultMaxSize / (1024 * 1024)),
			ProcessingMode: string(attach.ModeOffline),
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		UI: UIConfig{
			Markdown: true,
		},
	}
}

// fillDefaults fills zero values left by a partial config file.
func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = def.Backend.URL
	}
	if cfg.Backend.TimeoutSecs == 0 {
		cfg.Backend.TimeoutSecs = def.Backend.TimeoutSecs
	}
	if cfg.Backend.Burst == 0 {
		cfg.Backend.Burst = def.Backend.Burst
	}
	if cfg.Chat.DefaultModel == "" {
		cfg.Chat.DefaultModel = def.Chat.DefaultModel
	}
	if cfg.Chat.Models == nil {
		cfg.Chat.Models = []string{}
	}
	if cfg.Chat.SubmitTimeoutSecs == 0 {
		cfg.Chat.SubmitTimeoutSecs = def.Chat.SubmitTimeoutSecs
	}
	if cfg.Chat.FallbackAnswer == "" {
		cfg.Chat.FallbackAnswer = def.Chat.FallbackAnswer
	}
	if cfg.Attachments.MaxSizeMB == 0 {
		cfg.Attachments.MaxSizeMB = def.Attachments.MaxSizeMB
	}
	if cfg.Attachments.ProcessingMode == "" {
		cfg.Attachments.ProcessingMode = def.Attachments.ProcessingMode
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory. RAGCHAT_CONFIG_DIR
// overrides the default ~/.ragchat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("RAGCHAT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".ragchat"), nil
}

// ConfigPath returns the path to config.toml.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// HistoryPath returns the REPL history file for cfg.
func (c *Config) HistoryPath() (string, error) {
	if c.UI.HistoryFile != "" {
		return c.UI.HistoryFile, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history"), nil
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0077 != 0 {
		return os.Chmod(path, 0600)
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the configuration from ~/.ragchat/config.toml, falling back to
// defaults when the file does not exist. Environment overrides are applied
// last, then the result is validated.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if err := LoadTOML(cfg, path); err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg and fills missing values.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		slog.Warn("could not ensure secure permissions", "path", path, "error", err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("unknown config keys ignored", "path", path, "keys", fmt.Sprint(undecoded))
	}
	fillDefaults(cfg)
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to ~/.ragchat/config.toml.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# ragchat configuration file")
	fmt.Fprintln(&buf, "# Generated by ragchat - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

var httpScheme = regexp.MustCompile(`^https?://`)

// Validate checks every section. The returned error is a
// validation.Errors keyed by section.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend),
		validation.Field(&c.Chat),
		validation.Field(&c.Attachments),
		validation.Field(&c.Logging),
	)
}

// Validate checks the backend section.
func (b BackendConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.URL,
			validation.Required,
			is.RequestURL,
			validation.Match(httpScheme).Error("must use http or https")),
		validation.Field(&b.TimeoutSecs, validation.Required, validation.Min(1), validation.Max(3600)),
		validation.Field(&b.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&b.Burst, validation.Min(0)),
	)
}

// Validate checks the chat section.
func (c ChatConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DefaultModel, validation.Required),
		validation.Field(&c.SubmitTimeoutSecs, validation.Required, validation.Min(1)),
		validation.Field(&c.FallbackAnswer, validation.Required),
	)
}

// Validate checks the attachments section.
func (a AttachmentsConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.MaxSizeMB, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&a.ProcessingMode,
			validation.Required,
			validation.In(string(attach.ModeOffline), string(attach.ModeOnline))),
	)
}

// Validate checks the logging section.
func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.Required, validation.In("text", "json")),
	)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies RAGCHAT_* environment variables:
//   - RAGCHAT_BACKEND_URL: overrides backend.url
//   - RAGCHAT_TIMEOUT: overrides backend.timeout_secs
//   - RAGCHAT_MODEL: overrides chat.default_model
//   - RAGCHAT_PROCESSING_MODE: overrides attachments.processing_mode
//   - RAGCHAT_LOG_LEVEL: overrides logging.level
//   - RAGCHAT_LOG_FORMAT: overrides logging.format
//   - RAGCHAT_NO_MARKDOWN: disables ui.markdown when "1" or "true"
func (c *Config) ApplyEnvOverrides() {
	if url := os.Getenv("RAGCHAT_BACKEND_URL"); url != "" {
		c.Backend.URL = url
	}
	if timeout := os.Getenv("RAGCHAT_TIMEOUT"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil && secs > 0 {
			c.Backend.TimeoutSecs = secs
		}
	}
	if model := os.Getenv("RAGCHAT_MODEL"); model != "" {
		c.Chat.DefaultModel = model
	}
	if mode := os.Getenv("RAGCHAT_PROCESSING_MODE"); mode != "" {
		c.Attachments.ProcessingMode = strings.ToLower(mode)
	}
	if level := os.Getenv("RAGCHAT_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
	if format := os.Getenv("RAGCHAT_LOG_FORMAT"); format != "" {
		c.Logging.Format = strings.ToLower(format)
	}
	if noMD := os.Getenv("RAGCHAT_NO_MARKDOWN"); noMD != "" {
		if noMD == "1" || strings.ToLower(noMD) == "true" {
			c.UI.Markdown = false
		}
	}
}

// =============================================================================
// COMPONENT CONFIGURATION
// =============================================================================

// ClientConfig returns the backend client settings.
func (c *Config) ClientConfig(logger *slog.Logger) *backend.ClientConfig {
	return &backend.ClientConfig{
		BaseURL:           c.Backend.URL,
		Timeout:           time.Duration(c.Backend.TimeoutSecs) * time.Second,
		RequestsPerSecond: c.Backend.RequestsPerSecond,
		Burst:             c.Backend.Burst,
		Logger:            logger,
	}
}

// ManagerConfig returns the conversation manager settings.
func (c *Config) ManagerConfig(logger *slog.Logger) chat.Config {
	return chat.Config{
		DefaultModel:   model.ResolveModel(c.Chat.DefaultModel),
		SubmitTimeout:  time.Duration(c.Chat.SubmitTimeoutSecs) * time.Second,
		FallbackAnswer: c.Chat.FallbackAnswer,
		Logger:         logger,
	}
}

// AttachOptions returns the attachment limits and processing mode.
func (c *Config) AttachOptions() attach.Options {
	return attach.Options{
		MaxSize: int64(c.Attachments.MaxSizeMB) * 1024 * 1024,
		Mode:    attach.ProcessingMode(c.Attachments.ProcessingMode),
	}
}

// AvailableModels returns the catalogue model ids followed by any extra
// configured ids, without duplicates.
func (c *Config) AvailableModels() []string {
	ids := model.ModelIDs()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range c.Chat.Models {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "chat.default_model").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(part[:1]))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %w", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %w", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				if items == nil {
					items = []string{}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String && field.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns every settable key in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"backend.url",
		"backend.timeout_secs",
		"backend.requests_per_second",
		"backend.burst",
		"chat.default_model",
		"chat.models",
		"chat.submit_timeout_secs",
		"chat.fallback_answer",
		"attachments.max_size_mb",
		"attachments.processing_mode",
		"logging.level",
		"logging.format",
		"logging.file",
		"ui.markdown",
		"ui.show_thinking",
		"ui.history_file",
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Chat.Models = append([]string{}, c.Chat.Models...)
	return &clone
}
