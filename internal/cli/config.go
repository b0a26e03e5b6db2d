// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - the "config" command.
//
// Subcommands:
//
//	show (default)      Display the effective configuration
//	get <key>           Print one value
//	set <key> <value>   Change a value in the config file
//	keys                List settable keys
//	path                Show the config file location
//	init                Write a default config file
//
// Keys use dot notation: "backend.url", "chat.default_model".
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/ragchat/internal/config"
)

// HandleConfig runs a config subcommand.
func (a *App) HandleConfig(ctx context.Context) error {
	sub := a.Args.Subcommand
	rest := a.Args.Positional
	if len(rest) > 0 {
		rest = rest[1:]
	}

	switch sub {
	case "", "show":
		return a.configShow()
	case "get":
		if len(rest) < 1 {
			return NewUsageError("missing key", "ragchat config get <key>")
		}
		return a.configGet(rest[0])
	case "set":
		if len(rest) < 2 {
			return NewUsageError("missing key or value", "ragchat config set <key> <value>")
		}
		return a.configSet(rest[0], strings.Join(rest[1:], " "))
	case "keys":
		for _, key := range config.GetAllKeys() {
			fmt.Fprintln(a.Out, key)
		}
		return nil
	case "path":
		if a.Args.JSON {
			return outputJSON(a.Out, map[string]string{"path": a.ConfigPath})
		}
		fmt.Fprintln(a.Out, a.ConfigPath)
		return nil
	case "init":
		return a.configInit()
	default:
		return NewUsageError(fmt.Sprintf("unknown config subcommand %q", sub), "ragchat config show|get|set|keys|path|init")
	}
}

func (a *App) configShow() error {
	if a.Args.JSON {
		return outputJSON(a.Out, a.Config)
	}

	fmt.Fprintln(a.Out, RenderConditional(TitleStyle, "Configuration"))
	fmt.Fprintf(a.Out, "%s\n\n", RenderConditional(DimStyle, a.ConfigPath))

	section := ""
	for _, key := range config.GetAllKeys() {
		name, field, found := strings.Cut(key, ".")
		if !found {
			continue
		}
		if name != section {
			if section != "" {
				fmt.Fprintln(a.Out)
			}
			fmt.Fprintf(a.Out, "[%s]\n", name)
			section = name
		}
		value, err := a.Config.Get(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "  %s%s\n", RenderLabel(field), formatConfigValue(value))
	}
	return nil
}

func (a *App) configGet(key string) error {
	value, err := a.Config.Get(key)
	if err != nil {
		return NewUsageError(err.Error(), "ragchat config keys")
	}
	if a.Args.JSON {
		return outputJSON(a.Out, map[string]interface{}{"key": key, "value": value})
	}
	fmt.Fprintln(a.Out, formatConfigValue(value))
	return nil
}

// configSet edits the file contents only, so flags and environment
// overrides in effect for this run are not written back.
func (a *App) configSet(key, value string) error {
	cfg, err := a.fileConfig()
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return NewUsageError(err.Error(), "ragchat config keys")
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Path: a.ConfigPath, Err: err}
	}
	if err := config.SaveTOML(cfg, a.ConfigPath); err != nil {
		return &ConfigError{Path: a.ConfigPath, Err: err}
	}

	a.Logger.Info("config updated", "key", key, "path", a.ConfigPath)
	if a.Args.JSON {
		newValue, _ := cfg.Get(key)
		return outputJSON(a.Out, map[string]interface{}{"key": key, "value": newValue, "saved": true})
	}
	if !a.Args.Quiet {
		fmt.Fprintf(a.Out, "%s %s = %s\n", RenderConditional(SuccessStyle, "[OK]"), key, value)
	}
	return nil
}

func (a *App) configInit() error {
	if _, err := os.Stat(a.ConfigPath); err == nil {
		return NewUsageError("config file already exists: "+a.ConfigPath, "ragchat config set <key> <value>")
	}
	if err := config.SaveTOML(config.Default(), a.ConfigPath); err != nil {
		return &ConfigError{Path: a.ConfigPath, Err: err}
	}
	if !a.Args.Quiet {
		fmt.Fprintf(a.Out, "%s wrote %s\n", RenderConditional(SuccessStyle, "[OK]"), a.ConfigPath)
	}
	return nil
}

// fileConfig reads the config file without overrides, or defaults when it
// does not exist yet.
func (a *App) fileConfig() (*config.Config, error) {
	if _, err := os.Stat(a.ConfigPath); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	cfg := &config.Config{}
	if err := config.LoadTOML(cfg, a.ConfigPath); err != nil {
		return nil, &ConfigError{Path: a.ConfigPath, Err: err}
	}
	return cfg, nil
}

func formatConfigValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return RenderConditional(DimStyle, "(not set)")
		}
		return v
	case []string:
		if len(v) == 0 {
			return RenderConditional(DimStyle, "(none)")
		}
		return strings.Join(v, ", ")
	default:
		return fmt.Sprint(v)
	}
}
