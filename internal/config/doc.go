// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for ragchat.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RAGCHAT_*), including those from a .env file
//   - ~/.ragchat/config.toml (RAGCHAT_CONFIG_DIR moves the directory)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := backend.NewClient(cfg.ClientConfig(logger))
//	manager := chat.NewManager(client, cfg.ManagerConfig(logger))
//
// Values can be read and written with dot notation:
//
//	_ = cfg.Set("attachments.processing_mode", "online")
//	mode, _ := cfg.Get("attachments.processing_mode")
package config
