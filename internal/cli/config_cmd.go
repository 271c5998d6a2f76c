// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Config command: show and change configuration.
//
// Command: config
// Aliases: cfg
//
// Examples:
//   rigtool config show               Effective configuration by section
//   rigtool config get server.profile
//   rigtool config set server.profile full
//   rigtool config path               Where the config file lives
//
// Set saves to the TOML config file and validates the result first, so a
// typo cannot persist a config the server would refuse to start with.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/rigtool/internal/config"
)

// HandleConfig implements the "config" command.
func HandleConfig(args Args) error {
	parser := NewArgParser(args.Raw)

	switch parser.Subcommand() {
	case "", "show":
		return configShow(args)
	case "get":
		return configGet(parser, args)
	case "set":
		return configSet(parser, args)
	case "path":
		return configPath(args)
	default:
		return NewValidationErrorWithExample("subcommand", parser.Subcommand(),
			"unknown config subcommand", "show, get, set, path")
	}
}

// configShow prints every known key grouped by section.
func configShow(args Args) error {
	cfg := config.Global()

	if args.JSON {
		values := make(map[string]interface{})
		for _, key := range config.GetAllKeys() {
			if val, err := cfg.Get(key); err == nil {
				values[key] = val
			}
		}
		return outputJSON(values)
	}

	path, _ := config.ConfigPathTOML()
	fmt.Println(TitleStyle.Render("rigtool configuration"))
	fmt.Printf("%s\n\n", DimStyle.Render(path))

	section := ""
	for _, key := range config.GetAllKeys() {
		val, err := cfg.Get(key)
		if err != nil {
			continue
		}

		keySection, name := splitKey(key)
		if keySection != section {
			section = keySection
			fmt.Println(SectionStyle.Render("[" + section + "]"))
		}
		fmt.Printf("  %s %s\n", RenderLabel(name, 22), ValueStyle.Render(fmt.Sprintf("%v", val)))
	}
	return nil
}

// splitKey splits "server.profile" into section and name. Top-level keys
// land in the "general" section.
func splitKey(key string) (section, name string) {
	if idx := strings.Index(key, "."); idx >= 0 {
		return key[:idx], key[idx+1:]
	}
	return "general", key
}

// configGet prints one value.
func configGet(parser *ArgParser, args Args) error {
	key := parser.Positional(1)
	if key == "" {
		return ErrMissingArgument("key", "rigtool config get server.profile")
	}

	val, err := config.Global().Get(key)
	if err != nil {
		return NewNotFoundError("config key", key)
	}

	display := fmt.Sprintf("%v", val)
	if strings.HasSuffix(key, "passphrase") && display != "" {
		display = "[REDACTED]"
	}

	if args.JSON {
		return outputJSON(map[string]interface{}{key: val})
	}

	fmt.Println(display)
	return nil
}

// configSet changes one value and saves the config file.
func configSet(parser *ArgParser, args Args) error {
	key := parser.Positional(1)
	value := parser.Positional(2)
	if key == "" || value == "" {
		return ErrMissingArgument("key and value", "rigtool config set server.profile full")
	}

	cfg := config.Global().Clone()
	if err := cfg.Set(key, value); err != nil {
		return NewValidationError(key, value, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return NewCommandError("config", "set", "new value failed validation", err)
	}

	if args.ConfigPath != "" {
		if err := config.SaveTOML(cfg, args.ConfigPath); err != nil {
			return NewCommandError("config", "set", "could not save", err)
		}
	} else if err := config.Save(cfg); err != nil {
		return NewCommandError("config", "set", "could not save", err)
	}
	config.SetGlobal(cfg)

	if args.JSON {
		return outputJSON(map[string]interface{}{key: value, "saved": true})
	}

	fmt.Printf("%s %s = %s\n", RenderStatus("ok"), key, value)
	return nil
}

// configPath prints the config file location and whether it exists.
func configPath(args Args) error {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return NewCommandError("config", "path", "could not resolve config dir", err)
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil

	if args.JSON {
		return outputJSON(map[string]interface{}{"path": path, "exists": exists})
	}

	if exists {
		fmt.Println(path)
	} else {
		fmt.Printf("%s %s\n", path, DimStyle.Render("(not created yet)"))
	}
	return nil
}
