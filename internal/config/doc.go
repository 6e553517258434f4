// Package config loads the project configuration for luabuild.
//
// Configuration is organized in layers with higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. -D property overrides   │  ← Highest priority
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← LUABUILD_*
//	├─────────────────────────────┤
//	│  2. Project file            │  ← luabuild.toml / luabuild.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// The project file may split itself across several files with "@include".
// Relative paths in the file are relative to the directory holding it.
//
// # Sub-packages
//
//   - loader: file loading (TOML, YAML, @include) and environment variables
//
// # Example
//
//	cfg, err := config.LoadDir(".")
//	if err != nil {
//	    return err
//	}
//	cfg.ApplyOverrides(map[string]string{"release": "true"})
package config
