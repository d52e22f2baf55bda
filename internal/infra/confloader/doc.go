// Package confloader loads configuration with koanf.
//
// Sources, lowest priority first:
//
//  1. Defaults: whatever the target struct already holds
//  2. YAML configuration file
//  3. Environment variables (MEMKV_SECTION__KEY)
//  4. Overrides from LoadMap, typically command-line flags
//
// Environment variable names use "__" between sections, so keys that
// contain underscores stay intact:
//
//	MEMKV_STORAGE__APPEND_ONLY=true  ->  storage.append_only
//
// Watcher reports changes to a configuration file through fsnotify.
package confloader
