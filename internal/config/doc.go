// Package config loads and validates the feedrelayd YAML configuration.
//
// Load reads the file, merges defaults and validates. The Mongo URI is
// resolved from an environment variable (uri_env), never stored in the
// file. Watch reloads the file on change via fsnotify; only the log
// level applies live — other changes are logged and take effect on the
// next restart.
package config
