// Package config loads the signing tool's settings.
//
// Settings come from three layers, later layers winning:
//
//   - built-in defaults (Default)
//   - an optional Lua file, sign.lua by default
//   - RUST_TOOL_ACTION_* environment variables
//
// Command-line flags are applied on top by the CLI.
//
// # Lua schema
//
//	codesign = {
//	  subject = "Code-signing certificate for rcook.org",
//	  dns_name = "rcook.org",
//	  timestamp_url = "http://timestamp.digicert.com",
//	  validity_days = 365,
//	  key_type = platform.when(platform.is_windows, "rsa") or "ecdsa",
//	  key_bits = 3072,
//	  certificate_ext = ".crt",
//	  password_ext = ".crtpass",
//	  env_prefix = "RUST_TOOL_ACTION_CODE_SIGN_",
//	  description = "mytool",
//	  url = "https://github.com/rcook/mytool",
//	  store = { backend = "dir", dir = "~/.cache/rust-tool-action/store" },
//	}
//	release = {
//	  tool = "mytool",
//	  target = "x86_64-pc-windows-msvc",
//	  archive_type = "zip",
//	  build_mode = "release",
//	  sign = true,
//	  signing_key = "release-key.asc",
//	  output_dir = "dist",
//	}
//
// Both tables are optional. The file runs in a gopher-lua VM with the os, io,
// debug and module-loading functions removed, under a timeout, and with a
// read-only `platform` table describing the host and the build target.
//
// # Secrets
//
// Passphrases and keys never belong in the file. Load scans the raw source
// for credential-looking literals and logs a warning for each finding; the
// warning names the line and never echoes the value.
package config
