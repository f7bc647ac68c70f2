package config

import "time"

// Lua schema field names and globals
const (
	luaGlobalCodesign = "codesign"
	luaGlobalRelease  = "release"

	luaFieldSubject        = "subject"
	luaFieldDNSName        = "dns_name"
	luaFieldTimestampURL   = "timestamp_url"
	luaFieldValidityDays   = "validity_days"
	luaFieldKeyType        = "key_type"
	luaFieldKeyBits        = "key_bits"
	luaFieldCertificateExt = "certificate_ext"
	luaFieldPasswordExt    = "password_ext"
	luaFieldEnvPrefix      = "env_prefix"
	luaFieldDescription    = "description"
	luaFieldURL            = "url"
	luaFieldStore          = "store"
	luaFieldBackend        = "backend"
	luaFieldDir            = "dir"
	luaFieldJournalDir     = "journal_dir"

	luaFieldTool        = "tool"
	luaFieldTarget      = "target"
	luaFieldExeExt      = "exe_ext"
	luaFieldArchiveType = "archive_type"
	luaFieldBuildMode   = "build_mode"
	luaFieldSign        = "sign"
	luaFieldVersion     = "version"
	luaFieldSigningKey  = "signing_key"
	luaFieldOutputDir   = "output_dir"
)

const (
	// DefaultFileName is the config file looked up in the working directory.
	DefaultFileName = "sign.lua"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "RUST_TOOL_ACTION_"

	// MaxConfigSize bounds the config file read into memory.
	MaxConfigSize = 1 << 20

	// DefaultParseTimeout bounds Lua execution when the context has no
	// deadline.
	DefaultParseTimeout = 5 * time.Second

	// MaxValidityDays bounds generated certificate lifetimes.
	MaxValidityDays = 3650
)

// Build modes
const (
	BuildModeDebug   = "debug"
	BuildModeRelease = "release"
)
