package globals

// FirmwareVersion is set at build time via -ldflags
var FirmwareVersion = "dev"

// Writable data directory
var DataDir = "/data"

// Server data
var ServerDataDir = DataDir + "/.trix-data"

// Settings
var SettingsPath = ServerDataDir + "/settings.toml"

// Crash log (append-only, plain text)
var CrashLogPath = ServerDataDir + "/crash.log"

// Crash counter, one byte of non-volatile storage
var CrashCounterPath = ServerDataDir + "/crash.nvm"
