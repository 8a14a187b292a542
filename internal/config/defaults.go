package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "atracker"

// platformDirs are the per-user directories atracker writes into when no
// ATRACKER_* override is set.
//
//	         data                              config                            logs
//	linux    $XDG_DATA_HOME/atracker           $XDG_CONFIG_HOME/atracker         $XDG_STATE_HOME/atracker
//	darwin   ~/Library/Application Support/atracker (data and config)            ~/Library/Logs/atracker
//	windows  %APPDATA%\atracker (data and config)                                %LOCALAPPDATA%\atracker\logs
//	other    ~/.atracker                       ~/.atracker                       ~/.atracker/logs
type platformDirs struct {
	data, config, logs string
}

func currentPlatform() platformDirs {
	home := homeDir()
	switch runtime.GOOS {
	case "linux":
		return platformDirs{
			data:   xdg("XDG_DATA_HOME", home, ".local", "share"),
			config: xdg("XDG_CONFIG_HOME", home, ".config"),
			logs:   xdg("XDG_STATE_HOME", home, ".local", "state"),
		}
	case "darwin":
		support := filepath.Join(home, "Library", "Application Support", appName)
		return platformDirs{
			data:   support,
			config: support,
			logs:   filepath.Join(home, "Library", "Logs", appName),
		}
	case "windows":
		roaming := envOr("APPDATA", filepath.Join(home, "AppData", "Roaming"))
		local := envOr("LOCALAPPDATA", filepath.Join(home, "AppData", "Local"))
		return platformDirs{
			data:   filepath.Join(roaming, appName),
			config: filepath.Join(roaming, appName),
			logs:   filepath.Join(local, appName, "logs"),
		}
	}
	dot := filepath.Join(home, "."+appName)
	return platformDirs{data: dot, config: dot, logs: filepath.Join(dot, "logs")}
}

// PlatformDataDir returns the platform-specific data directory.
func PlatformDataDir() string { return currentPlatform().data }

// PlatformConfigDir returns the platform-specific config directory.
func PlatformConfigDir() string { return currentPlatform().config }

// PlatformLogDir returns the platform-specific log directory.
func PlatformLogDir() string { return currentPlatform().logs }

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// xdg resolves an XDG base directory variable, falling back to the given
// path under home.
func xdg(key, home string, fallback ...string) string {
	base := envOr(key, filepath.Join(append([]string{home}, fallback...)...))
	return filepath.Join(base, appName)
}

// SupportedConfigFormats returns the config file extensions in search order.
func SupportedConfigFormats() []string {
	return []string{"toml", "yaml", "yml", "json"}
}

// FindConfigFile searches the current directory, then the config directory,
// for a config.<ext> file. It returns "" when none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", ConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
