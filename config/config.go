package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

var v *viper.Viper

func init() {
	v = viper.New()

	// Set default values
	v.SetDefault("server.addr", "localhost:27190")
	v.SetDefault("adb.port", 5037)

	// Set default droidglass home directory
	v.SetDefault("droidglass.home", filepath.Join(xdg.Home, ".droidglass"))

	// History database and recordings live under the home directory unless
	// overridden; resolved lazily because home may come from the environment.
	v.SetDefault("history.path", "")
	v.SetDefault("recordings.dir", "")

	// Environment variables
	v.AutomaticEnv()
	v.BindEnv("server.addr", "DROIDGLASS_ADDR")
	v.BindEnv("adb.port", "DROIDGLASS_ADB_PORT")
	v.BindEnv("droidglass.home", "DROIDGLASS_HOME")
	v.BindEnv("history.path", "DROIDGLASS_HISTORY_PATH")
	v.BindEnv("recordings.dir", "DROIDGLASS_RECORDINGS_DIR")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Look for config in the following paths
	configPaths := []string{
		".",
		"$HOME/.droidglass",
		"/etc/droidglass",
	}

	for _, path := range configPaths {
		expandedPath := os.ExpandEnv(path)
		v.AddConfigPath(expandedPath)
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
		// Config file not found; ignore error and use defaults
	}
}

// GetServerAddr returns the listen address of the control server
func GetServerAddr() string {
	return v.GetString("server.addr")
}

// GetADBPort returns the port of the local adb server
func GetADBPort() int {
	return v.GetInt("adb.port")
}

// GetHome returns the droidglass home directory, creating it if needed
func GetHome() string {
	home := v.GetString("droidglass.home")
	if err := os.MkdirAll(home, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create home directory %s: %v\n", home, err)
	}
	return home
}

// GetHistoryPath returns the path of the sqlite history database
func GetHistoryPath() string {
	if p := v.GetString("history.path"); p != "" {
		return p
	}
	return filepath.Join(GetHome(), "history.db")
}

// GetRecordingsDir returns the directory where recordings are written
func GetRecordingsDir() string {
	if p := v.GetString("recordings.dir"); p != "" {
		return p
	}
	return filepath.Join(GetHome(), "recordings")
}
