package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	appName = "tomcatconf"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644

	// Tomcat configuration directory inside the backend image.
	ContainerTomcatConfig = "/usr/local/tomcat/conf"

	// Tomcat configuration directory in the local checkout.
	LocalTomcatConfig = "config/tomcat"

	// File name of Tomcat's main configuration.
	ServerXML = "server.xml"
)

// Path to the directory holding the config file.
//
//	Linux:   $XDG_CONFIG_HOME/tomcatconf or ~/.config/tomcatconf
//	macOS:   ~/Library/Application Support/tomcatconf
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// Default path to the YAML config file.
//
//	Linux:   $XDG_CONFIG_HOME/tomcatconf/config.yaml
//	macOS:   ~/Library/Application Support/tomcatconf/config.yaml
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Path of server.xml inside the backend image.
func ContainerServerXML() string {
	return ContainerTomcatConfig + "/" + ServerXML
}

// Default local path server.xml is written to.
func LocalServerXML() string {
	return filepath.Join(LocalTomcatConfig, ServerXML)
}

// Writes data to path, creating missing parent directories.
//
// The file is truncated and rewritten in full with [DefaultFileMode].
func WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, DefaultDirMode); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, DefaultFileMode)
}
