package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DeviceIDFile is the name of the file holding the device id in the data
// directory.
const DeviceIDFile = "device_id"

// LoadOrCreateDeviceID returns the device id stored in dataDir, creating a
// new 12 hex character id on first use.
func LoadOrCreateDeviceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, DeviceIDFile)

	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read device id: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if err := os.WriteFile(path, []byte(id+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}
	return id, nil
}
