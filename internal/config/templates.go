package config

import (
	"fmt"
	"os"
)

// Template returns a starter keelctl config with every key spelled out.
func Template() string {
	return keelctlTemplate
}

// WriteTemplate writes the starter config to path, refusing to clobber an
// existing file unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(keelctlTemplate), 0o600)
}

const keelctlTemplate = `server = "ws://127.0.0.1:3123"
timeout = "10s"
control_any_timeout = "30s"

[tls]
# server_name = "keel.example.com"
# ca_file = "/etc/serial-keel/ca.crt"
insecure_skip_verify = false

[run]
# Claim any endpoint carrying all of these labels, or name one directly
# with endpoint = "mock:example" / "tty:/dev/ttyACM0".
labels = ["mocks"]
input_file = "input.txt"
success_pattern = "PROJECT EXECUTION SUCCESSFUL"
`
