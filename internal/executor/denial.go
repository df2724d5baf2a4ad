package executor

import (
	"bufio"
	"encoding/json"
	"strings"

	"github.com/goodtune/ghbroker/internal/capability"
)

// deniedMarker is the shape of a denial record as written to stderr by the
// sandbox preamble.
type deniedMarker struct {
	Code               string                 `json:"code"`
	RequiredPermission capability.Capability  `json:"requiredPermission"`
}

const deniedCode = "PERMISSION_DENIED"

// findDenial scans stderr line by line for a newline-delimited JSON record
// with code == PERMISSION_DENIED, returning the first one found.
func findDenial(stderr string) *capability.Capability {
	scanner := bufio.NewScanner(strings.NewReader(stderr))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] != '{' {
			continue
		}
		var marker deniedMarker
		if err := json.Unmarshal([]byte(line), &marker); err != nil {
			continue
		}
		if marker.Code == deniedCode {
			cap := marker.RequiredPermission
			return &cap
		}
	}
	return nil
}
