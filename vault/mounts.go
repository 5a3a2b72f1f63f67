package vault

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MountTable reports whether a path is currently a mount point.
type MountTable interface {
	IsMounted(path string) (bool, error)
}

// ProcMounts reads a Linux mounts file.
type ProcMounts struct {
	// Path defaults to /proc/mounts.
	Path string
}

var _ MountTable = ProcMounts{}

// IsMounted checks the target column of the mounts file for path.
func (m ProcMounts) IsMounted(path string) (bool, error) {
	name := m.Path
	if name == "" {
		name = "/proc/mounts"
	}
	f, err := os.Open(name)
	if err != nil {
		return false, fmt.Errorf("error opening %s: %w", name, err)
	}
	defer f.Close()

	want := filepath.Clean(path)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if filepath.Clean(unescapeMountField(fields[1])) == want {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// unescapeMountField decodes the octal escapes (\040 for space and so on)
// the kernel uses in mounts files.
func unescapeMountField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
