package doctor

import (
	"os"
	"strings"
)

// readFileTolerant returns a trimmed file's contents, or "" if the file
// doesn't exist.
func readFileTolerant(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
