package tracking

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ReadAPIKey reads the tracking service token from a local key file: first
// line only, trailing whitespace stripped.
func ReadAPIKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening key file %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading key file %s: %w", path, err)
		}
		return "", fmt.Errorf("key file %s is empty", path)
	}

	key := strings.TrimRight(scanner.Text(), " \t\r\n")
	if key == "" {
		return "", fmt.Errorf("key file %s is empty", path)
	}
	return key, nil
}
