// Package verify checks downloaded runtime artifacts against published
// SHA-256 checksum lists, optionally clearsigned with OpenPGP.
package verify

import (
	"bufio"
	"bytes"
	"fmt"
	"path"
	"strings"
)

// Checksums maps file names to lowercase hex SHA-256 digests.
type Checksums map[string]string

// ParseChecksums reads the "digest  filename" format of SHASUMS256.txt.
// Lines that do not have at least two fields are ignored.
func ParseChecksums(data []byte) (Checksums, error) {
	sums := make(Checksums)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		// sha256sum marks binary mode with a leading '*'
		name := strings.TrimPrefix(parts[1], "*")
		sums[name] = strings.ToLower(parts[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan checksums: %w", err)
	}

	return sums, nil
}

// Lookup returns the digest for filename. Entries listed with a directory
// prefix match on their base name.
func (c Checksums) Lookup(filename string) (string, error) {
	if sum, ok := c[filename]; ok {
		return sum, nil
	}
	for name, sum := range c {
		if path.Base(name) == filename {
			return sum, nil
		}
	}
	return "", fmt.Errorf("checksum not found for %s", filename)
}
