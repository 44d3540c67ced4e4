package process

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"strings"
)

const manifestPath = "META-INF/MANIFEST.MF"

// ReadMainClass returns the Main-Class attribute of a jar's manifest
func ReadMainClass(jarPath string) (string, error) {
	r, err := zip.OpenReader(jarPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", jarPath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != manifestPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to read manifest of %s: %w", jarPath, err)
		}
		defer rc.Close()

		attrs, err := parseManifest(rc)
		if err != nil {
			return "", fmt.Errorf("failed to parse manifest of %s: %w", jarPath, err)
		}
		if main := attrs["Main-Class"]; main != "" {
			return main, nil
		}
		return "", fmt.Errorf("%s has no Main-Class attribute", jarPath)
	}
	return "", fmt.Errorf("%s has no manifest", jarPath)
}

// parseManifest reads the main section. Lines starting with a space continue
// the previous value.
func parseManifest(r io.Reader) (map[string]string, error) {
	attrs := make(map[string]string)
	scanner := bufio.NewScanner(r)

	var key string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, " ") {
			if key != "" {
				attrs[key] += line[1:]
			}
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(name)
		attrs[key] = strings.TrimSpace(value)
	}
	return attrs, scanner.Err()
}
