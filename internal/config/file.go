package config

import (
	"bufio"
	"os"
	"strings"
)

// LoadFile reads key/value pairs from a config file and stores them via
// SetParam, one "key = value" pair per line; "#" starts a comment,
// surrounding whitespace on both key and value is trimmed, and missing
// files are silently ignored (matching /etc/<product>.conf and
// ./<product>.conf both being optional overlays).
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		c.SetParam(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return scanner.Err()
}

// DefaultConfigPaths returns the two conventional config file locations for
// product, in resolution order (lowest precedence first): /etc/<product>.conf
// then ./<product>.conf.
func DefaultConfigPaths(product string) []string {
	return []string{
		"/etc/" + product + ".conf",
		"./" + product + ".conf",
	}
}

// LoadDefaultFiles loads both conventional config file locations for
// product, in precedence order.
func (c *Config) LoadDefaultFiles(product string) error {
	for _, path := range DefaultConfigPaths(product) {
		if err := c.LoadFile(path); err != nil {
			return err
		}
	}
	return nil
}
