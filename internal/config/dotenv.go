package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// envHelp documents each override in the generated .env template.
var envHelp = []struct {
	key, help string
}{
	{EnvDataDir, "directory holding rel_dna_ser/rel_ser_ser files and KIR caches"},
	{EnvRelease, "IPD-IMGT/HLA release to load, e.g. 3610 (empty: newest in data dir)"},
	{EnvWMDABaseURL, "base URL the WMDA relationship files are downloaded from"},
	{EnvIPDAPIURL, "IPD-IMGT/HLA allele API endpoint used for KIR ligand data"},
	{EnvLogLevel, "debug, info, warn or error"},
	{EnvLogFormat, "text or json"},
}

// EnvKeys lists the override variables in template order.
func EnvKeys() []string {
	keys := make([]string, len(envHelp))
	for i, e := range envHelp {
		keys[i] = e.key
	}
	return keys
}

// DotEnvPath returns ~/.imgtsero/.env.
func DotEnvPath() (string, error) {
	dir, err := ImgtseroDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".env"), nil
}

// LoadDotEnv reads ~/.imgtsero/.env. A missing file is an empty map.
func LoadDotEnv() (map[string]string, error) {
	p, err := DotEnvPath()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot open dotenv file %s: %w", p, err)
	}
	defer f.Close()
	return parseDotEnv(p, f)
}

// parseDotEnv accepts KEY=VALUE lines, optionally prefixed with "export ".
// Blank lines and '#' comments are skipped, and a value wrapped in matching
// single or double quotes is unwrapped. Any other line is an error naming
// its position.
func parseDotEnv(name string, r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			return nil, fmt.Errorf("%s:%d: expected KEY=VALUE, got %q", name, n, line)
		}
		out[key] = unquote(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read dotenv file %s: %w", name, err)
	}
	return out, nil
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// GetConfigValue returns key from the process environment, falling back to
// ~/.imgtsero/.env. Empty environment values count as unset.
func GetConfigValue(key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	dotenv, err := LoadDotEnv()
	if err != nil {
		return "", err
	}
	return dotenv[key], nil
}

// EnsureDotEnvTemplate writes a commented .env listing every override with
// an empty value. An existing file is left alone.
func EnsureDotEnvTemplate() error {
	p, err := DotEnvPath()
	if err != nil {
		return err
	}
	switch _, err := os.Stat(p); {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("cannot stat dotenv file %s: %w", p, err)
	}

	var b strings.Builder
	b.WriteString("# imgtsero overrides. Values here lose to the process environment\n")
	b.WriteString("# and win over ~/.imgtsero/config.yaml.\n")
	for _, e := range envHelp {
		fmt.Fprintf(&b, "\n# %s\n%s=\n", e.help, e.key)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("cannot write dotenv template %s: %w", p, err)
	}
	return nil
}
