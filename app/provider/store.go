package provider

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// TokenStore persists long-lived tokens across process restarts.
type TokenStore interface {
	Save(refreshToken, realmID string) error
}

// EnvFileStore keeps the refresh token and realm id in a flat KEY=value file,
// typically the same .env file the process reads its configuration from.
// Only the two keys it owns are touched, everything else in the file is
// preserved as-is, including comments and ordering.
type EnvFileStore struct {
	Path string

	mu sync.Mutex
}

// Save updates QB_REFRESH_TOKEN and QB_REALM_ID lines in place, appending
// them if missing. The file is replaced atomically via a temp file rename so
// a concurrent reader never sees a partial write.
func (s *EnvFileStore) Save(refreshToken, realmID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines()
	if err != nil {
		return err
	}

	lines = upsert(lines, EnvRefreshToken, refreshToken)
	lines = upsert(lines, EnvRealmID, realmID)

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".env-*")
	if err != nil {
		return errors.Wrap(err, "can't create temp file")
	}
	defer os.Remove(tmp.Name()) // no-op after successful rename

	if _, err = tmp.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "can't write %s", tmp.Name())
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "can't close %s", tmp.Name())
	}
	if err = os.Chmod(tmp.Name(), 0o600); err != nil {
		return errors.Wrapf(err, "can't chmod %s", tmp.Name())
	}
	if err = os.Rename(tmp.Name(), s.Path); err != nil {
		return errors.Wrapf(err, "can't replace %s", s.Path)
	}
	return nil
}

func (s *EnvFileStore) readLines() ([]string, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "can't read %s", s.Path)
	}
	content := strings.TrimRight(string(data), "\n")
	if content == "" {
		return []string{}, nil
	}
	return strings.Split(content, "\n"), nil
}

// upsert replaces the first KEY= line or appends a new one
func upsert(lines []string, key, value string) []string {
	entry := key + "=" + value
	for i, l := range lines {
		if strings.HasPrefix(l, key+"=") {
			lines[i] = entry
			return lines
		}
	}
	return append(lines, entry)
}
