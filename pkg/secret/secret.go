// Package secret manages the process-wide token signing secret.
//
// The secret is 64 random bytes generated on first boot and persisted under
// the data directory so tokens survive restarts. On disk it is stored as a
// 4-byte big-endian length prefix followed by the raw bytes.
package secret

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// Size is the length of the signing secret in bytes.
const Size = 64

// FileName is the secret file name inside the data directory.
const FileName = "secret.gob"

// Load reads the signing secret from dataDir, generating and persisting a
// fresh one if the file does not exist yet.
func Load(dataDir string) ([]byte, error) {
	path := filepath.Join(dataDir, FileName)

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return generate(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}
	return decode(raw)
}

func generate(path string) ([]byte, error) {
	sec := make([]byte, Size)
	if _, err := rand.Read(sec); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	buf := make([]byte, 4+Size)
	binary.BigEndian.PutUint32(buf[:4], Size)
	copy(buf[4:], sec)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create secret directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist secret: %w", err)
	}
	return sec, nil
}

func decode(raw []byte) ([]byte, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("secret file truncated: %d bytes", len(raw))
	}
	n := binary.BigEndian.Uint32(raw[:4])
	if int(n) != len(raw)-4 {
		return nil, fmt.Errorf("secret file corrupt: header says %d bytes, have %d", n, len(raw)-4)
	}
	if n != Size {
		return nil, fmt.Errorf("secret has unexpected length %d, want %d", n, Size)
	}
	return raw[4 : 4+n], nil
}
