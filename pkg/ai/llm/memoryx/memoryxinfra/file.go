package memoryxinfra

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Abraxas-365/finai/pkg/ai/llm/memoryx"
	"github.com/Abraxas-365/finai/pkg/errx"
)

// plainKey matches keys used verbatim as file names. Every other key is
// stored base64url encoded behind encodedPrefix, which contains a character
// plain keys cannot, so two distinct keys never share a file.
var plainKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const encodedPrefix = "b64."

// FileLog stores each conversation as a JSON array of turns in dir/<name>.json
type FileLog struct {
	dir string
}

// NewFileLog creates the directory if needed
func NewFileLog(dir string) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errx.Wrap(err, "failed to create history directory", errx.TypeInternal).
			WithDetail("dir", dir)
	}
	return &FileLog{dir: dir}, nil
}

func (l *FileLog) path(key string) string {
	return filepath.Join(l.dir, fileName(key))
}

func fileName(key string) string {
	if plainKey.MatchString(key) {
		return key + ".json"
	}
	return encodedPrefix + base64.RawURLEncoding.EncodeToString([]byte(key)) + ".json"
}

func (l *FileLog) Load(_ context.Context, key string) ([]memoryx.Turn, error) {
	data, err := os.ReadFile(l.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var turns []memoryx.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to decode history file: %w", err)
	}
	return turns, nil
}

// Save writes to a temporary file and renames it over the previous history
func (l *FileLog) Save(_ context.Context, key string, turns []memoryx.Turn) error {
	if turns == nil {
		turns = []memoryx.Turn{}
	}
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	target := l.path(key)
	tmp, err := os.CreateTemp(l.dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

func (l *FileLog) Delete(_ context.Context, key string) error {
	err := os.Remove(l.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove history file: %w", err)
	}
	return nil
}
