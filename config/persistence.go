package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/bytedance/sonic"
	"github.com/gtoxlili/echoStock/entity"
)

// ErrStateNotExists 状态文件不存在或为空
var ErrStateNotExists = errors.New("state file not exists")

// StateFile 决策记忆的 JSON 持久化，写入先落临时文件再 rename
type StateFile struct {
	path string
	mu   sync.Mutex
}

func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

func (s *StateFile) Path() string {
	return s.path
}

func (s *StateFile) Load() (entity.MemoryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state entity.MemoryState
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, ErrStateNotExists
		}
		return state, err
	}
	if len(b) == 0 {
		return state, ErrStateNotExists
	}
	if err := json.Unmarshal(b, &state); err != nil {
		return state, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return state, nil
}

func (s *StateFile) Save(state entity.MemoryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := json.ConfigStd.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
