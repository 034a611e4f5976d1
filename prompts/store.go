package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcmd/types"
)

const (
	// DefaultModel 是未指定模型时使用的作用域
	DefaultModel = "default"
	// FileExt 是提示词文件后缀
	FileExt = ".txt"
)

// 提示词存储的哨兵错误
var (
	ErrInvalidName = errors.New("prompt name cannot contain '/', '\\' or '..'")
	ErrNotFound    = errors.New("prompt not found")
	ErrExists      = errors.New("prompt already exists")
)

// Store 是基于本地文件系统的提示词模板存储.
//
// 布局:
//
//	<base>/<name>.txt          默认提示词
//	<base>/<model>/<name>.txt  模型专属提示词
type Store struct {
	baseDir string
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewStore 创建提示词存储, 目录不存在时自动创建.
func NewStore(baseDir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve prompt dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create prompt dir: %w", err)
	}
	return &Store{
		baseDir: abs,
		logger:  logger.With(zap.String("component", "prompt_store")),
	}, nil
}

// BaseDir 返回存储根目录的绝对路径.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// PromptFilePath 解析提示词文件路径. 模型专属文件存在时优先返回它, 否则返回默认文件路径.
func (s *Store) PromptFilePath(name, model string) (string, error) {
	if model == "" {
		model = DefaultModel
	}
	if err := validateName(name); err != nil {
		return "", err
	}
	if err := validateName(model); err != nil {
		return "", err
	}

	modelDir := filepath.Join(s.baseDir, model)
	modelFile := filepath.Join(modelDir, name+FileExt)
	defaultFile := filepath.Join(s.baseDir, name+FileExt)
	if !within(s.baseDir, modelDir) || !within(modelDir, modelFile) || !within(s.baseDir, defaultFile) {
		return "", invalidName(name)
	}

	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model prompt dir: %w", err)
	}

	if info, err := os.Stat(modelFile); err == nil && info.Mode().IsRegular() {
		return modelFile, nil
	}
	return defaultFile, nil
}

// Add 新增默认提示词, 已存在时不覆盖.
func (s *Store) Add(name, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.PromptFilePath(name, DefaultModel)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return types.NewError(types.ErrPromptExists, fmt.Sprintf("prompt %s already exists", name)).
				WithCause(ErrExists).
				WithHTTPStatus(http.StatusConflict)
		}
		return fmt.Errorf("failed to create prompt: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("failed to write prompt: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write prompt: %w", err)
	}

	s.logger.Debug("prompt added", zap.String("name", name))
	return nil
}

// Get 读取默认提示词.
func (s *Store) Get(name string) (string, error) {
	return s.GetModelPrompt(name, DefaultModel)
}

// GetModelPrompt 读取模型专属提示词, 不存在时回退到默认提示词.
func (s *Store) GetModelPrompt(name, model string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.PromptFilePath(name, model)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", notFound(name)
		}
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	return string(data), nil
}

// Update 覆盖写入默认提示词, 不存在时创建.
func (s *Store) Update(name, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.PromptFilePath(name, DefaultModel)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write prompt: %w", err)
	}
	s.logger.Debug("prompt updated", zap.String("name", name))
	return nil
}

// Delete 删除默认提示词.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.PromptFilePath(name, DefaultModel)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(name)
		}
		return fmt.Errorf("failed to delete prompt: %w", err)
	}
	s.logger.Debug("prompt deleted", zap.String("name", name))
	return nil
}

// List 返回根目录下所有默认提示词名称(已排序).
func (s *Store) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), FileExt))
	}
	sort.Strings(names)
	return names, nil
}

// Args 返回默认提示词中形如 {word} 的占位符, 保持出现顺序.
func (s *Store) Args(name string) ([]string, error) {
	text, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	return PlaceholderArgs(text), nil
}

// PlaceholderArgs 提取以空白分隔、整体被花括号包裹的单词.
func PlaceholderArgs(text string) []string {
	args := make([]string, 0)
	for _, word := range strings.Fields(text) {
		if len(word) >= 2 && strings.HasPrefix(word, "{") && strings.HasSuffix(word, "}") {
			args = append(args, word[1:len(word)-1])
		}
	}
	return args
}

func validateName(name string) error {
	if name == "" || name == "." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return invalidName(name)
	}
	return nil
}

func invalidName(name string) error {
	return types.NewError(types.ErrInvalidPromptName, fmt.Sprintf("invalid prompt name %q", name)).
		WithCause(ErrInvalidName).
		WithHTTPStatus(http.StatusBadRequest)
}

func notFound(name string) error {
	return types.NewError(types.ErrPromptNotFound, fmt.Sprintf("prompt %s not found", name)).
		WithCause(ErrNotFound).
		WithHTTPStatus(http.StatusNotFound)
}

// within 判断 path 是否位于 dir 之内.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
