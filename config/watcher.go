// 扩展目录变更监听器实现。
//
// 基于 fsnotify 监听目录事件，防抖后批量触发回调（通常为注册表重载）。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// --- 目录监听器类型定义 ---

// DirWatcher watches a directory for file changes and reports them in debounced batches
type DirWatcher struct {
	mu sync.RWMutex

	// 配置
	dir           string
	suffixes      []string
	debounceDelay time.Duration

	// 状态
	running  bool
	stopChan chan struct{}
	done     chan struct{}
	watcher  *fsnotify.Watcher

	// 回调
	callbacks []func(events []FileEvent)

	// 记录器
	logger *zap.Logger
}

// FileEvent represents a file change event
type FileEvent struct {
	// Path 是改变的文件路径
	Path string `json:"path"`

	// Op 是操作类型
	Op FileOp `json:"op"`

	// Timestamp 是事件发生的时间
	Timestamp time.Time `json:"timestamp"`
}

// FileOp represents file operation types
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 指示文件已被修改
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
	// FileOpRename 表示文件已重命名
	FileOpRename
	// FileOpChmod 表示文件权限已更改
	FileOpChmod
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	case FileOpRename:
		return "RENAME"
	case FileOpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// fileOpOf 将 fsnotify 操作映射为 FileOp，按优先级取一个
func fileOpOf(op fsnotify.Op) FileOp {
	switch {
	case op.Has(fsnotify.Create):
		return FileOpCreate
	case op.Has(fsnotify.Write):
		return FileOpWrite
	case op.Has(fsnotify.Remove):
		return FileOpRemove
	case op.Has(fsnotify.Rename):
		return FileOpRename
	default:
		return FileOpChmod
	}
}

// --- 目录监听器选项 ---

// WatcherOption configures the DirWatcher
type WatcherOption func(*DirWatcher)

// WithDebounceDelay sets the debounce delay for file events
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *DirWatcher) {
		if d > 0 {
			w.debounceDelay = d
		}
	}
}

// WithSuffixes restricts events to files with one of the given suffixes
func WithSuffixes(suffixes ...string) WatcherOption {
	return func(w *DirWatcher) {
		w.suffixes = append(w.suffixes, suffixes...)
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *DirWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 目录监听器实现 ---

// NewDirWatcher creates a watcher for dir. The directory must exist.
func NewDirWatcher(dir string, opts ...WatcherOption) (*DirWatcher, error) {
	w := &DirWatcher{
		debounceDelay: 100 * time.Millisecond,
		callbacks:     make([]func([]FileEvent), 0),
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "dir_watcher"))

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat dir %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	w.dir = abs

	return w, nil
}

// Dir returns the absolute path of the watched directory
func (w *DirWatcher) Dir() string {
	return w.dir
}

// OnChange registers a callback for debounced event batches
func (w *DirWatcher) OnChange(callback func(events []FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching for file changes
func (w *DirWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.watcher = fw
	w.stopChan = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true

	go w.dispatchLoop(ctx, fw, w.stopChan, w.done)

	w.logger.Info("Dir watcher started",
		zap.String("dir", w.dir),
		zap.Strings("suffixes", w.suffixes),
		zap.Duration("debounce_delay", w.debounceDelay))

	return nil
}

// Stop stops the watcher and waits for the dispatch loop to exit
func (w *DirWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	close(w.stopChan)
	done := w.done
	fw := w.watcher
	w.running = false
	w.watcher = nil
	w.mu.Unlock()

	<-done
	err := fw.Close()

	w.logger.Info("Dir watcher stopped")
	return err
}

// IsRunning returns whether the watcher is running
func (w *DirWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *DirWatcher) matches(path string) bool {
	if len(w.suffixes) == 0 {
		return true
	}
	for _, s := range w.suffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

// dispatchLoop collects events and flushes them to callbacks after the debounce delay
func (w *DirWatcher) dispatchLoop(ctx context.Context, fw *fsnotify.Watcher, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var (
		pending = make(map[string]FileEvent)
		timer   = time.NewTimer(time.Hour)
	)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			// 同一路径只保留最后一次事件
			pending[event.Name] = FileEvent{
				Path:      event.Name,
				Op:        fileOpOf(event.Op),
				Timestamp: time.Now(),
			}
			timer.Reset(w.debounceDelay)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("Watcher error", zap.Error(err))
				continue
			}
			// 事件溢出时视为整个目录变化
			pending[w.dir] = FileEvent{Path: w.dir, Op: FileOpWrite, Timestamp: time.Now()}
			timer.Reset(w.debounceDelay)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			w.flush(pending)
			pending = make(map[string]FileEvent)
		}
	}
}

func (w *DirWatcher) flush(pending map[string]FileEvent) {
	events := make([]FileEvent, 0, len(pending))
	for _, evt := range pending {
		events = append(events, evt)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	w.mu.RLock()
	callbacks := make([]func([]FileEvent), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	w.logger.Debug("Dispatching file events", zap.Int("count", len(events)))
	for _, cb := range callbacks {
		cb(events)
	}
}
