package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashwinyue/next-tutor/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// defaultSettle 文件最后一次写入后等待的时间
const defaultSettle = 500 * time.Millisecond

// Watcher 监听目录，新增或修改的文件稳定后自动入库
type Watcher struct {
	svc     *Service
	dir     string
	ownerID string
	settle  time.Duration
	log     *logger.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timers  map[string]*time.Timer
	wg      sync.WaitGroup
}

// NewWatcher 创建目录监听器
func NewWatcher(svc *Service, dir, ownerID string, settle time.Duration, log *logger.Logger) (*Watcher, error) {
	if err := validateID(ownerID); err != nil {
		return nil, fmt.Errorf("watch owner: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create watch directory: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	if settle <= 0 {
		settle = defaultSettle
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Watcher{
		svc:     svc,
		dir:     dir,
		ownerID: ownerID,
		settle:  settle,
		log:     log,
		watcher: w,
		timers:  make(map[string]*time.Timer),
	}, nil
}

// Run 阻塞直到 ctx 结束
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if _, allowed := w.svc.allowed[normalizeExt(filepath.Ext(event.Name))]; !allowed {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "dir", w.dir, "error", err)
		}
	}
}

// schedule 同一路径的连续事件合并为一次入库
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.timers[path]; ok && prev.Stop() {
		w.wg.Done()
	}

	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.ingest(ctx, path)
	})
	w.timers[path] = t
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		w.log.Warn("failed to open watched file", "path", path, "error", err)
		return
	}
	defer f.Close()

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	up, err := w.svc.Submit(ctx, w.ownerID, &Upload{FileName: filepath.Base(path), Size: size, Reader: f})
	if err != nil {
		w.log.Warn("watched file rejected", "path", path, "error", err)
		return
	}
	w.log.Info("watched file queued", "path", path, "file_id", up.ID)
}

func (w *Watcher) stop() {
	w.watcher.Close()
	w.mu.Lock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
