package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/iWorld-y/post_digest/app/post_digest/pkg/model"
)

const (
	// LatestName 最新快照文件名
	LatestName = "latest.json"
	// ArchiveDir 按日期归档的快照目录
	ArchiveDir = "archive"

	lockRetryDelay = 50 * time.Millisecond
)

// Handle 快照文档句柄: 相对数据目录、以 / 分隔的路径
type Handle string

// IOError 快照读写失败
type IOError struct {
	Op     string
	Handle Handle
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("snapshot %s %s: %v", e.Op, e.Handle, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Store 基于文件系统的快照存储
//
// Update 对同一句柄串行执行: 进程内互斥锁 + <file>.lock 文件锁。
type Store struct {
	dir      string
	fileLock bool

	mu    sync.Mutex
	locks map[Handle]*sync.Mutex
}

// Option 定制 Store
type Option func(*Store)

// WithFileLock 是否在 Update 期间持有文件锁，默认开启
func WithFileLock(enabled bool) Option {
	return func(s *Store) {
		s.fileLock = enabled
	}
}

// NewStore 创建快照存储
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:      dir,
		fileLock: true,
		locks:    make(map[Handle]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir 数据目录
func (s *Store) Dir() string {
	return s.dir
}

// List 列出所有快照: latest.json(存在时) 在前，其后是按文件名排序的归档
func (s *Store) List() ([]Handle, error) {
	var handles []Handle

	if _, err := os.Stat(s.path(LatestName)); err == nil {
		handles = append(handles, LatestName)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, &IOError{Op: "stat", Handle: LatestName, Err: err}
	}

	entries, err := os.ReadDir(s.path(ArchiveDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return handles, nil
		}
		return nil, &IOError{Op: "list", Handle: ArchiveDir, Err: err}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		handles = append(handles, Handle(path.Join(ArchiveDir, name)))
	}
	return handles, nil
}

// Load 读取快照，文件不存在时返回 (nil, nil)
func (s *Store) Load(h Handle) (*model.Document, error) {
	data, err := os.ReadFile(s.path(string(h)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &IOError{Op: "read", Handle: h, Err: err}
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &IOError{Op: "decode", Handle: h, Err: err}
	}
	return &doc, nil
}

// Save 整体覆盖写入快照(临时文件 + rename)
func (s *Store) Save(h Handle, doc *model.Document) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return &IOError{Op: "encode", Handle: h, Err: err}
	}

	target := s.path(string(h))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return &IOError{Op: "write", Handle: h, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return &IOError{Op: "write", Handle: h, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return &IOError{Op: "write", Handle: h, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "write", Handle: h, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &IOError{Op: "write", Handle: h, Err: err}
	}
	if err := os.Rename(tmpName, target); err != nil {
		return &IOError{Op: "write", Handle: h, Err: err}
	}
	return nil
}

// Update 在句柄锁内重新读取文档并执行 fn，fn 返回 true 时保存
//
// 文档不存在时不调用 fn，返回 (false, nil)。
func (s *Store) Update(ctx context.Context, h Handle, fn func(doc *model.Document) (bool, error)) (bool, error) {
	unlock, err := s.lock(ctx, h)
	if err != nil {
		return false, err
	}
	defer unlock()

	doc, err := s.Load(h)
	if err != nil || doc == nil {
		return false, err
	}

	changed, err := fn(doc)
	if err != nil || !changed {
		return false, err
	}
	if err := s.Save(h, doc); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) lock(ctx context.Context, h Handle) (func(), error) {
	s.mu.Lock()
	m, ok := s.locks[h]
	if !ok {
		m = &sync.Mutex{}
		s.locks[h] = m
	}
	s.mu.Unlock()

	m.Lock()
	if !s.fileLock {
		return m.Unlock, nil
	}

	fl := flock.New(s.path(string(h)) + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		m.Unlock()
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, &IOError{Op: "lock", Handle: h, Err: err}
	}
	return func() {
		_ = fl.Unlock()
		m.Unlock()
	}, nil
}

func (s *Store) path(rel string) string {
	return filepath.Join(s.dir, filepath.FromSlash(rel))
}
