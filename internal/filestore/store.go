// Package filestore keeps work orders and timers in flat files. Every
// operation reads the whole data set, applies the change and rewrites the
// files, so the files on disk are always the source of truth.
package filestore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
)

// dataset is the decoded content of all files of a store
type dataset struct {
	orders map[string]*models.WorkOrder
	timers map[tracker.Key]*models.ProcessTimer
}

func newDataset() *dataset {
	return &dataset{
		orders: make(map[string]*models.WorkOrder),
		timers: make(map[tracker.Key]*models.ProcessTimer),
	}
}

// sortedOrders returns the work orders oldest first
func (d *dataset) sortedOrders() []models.WorkOrder {
	orders := make([]models.WorkOrder, 0, len(d.orders))
	for _, o := range d.orders {
		orders = append(orders, *o)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].OrderNumber < orders[j].OrderNumber
	})
	return orders
}

// sortedTimers returns the timers ordered by work order then process
func (d *dataset) sortedTimers() []models.ProcessTimer {
	timers := make([]models.ProcessTimer, 0, len(d.timers))
	for _, t := range d.timers {
		timers = append(timers, *t)
	}
	sort.Slice(timers, func(i, j int) bool {
		if timers[i].WorkOrderID != timers[j].WorkOrderID {
			return timers[i].WorkOrderID < timers[j].WorkOrderID
		}
		return timers[i].ProcessName < timers[j].ProcessName
	})
	return timers
}

// codec converts between a dataset and file contents keyed by file name
type codec interface {
	files() []string
	decode(files map[string][]byte) (*dataset, error)
	encode(d *dataset) (map[string][]byte, error)
}

const (
	dataLockFile = ".wotrack.lock"
	keyLockDir   = ".locks"

	lockRetryDelay = 10 * time.Millisecond
)

// Store is a file backed work order and timer store. Several stores, in
// this process or others, may share a directory: every read holds a shared
// lock on dataLockFile and every write an exclusive one.
type Store struct {
	mu     sync.Mutex // guards fileLock, which is not reentrant per instance
	dir    string
	codec  codec
	logger *zap.Logger

	fileLock *flock.Flock
}

// OpenCSV opens a store made of work_orders.csv and process_timers.csv in dir
func OpenCSV(dir string, logger *zap.Logger) (*Store, error) {
	return open(dir, csvCodec{}, logger)
}

// OpenJSON opens a store made of a single wotrack.json document in dir
func OpenJSON(dir string, logger *zap.Logger) (*Store, error) {
	return open(dir, jsonCodec{}, logger)
}

func open(dir string, c codec, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:      dir,
		codec:    c,
		logger:   logger,
		fileLock: flock.New(filepath.Join(dir, dataLockFile)),
	}, nil
}

// Files returns the names of the files backing the store, relative to Dir
func (s *Store) Files() []string {
	return s.codec.files()
}

// Dir returns the directory holding the files
func (s *Store) Dir() string {
	return s.dir
}

// Snapshot returns the current raw content of every file. Missing files
// are left out.
func (s *Store) Snapshot() (map[string][]byte, error) {
	unlock, err := s.lock(false)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.readFiles()
}

// Replace overwrites the given files with new content after checking that
// the result still decodes
func (s *Store) Replace(files map[string][]byte) error {
	unlock, err := s.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.readFiles()
	if err != nil {
		return err
	}
	for name, content := range files {
		current[name] = content
	}
	if _, err := s.codec.decode(current); err != nil {
		return fmt.Errorf("refusing to replace files with unreadable content: %w", err)
	}
	return s.writeFiles(files)
}

// Close is a no-op; files are not held open between operations
func (s *Store) Close() error {
	return nil
}

// RunAtomic runs fn while holding the lock file of key, so a
// load-mutate-save of one timer cannot interleave with another process
// doing the same.
func (s *Store) RunAtomic(ctx context.Context, key tracker.Key, fn func(g tracker.Gateway) error) error {
	unlock, err := s.LockKey(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(s)
}

// LockKey takes the lock file of key, waiting until ctx is done. Stores
// wrapping this one use it to run their own gateway under the same lock.
func (s *Store) LockKey(ctx context.Context, key tracker.Key) (func(), error) {
	dir := filepath.Join(s.dir, keyLockDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	sum := sha1.Sum([]byte(key.WorkOrderID + "\x00" + key.Process))
	l := flock.New(filepath.Join(dir, hex.EncodeToString(sum[:])+".lock"))

	locked, err := l.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", key, err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock %s", key)
	}
	return func() {
		if err := l.Unlock(); err != nil {
			s.logger.Warn("Failed to release timer lock", zap.Stringer("key", key), zap.Error(err))
		}
	}, nil
}

func (s *Store) GetWorkOrder(ctx context.Context, id string) (*models.WorkOrder, error) {
	var order *models.WorkOrder
	err := s.view(func(d *dataset) error {
		if o, ok := d.orders[id]; ok {
			cp := *o
			order = &cp
		}
		return nil
	})
	return order, err
}

func (s *Store) ListWorkOrders(ctx context.Context) ([]models.WorkOrder, error) {
	var orders []models.WorkOrder
	err := s.view(func(d *dataset) error {
		orders = d.sortedOrders()
		return nil
	})
	return orders, err
}

func (s *Store) CreateWorkOrder(ctx context.Context, order *models.WorkOrder) error {
	return s.update(func(d *dataset) error {
		if _, ok := d.orders[order.OrderNumber]; ok {
			return fmt.Errorf("work order %s already stored", order.OrderNumber)
		}
		cp := *order
		d.orders[order.OrderNumber] = &cp
		return nil
	})
}

func (s *Store) UpdateWorkOrder(ctx context.Context, order *models.WorkOrder) error {
	return s.update(func(d *dataset) error {
		cp := *order
		d.orders[order.OrderNumber] = &cp
		return nil
	})
}

func (s *Store) DeleteWorkOrder(ctx context.Context, id string) error {
	return s.update(func(d *dataset) error {
		delete(d.orders, id)
		for key := range d.timers {
			if key.WorkOrderID == id {
				delete(d.timers, key)
			}
		}
		return nil
	})
}

func (s *Store) LoadTimer(ctx context.Context, key tracker.Key) (*models.ProcessTimer, error) {
	var timer *models.ProcessTimer
	err := s.view(func(d *dataset) error {
		if t, ok := d.timers[key]; ok {
			cp := *t
			timer = &cp
		}
		return nil
	})
	return timer, err
}

func (s *Store) SaveTimer(ctx context.Context, key tracker.Key, timer *models.ProcessTimer) error {
	return s.update(func(d *dataset) error {
		cp := *timer
		cp.WorkOrderID = key.WorkOrderID
		cp.ProcessName = key.Process
		d.timers[key] = &cp
		return nil
	})
}

func (s *Store) ListTimers(ctx context.Context, workOrderID string) ([]models.ProcessTimer, error) {
	var timers []models.ProcessTimer
	err := s.view(func(d *dataset) error {
		for _, t := range d.sortedTimers() {
			if t.WorkOrderID == workOrderID {
				timers = append(timers, t)
			}
		}
		return nil
	})
	return timers, err
}

func (s *Store) view(fn func(d *dataset) error) error {
	unlock, err := s.lock(false)
	if err != nil {
		return err
	}
	defer unlock()

	d, err := s.load()
	if err != nil {
		return err
	}
	return fn(d)
}

func (s *Store) update(fn func(d *dataset) error) error {
	unlock, err := s.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	d, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(d); err != nil {
		return err
	}
	files, err := s.codec.encode(d)
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	return s.writeFiles(files)
}

// lock takes s.mu and then the data lock file, shared or exclusive
func (s *Store) lock(exclusive bool) (func(), error) {
	s.mu.Lock()
	take := s.fileLock.RLock
	if exclusive {
		take = s.fileLock.Lock
	}
	if err := take(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to lock %s: %w", s.dir, err)
	}
	return func() {
		if err := s.fileLock.Unlock(); err != nil {
			s.logger.Warn("Failed to release data lock", zap.String("dir", s.dir), zap.Error(err))
		}
		s.mu.Unlock()
	}, nil
}

func (s *Store) load() (*dataset, error) {
	files, err := s.readFiles()
	if err != nil {
		return nil, err
	}
	d, err := s.codec.decode(files)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data files in %s: %w", s.dir, err)
	}
	return d, nil
}

func (s *Store) readFiles() (map[string][]byte, error) {
	files := make(map[string][]byte)
	for _, name := range s.codec.files() {
		content, err := os.ReadFile(filepath.Join(s.dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		files[name] = content
	}
	return files, nil
}

func (s *Store) writeFiles(files map[string][]byte) error {
	for name, content := range files {
		if err := writeFileAtomic(filepath.Join(s.dir, name), content); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		s.logger.Debug("Data file written", zap.String("file", name), zap.Int("bytes", len(content)))
	}
	return nil
}

// writeFileAtomic writes to a temp file next to path and renames it over
func writeFileAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
