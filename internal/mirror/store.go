package mirror

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/balkashynov/wotrack/internal/filestore"
	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
)

// Store is a file store whose writes are copied to the remote repository.
// The local files stay authoritative: a failed push is logged and recorded
// but never fails the write that triggered it.
type Store struct {
	*filestore.Store

	client *Client
	clock  clockwork.Clock
	logger *zap.Logger

	pushMu sync.Mutex // one push at a time

	mu       sync.Mutex
	lastErr  error
	lastPush time.Time
}

func New(local *filestore.Store, client *Client, clock clockwork.Clock, logger *zap.Logger) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{Store: local, client: client, clock: clock, logger: logger}
}

func (s *Store) CreateWorkOrder(ctx context.Context, order *models.WorkOrder) error {
	if err := s.Store.CreateWorkOrder(ctx, order); err != nil {
		return err
	}
	s.pushAfterWrite(ctx, "OS "+order.OrderNumber+" created")
	return nil
}

func (s *Store) UpdateWorkOrder(ctx context.Context, order *models.WorkOrder) error {
	if err := s.Store.UpdateWorkOrder(ctx, order); err != nil {
		return err
	}
	s.pushAfterWrite(ctx, "OS "+order.OrderNumber+" updated")
	return nil
}

func (s *Store) DeleteWorkOrder(ctx context.Context, id string) error {
	if err := s.Store.DeleteWorkOrder(ctx, id); err != nil {
		return err
	}
	s.pushAfterWrite(ctx, "OS "+id+" deleted")
	return nil
}

func (s *Store) SaveTimer(ctx context.Context, key tracker.Key, timer *models.ProcessTimer) error {
	if err := s.Store.SaveTimer(ctx, key, timer); err != nil {
		return err
	}
	s.pushAfterWrite(ctx, fmt.Sprintf("%s %s", key, timer.Status))
	return nil
}

// RunAtomic holds the lock of key in the local store and hands fn this
// store, so saves made by fn are pushed as well
func (s *Store) RunAtomic(ctx context.Context, key tracker.Key, fn func(g tracker.Gateway) error) error {
	unlock, err := s.Store.LockKey(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(s)
}

// LastError returns the error of the most recent push, nil if it succeeded
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LastPush returns when the last successful push finished
func (s *Store) LastPush() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPush
}

func (s *Store) pushAfterWrite(ctx context.Context, reason string) {
	if _, err := s.Push(ctx, reason); err != nil {
		s.logger.Warn("Remote mirror push failed, local data kept",
			zap.String("repo", s.client.Repo()),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

// Push uploads every local file whose content differs from the remote copy
// and returns the names of the files it uploaded
func (s *Store) Push(ctx context.Context, reason string) ([]string, error) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	files, err := s.Snapshot()
	if err != nil {
		s.record(err)
		return nil, err
	}

	message := fmt.Sprintf("wotrack: %s - %s", reason, s.clock.Now().Format("02/01/2006 15:04"))
	var (
		mu     sync.Mutex
		pushed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, content := range files {
		name, content := name, content
		g.Go(func() error {
			changed, err := s.pushFile(gctx, name, content, message)
			if err != nil {
				return err
			}
			if changed {
				mu.Lock()
				pushed = append(pushed, name)
				mu.Unlock()
			}
			return nil
		})
	}
	err = g.Wait()
	sort.Strings(pushed)
	s.record(err)
	if err == nil {
		s.logger.Debug("Pushed to remote mirror", zap.Strings("files", pushed), zap.String("repo", s.client.Repo()))
	}
	return pushed, err
}

// pushFile re-reads the remote revision token right before uploading and
// retries once when the upload loses a race with another writer
func (s *Store) pushFile(ctx context.Context, name string, content []byte, message string) (bool, error) {
	for attempt := 0; ; attempt++ {
		remote, err := s.client.Get(ctx, name)
		if err != nil {
			return false, err
		}
		var sha string
		if remote != nil {
			if remote.SHA == BlobSHA(content) {
				return false, nil
			}
			sha = remote.SHA
		}

		_, err = s.client.Put(ctx, name, content, sha, message)
		if errors.Is(err, ErrConflict) && attempt == 0 {
			s.logger.Debug("Remote file changed during push, retrying", zap.String("file", name))
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
}

// Pull overwrites the local files with the remote copies. Files missing on
// the remote are left alone. It returns the names of the replaced files.
func (s *Store) Pull(ctx context.Context) ([]string, error) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	names := s.Files()
	remote := make([]*File, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			f, err := s.client.Get(gctx, name)
			if err != nil {
				return err
			}
			remote[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := make(map[string][]byte)
	var pulled []string
	for _, f := range remote {
		if f == nil {
			continue
		}
		files[f.Path] = f.Content
		pulled = append(pulled, f.Path)
	}
	if len(files) == 0 {
		return nil, nil
	}
	if err := s.Replace(files); err != nil {
		return nil, errors.Wrap(err, "applying remote files")
	}
	s.logger.Info("Pulled from remote mirror", zap.Strings("files", pulled), zap.String("repo", s.client.Repo()))
	return pulled, nil
}

// FileStatus compares one local file with its remote copy
type FileStatus struct {
	Name      string
	LocalSHA  string
	RemoteSHA string
}

func (f FileStatus) InSync() bool {
	return f.LocalSHA == f.RemoteSHA
}

// Status reports, for every file of the store, the local and remote
// revision tokens. An empty token means the file does not exist there.
func (s *Store) Status(ctx context.Context) ([]FileStatus, error) {
	local, err := s.Snapshot()
	if err != nil {
		return nil, err
	}

	names := s.Files()
	statuses := make([]FileStatus, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		statuses[i].Name = name
		if content, ok := local[name]; ok {
			statuses[i].LocalSHA = BlobSHA(content)
		}
		g.Go(func() error {
			f, err := s.client.Get(gctx, name)
			if err != nil {
				return err
			}
			if f != nil {
				statuses[i].RemoteSHA = f.SHA
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

func (s *Store) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err == nil {
		s.lastPush = s.clock.Now()
	}
}
