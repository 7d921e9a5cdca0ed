// Package importer loads course packages dropped into a directory. A file
// named <course-id>.zip becomes the package of that course; the course is
// created when it does not exist yet.
package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/scormbridge/internal/modules/coursemodule/models"
)

const (
	// DefaultSettleInterval is how long a file must stay unchanged before import
	DefaultSettleInterval = 2 * time.Second

	// MaxCourseIDLength matches the width of the course id column
	MaxCourseIDLength = 36
)

// Target receives imported packages
type Target interface {
	EnsureCourse(ctx context.Context, id, title string) error
	StorePackage(ctx context.Context, courseID, fileName string, data []byte) (*models.CoursePackage, error)
}

// Options configures an Importer
type Options struct {
	Dir            string
	Watch          bool          // keep watching after the initial scan
	SettleInterval time.Duration // debounce for rapid writes
	MaxSize        int64         // files larger than this are skipped; zero disables
	Logger         hclog.Logger
}

// Importer scans a directory for packages and optionally watches it
type Importer struct {
	target Target
	opts   Options
	logger hclog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	pending  map[string]time.Time // path -> last change
	imported map[string]time.Time // path -> mod time of last import
}

// New creates an importer writing into target
func New(target Target, opts Options) *Importer {
	if opts.SettleInterval <= 0 {
		opts.SettleInterval = DefaultSettleInterval
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Importer{
		target:   target,
		opts:     opts,
		logger:   opts.Logger.Named("importer"),
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]time.Time),
		imported: make(map[string]time.Time),
	}
}

// Start imports every package already present and, when watching is
// enabled, begins watching the directory.
func (im *Importer) Start() error {
	if err := os.MkdirAll(im.opts.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create package directory: %w", err)
	}

	if _, err := im.Scan(); err != nil {
		return err
	}
	if !im.opts.Watch {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create package watcher: %w", err)
	}
	if err := watcher.Add(im.opts.Dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", im.opts.Dir, err)
	}
	im.watcher = watcher

	im.wg.Add(2)
	go im.watchEvents()
	go im.processPending()

	im.logger.Info("watching package directory", "dir", im.opts.Dir)
	return nil
}

// Stop ends watching and waits for in-flight imports
func (im *Importer) Stop() error {
	im.cancel()
	var err error
	if im.watcher != nil {
		err = im.watcher.Close()
	}
	im.wg.Wait()
	return err
}

// Scan imports every package file in the directory and returns how many
// were imported. Files already imported with the same modification time are
// skipped.
func (im *Importer) Scan() (int, error) {
	entries, err := os.ReadDir(im.opts.Dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read package directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !IsPackageFile(entry.Name()) {
			continue
		}
		path := filepath.Join(im.opts.Dir, entry.Name())
		imported, err := im.importFile(path)
		if err != nil {
			im.logger.Error("package import failed", "path", path, "error", err)
			continue
		}
		if imported {
			count++
		}
	}
	return count, nil
}

// IsPackageFile reports whether name looks like an importable package
func IsPackageFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".zip")
}

// CourseIDFromPath derives the course id from a package file name
func CourseIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (im *Importer) watchEvents() {
	defer im.wg.Done()

	for {
		select {
		case event, ok := <-im.watcher.Events:
			if !ok {
				return
			}
			if !IsPackageFile(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			im.mu.Lock()
			im.pending[event.Name] = time.Now()
			im.mu.Unlock()
			im.logger.Debug("package changed", "path", event.Name, "op", event.Op.String())

		case err, ok := <-im.watcher.Errors:
			if !ok {
				return
			}
			im.logger.Error("package watcher error", "error", err)

		case <-im.ctx.Done():
			return
		}
	}
}

// processPending imports files once they have settled
func (im *Importer) processPending() {
	defer im.wg.Done()

	ticker := time.NewTicker(max(im.opts.SettleInterval/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, path := range im.settled() {
				if _, err := im.importFile(path); err != nil {
					im.logger.Error("package import failed", "path", path, "error", err)
				}
			}
		case <-im.ctx.Done():
			return
		}
	}
}

func (im *Importer) settled() []string {
	im.mu.Lock()
	defer im.mu.Unlock()

	var ready []string
	for path, changed := range im.pending {
		if time.Since(changed) >= im.opts.SettleInterval {
			ready = append(ready, path)
			delete(im.pending, path)
		}
	}
	return ready
}

func (im *Importer) importFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	im.mu.Lock()
	last, seen := im.imported[path]
	im.mu.Unlock()
	if seen && last.Equal(info.ModTime()) {
		return false, nil
	}
	if im.opts.MaxSize > 0 && info.Size() > im.opts.MaxSize {
		return false, fmt.Errorf("package is %d bytes, limit is %d", info.Size(), im.opts.MaxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	courseID := CourseIDFromPath(path)
	if courseID == "" || len(courseID) > MaxCourseIDLength {
		return false, fmt.Errorf("cannot derive a course id from %s", filepath.Base(path))
	}
	if err := im.target.EnsureCourse(im.ctx, courseID, courseID); err != nil {
		return false, fmt.Errorf("failed to create course %s: %w", courseID, err)
	}
	pkg, err := im.target.StorePackage(im.ctx, courseID, filepath.Base(path), data)
	if err != nil {
		return false, fmt.Errorf("failed to store package for %s: %w", courseID, err)
	}

	im.mu.Lock()
	im.imported[path] = info.ModTime()
	im.mu.Unlock()

	im.logger.Info("package imported", "course_id", courseID, "path", path, "size", len(data), "scorm", pkg.IsScorm)
	return true, nil
}
