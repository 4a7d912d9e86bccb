package frame

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/schizzz8/lucrezio-semantic-perception/logging"
	"github.com/schizzz8/lucrezio-semantic-perception/utils"
)

// FrameFileExt is the extension of frame files a DirSource picks up.
const FrameFileExt = ".txt"

// pointsExts are the companion extensions tried, in order, for a frame file's points.
var pointsExts = []string{".pcd", ".png"}

// DirSource serves every frame file in a directory, oldest name first, and then every frame
// file written to it afterwards. A frame file "x.txt" is paired with "x.pcd" or "x.png", which
// must be complete by the time the frame file appears. Writers should move frame files into
// place once complete; a frame file is read once, on its first event.
type DirSource struct {
	dir         string
	cameraFrame string
	logger      logging.Logger
	watcher     *fsnotify.Watcher
	workers     *utils.StoppableWorkers

	mu      sync.Mutex
	queue   []string
	seen    map[string]bool
	notify  chan struct{}
	stopped chan struct{}
}

// NewDirSource starts watching dir.
func NewDirSource(dir, cameraFrame string, logger logging.Logger) (*DirSource, error) {
	if cameraFrame == "" {
		cameraFrame = DefaultCameraFrame
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create directory watcher")
	}
	if err := watcher.Add(dir); err != nil {
		return nil, multiClose(watcher, errors.Wrapf(err, "cannot watch %q", dir))
	}
	ds := &DirSource{
		dir:         dir,
		cameraFrame: cameraFrame,
		logger:      logger,
		watcher:     watcher,
		seen:        map[string]bool{},
		notify:      make(chan struct{}, 1),
		stopped:     make(chan struct{}),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, multiClose(watcher, errors.Wrapf(err, "cannot list %q", dir))
	}
	var existing []string
	for _, e := range entries {
		if !e.IsDir() && isFrameFile(e.Name()) {
			existing = append(existing, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(existing)
	for _, fn := range existing {
		ds.enqueue(fn)
	}

	ds.workers = utils.NewStoppableWorkers(ds.watch)
	return ds, nil
}

func multiClose(watcher *fsnotify.Watcher, err error) error {
	return multierr.Combine(err, watcher.Close())
}

func isFrameFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), FrameFileExt)
}

func (ds *DirSource) enqueue(fn string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.seen[fn] {
		return
	}
	ds.seen[fn] = true
	ds.queue = append(ds.queue, fn)
	select {
	case ds.notify <- struct{}{}:
	default:
	}
}

func (ds *DirSource) dequeue() (string, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if len(ds.queue) == 0 {
		return "", false
	}
	fn := ds.queue[0]
	ds.queue = ds.queue[1:]
	return fn, true
}

func (ds *DirSource) watch(ctx context.Context) {
	defer close(ds.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ds.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				if isFrameFile(event.Name) {
					ds.enqueue(event.Name)
				}
			}
		case err, ok := <-ds.watcher.Errors:
			if !ok {
				return
			}
			ds.logger.Warnw("directory watch error", "dir", ds.dir, "error", err)
		}
	}
}

// Next blocks until a frame file is available. It returns ErrSourceDone once the source is closed
// and every queued file has been served.
func (ds *DirSource) Next(ctx context.Context) (*Input, error) {
	for {
		if fn, ok := ds.dequeue(); ok {
			return LoadInput(fn, ds.companion(fn), ds.cameraFrame, ds.logger)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ds.stopped:
			if fn, ok := ds.dequeue(); ok {
				return LoadInput(fn, ds.companion(fn), ds.cameraFrame, ds.logger)
			}
			return nil, ErrSourceDone
		case <-ds.notify:
		}
	}
}

func (ds *DirSource) companion(fn string) string {
	base := strings.TrimSuffix(fn, filepath.Ext(fn))
	for _, ext := range pointsExts {
		if _, err := os.Stat(base + ext); err == nil {
			return base + ext
		}
	}
	return ""
}

// Close stops watching the directory.
func (ds *DirSource) Close(ctx context.Context) error {
	ds.workers.Stop()
	return ds.watcher.Close()
}
