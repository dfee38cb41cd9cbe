package mailbox

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher wakes a poller early when a mailbox file changes. The fixed
// polling interval remains the correctness mechanism; the watcher only
// shortens the latency between a producer's rename and the consumer's next
// tick. Events are debounced so a rewrite burst coalesces into one wake.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	wake     chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher watches the mailbox file at path. The parent directory is
// watched rather than the file itself because every write replaces the file
// via rename.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		path:     path,
		debounce: 50 * time.Millisecond,
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Wake returns the channel that receives a signal after the mailbox file
// changes. The channel has capacity 1; coalesced wakes are expected.
func (w *Watcher) Wake() <-chan struct{} {
	return w.wake
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stopCh)
	err := w.watcher.Close()
	<-w.doneCh
	return err
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-fire:
			timer = nil
			fire = nil
			select {
			case w.wake <- struct{}{}:
			default:
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are tolerable: polling still covers correctness.
		}
	}
}
