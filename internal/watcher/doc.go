// Package watcher reports files arriving in an inbox directory.
//
// fsnotify is used when available, with periodic polling as a fallback for
// filesystems that do not deliver notifications (network mounts, some
// container volumes). Bursts of events for the same file are debounced so
// a file that is still being written is reported once, after it settles.
//
// Usage:
//
//	w, err := watcher.NewInboxWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go w.Start(ctx, "/var/spool/shadowfinder")
//	for batch := range w.Events() {
//	    for _, ev := range batch {
//	        // ev.Path is relative to the inbox
//	    }
//	}
package watcher
