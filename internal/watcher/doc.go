// Package watcher records bundle stats dropped into a directory.
//
// A build pipeline writes a BundleStats JSON document (the same shape
// `bundlewatch record` reads) into the drop directory. The Watcher notices
// it through fsnotify, waits for writes to settle, stores the snapshot and
// renames the file so it is never recorded twice:
//
//	stats-1712345678.json  ->  stats-1712345678.json.recorded
//	broken.json            ->  broken.json.rejected
//
// Producers should write to a temporary name and rename into place so a
// half-written file is never picked up. A file rejected while its producer
// was still writing is moved back and retried when the next write lands,
// but only for as long as the same Watcher keeps running.
//
// Example usage:
//
//	w, err := watcher.New(mgr, "dist/.bundle-drops", watcher.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := w.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The watch command can also run the Watcher as a background daemon with a
// PID file; see StartDaemon and StopDaemon.
package watcher
