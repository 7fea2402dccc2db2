// Package dev provides watch mode: regenerate on every change.
//
// This package implements:
//   - File watching for Go sources, go.mod and the configuration file
//   - A watch session running one incremental pass per change batch
//   - A status server with metrics, artifacts and live pass events
//
// # Architecture
//
// Watch mode consists of several components:
//
//   - Watcher: polls the project for changes
//   - Session: loads packages, runs the incremental controller and writes
//     changed artifacts
//   - Server: serves /healthz, /metrics, /artifacts and /events
//   - Hub: pushes pass events to WebSocket subscribers
//
// # Usage
//
//	w, err := dev.NewWatcher(dev.WatcherConfig{Root: cfg.Dir(), Paths: dev.CollectWatchPaths(cfg)})
//	if err != nil {
//	    return err
//	}
//	session := dev.NewSession(dev.SessionOptions{
//	    Watcher:    w,
//	    Loader:     loader,
//	    Controller: controller,
//	    Builder:    builder,
//	})
//	err = session.Run(ctx)
//
// # Events Protocol
//
// Subscribers connect to /events via WebSocket and receive JSON messages.
// The most recent event is sent on connect:
//
//	{"type":"pass","pass":3,"changed":["example.com/app/ui.Widget"],"duration":"12ms"}
//	{"type":"error","error":"..."}
package dev
