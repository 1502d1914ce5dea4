// Package devtools serves an HTTP inspector over a store.
//
// The handler exposes the current snapshot, an optional JSON merge-patch
// endpoint, a WebSocket feed of every committed snapshot and the
// Prometheus metrics of the process:
//
//	GET  /state    current snapshot
//	POST /patch    top-level JSON merge (disabled unless AllowPatch)
//	GET  /ws       snapshot stream
//	GET  /metrics  Prometheus exposition
//
// Usage:
//
//	s := store.New(initial)
//	tools := devtools.New(s, devtools.AllowPatch(true))
//	defer tools.Close()
//	http.ListenAndServe("localhost:7070", tools.Handler())
package devtools
