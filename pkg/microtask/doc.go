// Package microtask provides the scheduling boundary used for debounced
// emissions.
//
// A microtask is work that must run after the current synchronous job but
// before anything else the host does. Go has no ambient event loop, so the
// boundary is explicit:
//
//   - Queue collects tasks until the host calls Flush. Hosts that own an
//     event loop (a UI update loop, a session goroutine, a test) flush after
//     each job.
//   - Loop drains tasks on its own goroutine as soon as it gets scheduled.
//
// Both run tasks in FIFO order, including tasks scheduled by running tasks.
package microtask
