// Package watcher runs one check pass: load state, list the source page,
// deliver what is new, maybe send the daily notice, and persist.
//
// A pass is linear and has no loop of its own. Callers (HTTP trigger,
// internal schedule) decide when to run it; passes never overlap.
package watcher
