// Package server exposes the HTTP trigger: a request to "/" runs one check
// pass. It also serves /healthz, a JSON /status, and optionally the runtime
// profiler under /debug/pprof/.
package server
