// Package notifier decides when the daily informational notice is due.
//
// A notice is due at most once per calendar day, and only while the local
// hour (in the configured time zone) equals the configured hour. Whether new
// documents were found in the same pass does not matter.
//
// Settings can be swapped at runtime with Apply; the service also keeps a
// short in-memory history of notices for the status endpoint.
package notifier
