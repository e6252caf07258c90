// Package scheduler triggers the check pass on an internal schedule, for
// hosts with no external cron hitting the HTTP trigger.
//
// A schedule is either a cron expression (robfig/cron, optional seconds
// field and @descriptors) or a fixed interval. A tick that arrives while the
// previous job is still running is skipped.
package scheduler
