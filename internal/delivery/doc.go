// Package delivery downloads discovered documents and hands them, with a
// readable file name and caption, to the channel sender.
//
// Every submission reports plain success or failure. Nothing is retried
// within a pass; an undelivered item stays out of the persisted set and is
// picked up again on the next trigger.
package delivery
