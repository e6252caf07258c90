package transport

import (
	"context"
	"fmt"
)

// ChatTarget identifies a destination chat. ChatID is either a numeric id
// ("-1001234567890") or a public channel username ("@mychannel").
type ChatTarget struct {
	ChatID string
}

func (t ChatTarget) IsZero() bool { return t.ChatID == "" }

type MessageRef struct {
	ChatID    string
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Document is an outbound file upload.
type Document struct {
	FileName string
	Caption  string
	MIME     string
	Data     []byte
}

// Sender submits messages to the delivery channel.
//
// A nil error means the channel acknowledged the submission.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendDocument(ctx context.Context, to ChatTarget, doc Document) (MessageRef, error)
}

// APIError is returned by senders when the channel endpoint rejects a
// submission. Code is the endpoint's status code (0 when unknown).
type APIError struct {
	Method      string
	Code        int
	Description string
	Err         error
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s failed: %s (code=%d)", e.Method, e.Description, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("%s failed (code=%d)", e.Method, e.Code)
}

func (e *APIError) Unwrap() error { return e.Err }
