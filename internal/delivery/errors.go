package delivery

import "fmt"

// FetchError reports a document that could not be downloaded.
type FetchError struct {
	URL        string
	StatusCode int
	Message    string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("download %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("download %s: %s", e.URL, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// DeliveryError reports a submission the channel did not accept.
type DeliveryError struct {
	What  string // file name or "notice"
	Cause error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s: %v", e.What, e.Cause)
}

func (e *DeliveryError) Unwrap() error { return e.Cause }
