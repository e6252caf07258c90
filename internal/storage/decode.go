package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"pdfbot/internal/document"
)

// Decode validates raw as a stored record.
//
// The top level must be an object with a "sent" array of strings. A
// lastNoticeDate that is not a YYYY-MM-DD string is dropped and reported
// through dropped, without failing the whole record.
func Decode(raw []byte) (st document.State, dropped error, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return document.NewState(), nil, fmt.Errorf("%w: empty file", ErrStateCorrupted)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil || top == nil {
		if err == nil {
			err = errors.New("top level is null")
		}
		return document.NewState(), nil, fmt.Errorf("%w: %v", ErrStateCorrupted, err)
	}

	sentRaw, ok := top["sent"]
	if !ok {
		return document.NewState(), nil, fmt.Errorf("%w: missing \"sent\"", ErrStateCorrupted)
	}
	var sent []string
	if err := json.Unmarshal(sentRaw, &sent); err != nil || sent == nil {
		if err == nil {
			err = errors.New("\"sent\" is null")
		}
		return document.NewState(), nil, fmt.Errorf("%w: \"sent\" is not a list of strings: %v", ErrStateCorrupted, err)
	}

	st = document.NewState()
	for _, id := range sent {
		st.MarkSent(id)
	}

	if dRaw, ok := top["lastNoticeDate"]; ok && !bytes.Equal(bytes.TrimSpace(dRaw), []byte("null")) {
		var d document.Date
		if err := json.Unmarshal(dRaw, &d); err != nil {
			dropped = fmt.Errorf("lastNoticeDate %s: %w", string(dRaw), err)
		} else {
			st.LastNoticeDate = &d
		}
	}
	return st, dropped, nil
}

// Encode renders st the way the file driver stores it.
func Encode(st document.State) ([]byte, error) {
	if st.Sent == nil {
		st.Sent = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
