package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Response is the result of dispatching one command line. Encode renders
// it in either of the two wire formats a helper process can ask for.
type Response struct {
	OK      bool           `json:"ok"`
	Command string         `json:"command"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`

	// SyncWait is set by a sync-mode route command (scenario S5): the
	// caller must not surface this Response's acknowledgement until
	// WaitForFlush on these neighbors returns. Never serialized; it only
	// ever crosses the Reactor.Dispatch boundary inside the same process.
	SyncWait []Neighbor `json:"-"`
}

func OK(command string, data map[string]any) Response {
	return Response{OK: true, Command: command, Data: data}
}

func Errorf(command string, format string, args ...any) Response {
	return Response{OK: false, Command: command, Message: fmt.Sprintf(format, args...)}
}

// EncodeJSON renders the response as a single JSON line.
func (r Response) EncodeJSON() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeText renders the response in the plain "done"/"error: ..." text
// form the original helper-process protocol used, for processes declared
// with encoder=text.
func (r Response) EncodeText() string {
	if r.OK {
		if len(r.Data) == 0 {
			return "done"
		}
		var b strings.Builder
		b.WriteString("done")
		for k, v := range r.Data {
			fmt.Fprintf(&b, " %s=%v", k, v)
		}
		return b.String()
	}
	return "error: " + r.Message
}
