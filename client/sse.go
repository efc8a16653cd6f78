package client

import (
	"bufio"
	"io"
	"strings"
)

// readSSE consumes a text/event-stream body, invoking handle once per event
// with the event name and the concatenated data payload. Returns when the
// stream ends or errors.
func readSSE(r io.Reader, handle func(event string, data []byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		event string
		data  strings.Builder
	)
	flush := func() {
		if event != "" || data.Len() > 0 {
			handle(event, []byte(data.String()))
		}
		event = ""
		data.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// comment line, ignore
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}
