package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/forgeworks/appforge/internal/progress"
)

// streamEvents reads the server's SSE feed and forwards decoded events.
// The channel is closed when the stream ends so the TUI can report it.
func streamEvents(ctx context.Context, url string, events chan<- progress.Event) {
	defer close(events)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev progress.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
