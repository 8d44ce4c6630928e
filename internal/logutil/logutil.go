// Package logutil writes one JSON object per log line.
package logutil

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

var (
	mu     sync.Mutex
	logger = log.New(os.Stderr, "", 0)
)

// SetOutput redirects log lines. Tests use it to capture entries.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// Info logs a structured info message.
func Info(msg string, fields map[string]interface{}) {
	logJSON("info", msg, fields)
}

// Warn logs a structured warning, typically for dropped input that did not
// stop processing.
func Warn(msg string, fields map[string]interface{}) {
	logJSON("warn", msg, fields)
}

// Error logs a structured error message including the error string.
func Error(msg string, err error, fields map[string]interface{}) {
	entry := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		entry[k] = v
	}
	if err != nil {
		entry["error"] = err.Error()
	}
	logJSON("error", msg, entry)
}

func logJSON(level, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"level":     level,
		"message":   msg,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		if k == "level" || k == "message" || k == "timestamp" {
			k = "field_" + k
		}
		entry[k] = v
	}
	payload, err := json.Marshal(entry)
	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		logger.Printf("%s: %+v", msg, fields)
		return
	}
	logger.Printf("%s", payload)
}
