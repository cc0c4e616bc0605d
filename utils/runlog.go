package utils

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
)

// LogEntry is one line of the JSON run log written by the pipeline.
type LogEntry struct {
	Timestamp  string `json:"time"`
	Level      string `json:"level"`
	Msg        string `json:"msg"`
	Stage      string `json:"STAGE"`
	Status     string `json:"STATUS"`
	Checkpoint string `json:"CHECKPOINT"`
}

// ParseLogFile reads the run log and returns its entries. A missing file
// is an empty log, not an error; unparseable lines are skipped.
func ParseLogFile(logFilePath string) []LogEntry {
	var entries []LogEntry
	file, err := os.Open(logFilePath)
	if err != nil {
		return entries
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry LogEntry
		if err := json.Unmarshal([]byte(scanner.Text()), &entry); err == nil {
			entries = append(entries, entry)
		}
	}
	return entries
}

// StageHasCompleted reports whether the log records a COMPLETED entry for
// the named stage.
func StageHasCompleted(entries []LogEntry, stage string) bool {
	for _, entry := range entries {
		if entry.Stage == stage && entry.Status == "COMPLETED" {
			return true
		}
	}
	return false
}

// CompletedStages maps each completed stage in the log to the checkpoint
// file it recorded.
func CompletedStages(logFilePath string) map[string]string {
	completed := make(map[string]string)
	for _, entry := range ParseLogFile(logFilePath) {
		if entry.Level == "INFO" && entry.Status == "COMPLETED" && entry.Stage != "" {
			completed[strings.TrimSpace(entry.Stage)] = entry.Checkpoint
		}
	}
	return completed
}
