package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTime(t *testing.T) {
	t.Parallel()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 10, 30, 15, 0, time.Local)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.Local)

	t.Run("today", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "10:30:15", formatTime(today))
	})

	t.Run("different year", func(t *testing.T) {
		t.Parallel()

		result := formatTime(diffYear)
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "25")
		assert.Contains(t, result, "2020")
	})
}

func TestPrintTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	headers := []string{"INSTANCE", "RESULT", "ERROR"}
	rows := [][]string{
		{"web", "applied", ""},
		{"api-backend", "failed", "permission denied"},
	}

	printTable(&buf, headers, rows)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	assert.Len(t, lines, 3)
	assert.Equal(t, "INSTANCE     RESULT   ERROR", lines[0])
	assert.Equal(t, "web          applied", lines[1], "trailing padding trimmed")
	assert.Equal(t, "api-backend  failed   permission denied", lines[2])
}
