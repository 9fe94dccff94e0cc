package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 MB", FormatBytes(3<<19))
	assert.Equal(t, "2.0 GB", FormatBytes(2<<30))
}

func TestFormatSource(t *testing.T) {
	page := 3
	assert.Contains(t, FormatSource(0, "notes.pdf", &page), "notes.pdf")
	assert.Contains(t, FormatSource(0, "notes.pdf", &page), "p.3")
	assert.NotContains(t, FormatSource(1, "notes.txt", nil), "p.")
}

func TestHorizontalRule(t *testing.T) {
	assert.Contains(t, HorizontalRule(3), "───")
	assert.NotContains(t, HorizontalRule(0), "─")
}
