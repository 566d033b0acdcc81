package extensions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPlainText(t *testing.T) {
	assert.True(t, Document{Path: "docs/README.md"}.IsPlainText())
	assert.True(t, Document{Path: "NOTES.TXT"}.IsPlainText())
	assert.False(t, Document{Path: "main.go"}.IsPlainText())
	assert.False(t, Document{}.IsPlainText())
}
