package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "person", sanitizeLabel("person"))
	assert.Equal(t, "contact_record", sanitizeLabel("contact_record"))
	assert.Equal(t, "person2", sanitizeLabel("person-2"))
	assert.Equal(t, "person", sanitizeLabel("(person)"))
	assert.Equal(t, "Record", sanitizeLabel(""))
	assert.Equal(t, "Record", sanitizeLabel("!!!"))
}
