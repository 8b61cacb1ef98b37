package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"valid", "hello", nil},
		{"empty", "", ErrEmptyMessage},
		{"at limit", strings.Repeat("a", MaxMessageLength), nil},
		{"over limit", strings.Repeat("a", MaxMessageLength+1), ErrMessageTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &Message{Content: tt.content}
			if tt.want == nil {
				assert.NoError(t, msg.Validate())
			} else {
				assert.ErrorIs(t, msg.Validate(), tt.want)
			}
		})
	}
}
