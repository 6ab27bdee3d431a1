package mimetypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		detected string
		expected MIME
		want     bool
	}{
		{"Plain text with charset", "text/plain; charset=utf-8", TextPlain, true},
		{"PDF", "application/pdf", ApplicationPDF, true},
		{"PNG", "image/png", ImagePNG, true},
		{"JPEG", "image/jpeg", ImageJPEG, true},
		{"Mismatch", "text/plain; charset=utf-8", ApplicationPDF, false},
		{"Octet stream", "application/octet-stream", TextPlain, false},
		{"Invalid MIME", "not a mime", TextPlain, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Matches(tt.detected, tt.expected)
			require.Equal(t, tt.want, ok)
		})
	}
}

func TestIsImage(t *testing.T) {
	req := require.New(t)
	req.True(IsImage("image/png"))
	req.True(IsImage("image/svg+xml; charset=utf-8"))
	req.False(IsImage("application/pdf"))
	req.False(IsImage("not a mime"))
	req.Equal(Unknown, Parse(""))
}
