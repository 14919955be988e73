package textutil_test

import (
	"testing"

	"github.com/lalith-99/echocast/internal/textutil"
	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"spaces", "Tech News", 0, "tech-news"},
		{"diacritics", "Café Crème", 0, "cafe-creme"},
		{"collapse separators", "a  --  b", 0, "a-b"},
		{"trim edges", "  !hello! ", 0, "hello"},
		{"underscore kept", "dev_ops team", 0, "dev_ops-team"},
		{"truncate without trailing hyphen", "abcd efgh", 5, "abcd"},
		{"empty", "!!!", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, textutil.Slug(tt.in, tt.max))
		})
	}
}

func TestNormalizeUsername(t *testing.T) {
	assert.Equal(t, "alice", textutil.NormalizeUsername("  Alice "))
	assert.Equal(t, textutil.NormalizeUsername("ALICE"), textutil.NormalizeUsername("alice"))
	assert.Equal(t, "strasse", textutil.NormalizeUsername("STRASSE"))
}
