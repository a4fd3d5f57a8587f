package naming

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUniqueName(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		existing  []string
		want      string
	}{
		{"free name unchanged", "report.pdf", []string{"other.pdf"}, "report.pdf"},
		{"first collision", "report.pdf", []string{"report.pdf"}, "report (1).pdf"},
		{"skips taken suffixes", "report.pdf", []string{"report.pdf", "report (1).pdf"}, "report (2).pdf"},
		{"resumes after existing suffix", "report (1).pdf", []string{"report.pdf", "report (1).pdf"}, "report (2).pdf"},
		{"case-insensitive", "Report.PDF", []string{"report.pdf"}, "Report (1).PDF"},
		{"no extension", "README", []string{"readme"}, "README (1)"},
		{"dotfile has no extension", ".env", []string{".env"}, ".env (1)"},
		{"multiple dots split at last", "archive.tar.gz", []string{"archive.tar.gz"}, "archive.tar (1).gz"},
		{"empty existing", "a.txt", nil, "a.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateUniqueName(tt.candidate, tt.existing))
		})
	}
}

func TestGenerateUniqueName_NeverCollides(t *testing.T) {
	existing := []string{"a.txt", "a (1).txt", "a (2).txt", "A (3).TXT"}
	got := GenerateUniqueName("a.txt", existing)

	for _, e := range existing {
		assert.NotEqual(t, strings.ToLower(e), strings.ToLower(got))
	}
	assert.Equal(t, "a (4).txt", got)
}

func TestGenerateUniqueNames_BatchIsPairwiseUnique(t *testing.T) {
	items := []Item{
		{Name: "scan.pdf"},
		{Name: "scan.pdf"},
		{Name: "Scan.pdf"},
		{Name: "2023", IsFolder: true},
	}
	got := GenerateUniqueNames(items, []string{"scan.pdf", "2023"})

	assert.Equal(t, []string{"scan (1).pdf", "scan (2).pdf", "Scan (3).pdf", "2023 (1)"}, got)

	seen := map[string]bool{}
	for _, n := range got {
		key := strings.ToLower(n)
		assert.False(t, seen[key], "duplicate name %q", n)
		seen[key] = true
	}
}

func TestGenerateUniqueNames_FolderKeepsDots(t *testing.T) {
	got := GenerateUniqueNames([]Item{{Name: "Tax.2023", IsFolder: true}}, []string{"tax.2023"})
	assert.Equal(t, []string{"Tax.2023 (1)"}, got)
}
