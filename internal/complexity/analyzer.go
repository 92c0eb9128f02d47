package complexity

import (
	"strings"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
)

// Analyze derives a lightweight structural score from language composition
// and the repository file tree. The score is advisory context for insight
// prompts, not a DORA metric.
//
// complexity = 10 x distinct languages + file count. Files without an
// extension are counted in FileCount but left out of the extension
// histogram; that is a display choice, not an omission.
func Analyze(languages map[string]int, entries []domain.TreeEntry) *domain.ComplexityReport {
	size := 0
	for _, bytes := range languages {
		size += bytes
	}

	structure := domain.RepoStructure{FileTypes: make(map[string]int)}
	for _, e := range entries {
		if e.Type != "blob" {
			structure.DirectoryCount++
			continue
		}
		structure.FileCount++
		if ext := extension(e.Path); ext != "" {
			structure.FileTypes[ext]++
		}
	}

	return &domain.ComplexityReport{
		Complexity: 10*len(languages) + structure.FileCount,
		Size:       size,
		Structure:  structure,
	}
}

// extension returns the substring after the last dot of the base name, or
// "" when there is none
func extension(path string) string {
	base := path
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	i := strings.LastIndex(base, ".")
	if i <= 0 || i == len(base)-1 {
		return ""
	}
	return base[i+1:]
}
