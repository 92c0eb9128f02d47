package domain

import "time"

// Team represents a team with a single linked repository
type Team struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Members      []string  `json:"members"`
	RepoURL      string    `json:"repo_url"`
	RepoFullName string    `json:"repo_full_name"` // "owner/name"
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Contributor represents a repository contributor
type Contributor struct {
	Username      string `json:"username"`
	Contributions int    `json:"contributions"`
	ProfileURL    string `json:"profile_url"`
}

// RepositorySnapshot represents the state of a team's repository at refresh time.
// It is rebuilt wholesale on each refresh, never partially patched.
type RepositorySnapshot struct {
	FullName      string            `json:"full_name"`
	DefaultBranch string            `json:"default_branch"`
	Stars         int               `json:"stars"`
	Forks         int               `json:"forks"`
	Watchers      int               `json:"watchers"`
	SizeKB        int               `json:"size_kb"`
	Languages     map[string]int    `json:"languages"`
	OpenIssues    int               `json:"open_issues"`
	OpenPRs       int               `json:"open_prs"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	PushedAt      time.Time         `json:"pushed_at"`
	Contributors  []Contributor     `json:"contributors"`
	Complexity    *ComplexityReport `json:"complexity,omitempty"`
	FetchedAt     time.Time         `json:"fetched_at"`
}

// ComplexityReport is a lightweight structural score for a repository.
// It is advisory context for insight prompts, not a DORA metric.
type ComplexityReport struct {
	Complexity int           `json:"complexity"`
	Size       int           `json:"size"`
	Structure  RepoStructure `json:"structure"`
}

// RepoStructure describes file and directory composition
type RepoStructure struct {
	FileCount      int            `json:"file_count"`
	DirectoryCount int            `json:"directory_count"`
	FileTypes      map[string]int `json:"file_types"`
}

// TreeEntry represents a single entry in a repository file tree
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob" or "tree"
}
