package domain

import "time"

// Commit represents a single commit within the analysis window
type Commit struct {
	SHA       string    `json:"sha"`
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PullRequest represents a pull request within the analysis window
type PullRequest struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Author    string     `json:"author"`
	State     string     `json:"state"` // open, closed, merged
	Labels    []string   `json:"labels"`
	CreatedAt time.Time  `json:"created_at"`
	MergedAt  *time.Time `json:"merged_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	MergeSHA  string     `json:"merge_sha,omitempty"`
}

// Release represents a published release
type Release struct {
	Name        string    `json:"name"`
	TagName     string    `json:"tag_name"`
	SHA         string    `json:"sha,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Tag represents a git tag with its tagged commit
type Tag struct {
	Name string    `json:"name"`
	SHA  string    `json:"sha"`
	Date time.Time `json:"date"`
}

// Issue represents an issue within the analysis window
type Issue struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Labels    []string   `json:"labels"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// RawActivityWindow holds the raw version-control activity for one
// repository over a trailing analysis period. It is ephemeral: built per
// refresh and discarded after metric derivation.
type RawActivityWindow struct {
	Repo         string        `json:"repo"`
	WindowDays   int           `json:"window_days"`
	FetchedAt    time.Time     `json:"fetched_at"`
	Commits      []Commit      `json:"commits"`
	PullRequests []PullRequest `json:"pull_requests"`
	Releases     []Release     `json:"releases"`
	Tags         []Tag         `json:"tags"`
	Issues       []Issue       `json:"issues"`
}

// Truncate returns a copy of the window restricted to the trailing `days`
// before the fetch time. It lets one fetch of the longest window serve the
// shorter analysis periods as well.
func (w *RawActivityWindow) Truncate(days int) *RawActivityWindow {
	if days >= w.WindowDays {
		return w
	}
	cutoff := w.FetchedAt.AddDate(0, 0, -days)

	out := &RawActivityWindow{
		Repo:       w.Repo,
		WindowDays: days,
		FetchedAt:  w.FetchedAt,
	}
	for _, c := range w.Commits {
		if !c.Timestamp.Before(cutoff) {
			out.Commits = append(out.Commits, c)
		}
	}
	for _, pr := range w.PullRequests {
		if !pr.CreatedAt.Before(cutoff) {
			out.PullRequests = append(out.PullRequests, pr)
		}
	}
	for _, r := range w.Releases {
		if !r.PublishedAt.Before(cutoff) {
			out.Releases = append(out.Releases, r)
		}
	}
	for _, t := range w.Tags {
		if !t.Date.Before(cutoff) {
			out.Tags = append(out.Tags, t)
		}
	}
	for _, i := range w.Issues {
		if !i.CreatedAt.Before(cutoff) {
			out.Issues = append(out.Issues, i)
		}
	}
	return out
}
