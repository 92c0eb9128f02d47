package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"

	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
	apperrors "github.com/COS301-SE-2025/devx360-metrics/internal/errors"
	"github.com/COS301-SE-2025/devx360-metrics/internal/tokenpool"
)

const (
	maxCredentialAttempts = 3
	maxTransientAttempts  = 3
	transientBackoff      = 500 * time.Millisecond
	perPage               = 100
)

// GitHubFetcher implements Fetcher using the GitHub API with a rotating
// credential pool
type GitHubFetcher struct {
	pool    *tokenpool.Pool
	apiBase *url.URL // overridden in tests
}

// NewGitHubFetcher creates a new GitHub fetcher backed by a credential pool
func NewGitHubFetcher(pool *tokenpool.Pool) *GitHubFetcher {
	return &GitHubFetcher{pool: pool}
}

// Fetch retrieves commits, pull requests, releases, tags, issues and
// repository metadata for the trailing window. On a rate-limited response
// the borrowed credential is parked and the fetch is retried with a fresh
// one, up to a bound.
func (f *GitHubFetcher) Fetch(ctx context.Context, fullName string, windowDays int) (*Result, error) {
	owner, repo, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCredentialAttempts; attempt++ {
		cred, err := f.pool.Acquire()
		if err != nil {
			return nil, apperrors.NewRateLimitedError("credential pool exhausted")
		}

		res, fetchErr := f.fetchWith(ctx, cred.Token, owner, repo, windowDays)
		switch {
		case fetchErr == nil:
			f.pool.Release(cred, tokenpool.OutcomeOK, time.Time{})
			return res, nil
		case apperrors.IsRateLimited(fetchErr):
			f.pool.Release(cred, tokenpool.OutcomeRateLimited, rateLimitReset(fetchErr))
			continue
		case apperrors.IsUnauthorized(fetchErr):
			f.pool.Release(cred, tokenpool.OutcomeAuthFailure, time.Time{})
			return nil, fetchErr
		default:
			f.pool.Release(cred, tokenpool.OutcomeOK, time.Time{})
			return nil, fetchErr
		}
	}
	return nil, apperrors.NewRateLimitedError(fmt.Sprintf("rate limited on all credentials for %s", fullName))
}

func (f *GitHubFetcher) newClient(ctx context.Context, token string) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if f.apiBase != nil {
		client.BaseURL = f.apiBase
	}
	return client
}

func (f *GitHubFetcher) fetchWith(ctx context.Context, token, owner, repo string, windowDays int) (*Result, error) {
	client := f.newClient(ctx, token)
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -windowDays)

	meta, err := f.getRepository(ctx, client, owner, repo)
	if err != nil {
		return nil, err
	}

	window := &domain.RawActivityWindow{
		Repo:       owner + "/" + repo,
		WindowDays: windowDays,
		FetchedAt:  now,
	}

	if window.Commits, err = f.listCommits(ctx, client, owner, repo, since, now); err != nil {
		return nil, err
	}
	if window.PullRequests, err = f.listPullRequests(ctx, client, owner, repo, since, now); err != nil {
		return nil, err
	}
	if window.Releases, window.Tags, err = f.listDeploymentPoints(ctx, client, owner, repo, since, window.Commits); err != nil {
		return nil, err
	}
	if window.Issues, err = f.listIssues(ctx, client, owner, repo, since); err != nil {
		return nil, err
	}

	snapshot, tree, err := f.buildSnapshot(ctx, client, owner, repo, meta, window, now)
	if err != nil {
		return nil, err
	}

	return &Result{Snapshot: snapshot, Window: window, Tree: tree}, nil
}

func (f *GitHubFetcher) getRepository(ctx context.Context, client *github.Client, owner, repo string) (*github.Repository, error) {
	var meta *github.Repository
	err := f.call(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		meta, resp, err = client.Repositories.Get(ctx, owner, repo)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (f *GitHubFetcher) listCommits(ctx context.Context, client *github.Client, owner, repo string, since, until time.Time) ([]domain.Commit, error) {
	var all []domain.Commit
	opts := &github.CommitsListOptions{
		Since:       since,
		Until:       until,
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	for {
		var commits []*github.RepositoryCommit
		var resp *github.Response
		err := f.call(ctx, func() (*github.Response, error) {
			var err error
			commits, resp, err = client.Repositories.ListCommits(ctx, owner, repo, opts)
			// Empty repositories answer 409; treat as no commits
			if err != nil && resp != nil && resp.StatusCode == 409 {
				commits, err = nil, nil
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, c := range commits {
			author := ""
			if c.Author != nil {
				author = c.Author.GetLogin()
			} else if c.Commit != nil && c.Commit.Author != nil {
				author = c.Commit.Author.GetName()
			}
			all = append(all, domain.Commit{
				SHA:       c.GetSHA(),
				Author:    author,
				Message:   c.Commit.GetMessage(),
				Timestamp: c.Commit.Author.GetDate().Time.UTC(),
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (f *GitHubFetcher) listPullRequests(ctx context.Context, client *github.Client, owner, repo string, since, until time.Time) ([]domain.PullRequest, error) {
	var all []domain.PullRequest
	opts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	for {
		var prs []*github.PullRequest
		var resp *github.Response
		err := f.call(ctx, func() (*github.Response, error) {
			var err error
			prs, resp, err = client.PullRequests.List(ctx, owner, repo, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, pr := range prs {
			createdAt := pr.GetCreatedAt().Time.UTC()
			if createdAt.Before(since) {
				// PRs are sorted by created date desc, so we can stop here
				return all, nil
			}
			if createdAt.After(until) {
				continue
			}

			state := pr.GetState()
			if pr.MergedAt != nil {
				state = "merged"
			}
			var mergedAt, closedAt *time.Time
			if pr.MergedAt != nil {
				t := pr.MergedAt.Time.UTC()
				mergedAt = &t
			}
			if pr.ClosedAt != nil {
				t := pr.ClosedAt.Time.UTC()
				closedAt = &t
			}
			labels := make([]string, 0, len(pr.Labels))
			for _, l := range pr.Labels {
				labels = append(labels, l.GetName())
			}

			all = append(all, domain.PullRequest{
				Number:    pr.GetNumber(),
				Title:     pr.GetTitle(),
				Author:    pr.User.GetLogin(),
				State:     state,
				Labels:    labels,
				CreatedAt: createdAt,
				MergedAt:  mergedAt,
				ClosedAt:  closedAt,
				MergeSHA:  pr.GetMergeCommitSHA(),
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// listDeploymentPoints retrieves releases and tags, resolving each tag's
// commit date so the calculator can place it in the window. Tag dates are
// resolved from the already-fetched commits where possible; a tag whose
// commit cannot be resolved keeps a zero date and falls outside the window.
func (f *GitHubFetcher) listDeploymentPoints(ctx context.Context, client *github.Client, owner, repo string, since time.Time, commits []domain.Commit) ([]domain.Release, []domain.Tag, error) {
	commitDates := make(map[string]time.Time, len(commits))
	for _, c := range commits {
		commitDates[c.SHA] = c.Timestamp
	}

	var tags []domain.Tag
	tagSHAs := make(map[string]string)
	opts := &github.ListOptions{PerPage: perPage}
	for {
		var page []*github.RepositoryTag
		var resp *github.Response
		err := f.call(ctx, func() (*github.Response, error) {
			var err error
			page, resp, err = client.Repositories.ListTags(ctx, owner, repo, opts)
			return resp, err
		})
		if err != nil {
			return nil, nil, err
		}

		for _, t := range page {
			sha := t.Commit.GetSHA()
			tagSHAs[t.GetName()] = sha
			date, ok := commitDates[sha]
			if !ok {
				date = f.commitDate(ctx, client, owner, repo, sha)
			}
			if date.IsZero() || date.Before(since) {
				continue
			}
			tags = append(tags, domain.Tag{Name: t.GetName(), SHA: sha, Date: date})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	var releases []domain.Release
	relOpts := &github.ListOptions{PerPage: perPage}
	for {
		var page []*github.RepositoryRelease
		var resp *github.Response
		err := f.call(ctx, func() (*github.Response, error) {
			var err error
			page, resp, err = client.Repositories.ListReleases(ctx, owner, repo, relOpts)
			return resp, err
		})
		if err != nil {
			return nil, nil, err
		}

		for _, r := range page {
			if r.PublishedAt == nil {
				continue
			}
			publishedAt := r.PublishedAt.Time.UTC()
			if publishedAt.Before(since) {
				continue
			}
			releases = append(releases, domain.Release{
				Name:        r.GetName(),
				TagName:     r.GetTagName(),
				SHA:         tagSHAs[r.GetTagName()],
				PublishedAt: publishedAt,
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		relOpts.Page = resp.NextPage
	}

	return releases, tags, nil
}

// commitDate looks up a single commit's author date. Failures return the
// zero time; the tag is then simply excluded from the window.
func (f *GitHubFetcher) commitDate(ctx context.Context, client *github.Client, owner, repo, sha string) time.Time {
	var commit *github.RepositoryCommit
	err := f.call(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		commit, resp, err = client.Repositories.GetCommit(ctx, owner, repo, sha, nil)
		return resp, err
	})
	if err != nil || commit.Commit == nil || commit.Commit.Author == nil {
		return time.Time{}
	}
	return commit.Commit.Author.GetDate().Time.UTC()
}

func (f *GitHubFetcher) listIssues(ctx context.Context, client *github.Client, owner, repo string, since time.Time) ([]domain.Issue, error) {
	var all []domain.Issue
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Since:       since,
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	for {
		var issues []*github.Issue
		var resp *github.Response
		err := f.call(ctx, func() (*github.Response, error) {
			var err error
			issues, resp, err = client.Issues.ListByRepo(ctx, owner, repo, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, is := range issues {
			if is.IsPullRequest() {
				continue
			}
			// Since filters by update time on this endpoint; issues opened
			// before the window would otherwise leak in with their full
			// open-to-close latency.
			if is.GetCreatedAt().Time.UTC().Before(since) {
				continue
			}
			var closedAt *time.Time
			if is.ClosedAt != nil {
				t := is.ClosedAt.Time.UTC()
				closedAt = &t
			}
			labels := make([]string, 0, len(is.Labels))
			for _, l := range is.Labels {
				labels = append(labels, l.GetName())
			}
			all = append(all, domain.Issue{
				Number:    is.GetNumber(),
				Title:     is.GetTitle(),
				Labels:    labels,
				CreatedAt: is.GetCreatedAt().Time.UTC(),
				ClosedAt:  closedAt,
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (f *GitHubFetcher) buildSnapshot(ctx context.Context, client *github.Client, owner, repo string, meta *github.Repository, window *domain.RawActivityWindow, now time.Time) (*domain.RepositorySnapshot, []domain.TreeEntry, error) {
	var languages map[string]int
	err := f.call(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		languages, resp, err = client.Repositories.ListLanguages(ctx, owner, repo)
		return resp, err
	})
	if err != nil {
		return nil, nil, err
	}

	var contributors []domain.Contributor
	var ghContribs []*github.Contributor
	err = f.call(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		ghContribs, resp, err = client.Repositories.ListContributors(ctx, owner, repo, &github.ListContributorsOptions{
			ListOptions: github.ListOptions{PerPage: perPage},
		})
		return resp, err
	})
	if err != nil {
		return nil, nil, err
	}
	for _, c := range ghContribs {
		contributors = append(contributors, domain.Contributor{
			Username:      c.GetLogin(),
			Contributions: c.GetContributions(),
			ProfileURL:    c.GetHTMLURL(),
		})
	}

	// The file tree is only advisory input for the complexity analyzer;
	// a failure here must not abort the refresh.
	var entries []domain.TreeEntry
	var tree *github.Tree
	treeErr := f.call(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		tree, resp, err = client.Git.GetTree(ctx, owner, repo, meta.GetDefaultBranch(), true)
		return resp, err
	})
	if treeErr == nil && tree != nil {
		for _, e := range tree.Entries {
			entries = append(entries, domain.TreeEntry{Path: e.GetPath(), Type: e.GetType()})
		}
	}

	openPRs := 0
	for _, pr := range window.PullRequests {
		if pr.State == "open" {
			openPRs++
		}
	}

	snapshot := &domain.RepositorySnapshot{
		FullName:      meta.GetFullName(),
		DefaultBranch: meta.GetDefaultBranch(),
		Stars:         meta.GetStargazersCount(),
		Forks:         meta.GetForksCount(),
		Watchers:      meta.GetSubscribersCount(),
		SizeKB:        meta.GetSize(),
		Languages:     languages,
		OpenIssues:    meta.GetOpenIssuesCount(),
		OpenPRs:       openPRs,
		CreatedAt:     meta.GetCreatedAt().Time.UTC(),
		UpdatedAt:     meta.GetUpdatedAt().Time.UTC(),
		PushedAt:      meta.GetPushedAt().Time.UTC(),
		Contributors:  contributors,
		FetchedAt:     now,
	}
	return snapshot, entries, nil
}

// call runs one API request, retrying transient failures with exponential
// backoff. Non-transient failures are classified into the application
// error taxonomy and returned as-is.
func (f *GitHubFetcher) call(ctx context.Context, fn func() (*github.Response, error)) error {
	var lastErr error
	for attempt := 0; attempt < maxTransientAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return apperrors.NewTransientError("fetch cancelled", ctx.Err())
			case <-time.After(transientBackoff << uint(attempt-1)):
			}
		}

		resp, err := fn()
		if err == nil {
			return nil
		}
		classified := classify(err, resp)
		if !apperrors.IsTransient(classified) {
			return classified
		}
		lastErr = classified
	}
	return lastErr
}

// classify maps a go-github error to the application error taxonomy
func classify(err error, resp *github.Response) error {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &apperrors.AppError{Code: apperrors.ErrCodeRateLimited, Message: "GitHub rate limit exceeded", Err: err}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &apperrors.AppError{Code: apperrors.ErrCodeRateLimited, Message: "GitHub secondary rate limit hit", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewTransientError("request timed out", err)
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	switch {
	case status == 401 || status == 403:
		return apperrors.NewUnauthorizedError("GitHub credential rejected")
	case status == 404:
		return apperrors.NewNotFoundError("repository")
	case status >= 500:
		return apperrors.NewTransientError(fmt.Sprintf("GitHub returned %d", status), err)
	case status == 0:
		// No HTTP response at all: network-level failure
		return apperrors.NewTransientError("network error", err)
	default:
		return apperrors.NewInternalError("unexpected GitHub error", err)
	}
}

// rateLimitReset extracts the reset time wrapped inside a classified rate
// limit error; without one the pool applies a default cooldown.
func rateLimitReset(err error) time.Time {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return rateErr.Rate.Reset.Time
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.RetryAfter != nil {
		return time.Now().Add(*abuseErr.RetryAfter)
	}
	return time.Time{}
}

func splitFullName(fullName string) (string, string, error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", apperrors.NewBadRequestError(fmt.Sprintf("invalid repository name %q", fullName))
	}
	return parts[0], parts[1], nil
}
