// Package github wraps the GitHub REST API calls signdeck needs to run
// the CDN repository: contents reads/writes for logos and the manifest,
// branch heads, and workflow dispatches to rebuild the published site.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gogithub "github.com/google/go-github/v69/github"
	"golang.org/x/oauth2"

	"github.com/vantagesign/signdeck/internal/config"
	"github.com/vantagesign/signdeck/internal/errors"
	"github.com/vantagesign/signdeck/internal/logging"
)

// File is a repository file as returned by the contents API. SHA is the
// blob SHA required for subsequent updates or deletes of the same path.
type File struct {
	Path    string
	SHA     string
	Content []byte
}

// Client talks to one CDN repository on one branch.
type Client struct {
	gh     *gogithub.Client
	owner  string
	repo   string
	branch string
	log    logging.Logger
}

// NewClient builds a Client for the configured repository. The token is
// carried by an oauth2 transport; the retrying transport sits underneath
// it so authenticated requests get the same 3-attempt policy.
func NewClient(cfg config.GitHubConfig, token string, log logging.Logger) *Client {
	base := &http.Client{
		Transport: newRetryTransport(http.DefaultTransport, log),
	}

	httpClient := base
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		))
	}

	return &Client{
		gh:     gogithub.NewClient(httpClient),
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		branch: cfg.Branch,
		log:    log.WithComponent("github"),
	}
}

// WithBaseURL points the client at a different API endpoint. Used by
// tests and GitHub Enterprise installs.
func (c *Client) WithBaseURL(rawURL string) *Client {
	if !strings.HasSuffix(rawURL, "/") {
		rawURL += "/"
	}
	gh, err := c.gh.WithEnterpriseURLs(rawURL, rawURL)
	if err == nil {
		c.gh = gh
	}
	return c
}

// GetFile fetches a file from the branch. A missing path yields
// errors.ErrNotFound.
func (c *Client) GetFile(ctx context.Context, path string) (*File, error) {
	fileContent, _, resp, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path,
		&gogithub.RepositoryContentGetOptions{Ref: c.branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("file %q: %w", path, errors.ErrNotFound)
		}
		return nil, c.wrapAPIError(resp, fmt.Sprintf("get contents of %q", path), err)
	}
	if fileContent == nil {
		return nil, errors.NewValidation("path_is_directory",
			fmt.Sprintf("%q is a directory, not a file", path))
	}

	decoded, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode contents of %q: %w", path, err)
	}

	return &File{
		Path:    path,
		SHA:     fileContent.GetSHA(),
		Content: []byte(decoded),
	}, nil
}

// PutFile creates or updates a file and returns the new blob SHA. sha
// must be empty for creates and the current blob SHA for updates; a
// stale SHA surfaces as a conflict error so the caller can re-read and
// retry.
func (c *Client) PutFile(ctx context.Context, path string, content []byte, sha, message string) (string, error) {
	opts := &gogithub.RepositoryContentFileOptions{
		Message: gogithub.Ptr(message),
		Content: content,
		Branch:  gogithub.Ptr(c.branch),
	}
	if sha != "" {
		opts.SHA = gogithub.Ptr(sha)
	}

	res, resp, err := c.gh.Repositories.CreateFile(ctx, c.owner, c.repo, path, opts)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity) {
			return "", errors.NewConflict("contents_sha",
				fmt.Sprintf("file %q changed upstream", path), err)
		}
		return "", c.wrapAPIError(resp, fmt.Sprintf("put contents of %q", path), err)
	}

	c.log.Debug(ctx, "file written", "path", path, "sha", res.Content.GetSHA())
	return res.Content.GetSHA(), nil
}

// DeleteFile removes a file. sha must be the current blob SHA.
func (c *Client) DeleteFile(ctx context.Context, path, sha, message string) error {
	opts := &gogithub.RepositoryContentFileOptions{
		Message: gogithub.Ptr(message),
		SHA:     gogithub.Ptr(sha),
		Branch:  gogithub.Ptr(c.branch),
	}

	_, resp, err := c.gh.Repositories.DeleteFile(ctx, c.owner, c.repo, path, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("file %q: %w", path, errors.ErrNotFound)
		}
		if resp != nil && (resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity) {
			return errors.NewConflict("contents_sha",
				fmt.Sprintf("file %q changed upstream", path), err)
		}
		return c.wrapAPIError(resp, fmt.Sprintf("delete %q", path), err)
	}
	return nil
}

// BranchHead returns the commit SHA the branch currently points at.
func (c *Client) BranchHead(ctx context.Context) (string, error) {
	branch, resp, err := c.gh.Repositories.GetBranch(ctx, c.owner, c.repo, c.branch, 1)
	if err != nil {
		return "", c.wrapAPIError(resp, fmt.Sprintf("get branch %q", c.branch), err)
	}
	return branch.GetCommit().GetSHA(), nil
}

// DispatchWorkflow triggers a workflow_dispatch event on the configured
// branch, typically the pages build that republishes the CDN.
func (c *Client) DispatchWorkflow(ctx context.Context, workflowFile string, inputs map[string]any) error {
	event := gogithub.CreateWorkflowDispatchEventRequest{
		Ref:    c.branch,
		Inputs: inputs,
	}

	resp, err := c.gh.Actions.CreateWorkflowDispatchEventByFileName(ctx, c.owner, c.repo, workflowFile, event)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("workflow %q: %w", workflowFile, errors.ErrNotFound)
		}
		return c.wrapAPIError(resp, fmt.Sprintf("dispatch workflow %q", workflowFile), err)
	}

	c.log.Info(ctx, "workflow dispatched", "workflow", workflowFile, "ref", c.branch)
	return nil
}

func (c *Client) wrapAPIError(resp *gogithub.Response, op string, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.NewAuth("github_auth", op+" rejected by GitHub", err)
		}
	}
	return errors.NewNetwork("github_request", op+" failed", err)
}
