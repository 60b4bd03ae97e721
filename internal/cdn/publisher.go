// Package cdn publishes billboard assets to the GitHub-backed CDN: logo
// uploads, manifest edits and the workflow dispatch that rebuilds the
// published site. It is the single write path to the CDN repository.
package cdn

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/vantagesign/signdeck/internal/config"
	"github.com/vantagesign/signdeck/internal/errors"
	"github.com/vantagesign/signdeck/internal/github"
	"github.com/vantagesign/signdeck/internal/logging"
	"github.com/vantagesign/signdeck/internal/manifest"
)

// ContentsAPI is the slice of the GitHub client the publisher uses.
type ContentsAPI interface {
	GetFile(ctx context.Context, path string) (*github.File, error)
	PutFile(ctx context.Context, path string, content []byte, sha, message string) (string, error)
	DeleteFile(ctx context.Context, path, sha, message string) error
	DispatchWorkflow(ctx context.Context, workflowFile string, inputs map[string]any) error
}

// allowedExtensions maps accepted logo file extensions to their
// canonical form.
var allowedExtensions = map[string]string{
	".png":  ".png",
	".jpg":  ".jpg",
	".jpeg": ".jpg",
	".gif":  ".gif",
	".svg":  ".svg",
	".webp": ".webp",
}

// Publisher owns all CDN writes.
type Publisher struct {
	api ContentsAPI
	cfg config.GitHubConfig
	log logging.Logger

	// clock is swapped in tests.
	clock func() time.Time
}

// NewPublisher builds a publisher for the configured repository.
func NewPublisher(api ContentsAPI, cfg config.GitHubConfig, log logging.Logger) *Publisher {
	return &Publisher{
		api:   api,
		cfg:   cfg,
		log:   log.WithComponent("cdn"),
		clock: time.Now,
	}
}

// FetchManifest reads the manifest from the CDN. A repository without a
// manifest yet yields a fresh document and an empty SHA.
func (p *Publisher) FetchManifest(ctx context.Context) (*manifest.Manifest, string, error) {
	file, err := p.api.GetFile(ctx, p.cfg.ManifestPath)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return manifest.New(), "", nil
		}
		return nil, "", err
	}

	m, err := manifest.Parse(file.Content)
	if err != nil {
		return nil, "", err
	}
	return m, file.SHA, nil
}

// updateManifest runs a read-modify-write cycle against the manifest's
// contents SHA. A SHA conflict gets one fresh read and re-apply before
// the conflict is surfaced to the caller.
func (p *Publisher) updateManifest(ctx context.Context, message string, mutate func(*manifest.Manifest) error) (*manifest.Manifest, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		m, sha, err := p.FetchManifest(ctx)
		if err != nil {
			return nil, err
		}
		if err := mutate(m); err != nil {
			return nil, err
		}
		m.UpdatedAt = p.clock()

		encoded, err := m.Encode()
		if err != nil {
			return nil, err
		}

		if _, err := p.api.PutFile(ctx, p.cfg.ManifestPath, encoded, sha, message); err != nil {
			if errors.TypeOf(err) == errors.TypeConflict {
				p.log.Warn(ctx, err, "manifest moved upstream, re-reading")
				lastErr = err
				continue
			}
			return nil, err
		}
		return m, nil
	}
	return nil, lastErr
}

// UploadLogo validates and uploads one logo asset, then registers it in
// the manifest. Re-uploading a name that slugs to an existing ID
// replaces that logo.
func (p *Publisher) UploadLogo(ctx context.Context, name string, content []byte) (manifest.Logo, error) {
	ext, ok := allowedExtensions[strings.ToLower(path.Ext(name))]
	if !ok {
		return manifest.Logo{}, errors.NewValidation("unsupported_logo_type",
			fmt.Sprintf("unsupported logo type %q (want png, jpg, gif, svg or webp)", path.Ext(name)))
	}
	if int64(len(content)) > p.cfg.MaxLogoBytes {
		return manifest.Logo{}, errors.NewValidation("logo_too_large",
			fmt.Sprintf("logo is %d bytes, limit is %d", len(content), p.cfg.MaxLogoBytes)).
			WithContext("size", len(content)).
			WithContext("limit", p.cfg.MaxLogoBytes)
	}
	if len(content) == 0 {
		return manifest.Logo{}, errors.NewValidation("empty_logo", "logo file is empty")
	}

	id := manifest.SlugID(name)
	if id == "" {
		return manifest.Logo{}, errors.NewValidation("unusable_logo_name",
			fmt.Sprintf("cannot derive an id from %q", name))
	}
	assetPath := path.Join(p.cfg.LogoDir, id+ext)

	// Uploading over an existing asset needs its blob SHA.
	var assetSHA string
	if existing, err := p.api.GetFile(ctx, assetPath); err == nil {
		assetSHA = existing.SHA
	} else if !errors.Is(err, errors.ErrNotFound) {
		return manifest.Logo{}, err
	}

	if _, err := p.api.PutFile(ctx, assetPath, content, assetSHA,
		fmt.Sprintf("upload logo %s", id)); err != nil {
		return manifest.Logo{}, fmt.Errorf("upload asset %s: %w", assetPath, err)
	}

	logo := manifest.Logo{
		ID:         id,
		Name:       path.Base(name),
		URL:        p.assetURL(assetPath),
		UploadedAt: p.clock().UTC(),
	}

	// Re-read the entry after the upsert so the caller sees the order
	// the manifest actually assigned.
	var stored manifest.Logo
	if _, err := p.updateManifest(ctx, fmt.Sprintf("register logo %s", id),
		func(m *manifest.Manifest) error {
			if err := m.Upsert(logo); err != nil {
				return err
			}
			stored, _ = m.Find(id)
			return nil
		}); err != nil {
		return manifest.Logo{}, err
	}

	p.log.Info(ctx, "logo published", "id", id, "path", assetPath, "bytes", len(content))
	return stored, p.dispatchPublish(ctx, "logo upload")
}

// RemoveLogo deletes a logo's asset and manifest entry.
func (p *Publisher) RemoveLogo(ctx context.Context, id string) error {
	m, _, err := p.FetchManifest(ctx)
	if err != nil {
		return err
	}
	logo, ok := m.Find(id)
	if !ok {
		return fmt.Errorf("logo %q: %w", id, errors.ErrNotFound)
	}

	assetPath := p.assetPathFromURL(logo.URL)
	if assetPath != "" {
		if asset, err := p.api.GetFile(ctx, assetPath); err == nil {
			if err := p.api.DeleteFile(ctx, assetPath, asset.SHA,
				fmt.Sprintf("remove logo %s", id)); err != nil {
				return fmt.Errorf("delete asset %s: %w", assetPath, err)
			}
		} else if !errors.Is(err, errors.ErrNotFound) {
			return err
		}
	}

	if _, err := p.updateManifest(ctx, fmt.Sprintf("unregister logo %s", id),
		func(m *manifest.Manifest) error { return m.Remove(id, p.clock()) }); err != nil {
		return err
	}

	p.log.Info(ctx, "logo removed", "id", id)
	return p.dispatchPublish(ctx, "logo removal")
}

// PublishManifest rewrites the manifest on the CDN and dispatches the
// publish workflow. Used to force a rebuild after manual repository
// edits.
func (p *Publisher) PublishManifest(ctx context.Context) (*manifest.Manifest, error) {
	m, err := p.updateManifest(ctx, "republish manifest",
		func(*manifest.Manifest) error { return nil })
	if err != nil {
		return nil, err
	}
	return m, p.dispatchPublish(ctx, "manual publish")
}

// UpdateSettings mutates the manifest's settings block in place.
func (p *Publisher) UpdateSettings(ctx context.Context, mutate func(*manifest.Settings) error) (*manifest.Manifest, error) {
	m, err := p.updateManifest(ctx, "update display settings",
		func(m *manifest.Manifest) error { return mutate(&m.Settings) })
	if err != nil {
		return nil, err
	}
	return m, p.dispatchPublish(ctx, "settings update")
}

// dispatchPublish triggers the site rebuild workflow when one is
// configured.
func (p *Publisher) dispatchPublish(ctx context.Context, reason string) error {
	if p.cfg.Workflow == "" {
		return nil
	}
	if err := p.api.DispatchWorkflow(ctx, p.cfg.Workflow, map[string]any{"reason": reason}); err != nil {
		return fmt.Errorf("dispatch publish workflow: %w", err)
	}
	return nil
}

// assetURL is the raw content URL devices fetch assets from.
func (p *Publisher) assetURL(assetPath string) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s",
		p.cfg.Owner, p.cfg.Repo, p.cfg.Branch, assetPath)
}

// assetPathFromURL recovers the repo-relative asset path from a logo
// URL, or "" when the URL does not point into this repository.
func (p *Publisher) assetPathFromURL(rawURL string) string {
	prefix := fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/",
		p.cfg.Owner, p.cfg.Repo, p.cfg.Branch)
	assetPath, ok := strings.CutPrefix(rawURL, prefix)
	if !ok {
		return ""
	}
	return assetPath
}
