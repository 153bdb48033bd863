// Package gitsrc resolves the deployment source: it clones or updates
// the repository working copy and determines the deploy strategy from
// the manifests present in the tree.
package gitsrc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/artpar/shipward/internal/core/domain"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrNoManifest     = errors.New("no Dockerfile or compose manifest found in repository")
	ErrComposeInvalid = errors.New("compose manifest is invalid")
	ErrGitFailed      = errors.New("git command failed")
)

// composeManifests are checked in order; the first match wins.
var composeManifests = []string{"compose.yaml", "compose.yml", "docker-compose.yaml", "docker-compose.yml"}

// =============================================================================
// Source
// =============================================================================

// Source is the outcome of source resolution.
type Source struct {
	LocalPath    string
	Strategy     domain.DeployStrategy
	ManifestPath string
}

// Resolver clones or updates the repository working copy under WorkDir.
type Resolver struct {
	WorkDir string
	Logger  *slog.Logger

	// runGit is swapped out in tests.
	runGit func(ctx context.Context, dir string, args ...string) (string, error)
}

// NewResolver creates a resolver that shells out to git.
func NewResolver(workDir string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		WorkDir: workDir,
		Logger:  logger,
		runGit:  runGitCommand,
	}
}

// Resolve brings the working copy up to date on the target branch and
// detects the deploy strategy. The access token is injected into the
// clone URL for transport only and never reaches logs or error text.
func (r *Resolver) Resolve(ctx context.Context, params domain.ParameterSet) (Source, error) {
	localPath := filepath.Join(r.WorkDir, params.RepoName())

	if _, err := os.Stat(filepath.Join(localPath, ".git")); err == nil {
		r.Logger.Info("updating existing working copy", "path", localPath, "branch", params.Branch)
		steps := [][]string{
			{"-C", localPath, "fetch", "origin"},
			{"-C", localPath, "checkout", params.Branch},
			{"-C", localPath, "pull", "--ff-only", "origin", params.Branch},
		}
		for _, args := range steps {
			if out, err := r.runGit(ctx, "", args...); err != nil {
				return Source{}, fmt.Errorf("%w: git %s: %s", ErrGitFailed,
					strings.Join(args, " "), redact(out, params.Token))
			}
		}
	} else {
		r.Logger.Info("cloning repository", "path", localPath, "branch", params.Branch)
		cloneURL, err := authURL(params.RepoURL, params.Token)
		if err != nil {
			return Source{}, err
		}
		args := []string{"clone", "--branch", params.Branch, cloneURL, localPath}
		if out, err := r.runGit(ctx, "", args...); err != nil {
			return Source{}, fmt.Errorf("%w: git clone: %s", ErrGitFailed, redact(out, params.Token))
		}
	}

	return detectStrategy(localPath)
}

func runGitCommand(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// authURL injects the access token into the repository URL userinfo.
func authURL(repoURL, token string) (string, error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("parse repository URL: %w", err)
	}
	u.User = url.User(token)
	return u.String(), nil
}

// redact strips the token from git output before it reaches an error.
func redact(s, token string) string {
	if token == "" {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(strings.ReplaceAll(s, token, "***"))
}

// =============================================================================
// Strategy Detection
// =============================================================================

// detectStrategy inspects the resolved tree. A compose manifest wins
// over a Dockerfile when both are present; a tree with neither is a
// fatal source error. Compose manifests are parsed to confirm they
// define at least one service before the strategy is committed.
func detectStrategy(localPath string) (Source, error) {
	for _, name := range composeManifests {
		manifest := filepath.Join(localPath, name)
		if _, err := os.Stat(manifest); err != nil {
			continue
		}
		content, err := os.ReadFile(manifest)
		if err != nil {
			return Source{}, fmt.Errorf("read compose manifest: %w", err)
		}
		if err := validateCompose(string(content)); err != nil {
			return Source{}, fmt.Errorf("%w: %s: %v", ErrComposeInvalid, name, err)
		}
		return Source{LocalPath: localPath, Strategy: domain.StrategyCompose, ManifestPath: manifest}, nil
	}

	dockerfile := filepath.Join(localPath, "Dockerfile")
	if _, err := os.Stat(dockerfile); err == nil {
		return Source{LocalPath: localPath, Strategy: domain.StrategyDockerfile, ManifestPath: dockerfile}, nil
	}

	return Source{}, ErrNoManifest
}

// validateCompose loads the manifest with compose-go and requires at
// least one service.
func validateCompose(content string) error {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(content), &dict); err != nil {
		return fmt.Errorf("invalid YAML syntax: %w", err)
	}
	if dict == nil {
		return errors.New("manifest is empty")
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{Content: []byte(content), Config: dict},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("shipward-temp", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// In-memory load: paths and external files are unavailable
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return err
	}
	if len(project.Services) == 0 {
		return errors.New("manifest defines no services")
	}
	return nil
}
