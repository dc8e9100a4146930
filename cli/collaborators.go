package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/relvet/relvet/entities"
	"github.com/relvet/relvet/publish"
	"github.com/relvet/relvet/utils"
)

// changesetCli queries the changeset tooling through its CLI, which is the
// boundary the validation pipeline consumes changeset status from.
type changesetCli struct {
	runner utils.CmdRunner
	log    utils.Log
}

func (c *changesetCli) Status(packageManager, targetBranch string) (*entities.ChangesetStatus, error) {
	outputFile, err := os.CreateTemp("", "changeset-status-*.json")
	if err != nil {
		return nil, err
	}
	outputPath := outputFile.Name()
	if err := outputFile.Close(); err != nil {
		return nil, err
	}
	defer func() {
		if removeErr := os.Remove(outputPath); removeErr != nil {
			c.log.Debug("Failed removing temporary status file:", removeErr.Error())
		}
	}()

	args := []string{"changeset", "status", "--output=" + outputPath}
	if targetBranch != "" {
		args = append(args, "--since="+targetBranch)
	}
	executable := "npx"
	if packageManager == "pnpm" || packageManager == "yarn" {
		executable = packageManager
	}
	if _, stderr, err := c.runner.Run("", 2*time.Minute, executable, args...); err != nil {
		return nil, errors.Wrap(err, string(stderr))
	}
	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading changeset status output")
	}
	status := &entities.ChangesetStatus{}
	if err := json.Unmarshal(data, status); err != nil {
		return nil, errors.Wrap(err, "failed parsing changeset status output")
	}
	return status, nil
}

// workspaceDirs resolves package names to directories by scanning the
// workspace globs declared in the repository root manifest.
type workspaceDirs struct {
	root string
	log  utils.Log

	dirs map[string]string
}

func (w *workspaceDirs) PackageDir(name string) (string, error) {
	if w.dirs == nil {
		if err := w.scan(); err != nil {
			return "", err
		}
	}
	return w.dirs[name], nil
}

func (w *workspaceDirs) scan() error {
	w.dirs = map[string]string{}
	data, err := os.ReadFile(filepath.Join(w.root, "package.json"))
	if err != nil {
		return errors.Wrap(err, "failed reading workspace root manifest")
	}
	var rootManifest struct {
		Name       string   `json:"name"`
		Workspaces []string `json:"workspaces"`
	}
	if err := json.Unmarshal(data, &rootManifest); err != nil {
		return errors.Wrap(err, "failed parsing workspace root manifest")
	}
	if len(rootManifest.Workspaces) == 0 {
		// Single-package repository: the root is the only package.
		if rootManifest.Name != "" {
			w.dirs[rootManifest.Name] = w.root
		}
		return nil
	}
	for _, pattern := range rootManifest.Workspaces {
		matches, err := filepath.Glob(filepath.Join(w.root, pattern))
		if err != nil {
			return errors.Wrapf(err, "invalid workspace pattern %q", pattern)
		}
		for _, dir := range matches {
			manifest, err := publish.ReadManifest(dir)
			if err != nil {
				w.log.Debug("Skipping workspace entry without readable manifest:", dir)
				continue
			}
			if manifest.Name != "" {
				w.dirs[manifest.Name] = dir
			}
		}
	}
	return nil
}
