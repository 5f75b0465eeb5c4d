// Package revision identifies the source revision relocated jars are
// published with.
package revision

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
)

// ErrNoRepository is returned when a directory is not inside a git repository.
var ErrNoRepository = errors.New("not a git repository")

// Head returns the commit HEAD points to in the git repository containing dir.
// Parent directories are searched for the repository.
func Head(dir string) (string, error) {
	repository, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", fmt.Errorf("%w: %s", ErrNoRepository, dir)
	} else if err != nil {
		return "", err
	}

	ref, err := repository.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD of %s: %w", dir, err)
	}

	return ref.Hash().String(), nil
}
