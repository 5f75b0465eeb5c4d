package config

import (
	"os"

	"github.com/open-policy-agent/jar-relocator/internal/revision"
)

// RevisionGit resolves to the HEAD commit of the repository holding the jar.
const RevisionGit = "git"

// ResolveRevision returns the revision published jars are tagged with. An
// empty revision stays empty, RevisionGit is resolved against the git
// repository containing dir, and anything else is expanded against the
// environment.
func ResolveRevision(rev string, dir string) (string, error) {
	switch rev {
	case "":
		return "", nil
	case RevisionGit:
		return revision.Head(dir)
	}

	return os.ExpandEnv(rev), nil
}
