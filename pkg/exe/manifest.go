package exe

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ManifestName is the digest manifest consulted for archives without an
// inline pin. It lives in the home directory and uses sha256sum output
// format: `<hex digest>  <archive filename>`, one artifact per line, so the
// upstream release manifest can be dropped in verbatim.
const ManifestName = "sha256"

// expectedDigest resolves the pinned digest for an archive: the inline pin
// wins, then the manifest file. An empty result means nothing is pinned and
// verification is skipped with a warning.
func (l *Locator) expectedDigest(archive Archive) string {
	if archive.SHA256 != "" {
		return archive.SHA256
	}

	f, err := os.Open(filepath.Join(l.cfg.Dirs().Home(), ManifestName))
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tokens := strings.SplitN(scanner.Text(), "  ", 2)
		if len(tokens) == 2 && strings.TrimSpace(tokens[1]) == archive.Name {
			return strings.TrimSpace(tokens[0])
		}
	}
	return ""
}
