package exe

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/mattn/go-zglob"
	"go.uber.org/zap"

	"github.com/regtestd/regtestd/pkg/config"
	"github.com/regtestd/regtestd/pkg/logging"
)

var (
	// ErrNotFound means no executable satisfying the version spec could be
	// resolved through any source.
	ErrNotFound = errors.New("no suitable executable found")
	// ErrNotExecutable means an explicitly provided path exists but cannot
	// be executed.
	ErrNotExecutable = errors.New("path is not an executable file")
	// ErrBothEnvVars means both override env var spellings are set; we
	// refuse to guess which one the caller meant.
	ErrBothEnvVars = errors.New("both _EXEC and _EXE env vars are set")
)

// Locator resolves daemon executables. Resolution precedence:
//
//  1. explicit override path passed by the caller.
//  2. the <BIN>_EXEC / <BIN>_EXE environment variables.
//  3. the download cache, populating it if downloads are enabled.
//  4. a $PATH scan.
//
// The only filesystem side effect is the download cache; no network traffic
// happens unless step 3 has to fetch.
type Locator struct {
	logging.Logging

	cfg    *config.EnvConfig
	probes *lru.Cache // path -> probed version string
}

func NewLocator(cfg *config.EnvConfig) *Locator {
	probes, err := lru.New(64)
	if err != nil {
		panic(err)
	}
	return &Locator{
		Logging: logging.NewLogging(logging.L().Named("locator")),
		cfg:     cfg,
		probes:  probes,
	}
}

// Locate resolves an absolute path to an executable satisfying spec.
// override may be empty.
func (l *Locator) Locate(spec VersionSpec, override string) (string, error) {
	if override != "" {
		if err := checkExecutable(override); err != nil {
			return "", err
		}
		return filepath.Abs(override)
	}

	if path, err := l.fromEnv(spec); err != nil || path != "" {
		if err == nil {
			l.logResolved(path, spec)
		}
		return path, err
	}

	if l.cfg.Download.Enabled {
		path, err := l.ensureDownloaded(spec)
		if err != nil {
			return "", err
		}
		l.logResolved(path, spec)
		return path, nil
	}

	if path := l.fromPath(spec); path != "" {
		l.logResolved(path, spec)
		return path, nil
	}

	return "", fmt.Errorf("%w: %s (set %s_EXEC, enable downloads, or install it in PATH)",
		ErrNotFound, spec, strings.ToUpper(spec.Bin()))
}

// fromEnv honors the two historical override spellings, erroring when both
// are present.
func (l *Locator) fromEnv(spec VersionSpec) (string, error) {
	var (
		prefix    = strings.ToUpper(spec.Bin())
		exec1, b1 = os.LookupEnv(prefix + "_EXEC")
		exec2, b2 = os.LookupEnv(prefix + "_EXE")
	)
	switch {
	case b1 && b2:
		return "", fmt.Errorf("%w: %s_EXEC and %s_EXE", ErrBothEnvVars, prefix, prefix)
	case b1:
		return exec1, checkExecutable(exec1)
	case b2:
		return exec2, checkExecutable(exec2)
	}
	return "", nil
}

// fromPath scans $PATH for a binary whose reported version satisfies spec.
func (l *Locator) fromPath(spec VersionSpec) string {
	path, err := exec.LookPath(spec.Bin())
	if err != nil {
		return ""
	}
	if !l.versionSatisfies(path, spec) {
		l.S().Debugw("PATH candidate rejected on version", "path", path, "want", spec.Version)
		return ""
	}
	return path
}

// versionSatisfies probes `path --version` and checks the output mentions the
// pinned version. Probe results are memoized; tests spawn many fixtures and
// the binary does not change under us mid-run.
func (l *Locator) versionSatisfies(path string, spec VersionSpec) bool {
	probed, ok := l.probes.Get(path)
	if !ok {
		out, err := exec.Command(path, "--version").CombinedOutput()
		if err != nil {
			return false
		}
		probed = strings.TrimSpace(string(out))
		l.probes.Add(path, probed)
	}
	return strings.Contains(probed.(string), strings.TrimPrefix(spec.Version, "v"))
}

// findInTree locates the named binary anywhere under root, e.g. inside an
// extracted release archive whose directory layout varies per version.
func findInTree(root, bin string) (string, error) {
	matches, err := zglob.Glob(filepath.Join(root, "**", bin))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if checkExecutable(m) == nil {
			return m, nil
		}
	}
	return "", os.ErrNotExist
}

func checkExecutable(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotExecutable, path)
	}
	if fi.IsDir() || fi.Mode()&0111 == 0 {
		return fmt.Errorf("%w: %s", ErrNotExecutable, path)
	}
	return nil
}

func (l *Locator) logResolved(path string, spec VersionSpec) {
	l.L().Info("executable resolved", zap.String("daemon", string(spec.Daemon)), zap.String("path", path))
}
