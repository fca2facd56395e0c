// Package ensemble starts a full fixture set, one node plus any number of
// tagged indexers, and guarantees everything is torn down together.
package ensemble

import (
	"fmt"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/regtestd/regtestd/pkg/config"
	"github.com/regtestd/regtestd/pkg/indexer"
	"github.com/regtestd/regtestd/pkg/logging"
	"github.com/regtestd/regtestd/pkg/node"
)

// Spec declares what an ensemble should contain before it is started.
type Spec struct {
	nodeConf node.Conf
	tags     map[string]*indexer.Conf
	order    []string
}

// NewSpec creates a blank ensemble specification with a default node.
func NewSpec() *Spec {
	return &Spec{
		nodeConf: node.DefaultConf(),
		tags:     make(map[string]*indexer.Conf),
	}
}

// WithNode replaces the node configuration.
func (s *Spec) WithNode(conf node.Conf) *Spec {
	s.nodeConf = conf
	return s
}

// AddIndexer registers an indexer under a unique tag. An indexer version
// that syncs over p2p flips the node's p2p port on automatically.
func (s *Spec) AddIndexer(tag string, conf indexer.Conf) *Spec {
	if _, ok := s.tags[tag]; ok {
		panic(fmt.Sprintf("tag %s already exists in the ensemble", tag))
	}
	c := conf
	s.tags[tag] = &c
	s.order = append(s.order, tag)

	if c.Version.Daemon != "" && !c.Version.JSONRPCImport {
		s.nodeConf.P2P = true
	}
	return s
}

// Ensemble is a started fixture set. All daemons are ready by the time
// Start returns.
type Ensemble struct {
	logging.Logging

	env  *config.EnvConfig
	node *node.Node

	mu   sync.Mutex
	tags map[string]*indexer.Indexer

	destroy sync.Once
}

// Start materializes the spec: the node first (the indexers need its RPC
// endpoint), then every indexer in parallel. On any failure the partially
// started ensemble is destroyed before the error is returned, so no error
// path leaks a process.
func Start(env *config.EnvConfig, spec *Spec) (*Ensemble, error) {
	n, err := node.NewWithConf(env, &spec.nodeConf)
	if err != nil {
		return nil, fmt.Errorf("failed to start node: %w", err)
	}

	e := &Ensemble{
		Logging: logging.NewLogging(logging.L().Named("ensemble")),
		env:     env,
		node:    n,
		tags:    make(map[string]*indexer.Indexer, len(spec.tags)),
	}

	var g errgroup.Group
	for _, tag := range spec.order {
		tag := tag
		conf := spec.tags[tag]
		g.Go(func() error {
			idx, err := indexer.NewWithConf(env, n, conf)
			if err != nil {
				return fmt.Errorf("failed to start indexer %q: %w", tag, err)
			}
			e.mu.Lock()
			e.tags[tag] = idx
			e.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.Destroy()
		return nil, err
	}

	return e, nil
}

// StartT is Start bound to a test lifecycle: a startup failure fails the
// test, and teardown is registered with t.Cleanup so it runs on every exit
// path, panics included.
func StartT(t testing.TB, env *config.EnvConfig, spec *Spec) *Ensemble {
	t.Helper()
	e, err := Start(env, spec)
	if err != nil {
		t.Fatalf("failed to start ensemble: %s", err)
	}
	t.Cleanup(e.Destroy)
	return e
}

// Node returns the ensemble's full node.
func (e *Ensemble) Node() *node.Node {
	return e.node
}

// Indexer returns the indexer registered under tag, or nil.
func (e *Ensemble) Indexer(tag string) *indexer.Indexer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tags[tag]
}

// Destroy tears down every daemon: indexers in parallel first, then the
// node they depend on. Idempotent; teardown warnings are logged, never
// returned, because by now the test's own verdict is already in.
func (e *Ensemble) Destroy() {
	e.destroy.Do(func() {
		var wg sync.WaitGroup
		e.mu.Lock()
		for tag, idx := range e.tags {
			tag, idx := tag, idx
			wg.Add(1)
			go func() {
				defer wg.Done()
				if warn := idx.Teardown(); warn != nil {
					e.S().Warnw("indexer teardown warnings", "tag", tag, "warn", warn)
				}
			}()
		}
		e.mu.Unlock()
		wg.Wait()

		if warn := e.node.Teardown(); warn != nil {
			e.S().Warnw("node teardown warnings", "warn", warn)
		}
	})
}
