package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/imkarma/steward/internal/config"
	"github.com/imkarma/steward/internal/dispatch"
	"github.com/imkarma/steward/internal/gate"
	"github.com/imkarma/steward/internal/git"
	"github.com/imkarma/steward/internal/pipeline"
	"github.com/imkarma/steward/internal/store"
)

const stewardDirName = ".steward"

// stewardPath returns the path to a file inside .steward/.
func stewardPath(parts ...string) string {
	elems := append([]string{stewardDirName}, parts...)
	return filepath.Join(elems...)
}

// mustStore opens the store, returning an error if steward is not initialized.
func mustStore() (*store.Store, error) {
	dbPath := stewardPath("steward.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("steward not initialized. Run: steward init")
	}
	return openStore(dbPath)
}

// openStore opens or creates the SQLite store at the given path.
func openStore(dbPath string) (*store.Store, error) {
	return store.New(dbPath)
}

// buildEngine wires a full engine from the project config and store.
func buildEngine(s *store.Store) (*pipeline.Engine, error) {
	cfg, err := config.Load(stewardPath("config.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	return &pipeline.Engine{
		Store:      s,
		Dispatcher: dispatch.New(cfg, workDir),
		Gate:       gate.NewController(cfg.Pipeline.QualityHigh, cfg.Pipeline.QualityMedium),
		Cfg:        cfg,
		Git:        git.New(workDir),
		DocsDir:    stewardPath("docs"),
		WorkDir:    workDir,
		Out:        os.Stdout,
	}, nil
}

// parseID parses a numeric CLI argument.
func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s ID: %s", what, arg)
	}
	return id, nil
}
