package service

import (
	"context"
	"os"

	"github.com/rcook/rust-tool-action/internal/config"
	"github.com/rcook/rust-tool-action/internal/inspect"
	"github.com/rcook/rust-tool-action/internal/logging"
	"github.com/rcook/rust-tool-action/internal/platform"
)

// Environment is what `info` reports when given no targets.
type Environment struct {
	WorkingDir   string         `json:"working_dir"`
	Args         []string       `json:"args"`
	Host         *platform.Info `json:"host,omitempty"`
	HostError    string         `json:"host_error,omitempty"`
	ConfigFile   string         `json:"config_file,omitempty"`
	TimestampURL string         `json:"timestamp_url"`
	StoreBackend string         `json:"store_backend"`
	EnvPrefix    string         `json:"env_prefix"`
	Version      string         `json:"version"`
}

// InfoService reports on targets or, without targets, on the environment.
type InfoService struct {
	inspector *inspect.Inspector
	detector  platform.Detector
	logger    logging.Logger
}

// NewInfoService creates an info service.
func NewInfoService(inspector *inspect.Inspector, detector platform.Detector, logger logging.Logger) *InfoService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &InfoService{inspector: inspector, detector: detector, logger: logger}
}

// InfoRequest contains the parameters for `info`.
type InfoRequest struct {
	Targets []string

	// The fields below only feed the environment report.
	Args       []string
	Config     *config.Config
	ConfigFile string
	Version    string
}

// InfoResult holds per-target results, or the environment when no
// targets were given.
type InfoResult struct {
	Results     []*inspect.Result `json:"results,omitempty"`
	Environment *Environment      `json:"environment,omitempty"`
}

// Execute inspects every target. A failing target never stops the others;
// the returned error aggregates the failures.
func (s *InfoService) Execute(ctx context.Context, req InfoRequest) (*InfoResult, error) {
	if len(req.Targets) == 0 {
		return &InfoResult{Environment: s.environment(ctx, req)}, nil
	}
	results, err := s.inspector.InspectAll(ctx, req.Targets)
	for _, r := range results {
		if !r.OK() {
			s.logger.Debug("target failed", "target", r.Target, "error", r.Error)
		}
	}
	return &InfoResult{Results: results}, err
}

func (s *InfoService) environment(ctx context.Context, req InfoRequest) *Environment {
	cfg := req.Config
	if cfg == nil {
		cfg = config.Default()
	}
	env := &Environment{
		Args:         req.Args,
		ConfigFile:   req.ConfigFile,
		TimestampURL: cfg.CodeSign.TimestampURL,
		StoreBackend: cfg.CodeSign.Store.Backend,
		EnvPrefix:    cfg.CodeSign.EnvPrefix,
		Version:      req.Version,
	}
	if wd, err := os.Getwd(); err == nil {
		env.WorkingDir = wd
	}
	if s.detector != nil {
		host, err := s.detector.Detect(ctx)
		if err != nil {
			env.HostError = err.Error()
		} else {
			env.Host = host
		}
	}
	return env
}
