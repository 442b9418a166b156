package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/christophzehentbauerz/trade/internal/broker"
	"github.com/christophzehentbauerz/trade/internal/collector/csvfile"
	"github.com/christophzehentbauerz/trade/internal/core"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunsPrefix is the directory every run is stored under
const RunsPrefix = "runs"

// Artifact file names inside a run directory
const (
	ManifestFile = "manifest.json"
	ReportFile   = "report.json"
	TradesFile   = "trades.csv"
	MarkdownFile = "report.md"
)

// Run is one set of artifacts to archive
type Run struct {
	Kind     string // "backtest" or "optimize"
	Report   any    // encoded to report.json
	Trades   []broker.Trade
	Markdown []byte
}

// Manifest describes an archived run
type Manifest struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Files     []string  `json:"files"`
}

// ResultStore writes runs under runs/<uuid>/
type ResultStore struct {
	storage Storage
	logger  *zap.Logger
	now     func() time.Time
}

// NewResultStore creates a result store on top of a storage backend
func NewResultStore(storage Storage, logger *zap.Logger) *ResultStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultStore{storage: storage, logger: logger, now: time.Now}
}

func runPath(id, name string) string {
	return path.Join(RunsPrefix, id, name)
}

// Save writes the run's artifacts and returns its manifest. The manifest
// is written last, so a run without one is incomplete.
func (s *ResultStore) Save(ctx context.Context, run Run) (Manifest, error) {
	m := Manifest{
		ID:        uuid.NewString(),
		Kind:      run.Kind,
		CreatedAt: s.now().UTC(),
	}

	files := map[string][]byte{}
	report, err := json.MarshalIndent(run.Report, "", "  ")
	if err != nil {
		return Manifest{}, core.WrapError(core.ErrStorageFailed, fmt.Errorf("encoding report: %w", err))
	}
	files[ReportFile] = report

	if len(run.Trades) > 0 {
		var buf bytes.Buffer
		if err := csvfile.WriteTrades(&buf, run.Trades); err != nil {
			return Manifest{}, core.WrapError(core.ErrStorageFailed, fmt.Errorf("encoding trades: %w", err))
		}
		files[TradesFile] = buf.Bytes()
	}
	if len(run.Markdown) > 0 {
		files[MarkdownFile] = run.Markdown
	}

	for name := range files {
		m.Files = append(m.Files, name)
	}
	sort.Strings(m.Files)

	for _, name := range m.Files {
		if err := s.storage.Write(ctx, runPath(m.ID, name), files[name]); err != nil {
			return Manifest{}, core.WrapError(core.ErrStorageFailed, fmt.Errorf("writing %s: %w", name, err))
		}
	}

	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Manifest{}, core.WrapError(core.ErrStorageFailed, err)
	}
	if err := s.storage.Write(ctx, runPath(m.ID, ManifestFile), manifest); err != nil {
		return Manifest{}, core.WrapError(core.ErrStorageFailed, fmt.Errorf("writing manifest: %w", err))
	}

	s.logger.Info("run archived",
		zap.String("id", m.ID),
		zap.String("kind", m.Kind),
		zap.Strings("files", m.Files),
	)
	return m, nil
}

// Load reads a run's manifest
func (s *ResultStore) Load(ctx context.Context, id string) (Manifest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Manifest{}, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	data, err := s.storage.Read(ctx, runPath(id, ManifestFile))
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, core.WrapError(core.ErrStorageFailed, fmt.Errorf("decoding manifest: %w", err))
	}
	return m, nil
}

// ReadFile returns one artifact of a run
func (s *ResultStore) ReadFile(ctx context.Context, id, name string) ([]byte, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	return s.storage.Read(ctx, runPath(id, name))
}

// List returns the manifests of complete runs, oldest first
func (s *ResultStore) List(ctx context.Context) ([]Manifest, error) {
	paths, err := s.storage.List(ctx, RunsPrefix)
	if err != nil {
		return nil, err
	}

	var runs []Manifest
	for _, p := range paths {
		if path.Base(p) != ManifestFile {
			continue
		}
		id := path.Base(path.Dir(p))
		if strings.HasPrefix(id, ".") {
			continue
		}
		m, err := s.Load(ctx, id)
		if err != nil {
			s.logger.Warn("skipping unreadable run", zap.String("id", id), zap.Error(err))
			continue
		}
		runs = append(runs, m)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAt.Before(runs[j].CreatedAt) })
	return runs, nil
}
