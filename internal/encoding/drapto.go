package encoding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	draptolib "github.com/five82/drapto"

	"reclaim/internal/fileutil"
	"reclaim/internal/logging"
	"reclaim/internal/media/format"
)

// draptoRun encodes input into outDir and is replaced in tests.
var draptoRun = func(ctx context.Context, input, outDir string, rep draptolib.Reporter, settings DraptoSettings) error {
	encoder, err := draptolib.New(settings.Options()...)
	if err != nil {
		return err
	}
	_, err = encoder.EncodeWithReporter(ctx, input, outDir, rep)
	return err
}

// DraptoTranscoder encodes video to AV1 in Matroska through the drapto
// library. Request.CRF applies to every resolution tier and autocrop is off,
// so the frame is never trimmed.
type DraptoTranscoder struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewDraptoTranscoder constructs the drapto adapter.
func NewDraptoTranscoder(timeout time.Duration, logger *slog.Logger) *DraptoTranscoder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DraptoTranscoder{timeout: timeout, logger: logger}
}

func (d *DraptoTranscoder) Name() string { return "drapto" }

func (d *DraptoTranscoder) Format() format.Format { return format.MKV }

// Encode writes into a private scratch directory beside req.Output and moves
// the result into place.
func (d *DraptoTranscoder) Encode(ctx context.Context, req Request) (Output, error) {
	scratch := req.Output + ".drapto"
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return Output{}, newToolError(d.Name(), ToolExecutionFailed, "", err)
	}
	defer os.RemoveAll(scratch)

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	rep := newDraptoReporter(logging.WithContext(ctx, d.logger))
	if err := draptoRun(runCtx, req.Input, scratch, rep, draptoSettingsFor(req)); err != nil {
		if ctx.Err() == nil && runCtx.Err() != nil {
			return Output{}, newToolError(d.Name(), ToolTimedOut, rep.lastError(), context.DeadlineExceeded)
		}
		return Output{}, newToolError(d.Name(), ToolExecutionFailed, rep.lastError(), err)
	}

	base := filepath.Base(req.Input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	produced := filepath.Join(scratch, stem+format.MKV.Extension())
	if err := os.Rename(produced, req.Output); err != nil {
		_ = fileutil.RemoveIfExists(req.Output)
		return Output{}, newToolError(d.Name(), ToolExecutionFailed, "", fmt.Errorf("collect drapto output: %w", err))
	}
	return collectOutput(d.Name(), req.Output, format.MKV)
}

// DraptoSettings are the encoder knobs reclaim controls. CRF uses drapto's
// syntax, where a single value covers every resolution tier.
type DraptoSettings struct {
	CRF      string
	Preset   uint8
	Autocrop bool
}

func draptoSettingsFor(req Request) DraptoSettings {
	return DraptoSettings{
		CRF:    strconv.Itoa(req.CRF),
		Preset: uint8(min(max(req.Preset, 0), math.MaxUint8)),
	}
}

// Options converts the settings into drapto encoder options.
func (s DraptoSettings) Options() []draptolib.Option {
	opts := []draptolib.Option{
		draptolib.WithResponsive(),
		draptolib.WithCRF(s.CRF),
		draptolib.WithSVTAV1Preset(s.Preset),
	}
	if !s.Autocrop {
		opts = append(opts, draptolib.WithDisableAutocrop())
	}
	return opts
}

// draptoReporter forwards drapto events to the job logger. Progress is
// logged once per 10% step.
type draptoReporter struct {
	logger *slog.Logger

	mu         sync.Mutex
	lastBucket int
	errText    string
}

func newDraptoReporter(logger *slog.Logger) *draptoReporter {
	return &draptoReporter{logger: logging.NewComponentLogger(logger, "drapto"), lastBucket: -1}
}

func (r *draptoReporter) lastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errText
}

func (r *draptoReporter) Hardware(s draptolib.HardwareSummary) {
	r.logger.Debug("drapto hardware", logging.String("hostname", s.Hostname))
}

func (r *draptoReporter) Initialization(s draptolib.InitializationSummary) {
	r.logger.Info("drapto encode initialized",
		logging.String("input", s.InputFile),
		logging.Any("resolution", s.Resolution),
		logging.Any("dynamic_range", s.DynamicRange),
	)
}

func (r *draptoReporter) StageProgress(s draptolib.StageProgress) {
	r.logger.Debug("drapto stage", logging.String("drapto_stage", s.Stage), logging.Float64("percent", float64(s.Percent)), logging.String("message", s.Message))
}

func (r *draptoReporter) CropResult(s draptolib.CropSummary) {
	r.logger.Debug("drapto crop", logging.String("message", s.Message), logging.Bool("disabled", s.Disabled))
}

func (r *draptoReporter) EncodingConfig(s draptolib.EncodingConfigSummary) {
	r.logger.Info("drapto encoding config",
		logging.Any("encoder", s.Encoder),
		logging.Any("preset", s.Preset),
		logging.Any("quality", s.Quality),
	)
}

func (r *draptoReporter) EncodingStarted(totalFrames uint64) {
	r.logger.Debug("drapto encoding started", logging.Any("total_frames", totalFrames))
}

func (r *draptoReporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	bucket := int(float64(s.Percent)) / 10
	r.mu.Lock()
	if bucket <= r.lastBucket {
		r.mu.Unlock()
		return
	}
	r.lastBucket = bucket
	r.mu.Unlock()
	r.logger.Info("drapto progress", logging.Float64("percent", float64(s.Percent)), logging.Any("eta", s.ETA))
}

func (r *draptoReporter) ValidationComplete(s draptolib.ValidationSummary) {
	r.logger.Info("drapto validation", logging.Bool("passed", s.Passed), logging.Int("steps", len(s.Steps)))
}

func (r *draptoReporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.logger.Info("drapto encoding complete",
		logging.Any("original_size", s.OriginalSize),
		logging.Any("encoded_size", s.EncodedSize),
	)
}

func (r *draptoReporter) Warning(message string) {
	logging.WarnWithContext(r.logger, "drapto warning", "drapto_warning", logging.String("drapto_warning", message))
}

func (r *draptoReporter) Error(e draptolib.ReporterError) {
	r.mu.Lock()
	r.errText = strings.TrimSpace(e.Title + ": " + e.Message)
	r.mu.Unlock()
	r.logger.Debug("drapto error", logging.String("title", e.Title), logging.String("message", e.Message), logging.String("suggestion", e.Suggestion))
}

func (r *draptoReporter) OperationComplete(message string) {
	r.logger.Debug("drapto operation complete", logging.String("message", message))
}

func (r *draptoReporter) BatchStarted(s draptolib.BatchStartInfo) {
	r.logger.Debug("drapto batch started", logging.Any("files", s.TotalFiles))
}

func (r *draptoReporter) FileProgress(s draptolib.FileProgressContext) {
	r.logger.Debug("drapto file progress", logging.Any("current", s.CurrentFile), logging.Any("total", s.TotalFiles))
}

func (r *draptoReporter) BatchComplete(s draptolib.BatchSummary) {
	r.logger.Debug("drapto batch complete", logging.Any("successful", s.SuccessfulCount))
}

var _ draptolib.Reporter = (*draptoReporter)(nil)
