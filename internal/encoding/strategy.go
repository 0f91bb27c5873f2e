package encoding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"reclaim/internal/fileutil"
	"reclaim/internal/logging"
	"reclaim/internal/media/format"
)

// MediaKind selects the image or video branch of the strategy.
type MediaKind string

const (
	KindImage MediaKind = "IMAGE"
	KindVideo MediaKind = "VIDEO"
)

// Verdict is the strategy's overall answer for one source file.
type Verdict string

const (
	VerdictAccepted Verdict = "ACCEPTED"
	VerdictSkipped  Verdict = "SKIPPED"
	VerdictFailed   Verdict = "FAILED"
)

// Reason explains a skipped or failed verdict.
type Reason string

const (
	ReasonAlreadyTargetFormat Reason = "AlreadyTargetFormat"
	ReasonOutputNotSmaller    Reason = "OutputNotSmaller"
	ReasonUnsupportedFormat   Reason = "UnsupportedFormat"
	ReasonToolNotApplicable   Reason = Reason(ToolNotApplicable)
	ReasonToolExecutionFailed Reason = Reason(ToolExecutionFailed)
	ReasonToolTimedOut        Reason = Reason(ToolTimedOut)
	ReasonInvalidOutput       Reason = "InvalidOutput"
)

// finalName is the basename (without extension) of the promoted output.
const finalName = "output"

// RetryPolicy is built once per run and shared read-only by every job.
type RetryPolicy struct {
	Enabled            bool
	AcceptLarger       bool
	AllowLarger        bool
	ImageDistanceRetry float64
	VideoCRFRetry      int
}

// Params holds the first-attempt encoder parameters.
type Params struct {
	ImageDistance     float64
	VideoCRF          int
	VideoPreset       int
	VideoMaxDimension int
	AudioBitrate      string
}

// Encoders groups the adapters the strategy chooses between. Repack may be
// nil to disable lossless JPEG repacking. VideoRetry defaults to Video.
type Encoders struct {
	Repack     Encoder
	Image      Encoder
	Video      Encoder
	VideoRetry Encoder
}

// Source is the downloaded original.
type Source struct {
	Path string
	Size int64
	Kind MediaKind
}

// Decision is the outcome of Decide. Output is set only for VerdictAccepted
// and points at the single promoted file in the work directory.
type Decision struct {
	Verdict      Verdict
	Reason       Reason
	Detail       string
	Output       *Output
	Attempts     []Attempt
	SourceFormat string
}

// Strategy picks encoders, applies fallbacks, and enforces the
// size-regression policy for a single source file.
type Strategy struct {
	enc       Encoders
	validator *Validator
	params    Params
	policy    RetryPolicy
	logger    *slog.Logger
}

// NewStrategy wires a Strategy from its parts.
func NewStrategy(enc Encoders, validator *Validator, params Params, policy RetryPolicy, logger *slog.Logger) *Strategy {
	if enc.VideoRetry == nil {
		enc.VideoRetry = enc.Video
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Strategy{enc: enc, validator: validator, params: params, policy: policy, logger: logger}
}

// Policy returns the retry policy in effect.
func (s *Strategy) Policy() RetryPolicy { return s.policy }

// Validator returns the validator shared with the pipeline.
func (s *Strategy) Validator() *Validator { return s.validator }

// Decide encodes src inside workDir and returns a verdict. Every
// non-promoted artifact is removed before returning. The error is non-nil
// only when ctx was cancelled.
func (s *Strategy) Decide(ctx context.Context, src Source, workDir string) (Decision, error) {
	run := &attemptRun{strategy: s, src: src, workDir: workDir, logger: logging.WithContext(ctx, s.logger)}

	var decision Decision
	switch src.Kind {
	case KindImage:
		decision = s.decideImage(ctx, run)
	case KindVideo:
		decision = s.decideVideo(ctx, run)
	default:
		decision = Decision{Verdict: VerdictFailed, Reason: ReasonUnsupportedFormat, Detail: fmt.Sprintf("unknown media kind %q", src.Kind)}
	}
	decision.Attempts = run.attempts
	run.cleanup()

	if err := ctx.Err(); err != nil {
		if decision.Output != nil {
			_ = fileutil.RemoveIfExists(decision.Output.Path)
		}
		return Decision{Attempts: run.attempts}, err
	}
	return decision, nil
}

func (s *Strategy) decideImage(ctx context.Context, run *attemptRun) Decision {
	srcFormat, err := format.DetectFile(run.src.Path)
	if err != nil || srcFormat == format.Unknown {
		return Decision{Verdict: VerdictFailed, Reason: ReasonUnsupportedFormat, Detail: "could not detect image format"}
	}
	if srcFormat == format.JXL {
		return Decision{Verdict: VerdictSkipped, Reason: ReasonAlreadyTargetFormat, SourceFormat: srcFormat.String(), Detail: "already JPEG XL"}
	}

	convert := Request{Distance: s.params.ImageDistance}
	var first Output
	if srcFormat == format.JPEG && s.enc.Repack != nil {
		first, err = run.try(ctx, s.enc.Repack, Request{}, "lossless")
		if err != nil && !isTimeout(err) && ctx.Err() == nil {
			run.logger.Info("jpeg repack unavailable, re-encoding pixels",
				logging.String("decision_type", "image_encoder_fallback"),
				logging.String("decision_result", s.enc.Image.Name()),
				logging.String("decision_reason", string(KindOf(err))),
			)
			first, err = run.try(ctx, s.enc.Image, convert, distanceParam(convert.Distance))
		}
	} else {
		first, err = run.try(ctx, s.enc.Image, convert, distanceParam(convert.Distance))
	}
	if err != nil {
		return failedFrom(err, srcFormat.String())
	}

	retry := func() (Output, error) {
		req := Request{Distance: s.policy.ImageDistanceRetry}
		return run.try(ctx, s.enc.Image, req, distanceParam(req.Distance))
	}
	d := s.applySizePolicy(ctx, run, first, retry)
	d.SourceFormat = srcFormat.String()
	return d
}

func (s *Strategy) decideVideo(ctx context.Context, run *attemptRun) Decision {
	codec, err := s.validator.SourceCodec(ctx, run.src.Path)
	if err != nil || codec == "" {
		detail := "could not detect video codec"
		if err != nil {
			detail = fmt.Sprintf("%s: %v", detail, err)
		}
		return Decision{Verdict: VerdictFailed, Reason: ReasonUnsupportedFormat, Detail: detail}
	}
	if codec == "av1" {
		return Decision{Verdict: VerdictSkipped, Reason: ReasonAlreadyTargetFormat, SourceFormat: codec, Detail: "already AV1"}
	}

	req := Request{
		CRF:          s.params.VideoCRF,
		Preset:       s.params.VideoPreset,
		MaxDimension: s.params.VideoMaxDimension,
		AudioBitrate: s.params.AudioBitrate,
	}
	first, err := run.try(ctx, s.enc.Video, req, crfParam(req.CRF))
	if err != nil {
		return failedFrom(err, codec)
	}
	retry := func() (Output, error) {
		retryReq := req
		retryReq.CRF = s.policy.VideoCRFRetry
		return run.try(ctx, s.enc.VideoRetry, retryReq, crfParam(retryReq.CRF))
	}
	d := s.applySizePolicy(ctx, run, first, retry)
	d.SourceFormat = codec
	return d
}

// applySizePolicy accepts first when it is smaller than the source (or
// allow_larger is set); otherwise it retries once with stronger compression.
func (s *Strategy) applySizePolicy(ctx context.Context, run *attemptRun, first Output, retry func() (Output, error)) Decision {
	if s.policy.AllowLarger || first.Size < run.src.Size {
		return run.accept(first)
	}
	notSmaller := fmt.Sprintf("output %d bytes >= input %d bytes", first.Size, run.src.Size)
	if !s.policy.Enabled {
		return Decision{Verdict: VerdictSkipped, Reason: ReasonOutputNotSmaller, Detail: notSmaller}
	}

	run.logger.Info("output not smaller, retrying with stronger compression",
		logging.Int64("input_bytes", run.src.Size),
		logging.Int64("output_bytes", first.Size),
	)
	second, err := retry()
	if err != nil {
		return Decision{Verdict: VerdictSkipped, Reason: ReasonOutputNotSmaller, Detail: fmt.Sprintf("%s; retry failed: %v", notSmaller, err)}
	}
	if second.Size < run.src.Size || s.policy.AcceptLarger {
		return run.accept(second)
	}
	return Decision{
		Verdict: VerdictSkipped,
		Reason:  ReasonOutputNotSmaller,
		Detail:  fmt.Sprintf("retry output %d bytes >= input %d bytes", second.Size, run.src.Size),
	}
}

func failedFrom(err error, sourceFormat string) Decision {
	return Decision{Verdict: VerdictFailed, Reason: ReasonFor(err), Detail: err.Error(), SourceFormat: sourceFormat}
}

// ReasonFor maps an attempt error to a verdict reason.
func ReasonFor(err error) Reason {
	if errors.Is(err, ErrInvalidOutput) {
		return ReasonInvalidOutput
	}
	return Reason(KindOf(err))
}

func isTimeout(err error) bool {
	var toolErr *ToolError
	return errors.As(err, &toolErr) && toolErr.Kind == ToolTimedOut
}

// attemptRun tracks the artifacts produced for one Decide call.
type attemptRun struct {
	strategy *Strategy
	src      Source
	workDir  string
	logger   *slog.Logger

	n        int
	attempts []Attempt
	produced []string
}

func (r *attemptRun) try(ctx context.Context, enc Encoder, req Request, params string) (Output, error) {
	r.n++
	req.Input = r.src.Path
	req.Output = filepath.Join(r.workDir, fmt.Sprintf("attempt-%d-%s%s", r.n, enc.Name(), enc.Format().Extension()))
	attempt := Attempt{Tool: enc.Name(), Params: params}

	out, err := enc.Encode(ctx, req)
	if err != nil {
		attempt.Kind = KindOf(err)
		attempt.Detail = err.Error()
		r.record(attempt)
		return Output{}, err
	}
	r.produced = append(r.produced, out.Path)
	attempt.Size = out.Size

	if verr := r.strategy.validator.Validate(ctx, out.Path, enc.Format()); verr != nil {
		attempt.Detail = verr.Error()
		r.record(attempt)
		return Output{}, verr
	}
	attempt.Success = true
	r.record(attempt)
	return out, nil
}

func (r *attemptRun) record(a Attempt) {
	r.attempts = append(r.attempts, a)
	attrs := []logging.Attr{
		logging.String("tool", a.Tool),
		logging.String("params", a.Params),
		logging.Bool("success", a.Success),
	}
	if a.Size > 0 {
		attrs = append(attrs, logging.Int64("output_bytes", a.Size))
	}
	if a.Detail != "" {
		attrs = append(attrs, logging.String("detail", a.Detail))
	}
	r.logger.Info("encoder attempt finished", logging.Args(attrs...)...)
}

// accept promotes out to the job's single final output path.
func (r *attemptRun) accept(out Output) Decision {
	final := filepath.Join(r.workDir, finalName+out.Format.Extension())
	if err := os.Rename(out.Path, final); err != nil {
		return Decision{Verdict: VerdictFailed, Reason: ReasonInvalidOutput, Detail: fmt.Sprintf("promote output: %v", err)}
	}
	out.Path = final
	return Decision{Verdict: VerdictAccepted, Output: &out}
}

// cleanup removes every attempt artifact that was not promoted.
func (r *attemptRun) cleanup() {
	for _, path := range r.produced {
		if err := fileutil.RemoveIfExists(path); err != nil {
			r.logger.Debug("attempt cleanup failed", logging.String("path", path), logging.Error(err))
		}
	}
}
