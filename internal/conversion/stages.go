package conversion

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"reclaim/internal/encoding"
	"reclaim/internal/fileutil"
	"reclaim/internal/immich"
	"reclaim/internal/logging"
	"reclaim/internal/services"
)

func (o *Orchestrator) stageDownload(ctx context.Context, job *Job) error {
	name := "original"
	if ext := job.Asset.Extension(); ext != "" {
		name += "." + ext
	}
	dst := filepath.Join(job.WorkDir, name)

	got, err := o.library.Download(ctx, job.Asset.ID, dst)
	if err != nil {
		return err
	}
	if got.Size == 0 {
		return services.Wrap(services.ErrValidation, string(StageDownloading), "download", "library returned an empty file", nil)
	}
	if err := fileutil.MatchChecksum(got.SHA1, job.Asset.Checksum); err != nil {
		return services.Wrap(services.ErrValidation, string(StageDownloading), "verify checksum", "downloaded bytes differ from the library checksum", err)
	}
	job.SourcePath = dst
	job.InputBytes = got.Size
	return nil
}

func (o *Orchestrator) stageTranscode(ctx context.Context, job *Job) error {
	kind := encoding.KindImage
	if job.Asset.Type == immich.TypeVideo {
		kind = encoding.KindVideo
	}
	decision, err := o.transcoder.Decide(ctx, encoding.Source{Path: job.SourcePath, Size: job.InputBytes, Kind: kind}, job.WorkDir)
	job.Attempts = decision.Attempts
	job.SourceFormat = decision.SourceFormat
	if err != nil {
		return err
	}

	switch decision.Verdict {
	case encoding.VerdictAccepted:
		if decision.Output == nil {
			return &Failure{Stage: StageTranscoding, Reason: ReasonInvalidOutput, Err: errors.New("accepted verdict without output")}
		}
		job.Output = decision.Output
		return nil
	case encoding.VerdictSkipped:
		return &skip{reason: Reason(decision.Reason), detail: decision.Detail}
	default:
		return &Failure{
			Stage:  StageTranscoding,
			Reason: Reason(decision.Reason),
			Err:    services.Wrap(services.ErrExternalTool, string(StageTranscoding), "encode", decision.Detail, nil),
		}
	}
}

func (o *Orchestrator) stageValidate(ctx context.Context, job *Job) error {
	if err := o.validator.Validate(ctx, job.Output.Path, job.Output.Format); err != nil {
		return services.Wrap(services.ErrValidation, string(StageValidating), "validate output", "", err)
	}
	return nil
}

// UploadRequestFor derives the upload form fields for a converted output. The
// device asset ID keeps the original's ID so repeated uploads stay traceable.
func UploadRequestFor(asset immich.Asset, output encoding.Output) immich.UploadRequest {
	ext := output.Format.String()
	return immich.UploadRequest{
		DeviceAssetID:  asset.ID + "-" + ext,
		DeviceID:       asset.DeviceID,
		FileCreatedAt:  asset.FileCreatedAt,
		FileModifiedAt: asset.FileModifiedAt,
		Filename:       asset.Stem() + "." + ext,
	}
}

func (o *Orchestrator) stageUpload(ctx context.Context, job *Job) error {
	newID, err := o.library.Upload(ctx, job.Output.Path, UploadRequestFor(job.Asset, *job.Output))
	if err != nil {
		return err
	}
	if newID == "" || newID == job.Asset.ID {
		return fmt.Errorf("library returned asset id %q for the upload", newID)
	}
	job.NewAssetID = newID
	logging.WithContext(ctx, o.logger).Info("uploaded replacement",
		logging.String(logging.FieldEventType, "upload_complete"),
		logging.String("new_asset_id", newID),
		logging.Int64("output_bytes", job.Output.Size),
	)
	return nil
}

func (o *Orchestrator) stageCopyMetadata(ctx context.Context, job *Job) error {
	return o.library.CopyMetadata(ctx, job.Asset.ID, job.NewAssetID)
}

func (o *Orchestrator) stageVerify(ctx context.Context, job *Job) error {
	return o.library.VerifyAccessible(ctx, job.NewAssetID)
}

func (o *Orchestrator) stageDeleteOriginal(ctx context.Context, job *Job) error {
	return o.library.TrashDelete(ctx, job.Asset.ID)
}
