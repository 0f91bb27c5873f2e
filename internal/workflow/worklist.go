package workflow

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"reclaim/internal/config"
	"reclaim/internal/conversion"
	"reclaim/internal/immich"
	"reclaim/internal/logging"
)

const jxlMimeType = "image/jxl"

// Lister enumerates library assets lazily, page by page.
type Lister interface {
	ListAssets(ctx context.Context, filter immich.SearchFilter) iter.Seq2[immich.Asset, error]
}

// Item is one worklist entry. Items with a SkipReason are reported without
// being dispatched.
type Item struct {
	Index      int
	Asset      immich.Asset
	SkipReason conversion.Reason
	SkipDetail string
}

// Skipped reports whether the item was excluded before dispatch.
func (i Item) Skipped() bool { return i.SkipReason != "" }

// Worklist is the precomputed, ordered set of assets for one run.
type Worklist struct {
	Items     []Item
	Truncated bool
}

// Len is the number of scanned assets, skipped ones included.
func (w *Worklist) Len() int { return len(w.Items) }

// Pending returns the items that will be dispatched to workers.
func (w *Worklist) Pending() []Item {
	out := make([]Item, 0, len(w.Items))
	for _, it := range w.Items {
		if !it.Skipped() {
			out = append(out, it)
		}
	}
	return out
}

// BuildWorklist scans every configured asset type in order and applies the
// cheap pre-download skips. max_assets caps the number of scanned assets; the
// scan stops as soon as the cap is reached. Assets in reconcile are skipped
// so a run never converts an asset that may already have a replacement.
func BuildWorklist(ctx context.Context, lister Lister, cfg *config.Config, reconcile map[string]struct{}, logger *slog.Logger) (*Worklist, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	limit := cfg.Run.MaxAssets
	wl := &Worklist{}

	for _, assetType := range cfg.Filter.AssetTypes {
		filter := immich.SearchFilter{
			Type:         assetType,
			WithArchived: cfg.Filter.IncludeArchived,
			WithDeleted:  cfg.Filter.IncludeDeleted,
			TakenAfter:   cfg.Filter.TakenAfter,
			TakenBefore:  cfg.Filter.TakenBefore,
		}
		for asset, err := range lister.ListAssets(ctx, filter) {
			if err != nil {
				return nil, fmt.Errorf("scan %s assets: %w", strings.ToLower(assetType), err)
			}
			if limit > 0 && len(wl.Items) >= limit {
				wl.Truncated = true
				break
			}
			wl.Items = append(wl.Items, classify(len(wl.Items), asset, reconcile))
		}
		if wl.Truncated {
			break
		}
	}

	skipped := len(wl.Items) - len(wl.Pending())
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "worklist_built"),
		logging.Int("assets", len(wl.Items)),
		logging.Int("pre_skipped", skipped),
		logging.String("asset_types", strings.Join(cfg.Filter.AssetTypes, ", ")),
	}
	if wl.Truncated {
		attrs = append(attrs, logging.Int("max_assets", limit))
	}
	logger.Info("scan complete", logging.Args(attrs...)...)
	return wl, nil
}

func classify(index int, asset immich.Asset, reconcile map[string]struct{}) Item {
	item := Item{Index: index, Asset: asset}
	if _, ok := reconcile[asset.ID]; ok {
		item.SkipReason = conversion.ReasonPendingReconciliation
		item.SkipDetail = "an earlier run may have left a replacement for this asset"
		return item
	}
	if asset.Type == immich.TypeImage && isJXL(asset) {
		item.SkipReason = conversion.ReasonAlreadyTargetFormat
		item.SkipDetail = "already JPEG XL"
	}
	return item
}

func isJXL(asset immich.Asset) bool {
	return strings.EqualFold(asset.OriginalMimeType, jxlMimeType) || asset.Extension() == "jxl"
}
