package workflow_test

import (
	"context"
	"errors"
	"testing"

	"reclaim/internal/config"
	"reclaim/internal/conversion"
	"reclaim/internal/immich"
	"reclaim/internal/media/format"
	"reclaim/internal/testsupport"
	"reclaim/internal/workflow"
)

func worklistIDs(items []workflow.Item) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.Asset.ID)
	}
	return ids
}

func TestBuildWorklistClassifiesAssets(t *testing.T) {
	lib := testsupport.NewFakeLibrary()
	lib.Add(video("v1"), testsupport.MediaBytes(format.MP4, 100))
	lib.Add(image("i1"), testsupport.MediaBytes(format.JPEG, 100))
	mimeOnly := image("i2")
	mimeOnly.OriginalMimeType = "image/jxl"
	lib.Add(mimeOnly, testsupport.MediaBytes(format.JXL, 100))
	extOnly := image("i3")
	extOnly.OriginalFileName = "i3.JXL"
	extOnly.OriginalMimeType = ""
	lib.Add(extOnly, testsupport.MediaBytes(format.JXL, 100))
	lib.Add(image("i4"), testsupport.MediaBytes(format.JPEG, 100))
	archived := image("i5")
	archived.IsArchived = true
	lib.Add(archived, testsupport.MediaBytes(format.JPEG, 100))

	cfg := testsupport.NewConfig(t)
	reconcile := map[string]struct{}{"i4": {}}
	wl, err := workflow.BuildWorklist(context.Background(), lib, cfg, reconcile, nil)
	if err != nil {
		t.Fatalf("BuildWorklist: %v", err)
	}

	tests := []struct {
		id     string
		reason conversion.Reason
	}{
		{"i1", ""},
		{"i2", conversion.ReasonAlreadyTargetFormat},
		{"i3", conversion.ReasonAlreadyTargetFormat},
		{"i4", conversion.ReasonPendingReconciliation},
		{"v1", ""},
	}
	if wl.Len() != len(tests) || wl.Truncated {
		t.Fatalf("worklist = %v truncated=%t", worklistIDs(wl.Items), wl.Truncated)
	}
	for i, tt := range tests {
		it := wl.Items[i]
		if it.Index != i || it.Asset.ID != tt.id || it.SkipReason != tt.reason {
			t.Errorf("item %d = {%d %s %q}, want {%d %s %q}", i, it.Index, it.Asset.ID, it.SkipReason, i, tt.id, tt.reason)
		}
	}
	if got := worklistIDs(wl.Pending()); len(got) != 2 || got[0] != "i1" || got[1] != "v1" {
		t.Fatalf("pending = %v", got)
	}
}

func TestBuildWorklistFollowsFilter(t *testing.T) {
	lib := testsupport.NewFakeLibrary()
	lib.Add(image("i1"), testsupport.MediaBytes(format.JPEG, 100))
	archived := image("i2")
	archived.IsArchived = true
	lib.Add(archived, testsupport.MediaBytes(format.JPEG, 100))
	lib.Add(video("v1"), testsupport.MediaBytes(format.MP4, 100))

	tests := []struct {
		name     string
		types    []string
		archived bool
		want     []string
	}{
		{name: "videos first", types: []string{config.AssetTypeVideo, config.AssetTypeImage}, want: []string{"v1", "i1"}},
		{name: "images only", types: []string{config.AssetTypeImage}, want: []string{"i1"}},
		{name: "with archived", types: []string{config.AssetTypeImage}, archived: true, want: []string{"i1", "i2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			cfg.Filter.AssetTypes = tt.types
			cfg.Filter.IncludeArchived = tt.archived
			wl, err := workflow.BuildWorklist(context.Background(), lib, cfg, nil, nil)
			if err != nil {
				t.Fatalf("BuildWorklist: %v", err)
			}
			got := worklistIDs(wl.Items)
			if len(got) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("ids = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestBuildWorklistMaxAssets(t *testing.T) {
	lib := testsupport.NewFakeLibrary()
	for _, id := range []string{"a", "b", "c"} {
		lib.Add(image(id), testsupport.MediaBytes(format.JPEG, 100))
	}
	lib.Add(video("v"), testsupport.MediaBytes(format.MP4, 100))

	tests := []struct {
		max       int
		want      int
		truncated bool
	}{
		{max: 0, want: 4},
		{max: 4, want: 4},
		{max: 3, want: 3, truncated: true},
		{max: 1, want: 1, truncated: true},
	}
	for _, tt := range tests {
		cfg := testsupport.NewConfig(t)
		cfg.Run.MaxAssets = tt.max
		wl, err := workflow.BuildWorklist(context.Background(), lib, cfg, nil, nil)
		if err != nil {
			t.Fatalf("BuildWorklist: %v", err)
		}
		if wl.Len() != tt.want || wl.Truncated != tt.truncated {
			t.Errorf("max %d: len=%d truncated=%t, want %d %t", tt.max, wl.Len(), wl.Truncated, tt.want, tt.truncated)
		}
	}
}

func TestBuildWorklistPropagatesScanErrors(t *testing.T) {
	lib := testsupport.NewFakeLibrary()
	lib.Add(image("a"), testsupport.MediaBytes(format.JPEG, 100))
	lib.Fail(testsupport.OpList, immich.TypeImage, testsupport.ErrInjected)

	cfg := testsupport.NewConfig(t)
	if _, err := workflow.BuildWorklist(context.Background(), lib, cfg, nil, nil); !errors.Is(err, testsupport.ErrInjected) {
		t.Fatalf("expected scan error, got %v", err)
	}
}
