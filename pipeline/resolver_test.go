package pipeline

import (
	"context"
	"image"
	"os"
	"testing"

	"ScriptToVideo-server/models"
	"ScriptToVideo-server/render"
)

func newTestResolver(t *testing.T, gen *fakeImage, sidecar Sidecar) (*Resolver, *Workspace) {
	t.Helper()
	ws := newTestWorkspace(t)
	var r *Resolver
	cfg := ResolverConfig{CharacterSize: 32, SceneWidth: 64, SceneHeight: 36}
	if gen == nil {
		r = NewResolver(ws, nil, sidecar, nil, nil, cfg, testLog())
	} else {
		r = NewResolver(ws, gen, sidecar, nil, nil, cfg, testLog())
	}
	return r, ws
}

func assertAsset(t *testing.T, a models.VisualAsset, provenance string, w, h int) {
	t.Helper()
	if a.Provenance != provenance {
		t.Errorf("provenance = %q, want %q", a.Provenance, provenance)
	}
	if a.Path == "" {
		t.Fatal("empty asset path")
	}
	gw, gh, err := render.DecodeSize(a.Path)
	if err != nil {
		t.Fatalf("decode asset: %v", err)
	}
	if gw != w || gh != h || a.Width != w || a.Height != h {
		t.Errorf("asset size = %dx%d (record %dx%d), want %dx%d", gw, gh, a.Width, a.Height, w, h)
	}
}

func TestResolveWithoutBackendIsPlaceholder(t *testing.T) {
	r, _ := newTestResolver(t, nil, nil)
	ctx := context.Background()

	ch, err := r.Resolve(ctx, "男，30，西装", "小明", models.AssetCharacter)
	if err != nil {
		t.Fatalf("Resolve character: %v", err)
	}
	assertAsset(t, ch, models.ProvenancePlaceholder, 32, 32)

	sc, err := r.Resolve(ctx, "公园", "scene_1", models.AssetScene)
	if err != nil {
		t.Fatalf("Resolve scene: %v", err)
	}
	assertAsset(t, sc, models.ProvenancePlaceholder, 64, 36)

	img, err := render.LoadImage(sc.Path)
	if err != nil {
		t.Fatal(err)
	}
	if r, g, b, _ := img.At(0, 0).RGBA(); r>>8 != 0x22 || g>>8 != 0x8B || b>>8 != 0x22 {
		t.Errorf("park background should be forest green, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestResolveBackendFailureFallsBack(t *testing.T) {
	for name, gen := range map[string]*fakeImage{
		"error": {err: errBackend},
		"panic": {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			r, _ := newTestResolver(t, gen, nil)
			a, err := r.Resolve(context.Background(), "女，20", "小红", models.AssetCharacter)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			assertAsset(t, a, models.ProvenanceFallback, 32, 32)
		})
	}
}

func TestResolveGeneratedIsNormalised(t *testing.T) {
	gen := &fakeImage{size: image.Pt(10, 7)}
	r, _ := newTestResolver(t, gen, nil)
	a, err := r.Resolve(context.Background(), "办公室", "scene_2", models.AssetScene)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	assertAsset(t, a, models.ProvenanceAI, 64, 36)
	if gen.calls != 1 {
		t.Errorf("backend calls = %d", gen.calls)
	}
}

func TestResolveSamePathTwice(t *testing.T) {
	r, ws := newTestResolver(t, nil, nil)
	ctx := context.Background()
	first, err := r.Resolve(ctx, "男", "小明", models.AssetCharacter)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(ctx, "女", "小明", models.AssetCharacter)
	if err != nil {
		t.Fatal(err)
	}
	if first.Path != second.Path || first.Path != ws.AssetPath(models.AssetCharacter, "小明") {
		t.Errorf("paths differ: %q vs %q", first.Path, second.Path)
	}
	entries, err := os.ReadDir(ws.AssetDir(models.AssetCharacter))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected a single file, got %d", len(entries))
	}
}

func TestResolveSidecar(t *testing.T) {
	t.Run("failure does not fail resolution", func(t *testing.T) {
		r, _ := newTestResolver(t, nil, failingSidecar{})
		if _, err := r.Resolve(context.Background(), "街道", "scene_1", models.AssetScene); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	})
	t.Run("json record", func(t *testing.T) {
		ws := newTestWorkspace(t)
		sc := JSONSidecar{Dir: ws.MetadataDir()}
		r := NewResolver(ws, nil, sc, nil, nil, ResolverConfig{CharacterSize: 16, SceneWidth: 16, SceneHeight: 16}, testLog())
		c := models.Character{Name: "小明", Description: "男，30，西装"}
		c.Attributes.VoiceModel = "male_young_01"
		if _, err := r.ResolveCharacter(context.Background(), c); err != nil {
			t.Fatal(err)
		}
		rec, ok := sc.Load(context.Background(), models.AssetRecordID(ws.RunID, models.AssetCharacter, "小明"))
		if !ok {
			t.Fatal("sidecar record missing")
		}
		if rec.Provenance != models.ProvenancePlaceholder || rec.VoiceModel != "male_young_01" || rec.Description != "男，30，西装" {
			t.Errorf("unexpected record %+v", rec)
		}
		if _, ok := sc.Load(context.Background(), "missing"); ok {
			t.Error("missing record should degrade to unknown")
		}
	})
}

func TestSafeName(t *testing.T) {
	if got := SafeName("scene_1"); got != "scene_1" {
		t.Errorf("SafeName(scene_1) = %q", got)
	}
	a, b := SafeName("a/b"), SafeName("a?b")
	if a == b {
		t.Errorf("distinct ids collided: %q", a)
	}
	if SafeName("a/b") != a {
		t.Error("SafeName not deterministic")
	}
}
