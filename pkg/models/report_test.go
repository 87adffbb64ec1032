package models

import "testing"

func TestLayerOrder(t *testing.T) {
	want := []string{LayerCodeQuality, LayerFunctional, LayerIntegration, LayerUserExperience}
	if len(LayerOrder) != len(want) {
		t.Fatalf("expected %d layers, got %d", len(want), len(LayerOrder))
	}
	for i, name := range want {
		if LayerOrder[i] != name {
			t.Errorf("layer %d: got %q, want %q", i, LayerOrder[i], name)
		}
	}
}

func TestLayerNamed(t *testing.T) {
	r := &ValidationReport{
		Layers: []LayerResult{
			{Layer: LayerCodeQuality, Passed: true},
			{Layer: LayerFunctional, Passed: false},
		},
	}

	got := r.LayerNamed(LayerFunctional)
	if got == nil {
		t.Fatal("expected functional layer result")
	}
	if got.Passed {
		t.Error("expected functional layer to be failed")
	}

	if r.LayerNamed(LayerUserExperience) != nil {
		t.Error("expected nil for absent layer")
	}
}
