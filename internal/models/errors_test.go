package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindOffline, "offline"},
		{KindFetchFailed, "artifacts-fetch-failed"},
		{KindQuotaExceeded, "quota-exceeded"},
		{KindMalformedArtifact, "malformed-artifact"},
		{KindWorkerTimeout, "worker-timeout"},
		{KindWorkerError, "worker-error"},
		{KindNoRelevantContent, "no-relevant-content"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestErrorKind_Recoverable(t *testing.T) {
	recoverable := []ErrorKind{KindFetchFailed, KindWorkerTimeout, KindWorkerError, KindNoRelevantContent}
	for _, k := range recoverable {
		if !k.Recoverable() {
			t.Errorf("%s should be recoverable", k)
		}
	}
	terminal := []ErrorKind{KindOffline, KindQuotaExceeded, KindMalformedArtifact}
	for _, k := range terminal {
		if k.Recoverable() {
			t.Errorf("%s should not be recoverable", k)
		}
	}
}

func TestRetrievalError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewError(KindFetchFailed, "fetch manifest", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Error() == "" {
		t.Error("expected non-empty message")
	}
}

func TestRetrievalError_IsByKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError(KindQuotaExceeded, "persist snapshot", nil))
	if !errors.Is(err, NewError(KindQuotaExceeded, "", nil)) {
		t.Error("expected kind match through wrapping")
	}
	if errors.Is(err, NewError(KindOffline, "", nil)) {
		t.Error("did not expect offline kind to match")
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(KindMalformedArtifact, "decode blob", errors.New("truncated")))
	kind, ok := KindOf(err)
	if !ok || kind != KindMalformedArtifact {
		t.Errorf("KindOf = %v, %v; want malformed-artifact, true", kind, ok)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("plain error should have no kind")
	}
}

func TestManifest_Validate(t *testing.T) {
	valid := &ArtifactManifest{
		Version:   ManifestVersion,
		BuildHash: "abc",
		Model:     ModelInfo{Name: "minilm", Dimensions: 4, Normalization: "l2"},
		Chunks: []ManifestChunk{
			{ID: "a#intro-0", EmbeddingOffset: 0},
			{ID: "a#intro-1", EmbeddingOffset: 8},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	dup := *valid
	dup.Chunks = []ManifestChunk{{ID: "x", EmbeddingOffset: 0}, {ID: "x", EmbeddingOffset: 8}}
	if err := dup.Validate(); err == nil {
		t.Error("expected error for duplicate chunk id")
	}

	badOffset := *valid
	badOffset.Chunks = []ManifestChunk{{ID: "x", EmbeddingOffset: 4}}
	if err := badOffset.Validate(); err == nil {
		t.Error("expected error for offset not matching manifest order")
	}

	noHash := *valid
	noHash.BuildHash = ""
	if err := noHash.Validate(); err == nil {
		t.Error("expected error for empty build hash")
	}
}

func TestManifest_ChunkByID(t *testing.T) {
	m := &ArtifactManifest{Chunks: []ManifestChunk{{ID: "a"}, {ID: "b"}}}
	if got := m.ChunkByID("b"); got == nil || got.ID != "b" {
		t.Errorf("ChunkByID(b) = %v", got)
	}
	if got := m.ChunkByID("missing"); got != nil {
		t.Errorf("ChunkByID(missing) = %v, want nil", got)
	}
}
