package mockserver

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inferclient/pkg/types"
)

func TestRepository_AddFromDirServesEcho(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "echo", "1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "echo", "2"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "weights_only", "1"), 0o755); err != nil {
		t.Fatal(err)
	}
	md := `inputs:
  - name: INPUT0
    datatype: INT32
    shape: [-1, 3]
outputs:
  - name: OUTPUT0
    datatype: INT32
    shape: [-1, 3]
`
	if err := os.WriteFile(filepath.Join(dir, "echo", "metadata.yaml"), []byte(md), 0o644); err != nil {
		t.Fatal(err)
	}

	repo := NewRepository(0)
	added, err := repo.AddFromDir(dir)
	if err != nil {
		t.Fatalf("AddFromDir: %v", err)
	}
	if len(added) != 1 || added[0] != "echo" {
		t.Fatalf("added=%v", added)
	}

	h := NewMux(repo, Options{})
	w := doJSON(t, h, http.MethodPost, "/v2/models/echo/infer",
		`{"inputs":[{"name":"INPUT0","datatype":"INT32","shape":[1,3],"data":[7,8,9]}]}`)
	resp := decodeInfer(t, w)
	if resp.ModelVersion != "2" {
		t.Fatalf("expected latest version 2, got %q", resp.ModelVersion)
	}
	if len(resp.Outputs) != 1 || resp.Outputs[0].Name != "OUTPUT0" || string(resp.Outputs[0].Data) != "[7,8,9]" {
		t.Fatalf("unexpected outputs: %+v", resp.Outputs)
	}

	w = doJSON(t, h, http.MethodGet, "/v2/models/echo", "")
	var got types.ModelMetadata
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if got.Platform != "echo" || len(got.Versions) != 2 {
		t.Fatalf("unexpected metadata: %+v", got)
	}
}

func TestRepository_AddRejectsDuplicates(t *testing.T) {
	repo := NewRepository(0)
	if err := repo.Add(NewSklearnModel(), ModelOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Add(NewSklearnModel(), ModelOptions{}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := NewEchoModel(types.ModelMetadata{Name: "bad"}); err == nil {
		t.Fatalf("expected error for echo model without inputs")
	}
}

func TestRepository_BeginTooBusy(t *testing.T) {
	repo := NewRepository(20 * time.Millisecond)
	if err := repo.Add(NewSklearnModel(), ModelOptions{Instances: 1, MaxQueue: 1}); err != nil {
		t.Fatal(err)
	}
	sm, _, err := repo.resolve(SklearnModelName, "")
	if err != nil {
		t.Fatal(err)
	}
	release, err := repo.begin(context.Background(), sm)
	if err != nil {
		t.Fatalf("first begin: %v", err)
	}
	if _, err := repo.begin(context.Background(), sm); !IsTooBusy(err) {
		t.Fatalf("expected too busy, got %v", err)
	}
	if statusOf(tooBusyError{}) != http.StatusTooManyRequests {
		t.Fatalf("too busy must map to 429")
	}
	release()
	release2, err := repo.begin(context.Background(), sm)
	if err != nil {
		t.Fatalf("begin after release: %v", err)
	}
	release2()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := repo.begin(ctx, sm); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRepository_UnknownVersion(t *testing.T) {
	repo := NewDefaultRepository()
	if _, err := repo.Metadata(SklearnModelName, "7"); !IsUnknownModel(err) {
		t.Fatalf("expected unknown model, got %v", err)
	}
	if _, err := repo.Statistics("nope", ""); !IsUnknownModel(err) {
		t.Fatalf("expected unknown model, got %v", err)
	}
	if names := repo.Names(); len(names) != 2 || names[0] != DiabetesModelName {
		t.Fatalf("names=%v", names)
	}
}
