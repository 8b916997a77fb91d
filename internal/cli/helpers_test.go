package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IceFreez3r/OpenMS/internal/ident"
	"github.com/IceFreez3r/OpenMS/internal/meta"
	"github.com/IceFreez3r/OpenMS/internal/registry"
	"github.com/IceFreez3r/OpenMS/internal/store"
	"github.com/IceFreez3r/OpenMS/internal/testutil"
)

// writePipelines writes the standard pipeline fixture into a fresh
// directory and returns the directory.
func writePipelines(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WritePipelineFile(t, dir)
	return dir
}

// seedStore builds a store with the standard pipeline registered and
// two scored entities, returning the store path.
//
// PEP1 runs search (XCorr 2.41) then rescore (q-value 0.009) and has
// charge=2 metadata. PEP2 runs search only (XCorr 1.13).
func seedStore(t *testing.T) string {
	t.Helper()

	dir := writePipelines(t)
	loadResult, loadErrors := LoadSpecs(dir, LoadModeFailFast)
	require.Empty(t, loadErrors)
	require.Len(t, loadResult.Pipelines, 1)

	bank := registry.NewBank()
	refs, err := bank.Registry().ApplySpec(loadResult.Pipelines[0])
	require.NoError(t, err)

	search := refs.Steps["search"]
	rescore := refs.Steps["rescore"]
	xcorr := refs.ScoreTypes["XCorr"]
	qvalue := refs.ScoreTypes["q-value"]

	require.NoError(t, bank.AddStep("PEP1", search, ident.ScoreMap{xcorr: 2.41}))
	require.NoError(t, bank.AddStep("PEP1", rescore, ident.ScoreMap{qvalue: 0.009}))
	require.NoError(t, bank.AddStep("PEP2", search, ident.ScoreMap{xcorr: 1.13}))
	bank.SetMeta("PEP1", "charge", meta.Int(2))

	dbPath := filepath.Join(t.TempDir(), "cli-test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.SaveBank(context.Background(), bank, "cli-test-run"))

	return dbPath
}

// loadSeededBank reloads a store built by seedStore for assertions.
func loadSeededBank(t *testing.T, dbPath string) *registry.Bank {
	t.Helper()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	bank, err := st.LoadBank(context.Background())
	require.NoError(t, err)
	return bank
}
