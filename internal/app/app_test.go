package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdnsync/internal/config"
	"cdnsync/internal/deploy"
)

func testConfig(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	base := t.TempDir()
	source := filepath.Join(base, "dist")
	require.NoError(t, os.MkdirAll(source, 0755))
	writeFiles(t, source, files)

	cfg := config.NewConfig(base, source, "https://cdn.example.com/")
	cfg.Prefix = "site/"
	cfg.Refresh = true
	cfg.Prefetch = true
	return cfg
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, "deploy")
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func fileNames(files []deploy.FileRecord) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Filename
	}
	return out
}

func TestApp_DeployRecordsRun(t *testing.T) {
	cfg := testConfig(t, map[string]string{"index.html": "<p>", "js/app.js": "x"})
	a := newTestApp(t, cfg)

	plan, result, err := a.Deploy(context.Background(), deploy.ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html", "js/app.js"}, fileNames(plan.Classification.Upload))
	assert.Len(t, result.Uploaded, 2)

	bucket := cfg.Store.FSRoot
	for _, key := range []string{"site/index.html", "site/js/app.js", "site/.cdnsync.json"} {
		_, err := os.Stat(filepath.Join(bucket, filepath.FromSlash(key)))
		assert.NoError(t, err, key)
	}

	runs, err := a.History(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, a.RunID(), runs[0].RunID)
	assert.Equal(t, "success", runs[0].Status)
	assert.Equal(t, 2, runs[0].Uploaded)

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), a.RunID())
}

func TestApp_SecondRunOmitsEverything(t *testing.T) {
	cfg := testConfig(t, map[string]string{"index.html": "<p>"})

	first := newTestApp(t, cfg)
	_, _, err := first.Deploy(context.Background(), deploy.ApplyOptions{})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newTestApp(t, cfg)
	plan, err := second.Plan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Classification.Changed())
	assert.Equal(t, []string{"index.html"}, fileNames(plan.Classification.Omit))
	assert.Equal(t, 2, plan.Log.Len())

	runs, err := second.History(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1, "planning alone records no run")
}

func TestApp_DryRunRecordsNothing(t *testing.T) {
	cfg := testConfig(t, map[string]string{"index.html": "<p>"})
	a := newTestApp(t, cfg)

	plan, result, err := a.Deploy(context.Background(), deploy.ApplyOptions{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, plan.Classification.Upload, 1)
	assert.Empty(t, result.Uploaded)

	runs, err := a.History(10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = os.Stat(filepath.Join(cfg.Store.FSRoot, "site", "index.html"))
	assert.True(t, os.IsNotExist(err))
}

func TestApp_Exclusions(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"app.js":         "x",
		"app.js.map":     "m",
		"drafts/a.html":  "d",
		".cdnsyncignore": "# maps stay private\n*.map\n",
		".cdnsync.json":  "[]",
	})
	cfg.Exclude = []string{"drafts"}
	cfg.Prefix = ""
	a := newTestApp(t, cfg)

	plan, err := a.Plan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"app.js"}, fileNames(plan.Classification.Upload))
	assert.ElementsMatch(t,
		[]string{".cdnsync.json", ".cdnsyncignore", "app.js.map", "drafts/a.html"},
		fileNames(plan.Classification.Excluded))
}

func TestApp_Retention(t *testing.T) {
	cfg := testConfig(t, nil)
	assert.Nil(t, newTestApp(t, cfg).Retention())

	versions := 2
	cfg.Retention = config.RetentionConfig{Versions: &versions, MaxAge: "30d"}
	policy := newTestApp(t, cfg).Retention()
	require.NotNil(t, policy)
	assert.Equal(t, 2, *policy.Versions)
	assert.Equal(t, "720h0m0s", policy.MaxAge.String())
}

func TestApp_RetentionCleansOnDeploy(t *testing.T) {
	cfg := testConfig(t, map[string]string{"a.js": "v1", "old.js": "old"})
	versions := 0
	cfg.Retention.Versions = &versions

	first := newTestApp(t, cfg)
	_, _, err := first.Deploy(context.Background(), deploy.ApplyOptions{})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	require.NoError(t, os.Remove(filepath.Join(cfg.Source, "old.js")))
	writeFiles(t, cfg.Source, map[string]string{"a.js": "version2"})

	second := newTestApp(t, cfg)
	plan, result, err := second.Deploy(context.Background(), deploy.ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"old.js"}, fileNames(plan.CleanFiles()))
	assert.Len(t, result.Deleted, 1)

	_, err = os.Stat(filepath.Join(cfg.Store.FSRoot, "site", "old.js"))
	assert.True(t, os.IsNotExist(err))

	runs, err := second.History(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Deleted)
}

func TestApp_VersionsAndLocate(t *testing.T) {
	cfg := testConfig(t, map[string]string{"a.js": "v1"})
	a := newTestApp(t, cfg)

	_, _, err := a.Deploy(context.Background(), deploy.ApplyOptions{})
	require.NoError(t, err)

	report, err := a.Versions(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Snapshots, 1)

	entries, err := a.Locate(context.Background(), "a.js")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsCurrent)
	assert.Equal(t, "site/a.js", a.Key("a.js"))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Host = ""

	_, err := New(context.Background(), cfg, "deploy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")

	cfg = testConfig(t, nil)
	cfg.Retention.MaxAge = "soon"
	_, err = New(context.Background(), cfg, "deploy")
	assert.Error(t, err)
}

func TestApp_PlanRequiresSource(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Source = ""
	a := newTestApp(t, cfg)

	_, err := a.Plan(context.Background())
	assert.ErrorContains(t, err, "no source directory")
}

func TestApp_PruneHashCache(t *testing.T) {
	cfg := testConfig(t, map[string]string{"a.js": "a", "b.js": "b"})
	a := newTestApp(t, cfg)

	_, err := a.Plan(context.Background())
	require.NoError(t, err)

	n, err := a.PruneHashCache(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = a.PruneHashCache(-time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestApp_SameSizeRewriteWithResetModTime(t *testing.T) {
	cfg := testConfig(t, map[string]string{"a.js": "v1"})
	src := filepath.Join(cfg.Source, "a.js")
	modTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, modTime, modTime))

	first := newTestApp(t, cfg)
	_, _, err := first.Deploy(context.Background(), deploy.ApplyOptions{})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	require.NoError(t, os.WriteFile(src, []byte("v2"), 0644))
	require.NoError(t, os.Chtimes(src, modTime, modTime))

	second := newTestApp(t, cfg)
	plan, _, err := second.Deploy(context.Background(), deploy.ApplyOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.js"}, fileNames(plan.Classification.Overwrite))
	assert.Empty(t, plan.Classification.Omit)

	data, err := os.ReadFile(filepath.Join(cfg.Store.FSRoot, "site", "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}
