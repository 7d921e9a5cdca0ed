package launch

import (
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/archive"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/core/manifest"
	scormerrors "github.com/mantonx/scormbridge/internal/modules/scormmodule/errors"
	"github.com/mantonx/scormbridge/internal/modules/scormmodule/scormtest"
	"github.com/mantonx/scormbridge/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, data []byte) (*Store, *Handle, error) {
	t.Helper()
	a, err := archive.Open(data)
	require.NoError(t, err)
	m, err := manifest.FromArchive(a)
	require.NoError(t, err)
	res, err := m.Launchable()
	require.NoError(t, err)

	store := NewStore("/api/scorm/content/", hclog.NewNullLogger())
	h, err := NewResolver(store).Resolve(a, res)
	return store, h, err
}

func TestResolve_CreatesHandle(t *testing.T) {
	store, h, err := resolve(t, scormtest.SingleSCO(t, "index.html"))
	require.NoError(t, err)

	assert.Equal(t, "index.html", h.EntryPath)
	assert.True(t, strings.HasPrefix(h.ContentType, "text/html"))
	assert.Equal(t, utils.ContentDigest([]byte(scormtest.IndexHTML)), h.Digest)
	assert.Equal(t, "/api/scorm/content/"+h.ID+"/index.html", h.URL())
	assert.Equal(t, 1, store.Len())

	got, ok := store.Get(h.ID)
	require.True(t, ok)
	assert.Same(t, h, got)
}

func TestResolve_LaunchFileMissing(t *testing.T) {
	store, h, err := resolve(t, scormtest.SingleSCO(t, "missing.html"))
	require.Error(t, err)
	assert.Nil(t, h)
	assert.True(t, errors.Is(err, scormerrors.ErrLaunchFileMissing))
	assert.Equal(t, 0, store.Len())
}

func TestHandle_OpenSiblingAssets(t *testing.T) {
	_, h, err := resolve(t, scormtest.SingleSCO(t, "index.html"))
	require.NoError(t, err)

	data, ctype, err := h.Open("")
	require.NoError(t, err)
	assert.Equal(t, scormtest.IndexHTML, string(data))
	assert.True(t, strings.HasPrefix(ctype, "text/html"))

	data, ctype, err = h.Open("css/style.css")
	require.NoError(t, err)
	assert.Equal(t, "body { margin: 0 }", string(data))
	assert.True(t, strings.HasPrefix(ctype, "text/css"))

	_, _, err = h.Open("nope.js")
	assert.True(t, errors.Is(err, scormerrors.ErrEntryNotFound))
}

func TestHandle_RevokeIsIdempotentAndIsolated(t *testing.T) {
	data := scormtest.SingleSCO(t, "index.html")
	a, err := archive.Open(data)
	require.NoError(t, err)
	res, err := manifest.Parse(scormtest.Manifest(scormtest.Resource{Identifier: "r1", ScormType: "sco", Href: "index.html"}))
	require.NoError(t, err)

	store := NewStore("/content", hclog.NewNullLogger())
	resolver := NewResolver(store)

	first, err := resolver.Resolve(a, res)
	require.NoError(t, err)

	first.Revoke()
	first.Revoke()
	assert.True(t, first.Revoked())

	second, err := resolver.Resolve(a, res)
	require.NoError(t, err)
	first.Revoke()

	assert.False(t, second.Revoked())
	assert.NotEqual(t, first.ID, second.ID)
	_, ok := store.Get(second.ID)
	assert.True(t, ok)

	_, _, err = first.Open("")
	assert.ErrorIs(t, err, ErrHandleRevoked)
	_, _, err = second.Open("")
	assert.NoError(t, err)
}

func TestHandle_RevokeNeverConsumed(t *testing.T) {
	store, h, err := resolve(t, scormtest.SingleSCO(t, "index.html"))
	require.NoError(t, err)

	assert.NotPanics(t, h.Revoke)
	assert.Equal(t, 0, store.Len())
}

func TestStore_RevokeAll(t *testing.T) {
	a, err := archive.Open(scormtest.SingleSCO(t, "index.html"))
	require.NoError(t, err)
	res := &manifest.Resource{Href: "index.html", ScormType: "sco"}

	store := NewStore("/content", hclog.NewNullLogger())
	resolver := NewResolver(store)
	h1, err := resolver.Resolve(a, res)
	require.NoError(t, err)
	h2, err := resolver.Resolve(a, res)
	require.NoError(t, err)

	store.RevokeAll()
	assert.True(t, h1.Revoked())
	assert.True(t, h2.Revoked())
	assert.Equal(t, 0, store.Len())
}

func TestHandle_URLKeepsSuffixAndEscapes(t *testing.T) {
	a, err := archive.Open(scormtest.Zip(t, map[string]string{"my lesson/start.html": "<html></html>"}))
	require.NoError(t, err)

	res := &manifest.Resource{Href: "my%20lesson/start.html?lang=en", ScormType: "sco"}
	h, err := NewResolver(NewStore("/content", hclog.NewNullLogger())).Resolve(a, res)
	require.NoError(t, err)
	assert.Equal(t, "/content/"+h.ID+"/my%20lesson/start.html?lang=en", h.URL())
}

func TestDetectContentType(t *testing.T) {
	assert.True(t, strings.HasPrefix(DetectContentType("a/index.htm", nil), "text/html"))
	assert.True(t, strings.HasPrefix(DetectContentType("app.js", nil), "text/javascript") ||
		strings.HasPrefix(DetectContentType("app.js", nil), "application/javascript"))
	// No extension: sniffed
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	assert.Equal(t, "image/png", DetectContentType("blob", png))
}
