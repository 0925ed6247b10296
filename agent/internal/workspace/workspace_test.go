package workspace

import (
	"archive/zip"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkspaceLifecycle(t *testing.T) {
	testCases := []struct {
		name          string
		keepOnFailure bool
		failed        bool
		expectKept    bool
	}{
		{name: "success", keepOnFailure: true, failed: false, expectKept: false},
		{name: "failure", keepOnFailure: false, failed: true, expectKept: false},
		{
			name:          "failure with keep",
			keepOnFailure: true,
			failed:        true,
			expectKept:    true,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			root, err := ioutil.TempDir("", "workspaces")
			require.NoError(t, err)
			defer os.RemoveAll(root)
			ws, err := NewManager(root, testCase.keepOnFailure).Create()
			require.NoError(t, err)
			require.Equal(t, root, filepath.Dir(ws.Dir))
			require.NoError(
				t,
				ioutil.WriteFile(ws.Path("scratch.txt"), []byte("x"), 0600),
			)
			ws.Release(testCase.failed)
			_, err = os.Stat(ws.Dir)
			if testCase.expectKept {
				require.NoError(t, err)
			} else {
				require.True(t, os.IsNotExist(err))
			}
		})
	}
}

func TestWorkspacesAreUnique(t *testing.T) {
	root, err := ioutil.TempDir("", "workspaces")
	require.NoError(t, err)
	defer os.RemoveAll(root)
	m := NewManager(root, false)
	ws1, err := m.Create()
	require.NoError(t, err)
	ws2, err := m.Create()
	require.NoError(t, err)
	require.NotEqual(t, ws1.Dir, ws2.Dir)
}

func TestPackAndExtract(t *testing.T) {
	dir, err := ioutil.TempDir("", "zip")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "MyApp"), 0700))
	require.NoError(t, ioutil.WriteFile(
		filepath.Join(src, "MyApp", "MyApp.ipa"),
		[]byte("ipa bytes"),
		0600,
	))
	require.NoError(t, ioutil.WriteFile(
		filepath.Join(src, "ExportOptions.plist"),
		[]byte("plist"),
		0600,
	))

	archive := filepath.Join(dir, "delivery.zip")
	require.NoError(
		t,
		Pack(src, []string{"MyApp", "ExportOptions.plist"}, archive),
	)

	r, err := zip.OpenReader(archive)
	require.NoError(t, err)
	methods := map[string]uint16{}
	for _, f := range r.File {
		methods[f.Name] = f.Method
	}
	r.Close()
	require.Contains(t, methods, "MyApp/")
	require.Equal(t, zip.Store, methods["MyApp/MyApp.ipa"])
	require.Equal(t, zip.Deflate, methods["ExportOptions.plist"])

	dest := filepath.Join(dir, "dest")
	require.NoError(t, Extract(archive, dest))
	data, err := ioutil.ReadFile(filepath.Join(dest, "MyApp", "MyApp.ipa"))
	require.NoError(t, err)
	require.Equal(t, "ipa bytes", string(data))
}

func TestExtractRejectsZipSlip(t *testing.T) {
	dir, err := ioutil.TempDir("", "zip")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	archive := filepath.Join(dir, "evil.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("../../evil.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("gotcha"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(dir, "dest")
	err = Extract(archive, dest)
	require.Error(t, err)
	require.Contains(t, err.Error(), "escapes")
	_, err = os.Stat(filepath.Join(dir, "evil.txt"))
	require.True(t, os.IsNotExist(err))
}
