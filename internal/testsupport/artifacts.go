package testsupport

import (
	"bytes"
	"context"
	"crypto/md5" // nolint: gosec
	"fmt"
	"io"
	"io/ioutil"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/krancour/secureimage/internal/artifacts"
	"github.com/krancour/secureimage/sdk/meta"
)

// StoredObject is an object held by an ArtifactStore.
type StoredObject struct {
	Data         []byte
	LastModified time.Time
	ETag         string
}

// ArtifactStore is an in-memory implementation of artifacts.Store.
type ArtifactStore struct {
	mu      sync.Mutex
	objects map[string]*StoredObject
	// Now supplies the modification time of newly stored objects.
	Now func() time.Time
	// RemoveErrs, if set, makes Remove fail for the named objects.
	RemoveErrs map[string]error
	// PutErr, if set, makes every Put fail.
	PutErr error
}

// NewArtifactStore returns an empty ArtifactStore.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{
		objects: map[string]*StoredObject{},
		Now:     time.Now,
	}
}

// Seed places an object directly into the store.
func (a *ArtifactStore) Seed(
	name string,
	data []byte,
	lastModified time.Time,
) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	etag := fmt.Sprintf("%x", md5.Sum(data)) // nolint: gosec
	a.objects[name] = &StoredObject{
		Data:         data,
		LastModified: lastModified,
		ETag:         etag,
	}
	return etag
}

// Object returns the named object, if present.
func (a *ArtifactStore) Object(name string) (StoredObject, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	obj, ok := a.objects[name]
	if !ok {
		return StoredObject{}, false
	}
	return *obj, true
}

func (a *ArtifactStore) EnsureBucket(context.Context) error {
	return nil
}

func (a *ArtifactStore) Put(
	_ context.Context,
	name string,
	r io.Reader,
	_ int64,
) (string, error) {
	if a.PutErr != nil {
		return "", a.PutErr
	}
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return "", err
	}
	return a.Seed(name, data, a.Now()), nil
}

func (a *ArtifactStore) Get(
	_ context.Context,
	name string,
) (io.ReadCloser, error) {
	obj, ok := a.Object(name)
	if !ok {
		return nil, &meta.ErrNotFound{Type: "Artifact", ID: name}
	}
	return ioutil.NopCloser(bytes.NewReader(obj.Data)), nil
}

func (a *ArtifactStore) Stat(
	_ context.Context,
	name string,
) (artifacts.ObjectInfo, error) {
	obj, ok := a.Object(name)
	if !ok {
		return artifacts.ObjectInfo{},
			&meta.ErrNotFound{Type: "Artifact", ID: name}
	}
	return artifacts.ObjectInfo{
		Name:         name,
		Size:         int64(len(obj.Data)),
		LastModified: obj.LastModified,
		ETag:         obj.ETag,
	}, nil
}

func (a *ArtifactStore) PresignedURL(
	_ context.Context,
	name string,
	ttl time.Duration,
	downloadName string,
) (string, error) {
	if _, ok := a.Object(name); !ok {
		return "", &meta.ErrNotFound{Type: "Artifact", ID: name}
	}
	q := url.Values{}
	q.Set("ttl", ttl.String())
	if downloadName != "" {
		q.Set(
			"response-content-disposition",
			fmt.Sprintf("attachment;filename=%s", downloadName),
		)
	}
	return fmt.Sprintf("https://artifacts.example.com/%s?%s", name, q.Encode()),
		nil
}

func (a *ArtifactStore) Remove(_ context.Context, name string) error {
	if err, ok := a.RemoveErrs[name]; ok {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, name)
	return nil
}

func (a *ArtifactStore) List(
	_ context.Context,
	prefix string,
) ([]artifacts.ObjectInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	infos := []artifacts.ObjectInfo{}
	for name, obj := range a.objects {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		infos = append(infos, artifacts.ObjectInfo{
			Name:         name,
			Size:         int64(len(obj.Data)),
			LastModified: obj.LastModified,
			ETag:         obj.ETag,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos, nil
}
