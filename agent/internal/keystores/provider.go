package keystores

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"

	"github.com/golang/glog"
	"github.com/krancour/secureimage/internal/crypto"
	"github.com/krancour/secureimage/internal/file"
	"github.com/krancour/secureimage/internal/locks"
	"github.com/krancour/secureimage/internal/secrets"
	"github.com/krancour/secureimage/internal/tools"
	"github.com/krancour/secureimage/sdk/meta"
	"github.com/pkg/errors"
)

// RecordKey is the key under which a keystore and its credentials are held in
// the secret store. The account is the bundle identifier the keystore belongs
// to. The secret store is the system of record; files in the keystore
// directory are local copies of it.
const RecordKey = "keystore"

const passwordBytes = 16

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Keystore locates a Java keystore and the credentials needed to sign with it.
type Keystore struct {
	Path          string
	Alias         string
	StorePassword string
	KeyPassword   string
}

// record is what is persisted in the secret store. Data is the keystore file
// itself.
type record struct {
	Alias         string `json:"alias"`
	StorePassword string `json:"storePassword"`
	KeyPassword   string `json:"keyPassword"`
	Data          []byte `json:"data"`
}

// Provider hands out the signing keystore for an Android application,
// creating one the first time an application is signed.
type Provider interface {
	Get(ctx context.Context, bundleID string) (Keystore, error)
}

type provider struct {
	dir     string
	secrets secrets.Store
	runner  tools.Runner
	locker  locks.Locker
}

// NewProvider returns a Provider that keeps keystores and their credentials
// in the specified secret store and local copies of the keystores in dir.
// Creation of a keystore for any one bundle identifier is serialized using
// the specified locker.
func NewProvider(
	dir string,
	secretStore secrets.Store,
	runner tools.Runner,
	locker locks.Locker,
) Provider {
	return &provider{
		dir:     dir,
		secrets: secretStore,
		runner:  runner,
		locker:  locker,
	}
}

func (p *provider) Get(ctx context.Context, bundleID string) (Keystore, error) {
	unlock, err := p.locker.Lock(ctx, "keystore-"+bundleID)
	if err != nil {
		return Keystore{}, errors.Wrapf(
			err,
			"error obtaining keystore lock for %s",
			bundleID,
		)
	}
	defer unlock()

	path := filepath.Join(
		p.dir,
		unsafeFileChars.ReplaceAllString(bundleID, "_")+".jks",
	)

	value, err := p.secrets.Get(ctx, RecordKey, bundleID)
	if err == nil {
		return p.load(bundleID, path, value)
	}
	if _, ok := errors.Cause(err).(*meta.ErrNotFound); !ok {
		return Keystore{}, errors.Wrapf(
			err,
			"error retrieving keystore for %s",
			bundleID,
		)
	}
	// A local keystore nobody holds the credentials for must not be replaced
	// by a new key.
	if file.Exists(path) {
		return Keystore{}, errors.Errorf(
			"keystore %s exists but it is not in the secret store",
			path,
		)
	}
	return p.create(ctx, bundleID, path)
}

// load writes the stored keystore to path, unless an identical copy is
// already there.
func (p *provider) load(
	bundleID string,
	path string,
	value string,
) (Keystore, error) {
	rec := record{}
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return Keystore{}, errors.Wrapf(
			err,
			"error decoding stored keystore for %s",
			bundleID,
		)
	}
	if len(rec.Data) == 0 {
		return Keystore{}, errors.Errorf(
			"stored keystore for %s is empty",
			bundleID,
		)
	}
	ks := Keystore{
		Path:          path,
		Alias:         rec.Alias,
		StorePassword: rec.StorePassword,
		KeyPassword:   rec.KeyPassword,
	}
	if existing, err := ioutil.ReadFile(path); err == nil &&
		bytes.Equal(existing, rec.Data) {
		return ks, nil
	}
	glog.Infof("writing local copy of keystore for %s", bundleID)
	if err := writeFile(p.dir, path, rec.Data); err != nil {
		return ks, errors.Wrapf(err, "error writing keystore %s", path)
	}
	return ks, nil
}

func (p *provider) create(
	ctx context.Context,
	bundleID string,
	path string,
) (Keystore, error) {
	ks := Keystore{
		Path:  path,
		Alias: bundleID,
	}
	var err error
	if ks.StorePassword, err = crypto.NewToken(passwordBytes); err != nil {
		return ks, errors.Wrap(err, "error generating keystore password")
	}
	if ks.KeyPassword, err = crypto.NewToken(passwordBytes); err != nil {
		return ks, errors.Wrap(err, "error generating key password")
	}
	if err = os.MkdirAll(p.dir, 0700); err != nil {
		return ks, errors.Wrapf(err, "error creating keystore directory %s", p.dir)
	}

	glog.Infof("creating keystore for %s", bundleID)
	if _, err = p.runner.Run(
		ctx,
		tools.Command{
			Name: "keytool",
			Args: []string{
				"-genkeypair",
				"-keystore", path,
				"-storetype", "JKS",
				"-alias", ks.Alias,
				"-keyalg", "RSA",
				"-keysize", "2048",
				"-validity", "10000",
				"-dname", fmt.Sprintf("CN=%s", bundleID),
				"-storepass:env", "KS_PASS",
				"-keypass:env", "KEY_PASS",
			},
			Env: []string{
				"KS_PASS=" + ks.StorePassword,
				"KEY_PASS=" + ks.KeyPassword,
			},
		},
	); err != nil {
		return ks, errors.Wrapf(err, "error creating keystore for %s", bundleID)
	}

	if err = p.store(ctx, bundleID, ks); err != nil {
		// A keystore that isn't on record is never used.
		if rmErr := os.Remove(path); rmErr != nil {
			glog.Errorf("error removing keystore %s: %s", path, rmErr)
		}
		return ks, err
	}
	return ks, nil
}

func (p *provider) store(
	ctx context.Context,
	bundleID string,
	ks Keystore,
) error {
	data, err := ioutil.ReadFile(ks.Path)
	if err != nil {
		return errors.Wrapf(err, "error reading keystore %s", ks.Path)
	}
	value, err := json.Marshal(
		record{
			Alias:         ks.Alias,
			StorePassword: ks.StorePassword,
			KeyPassword:   ks.KeyPassword,
			Data:          data,
		},
	)
	if err != nil {
		return errors.Wrapf(err, "error encoding keystore for %s", bundleID)
	}
	return errors.Wrapf(
		p.secrets.Put(ctx, RecordKey, bundleID, string(value)),
		"error storing keystore for %s",
		bundleID,
	)
}

// writeFile replaces path with data by way of a temporary file in dir.
func writeFile(dir string, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(dir, ".keystore-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // nolint: errcheck
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
