package kubernetes

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/krancour/secureimage/internal/secrets"
	"github.com/krancour/secureimage/sdk/meta"
	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	labelComponent = "secureimage.io/component"
	labelAccount   = "secureimage.io/account"
	secretPrefix   = "secureimage-"
)

var invalidNameChars = regexp.MustCompile(`[^a-z0-9.-]+`)

type store struct {
	kubeClient kubernetes.Interface
	namespace  string
}

// NewStore returns a secrets.Store that keeps the values belonging to each
// account in a single Kubernetes Secret in the specified namespace.
func NewStore(
	kubeClient kubernetes.Interface,
	namespace string,
) secrets.Store {
	return &store{
		kubeClient: kubeClient,
		namespace:  namespace,
	}
}

// SecretName returns the name of the Kubernetes Secret holding the values
// belonging to the specified account.
func SecretName(account string) string {
	name := invalidNameChars.ReplaceAllString(strings.ToLower(account), "-")
	name = strings.Trim(name, ".-")
	name = secretPrefix + name
	if len(name) > 253 {
		name = name[:253]
	}
	return name
}

func (s *store) Get(
	ctx context.Context,
	key string,
	account string,
) (string, error) {
	secret, err := s.kubeClient.CoreV1().Secrets(s.namespace).Get(
		ctx,
		SecretName(account),
		metav1.GetOptions{},
	)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return "", &meta.ErrNotFound{
				Type: "Secret",
				ID:   fmt.Sprintf("%s/%s", account, key),
			}
		}
		return "", errors.Wrapf(
			err,
			"error getting secret %q in namespace %q",
			SecretName(account),
			s.namespace,
		)
	}
	value, ok := secret.Data[key]
	if !ok {
		return "", &meta.ErrNotFound{
			Type: "Secret",
			ID:   fmt.Sprintf("%s/%s", account, key),
		}
	}
	return string(value), nil
}

func (s *store) Put(
	ctx context.Context,
	key string,
	account string,
	value string,
) error {
	secretsClient := s.kubeClient.CoreV1().Secrets(s.namespace)
	name := SecretName(account)
	secret, err := secretsClient.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if !apierrors.IsNotFound(err) {
			return errors.Wrapf(
				err,
				"error getting secret %q in namespace %q",
				name,
				s.namespace,
			)
		}
		if _, err = secretsClient.Create(
			ctx,
			&corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{
					Name:      name,
					Namespace: s.namespace,
					Labels: map[string]string{
						labelComponent: "credentials",
						labelAccount:   strings.TrimPrefix(name, secretPrefix),
					},
				},
				Type: corev1.SecretTypeOpaque,
				Data: map[string][]byte{
					key: []byte(value),
				},
			},
			metav1.CreateOptions{},
		); err != nil {
			return errors.Wrapf(
				err,
				"error creating secret %q in namespace %q",
				name,
				s.namespace,
			)
		}
		return nil
	}
	if secret.Data == nil {
		secret.Data = map[string][]byte{}
	}
	secret.Data[key] = []byte(value)
	if _, err = secretsClient.Update(
		ctx,
		secret,
		metav1.UpdateOptions{},
	); err != nil {
		return errors.Wrapf(
			err,
			"error updating secret %q in namespace %q",
			name,
			s.namespace,
		)
	}
	return nil
}
