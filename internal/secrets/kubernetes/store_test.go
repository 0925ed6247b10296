package kubernetes

import (
	"context"
	"testing"

	"github.com/krancour/secureimage/sdk/meta"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

const testNamespace = "secureimage"

func TestSecretName(t *testing.T) {
	require.Equal(t, "secureimage-ca.bc.gov.myapp", SecretName("ca.bc.gov.myapp"))
	require.Equal(t, "secureimage-play-store", SecretName("Play_Store"))
}

func TestStoreGetNotFound(t *testing.T) {
	s := NewStore(fake.NewSimpleClientset(), testNamespace)
	_, err := s.Get(context.Background(), "storePassword", "ca.bc.gov.myapp")
	require.Error(t, err)
	require.IsType(t, &meta.ErrNotFound{}, err)
}

func TestStorePutAndGet(t *testing.T) {
	kubeClient := fake.NewSimpleClientset()
	s := NewStore(kubeClient, testNamespace)
	ctx := context.Background()

	// Creates the secret
	require.NoError(t, s.Put(ctx, "alias", "ca.bc.gov.myapp", "key0"))
	// Updates the secret
	require.NoError(t, s.Put(ctx, "storePassword", "ca.bc.gov.myapp", "s3cr3t"))

	value, err := s.Get(ctx, "alias", "ca.bc.gov.myapp")
	require.NoError(t, err)
	require.Equal(t, "key0", value)
	value, err = s.Get(ctx, "storePassword", "ca.bc.gov.myapp")
	require.NoError(t, err)
	require.Equal(t, "s3cr3t", value)

	_, err = s.Get(ctx, "keyPassword", "ca.bc.gov.myapp")
	require.IsType(t, &meta.ErrNotFound{}, err)

	secret, err := kubeClient.CoreV1().Secrets(testNamespace).Get(
		ctx,
		"secureimage-ca.bc.gov.myapp",
		metav1.GetOptions{},
	)
	require.NoError(t, err)
	require.Len(t, secret.Data, 2)
	require.Equal(t, "credentials", secret.Labels[labelComponent])
}
