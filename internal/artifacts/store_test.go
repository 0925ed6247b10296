package artifacts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsExpired(t *testing.T) {
	lastModified := time.Date(2020, time.March, 1, 12, 0, 0, 0, time.UTC)
	info := ObjectInfo{Name: "foo/app.zip", LastModified: lastModified}
	testCases := []struct {
		name           string
		expirationDays int
		now            time.Time
		expected       bool
	}{
		{
			name:           "fresh",
			expirationDays: 90,
			now:            lastModified.Add(time.Hour),
			expected:       false,
		},
		{
			name:           "one nanosecond before the boundary",
			expirationDays: 90,
			now:            lastModified.Add(90*24*time.Hour - time.Nanosecond),
			expected:       false,
		},
		{
			name:           "exactly at the boundary",
			expirationDays: 90,
			now:            lastModified.Add(90 * 24 * time.Hour),
			expected:       true,
		},
		{
			name:           "past the boundary",
			expirationDays: 1,
			now:            lastModified.Add(48 * time.Hour),
			expected:       true,
		},
		{
			name:           "expiry disabled",
			expirationDays: 0,
			now:            lastModified.Add(10000 * time.Hour),
			expected:       false,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(
				t,
				testCase.expected,
				IsExpired(info, testCase.expirationDays, testCase.now),
			)
		})
	}
}

func TestObjectName(t *testing.T) {
	require.Equal(t, "job-1/app.apk", ObjectName("job-1", "app.apk"))
	require.Equal(t, "job-1/app.apk", ObjectName("job-1", "../../app.apk"))
}

func TestSignedDownloadName(t *testing.T) {
	require.Equal(t, "app-signed.ipa", SignedDownloadName("job-1/app.ipa"))
	require.Equal(t, "build-signed.zip", SignedDownloadName("job-1/build.zip"))
	require.Equal(t, "build-signed.zip", SignedDownloadName("job-1/build"))
}
