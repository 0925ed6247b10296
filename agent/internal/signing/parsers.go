package signing

import (
	"strings"
)

const (
	exportSucceededMarker = "EXPORT SUCCEEDED"
	apksignerParseFailure = "APK error is not read properly. Update error " +
		"message parser"
)

// ParseXcodebuildError extracts the first error reported in xcodebuild output.
func ParseXcodebuildError(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if i := strings.Index(line, "error:"); i >= 0 {
			return strings.TrimSpace(line[i+len("error:"):])
		}
	}
	return "Archive export failed"
}

// ParseApksignerError extracts the message of the first exception reported in
// apksigner output.
func ParseApksignerError(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "Exception") {
			continue
		}
		i := strings.Index(line, ": ")
		if i < 0 {
			break
		}
		return strings.TrimSpace(line[i+2:])
	}
	return apksignerParseFailure
}

// parseExportOutput returns the export path reported by a successful
// xcodebuild -exportArchive invocation.
func parseExportOutput(output string) (string, error) {
	if !strings.Contains(output, exportSucceededMarker) {
		return "", &Error{
			Kind:   ErrKindExportFailed,
			Reason: "Archive export did not succeed",
		}
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	fields := strings.Split(strings.TrimSpace(lines[0]), " ")
	if len(fields) != 4 {
		return "", &Error{
			Kind:   ErrKindExportFailed,
			Reason: "Unexpected response from archive export",
		}
	}
	return fields[3], nil
}

// parseAuthority returns the leaf signing authority from codesign -dvv output.
func parseAuthority(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Authority=") {
			return strings.TrimPrefix(line, "Authority=")
		}
	}
	return ""
}

// parseIdentities returns the names of the valid identities listed by
// security find-identity -v.
func parseIdentities(output string) []string {
	identities := []string{}
	for _, line := range strings.Split(output, "\n") {
		start := strings.Index(line, `"`)
		end := strings.LastIndex(line, `"`)
		if start < 0 || end <= start {
			continue
		}
		identities = append(identities, line[start+1:end])
	}
	return identities
}

// matchIdentity picks the identity that best matches the current signer: an
// exact match, else the longest common prefix, else one containing the
// signer's team or organization portion.
func matchIdentity(signer string, identities []string) (string, bool) {
	if signer == "" {
		if len(identities) == 1 {
			return identities[0], true
		}
		return "", false
	}
	best, bestLen := "", 0
	for _, identity := range identities {
		if identity == signer {
			return identity, true
		}
		if l := commonPrefixLen(signer, identity); l > bestLen {
			best, bestLen = identity, l
		}
	}
	// A shared certificate type prefix alone, e.g. "iPhone Distribution: ",
	// is not a match.
	typeLen, owner := 0, signer
	if i := strings.Index(signer, ": "); i >= 0 {
		typeLen, owner = i+2, signer[i+2:]
	}
	if bestLen > typeLen {
		return best, true
	}
	for _, identity := range identities {
		if strings.Contains(identity, owner) {
			return identity, true
		}
	}
	return "", false
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
