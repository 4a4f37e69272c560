// Package registry resolves which registry endpoint a set of push
// credentials applies to.
package registry

import (
	"fmt"

	"github.com/distribution/reference"
)

// IndexServer is the endpoint Docker Hub credentials are keyed under. The
// engine matches credentials for docker.io images against this address, not
// against the registry's hostname.
const IndexServer = "https://index.docker.io/v1/"

// Extract returns the credential endpoint for an image reference. A
// reference without an explicit registry normalizes to Docker Hub and
// resolves to IndexServer; any other registry resolves to its domain,
// including a port when present.
func Extract(imageRef string) (string, error) {
	named, err := reference.ParseNormalizedNamed(imageRef)
	if err != nil {
		return "", fmt.Errorf("failed to parse image reference %q: %w", imageRef, err)
	}
	domain := reference.Domain(named)
	if domain == "docker.io" || domain == "registry-1.docker.io" {
		return IndexServer, nil
	}
	return domain, nil
}
