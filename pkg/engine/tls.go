package engine

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/tlsconfig"
)

// newTLSClient builds an HTTP client for a TLS-secured daemon from the
// standard certificate layout under certPath: ca.pem, cert.pem and key.pem.
func newTLSClient(certPath string) (*http.Client, error) {
	cfg, err := tlsconfig.Client(tlsconfig.Options{
		CAFile:   filepath.Join(certPath, "ca.pem"),
		CertFile: filepath.Join(certPath, "cert.pem"),
		KeyFile:  filepath.Join(certPath, "key.pem"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS material from %s: %w", certPath, err)
	}
	return &http.Client{
		Transport:     &http.Transport{TLSClientConfig: cfg},
		CheckRedirect: client.CheckRedirect,
	}, nil
}
