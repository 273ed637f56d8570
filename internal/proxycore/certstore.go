// Package proxycore wires the Mediation Core to the two spec-mandated
// listeners (§6): a plaintext HTTP listener and a TLS listener that picks a
// per-hostname leaf certificate by SNI. Certificate minting itself stays
// external per §1's PKI non-goal — this package only loads pre-minted
// leaf/key pairs from a directory.
package proxycore

import (
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"
)

// CertStore loads and caches per-hostname leaf certificates from a
// directory laid out as "<cert-dir>/<hostname>.crt" / "<hostname>.key".
type CertStore struct {
	dir string

	mu    sync.RWMutex
	certs map[string]*tls.Certificate
}

// NewCertStore returns a CertStore rooted at dir. Certificates are loaded
// lazily on first SNI lookup and cached for the process lifetime.
func NewCertStore(dir string) *CertStore {
	return &CertStore{dir: dir, certs: map[string]*tls.Certificate{}}
}

// GetCertificate implements tls.Config.GetCertificate: it resolves the
// requested SNI hostname to a cached or freshly loaded leaf certificate.
func (s *CertStore) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	host := hello.ServerName
	if host == "" {
		return nil, fmt.Errorf("no SNI hostname presented")
	}
	return s.load(host)
}

func (s *CertStore) load(host string) (*tls.Certificate, error) {
	s.mu.RLock()
	cert, ok := s.certs[host]
	s.mu.RUnlock()
	if ok {
		return cert, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cert, ok := s.certs[host]; ok {
		return cert, nil
	}

	crtPath := filepath.Join(s.dir, host+".crt")
	keyPath := filepath.Join(s.dir, host+".key")
	loaded, err := tls.LoadX509KeyPair(crtPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load certificate for host %q: %w", host, err)
	}
	s.certs[host] = &loaded
	return &loaded, nil
}
