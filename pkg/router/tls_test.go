package router

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	stdtls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	tlssec "mercator-hq/saturn/pkg/security/tls"
)

// writeServerKeyPair writes a fresh self-signed PEM pair to the given
// paths and returns the certificate serial so callers can tell rotated
// certificates apart.
func writeServerKeyPair(t *testing.T, certFile, keyFile string) *big.Int {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "router"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(certFile, certPEM, 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return serial
}

// servedSerial completes a TLS handshake against the router's listener
// and reports the serial of the certificate it presented.
func servedSerial(t *testing.T, addr string) *big.Int {
	t.Helper()
	conn, err := stdtls.Dial("tcp", addr, &stdtls.Config{
		InsecureSkipVerify: true,
		MinVersion:         stdtls.VersionTLS12,
	})
	if err != nil {
		t.Fatalf("tls dial: %v", err)
	}
	defer conn.Close()
	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		t.Fatal("no server certificate presented")
	}
	return certs[0].SerialNumber
}

func TestDistributedTLSListenerServesRotatedCertificate(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "router.crt")
	keyFile := filepath.Join(dir, "router.key")
	firstSerial := writeServerKeyPair(t, certFile, keyFile)

	layout, _ := newTestWorkspace(t)
	r, err := NewDistributed(DistributedConfig{
		Listen: ListenAddr{
			Network: "tcp",
			Addr:    "127.0.0.1:0",
			TLS: &tlssec.Config{
				Enabled:        true,
				CertFile:       certFile,
				KeyFile:        keyFile,
				ReloadInterval: "25ms",
			},
		},
	}, layout, testLogger(t))
	if err != nil {
		t.Fatalf("NewDistributed: %v", err)
	}
	defer r.Shutdown(context.Background())

	addr := r.Addr().String()
	if got := servedSerial(t, addr); got.Cmp(firstSerial) != 0 {
		t.Fatalf("served serial %v, want %v", got, firstSerial)
	}

	// Rotate the key pair on disk; the listener must pick it up without
	// a restart.
	time.Sleep(50 * time.Millisecond)
	secondSerial := writeServerKeyPair(t, certFile, keyFile)

	deadline := time.Now().Add(5 * time.Second)
	for {
		if got := servedSerial(t, addr); got.Cmp(secondSerial) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("listener kept serving the old certificate after rotation")
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestShutdownStopsCertificateReloader(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "router.crt")
	keyFile := filepath.Join(dir, "router.key")
	writeServerKeyPair(t, certFile, keyFile)

	layout, _ := newTestWorkspace(t)
	r, err := NewDistributed(DistributedConfig{
		Listen: ListenAddr{
			Network: "tcp",
			Addr:    "127.0.0.1:0",
			TLS: &tlssec.Config{
				Enabled:  true,
				CertFile: certFile,
				KeyFile:  keyFile,
			},
		},
	}, layout, testLogger(t))
	if err != nil {
		t.Fatalf("NewDistributed: %v", err)
	}
	if r.stopReloader == nil {
		t.Fatal("TLS listener started without a certificate reloader")
	}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
