/*
Package tls provides TLS and mTLS configuration for the worker listener.

# TLS Server Configuration

Enable TLS 1.3 for the worker port:

	cfg := &tls.Config{
		Enabled:    true,
		CertFile:   "/etc/saturn/certs/router.crt",
		KeyFile:    "/etc/saturn/certs/router.key",
		MinVersion: "1.3",
	}

	tlsConfig, err := cfg.ToTLSConfig()
	if err != nil {
		log.Fatal(err)
	}

# Mutual TLS (mTLS)

Require worker client certificates:

	cfg := &tls.Config{
		Enabled:  true,
		CertFile: "/etc/saturn/certs/router.crt",
		KeyFile:  "/etc/saturn/certs/router.key",
		MTLS: MTLSConfig{
			Enabled:      true,
			ClientCAFile: "/etc/saturn/certs/worker-ca.pem",
		},
	}

# Fingerprint Allowlist

On top of CA verification, connections can be restricted to an explicit
set of client certificates by SHA-256 fingerprint, globally or per shard.
Fingerprints are accepted in the openssl "SHA256 Fingerprint=AB:CD:..."
form or as bare hex; the canonical form is 64 lowercase hex characters.

# Certificate Auto-Reload

Reload certificates without restarting the router:

	reloader := NewCertificateReloader(certFile, keyFile, 5*time.Minute, log)
	if err := reloader.Start(ctx); err != nil {
		log.Fatal(err)
	}

	tlsConfig.GetCertificate = reloader.GetCertificateFunc()
*/
package tls
