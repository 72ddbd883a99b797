/*
Package security groups transport security for the worker listener.

# TLS Configuration

Configure TLS for the worker port:

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

# Client Certificate Allowlisting

Restrict which workers may connect by certificate fingerprint:

	allow, err := tls.NewAllowlist(
		[]string{"SHA256 Fingerprint=AB:CD:..."},
		map[uint32][]string{2: {"ef01..."}},
	)
	if err != nil {
		log.Fatal(err)
	}

	ok := allow.Allowed(shardID, peerCert)
*/
package security
