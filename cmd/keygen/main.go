package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"log"
	"os"
	"path/filepath"
)

// Generates the RSA keypair used to sign tool hand-off tickets. The
// private key stays with the signaling service; the public key is handed
// to tool backends so they can verify tickets offline.
func main() {
	var (
		privPath = flag.String("priv", "keys/ticket.pem", "private key output path")
		pubPath  = flag.String("pub", "keys/ticket.pub.pem", "public key output path")
		bits     = flag.Int("bits", 2048, "RSA key size")
	)
	flag.Parse()

	key, err := rsa.GenerateKey(rand.Reader, *bits)
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*privPath), 0o700); err != nil {
		log.Fatalf("Failed to create key directory: %v", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(*privPath, privPEM, 0o600); err != nil {
		log.Fatalf("Failed to write private key: %v", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		log.Fatalf("Failed to encode public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})
	if err := os.WriteFile(*pubPath, pubPEM, 0o644); err != nil {
		log.Fatalf("Failed to write public key: %v", err)
	}

	log.Printf("Wrote %s and %s", *privPath, *pubPath)
}
