// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package tls

import (
	cryptotls "crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymcrm/gymcrm/pkg/errutil"
)

func TestGenerateCA(t *testing.T) {
	ca, err := GenerateCA("test")
	require.NoError(t, err)

	assert.True(t, ca.Certificate.IsCA)
	assert.Equal(t, "GymCRM CA test", ca.Certificate.Subject.CommonName)
	assert.NotZero(t, ca.Certificate.KeyUsage&x509.KeyUsageCertSign)
	assert.True(t, ca.Certificate.NotAfter.After(ca.Certificate.NotBefore.AddDate(9, 0, 0)))
}

func TestGenerateServerCert(t *testing.T) {
	ca, err := GenerateCA("test")
	require.NoError(t, err)

	sc, err := GenerateServerCert(ca, ServerName, []string{"auth.gym.internal", "10.0.0.7", "localhost", ""})
	require.NoError(t, err)

	assert.Equal(t, "gymcrm-server", sc.Certificate.Subject.CommonName)
	assert.ElementsMatch(t, []string{"localhost", "auth.gym.internal"}, sc.Certificate.DNSNames)
	require.Len(t, sc.Certificate.IPAddresses, 2)
	assert.True(t, sc.Certificate.IPAddresses[1].Equal(net.ParseIP("10.0.0.7")))
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}, sc.Certificate.ExtKeyUsage)

	roots := x509.NewCertPool()
	roots.AddCert(ca.Certificate)
	_, err = sc.Certificate.Verify(x509.VerifyOptions{
		Roots:     roots,
		DNSName:   "auth.gym.internal",
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	require.NoError(t, err)
}

func TestSaveAndLoadCA(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	ca, err := GenerateCA("test")
	require.NoError(t, err)
	require.NoError(t, SaveCertificates(dir, ca, nil))

	info, err := os.Stat(filepath.Join(dir, CAKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadCA(dir)
	require.NoError(t, err)
	assert.True(t, loaded.Certificate.Equal(ca.Certificate))
	assert.True(t, loaded.PrivateKey.Equal(ca.PrivateKey))
}

func TestLoadCA_Errors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := LoadCA(t.TempDir())
		errutil.AssertErrorCode(t, err, "TLS_LOAD_FAILED")
	})

	t.Run("not PEM", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, CAFile), []byte("garbage"), 0o600))
		_, err := LoadCA(dir)
		errutil.AssertErrorCode(t, err, "TLS_LOAD_FAILED")
	})
}

func TestServerConfig_Bootstraps(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")

	cfg, err := ServerConfig(dir, []string{"auth.gym.internal"})
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(cryptotls.VersionTLS12), cfg.MinVersion)

	for _, name := range []string{CAFile, CAKeyFile, "server.crt", "server.key"} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}

	again, err := ServerConfig(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.Certificates[0].Certificate[0], again.Certificates[0].Certificate[0], "existing pair is reused")
}

func TestClientConfig_TrustsServer(t *testing.T) {
	dir := t.TempDir()
	serverCfg, err := ServerConfig(dir, nil)
	require.NoError(t, err)
	clientCfg, err := ClientConfig(dir)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(serverCfg.Certificates[0].Certificate[0])
	require.NoError(t, err)
	_, err = leaf.Verify(x509.VerifyOptions{Roots: clientCfg.RootCAs, DNSName: "localhost"})
	require.NoError(t, err)
}

func TestClientConfig_MissingCA(t *testing.T) {
	_, err := ClientConfig(t.TempDir())
	errutil.AssertErrorCode(t, err, "TLS_LOAD_FAILED")
}
