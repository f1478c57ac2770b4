package database

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestCA(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "scylla-ca-test"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	return path
}

func baseConfig() ScyllaKeyspaceConfig {
	return ScyllaKeyspaceConfig{
		Hosts:       []string{"127.0.0.1"},
		Keyspace:    "koursa_trips",
		Username:    "trips_role",
		Password:    "secret",
		Timeout:     5 * time.Second,
		NumConns:    20,
		Consistency: gocql.Quorum,
	}
}

// Le CA déclaré doit réellement finir dans la config TLS du cluster, sinon
// la connexion part en clair en silence
func TestCreateScyllaClusterWiresTLS(t *testing.T) {
	config := baseConfig()
	config.SSLEnabled = true
	config.CACertPath = writeTestCA(t)

	cluster, err := createScyllaCluster(config)
	require.NoError(t, err)

	require.NotNil(t, cluster.SslOpts)
	require.NotNil(t, cluster.SslOpts.Config)
	assert.NotNil(t, cluster.SslOpts.Config.RootCAs)
}

func TestCreateScyllaClusterWithoutTLS(t *testing.T) {
	cluster, err := createScyllaCluster(baseConfig())
	require.NoError(t, err)

	assert.Nil(t, cluster.SslOpts)
	assert.Equal(t, "koursa_trips", cluster.Keyspace)
}

func TestCreateScyllaClusterUnreadableCA(t *testing.T) {
	config := baseConfig()
	config.SSLEnabled = true
	config.CACertPath = filepath.Join(t.TempDir(), "absent.pem")

	_, err := createScyllaCluster(config)
	assert.Error(t, err)
}
