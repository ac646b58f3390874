package bus

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildTLSConfigNoMaterialReturnsNil(t *testing.T) {
	tlsCfg, err := buildTLSConfig(Config{Host: "broker", Port: 1883})
	if err != nil {
		t.Fatalf("buildTLSConfig: %v", err)
	}
	if tlsCfg != nil {
		t.Errorf("buildTLSConfig() = %+v, want nil for plaintext config", tlsCfg)
	}
}

func TestBuildTLSConfigPartialTripletErrors(t *testing.T) {
	_, err := buildTLSConfig(Config{Host: "broker", Port: 8883, CAFile: "/tmp/ca.pem"})
	if err == nil {
		t.Fatal("expected error for partial TLS material")
	}
}

func TestBuildTLSConfigWrongPortErrors(t *testing.T) {
	dir := t.TempDir()
	ca, cert, key := writePEMFixtures(t, dir)

	_, err := buildTLSConfig(Config{Host: "broker", Port: 1883, CAFile: ca, CertFile: cert, KeyFile: key})
	if err == nil {
		t.Fatal("expected error for non-TLS port with TLS material set")
	}
}

func TestBuildTLSConfigInvalidCAFile(t *testing.T) {
	dir := t.TempDir()
	_, cert, key := writePEMFixtures(t, dir)
	ca := filepath.Join(dir, "bad-ca.pem")
	if err := os.WriteFile(ca, []byte("not a cert"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := buildTLSConfig(Config{Host: "broker", Port: 8883, CAFile: ca, CertFile: cert, KeyFile: key})
	if err == nil {
		t.Fatal("expected error for invalid cafile contents")
	}
}

// writePEMFixtures пишет один и тот же PEM-сертификат во все три файла.
// Содержимое cert/key ни одним тестом не разбирается: проверка порта
// идёт до чтения файлов, а в тесте невалидного CA ошибка возникает на
// cafile-шаге, до загрузки пары cert/key.
func writePEMFixtures(t *testing.T, dir string) (ca, cert, key string) {
	t.Helper()
	ca = filepath.Join(dir, "ca.pem")
	cert = filepath.Join(dir, "cert.pem")
	key = filepath.Join(dir, "key.pem")
	for _, f := range []string{ca, cert, key} {
		if err := os.WriteFile(f, []byte(testPEM), 0o644); err != nil {
			t.Fatalf("WriteFile(%s): %v", f, err)
		}
	}
	return ca, cert, key
}

const testPEM = `-----BEGIN CERTIFICATE-----
MIIBhTCCASugAwIBAgIQIadORamzCQlYNRYLjXCPDDAKBggqhkjOPQQDAjASMRAw
DgYDVQQKEwdBY21lIENvMB4XDTIwMDEwMTAwMDAwMFoXDTMwMDEwMTAwMDAwMFow
EjEQMA4GA1UEChMHQWNtZSBDbzBZMBMGByqGSM49AgEGCCqGSM49AwEHA0IABDIq
QKXi3Ev+3OLbp+l3d1SdWXCLsTHFnQbhj+tZ5+E0XBlmEDADBUCHdsDrd+8MqcSC
ICmEzPKCfVAB1qZ2tDejQjBAMA4GA1UdDwEB/wQEAwICpDAPBgNVHRMBAf8EBTAD
AQH/MB0GA1UdDgQWBBQy9sMAFsjDC4hQsOUQQ2ncH9TyTzAKBggqhkjOPQQDAgNI
ADBFAiEAmE3tTb5j8R/4OqqjgnPRXpHzqlYGWhzD/t5BpDKe43ICIGnvuqNcpuDA
5i2jL8GMj3JYhWnYlt4mr1CZ1NhDo9CN
-----END CERTIFICATE-----
`
