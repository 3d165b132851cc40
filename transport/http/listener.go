package http

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"

	"github.com/gofiber/fiber/v3"
)

// createListener 在 fx OnStart 中同步绑定端口，绑定失败时启动直接报错
// 配置了 CertClientFile 时要求并校验客户端证书（网关 mTLS）
func createListener(addr string, cfg fiber.ListenConfig) (net.Listener, error) {
	network := cfg.ListenerNetwork
	if network == "" {
		network = "tcp4"
	}

	if cfg.CertFile == "" || cfg.CertKeyFile == "" {
		return net.Listen(network, addr)
	}

	tlsConfig, err := serverTLSConfig(cfg)
	if err != nil {
		return nil, err
	}
	return tls.Listen(network, addr, tlsConfig)
}

func serverTLSConfig(cfg fiber.ListenConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.CertKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls certificate: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if cfg.TLSMinVersion > 0 {
		tlsConfig.MinVersion = cfg.TLSMinVersion
	}

	if cfg.CertClientFile != "" {
		pem, err := os.ReadFile(cfg.CertClientFile)
		if err != nil {
			return nil, fmt.Errorf("read client ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("client ca %s contains no certificates", cfg.CertClientFile)
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsConfig, nil
}
