package commands

import (
	"fmt"
	"os"
	"slices"

	"github.com/aisgo/ais-workspace/middleware"
)

// SignHeadersCmd 生成一组身份头，便于 curl 调试
type SignHeadersCmd struct {
	Email  string `arg:"" help:"Principal email."`
	Name   string `help:"Display name." default:""`
	Secret string `help:"Signing secret; defaults to auth.signer.secret or auth.headers.secret." env:"WORKSPACE_AUTH_SIGNER_SECRET"`
	Issuer string `help:"Issuer written into the headers." default:"gateway"`
}

func (s *SignHeadersCmd) Run(globals *Globals) error {
	cfg, _, err := globals.load()
	if err != nil {
		return err
	}

	signerCfg := cfg.Auth.Signer
	if s.Secret != "" {
		signerCfg.Secret = s.Secret
	}
	if signerCfg.Secret == "" {
		signerCfg.Secret = cfg.Auth.Headers.Secret
	}
	if signerCfg.Issuer == "" {
		signerCfg.Issuer = s.Issuer
	}
	if signerCfg.Version == "" {
		signerCfg.Version = cfg.Auth.Headers.Version
	}

	values, err := middleware.NewAuthHeaderSigner(signerCfg).BuildHeaders(&middleware.UserInfo{
		Email:       s.Email,
		DisplayName: s.Name,
	})
	if err != nil {
		return err
	}

	headers := values.ToMap()
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(os.Stdout, "-H '%s: %s' ", k, headers[k])
	}
	fmt.Fprintln(os.Stdout)
	return nil
}
