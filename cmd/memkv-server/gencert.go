package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memkv/internal/infra/tlsroots"
)

// genCertCommand writes a self-signed certificate for development setups.
func genCertCommand() *cli.Command {
	return &cli.Command{
		Name:  "gen-cert",
		Usage: "Write a self-signed TLS certificate and key",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "cert", Value: "memkv.crt", Usage: "certificate output file"},
			&cli.StringFlag{Name: "key", Value: "memkv.key", Usage: "private key output file"},
			&cli.StringSliceFlag{
				Name:  "host",
				Value: cli.NewStringSlice("localhost", "127.0.0.1"),
				Usage: "DNS name or IP the certificate is valid for (repeatable)",
			},
			&cli.DurationFlag{Name: "valid-for", Value: 365 * 24 * time.Hour, Usage: "certificate lifetime"},
		},
		Action: func(c *cli.Context) error {
			certFile, keyFile := c.String("cert"), c.String("key")
			if err := tlsroots.WriteSelfSigned(certFile, keyFile, c.StringSlice("host"), c.Duration("valid-for")); err != nil {
				return err
			}
			_, err := fmt.Fprintf(c.App.Writer, "wrote %s and %s\n", certFile, keyFile)
			return err
		},
	}
}
