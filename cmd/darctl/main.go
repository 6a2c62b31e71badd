// The darctl binary is a debugging tool for the delegated account
// recovery protocol: mint a recovery token, validate a countersigned
// token, or dump a provider's published configuration.
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"delegatedrecovery/internal/config"
	"delegatedrecovery/internal/configfetch"
	"delegatedrecovery/internal/keys"
	"delegatedrecovery/internal/log"
	"delegatedrecovery/internal/recovery"
)

func main() {
	app := &cli.App{
		Name:     "darctl",
		Usage:    "Inspect and exercise the delegated account recovery protocol.",
		HideHelp: true,
		Commands: []*cli.Command{
			{
				Name:      "mint",
				Category:  "Tokens",
				Usage:     "Mint a signed recovery token.",
				ArgsUsage: "<signing-key.pem>",
				Action:    mintToken,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "issuer", Required: true},
					&cli.StringFlag{Name: "audience", Required: true},
					&cli.StringFlag{Name: "data", Usage: "Opaque payload to embed, as a UTF-8 string."},
					&cli.StringFlag{Name: "binding", Usage: "Channel-binding bytes, as a UTF-8 string."},
					&cli.IntFlag{Name: "options", Value: 0},
				},
			},
			{
				Name:      "validate",
				Category:  "Tokens",
				Usage:     "Validate a countersigned token.",
				ArgsUsage: "<encoded-token>",
				Action:    validateToken,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "issuer", Required: true},
					&cli.StringFlag{Name: "audience", Required: true},
					&cli.StringFlag{Name: "binding", Usage: "Expected channel-binding bytes, as a UTF-8 string."},
					&cli.StringSliceFlag{Name: "key-base64", Usage: "A base64 SubjectPublicKeyInfo countersigning key; repeat for key rotation."},
					&cli.DurationFlag{Name: "skew", Value: time.Hour},
				},
			},
			{
				Name:      "config",
				Category:  "Configuration",
				Usage:     "Fetch and print a provider's published configuration.",
				ArgsUsage: "<origin>",
				Action:    dumpConfig,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Value: "ap", Usage: "'ap' or 'rp'."},
				},
			},
			{
				Name:      "genkey",
				Category:  "Keys",
				Usage:     "Generate a P-256 key pair and print it as PEM.",
				ArgsUsage: " ",
				Action:    genKey,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func mintToken(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.ShowSubcommandHelp(c)
	}
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	key, err := keys.ParsePrivatePEM(pemBytes)
	if err != nil {
		return err
	}
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return err
	}
	rt, err := recovery.New(key, id, byte(c.Int("options")), c.String("issuer"), c.String("audience"), []byte(c.String("data")), []byte(c.String("binding")))
	if err != nil {
		return err
	}
	fmt.Printf("id:      %s\n", hex.EncodeToString(id[:]))
	fmt.Printf("encoded: %s\n", rt.Encoded())
	return nil
}

func validateToken(c *cli.Context) error {
	encoded := c.Args().First()
	if encoded == "" {
		return cli.ShowSubcommandHelp(c)
	}
	var pubKeys []*ecdsa.PublicKey
	for _, s := range c.StringSlice("key-base64") {
		k, err := keys.ParsePublicBase64(s)
		if err != nil {
			return fmt.Errorf("key-base64 %q: %w", s, err)
		}
		pubKeys = append(pubKeys, k)
	}
	ct, err := recovery.Validate(encoded, c.String("issuer"), c.String("audience"), []byte(c.String("binding")), c.Duration("skew"), pubKeys)
	if err != nil {
		return err
	}
	id := ct.ID()
	fmt.Printf("id:              %s\n", hex.EncodeToString(id[:]))
	fmt.Printf("issuedTime:      %s\n", ct.IssuedTime())
	fmt.Printf("innerTokenHash:  %s\n", ct.InnerTokenHash())
	return nil
}

func dumpConfig(c *cli.Context) error {
	origin := c.Args().First()
	if origin == "" {
		return cli.ShowSubcommandHelp(c)
	}
	ct := configfetch.AccountProvider
	if c.String("type") == "rp" {
		ct = configfetch.RecoveryProvider
	}
	f, err := configfetch.New(&http.Client{Timeout: 10 * time.Second}, 1)
	if err != nil {
		return err
	}
	cfg, err := f.Fetch(context.Background(), origin, ct)
	if err != nil {
		return err
	}
	var b []byte
	switch v := cfg.(type) {
	case *config.AccountProviderConfiguration:
		b, err = json.MarshalIndent(v, "", "  ")
	case *config.RecoveryProviderConfiguration:
		b, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func genKey(c *cli.Context) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	priv, err := keys.MarshalPrivatePEM(key)
	if err != nil {
		return err
	}
	pub, err := keys.MarshalPublicBase64(&key.PublicKey)
	if err != nil {
		return err
	}
	fmt.Print(string(priv))
	fmt.Printf("# public key (base64 SubjectPublicKeyInfo): %s\n", pub)
	return nil
}
