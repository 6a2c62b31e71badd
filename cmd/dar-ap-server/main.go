// The dar-ap-server binary runs the account-provider side of the
// delegated account recovery protocol: it publishes its own configuration
// document and accepts save-token/token-status callbacks from recovery
// providers.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"delegatedrecovery/internal/config"
	"delegatedrecovery/internal/keys"
	"delegatedrecovery/internal/log"
	"delegatedrecovery/internal/provider"
	"delegatedrecovery/internal/record"
)

var (
	flagAddress              string
	flagIssuer               string
	flagSaveTokenReturn      string
	flagRecoverAccountReturn string
	flagPrivacyPolicy        string
	flagIcon152px            string
	flagSigningKeys          cli.StringSlice
	flagTLSCert              string
	flagTLSKey               string
	flagAutocertDomain       string
	flagLogLevel             int
)

func main() {
	app := &cli.App{
		Name:      "dar-ap-server",
		Usage:     "Run the delegated account recovery account-provider server",
		HideHelp:  true,
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "address",
				Aliases:     []string{"addr"},
				Value:       "127.0.0.1:8443",
				Usage:       "The local address to use.",
				EnvVars:     []string{"DAR_AP_ADDRESS"},
				Destination: &flagAddress,
			},
			&cli.StringFlag{
				Name:        "issuer",
				Usage:       "This provider's own origin, e.g. https://ap.example.",
				EnvVars:     []string{"DAR_AP_ISSUER"},
				Destination: &flagIssuer,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "save-token-return",
				Usage:       "The URL recovery providers redirect to after a save-token request.",
				Destination: &flagSaveTokenReturn,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "recover-account-return",
				Usage:       "The URL recovery providers redirect to after a recover-account request.",
				Destination: &flagRecoverAccountReturn,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "privacy-policy",
				Usage:       "The URL of this provider's privacy policy.",
				Destination: &flagPrivacyPolicy,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "icon-152px",
				Value:       "",
				Usage:       "The URL of a 152x152 icon for this provider.",
				Destination: &flagIcon152px,
			},
			&cli.StringSliceFlag{
				Name:        "signing-key-base64",
				Usage:       "A base64 SubjectPublicKeyInfo public key published alongside this provider's current token-signing key; repeat for rotation.",
				Destination: &flagSigningKeys,
			},
			&cli.StringFlag{
				Name:        "tlscert",
				Usage:       "The name of the `FILE` containing the TLS cert to use.",
				TakesFile:   true,
				Destination: &flagTLSCert,
			},
			&cli.StringFlag{
				Name:        "tlskey",
				Usage:       "The name of the `FILE` containing the TLS private key to use.",
				Destination: &flagTLSKey,
			},
			&cli.StringFlag{
				Name:        "autocert-domain",
				Usage:       "Use autocert (letsencrypt.org) to get TLS credentials for this domain.",
				EnvVars:     []string{"DAR_AP_AUTOCERT_DOMAIN"},
				Destination: &flagAutocertDomain,
			},
			&cli.IntFlag{
				Name:        "verbose",
				Aliases:     []string{"v"},
				Value:       2,
				DefaultText: "2 (info)",
				Usage:       "The level of logging verbosity: 1:Error 2:Info 3:Debug",
				Destination: &flagLogLevel,
			},
		},
		Action: runServer,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(c *cli.Context) error {
	log.Level = flagLogLevel

	signingKeyPath := c.Args().First()
	if signingKeyPath == "" {
		log.Fatal("usage: dar-ap-server [flags] <signing-key.pem>")
	}
	pemBytes, err := os.ReadFile(signingKeyPath)
	if err != nil {
		return err
	}
	signKey, err := keys.ParsePrivatePEM(pemBytes)
	if err != nil {
		return err
	}
	signPub, err := keys.MarshalPublicBase64(&signKey.PublicKey)
	if err != nil {
		return err
	}

	publishedKeys := append([]string{signPub}, flagSigningKeys.Value()...)
	cfg := config.NewAccountProviderConfiguration(
		flagIssuer, flagSaveTokenReturn, flagRecoverAccountReturn,
		flagPrivacyPolicy, flagIcon152px, publishedKeys,
	)

	store := record.NewMemStore()
	s := provider.New(flagAddress, cfg, store)

	done := make(chan struct{})
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Infof("Received signal %d (%s)", sig, sig)
		if err := s.Shutdown(); err != nil {
			log.Errorf("s.Shutdown: %v", err)
		}
		close(done)
	}()

	switch {
	case flagTLSCert != "":
		log.Infof("Starting account-provider server with TLS on %s", flagAddress)
		if err := s.RunWithTLS(flagTLSCert, flagTLSKey); err != http.ErrServerClosed {
			log.Fatalf("s.RunWithTLS: %v", err)
		}
	case flagAutocertDomain != "":
		log.Infof("Starting account-provider server with autocert for %s", flagAutocertDomain)
		if err := s.RunWithAutocert(flagAutocertDomain, "autocert-cache"); err != http.ErrServerClosed {
			log.Fatalf("s.RunWithAutocert: %v", err)
		}
	default:
		log.Infof("Starting account-provider server WITHOUT TLS on %s", flagAddress)
		if err := s.Run(); err != http.ErrServerClosed {
			log.Fatalf("s.Run: %v", err)
		}
	}
	<-done
	log.Info("Server exited cleanly.")
	return nil
}
