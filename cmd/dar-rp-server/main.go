// The dar-rp-server binary runs the recovery-provider side of the
// delegated account recovery protocol: it publishes its own
// configuration, accepts deposited recovery tokens at a save-token
// endpoint, countersigns them on request at a recover-account endpoint,
// and reports status back to the account provider it deposited on behalf
// of.
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"delegatedrecovery/internal/config"
	"delegatedrecovery/internal/configfetch"
	"delegatedrecovery/internal/keys"
	"delegatedrecovery/internal/log"
	"delegatedrecovery/internal/recovery"
)

var (
	flagAddress        string
	flagIssuer         string
	flagSaveToken      string
	flagRecoverAccount string
	flagPrivacyPolicy  string
	flagTokenMaxSize   int
	flagLogLevel       int
)

func main() {
	app := &cli.App{
		Name:      "dar-rp-server",
		Usage:     "Run the delegated account recovery recovery-provider server",
		HideHelp:  true,
		ArgsUsage: "<countersigning-key.pem>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "address",
				Aliases:     []string{"addr"},
				Value:       "127.0.0.1:8444",
				EnvVars:     []string{"DAR_RP_ADDRESS"},
				Destination: &flagAddress,
			},
			&cli.StringFlag{
				Name:        "issuer",
				Usage:       "This provider's own origin, e.g. https://rp.example.",
				EnvVars:     []string{"DAR_RP_ISSUER"},
				Destination: &flagIssuer,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "save-token",
				Usage:       "The URL account providers POST deposited tokens to.",
				Destination: &flagSaveToken,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "recover-account",
				Usage:       "The URL account providers redirect users to for recovery.",
				Destination: &flagRecoverAccount,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "privacy-policy",
				Destination: &flagPrivacyPolicy,
				Required:    true,
			},
			&cli.IntFlag{
				Name:        "token-max-size",
				Value:       8192,
				Destination: &flagTokenMaxSize,
			},
			&cli.IntFlag{
				Name:        "verbose",
				Aliases:     []string{"v"},
				Value:       2,
				DefaultText: "2 (info)",
				Destination: &flagLogLevel,
			},
		},
		Action: runServer,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// rpServer holds deposited recovery tokens keyed by hex id, alongside the
// peer account provider's configuration, fetched and cached on demand.
type rpServer struct {
	countersignKey *ecdsa.PrivateKey
	issuer         string
	fetcher        *configfetch.Fetcher

	mu     sync.Mutex
	tokens map[string]tokenEntry
}

type tokenEntry struct {
	ap       string // the depositing account provider's origin
	username string
	encoded  string // the encoded recovery token, as deposited
}

func runServer(c *cli.Context) error {
	log.Level = flagLogLevel

	keyPath := c.Args().First()
	if keyPath == "" {
		log.Fatal("usage: dar-rp-server [flags] <countersigning-key.pem>")
	}
	pemBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return err
	}
	csKey, err := keys.ParsePrivatePEM(pemBytes)
	if err != nil {
		return err
	}
	csPub, err := keys.MarshalPublicBase64(&csKey.PublicKey)
	if err != nil {
		return err
	}
	rpCfg := newRPConfig(flagIssuer, flagSaveToken, flagRecoverAccount, flagPrivacyPolicy, flagTokenMaxSize, csPub)

	fetcher, err := configfetch.New(&http.Client{Timeout: 10 * time.Second}, 100)
	if err != nil {
		return err
	}
	s := &rpServer{
		issuer:         flagIssuer,
		fetcher:        fetcher,
		tokens:         make(map[string]tokenEntry),
		countersignKey: csKey,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(configfetch.WellKnownPath, func(w http.ResponseWriter, req *http.Request) {
		body, err := rpCfg.JSON()
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})
	mux.HandleFunc("/save-token", s.handleSaveToken)
	mux.HandleFunc("/recover-account", s.handleRecoverAccount)

	srv := &http.Server{
		Addr:              flagAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          log.GoLogger(),
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	done := make(chan struct{})
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Infof("Received signal %d (%s)", sig, sig)
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Errorf("Shutdown: %v", err)
		}
		close(done)
	}()

	log.Infof("Starting recovery-provider server WITHOUT TLS on %s", flagAddress)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("ListenAndServe: %v", err)
	}
	<-done
	log.Info("Server exited cleanly.")
	return nil
}

// handleSaveToken receives a recovery token deposited by an account
// provider, validates it against that provider's published signing keys,
// and stores it keyed by id for later countersigning.
func (s *rpServer) handleSaveToken(w http.ResponseWriter, req *http.Request) {
	req.ParseForm()
	encoded := req.PostFormValue("token")
	apOrigin := req.PostFormValue("issuer")
	username := req.PostFormValue("username")
	if len(encoded) > flagTokenMaxSize {
		http.Error(w, "token too large", http.StatusBadRequest)
		return
	}

	cfgAny, err := s.fetcher.Fetch(req.Context(), apOrigin, configfetch.AccountProvider)
	if err != nil {
		log.Errorf("fetch AP config for %s: %v", apOrigin, err)
		http.Error(w, "cannot verify issuer", http.StatusBadGateway)
		return
	}
	apCfg := cfgAny.(*config.AccountProviderConfiguration)
	apKeys, err := apCfg.SigningKeys()
	if err != nil {
		http.Error(w, "invalid AP signing keys", http.StatusBadGateway)
		return
	}

	rt, err := recovery.ValidateToken(encoded, apOrigin, s.issuer, time.Hour, apKeys)
	if err != nil {
		log.Errorf("ValidateToken: %v", err)
		http.Error(w, "invalid token", http.StatusBadRequest)
		return
	}

	id := fmt.Sprintf("%x", rt.ID())
	s.mu.Lock()
	s.tokens[id] = tokenEntry{ap: apOrigin, username: username, encoded: encoded}
	s.mu.Unlock()

	go s.postStatus(apOrigin, id, "save-success")
	w.WriteHeader(http.StatusOK)
}

// handleRecoverAccount countersigns a previously deposited token and
// returns the countersigned artifact to be redirected to the account
// provider's recover-account-return endpoint.
func (s *rpServer) handleRecoverAccount(w http.ResponseWriter, req *http.Request) {
	req.ParseForm()
	id := req.FormValue("id")

	s.mu.Lock()
	entry, ok := s.tokens[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, req)
		return
	}

	var csID [16]byte
	rand.Read(csID[:])
	_, encoded, err := recovery.NewCountersigned(s.countersignKey, csID, s.issuer, entry.ap, []byte(entry.encoded), nil)
	if err != nil {
		log.Errorf("NewCountersigned: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(encoded))
}

func (s *rpServer) postStatus(apOrigin, id, status string) {
	resp, err := http.PostForm(apOrigin+"/.well-known/delegated-account-recovery/token-status", map[string][]string{
		"id":     {id},
		"status": {status},
	})
	if err != nil {
		log.Errorf("postStatus: %v", err)
		return
	}
	resp.Body.Close()
}

func newRPConfig(issuer, saveToken, recoverAccount, privacyPolicy string, tokenMaxSize int, countersignKeyB64 string) *config.RecoveryProviderConfiguration {
	return config.NewRecoveryProviderConfiguration(issuer, saveToken, recoverAccount, "", privacyPolicy, "", tokenMaxSize, []string{countersignKeyB64})
}
