package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/vocdoni/skillrating/config"
	"github.com/vocdoni/skillrating/crypto/ethereum"
	"github.com/vocdoni/skillrating/engine"
	"github.com/vocdoni/skillrating/fhe"
	"github.com/vocdoni/skillrating/fhe/bgv"
	"github.com/vocdoni/skillrating/fhe/mock"
	"github.com/vocdoni/skillrating/log"
	"github.com/vocdoni/skillrating/service"
	"github.com/vocdoni/skillrating/storage"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

func main() {
	conf, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var errorOutput *os.File
	if conf.LogErrorFile != "" {
		errorOutput, err = os.OpenFile(conf.LogErrorFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer errorOutput.Close()
		log.Init(conf.LogLevel, conf.LogOutput, errorOutput)
	} else {
		log.Init(conf.LogLevel, conf.LogOutput, nil)
	}

	if err := run(conf); err != nil {
		log.Fatal(err)
	}
}

func run(conf *config.Config) error {
	database, err := metadb.New(conf.DBType, filepath.Join(conf.DataDir, "db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	stg := storage.New(database)
	defer stg.Close()

	backend, err := newBackend(conf.Runtime, database)
	if err != nil {
		return err
	}

	signer := ethereum.NewSignKeys()
	if conf.SignerKey != "" {
		err = signer.AddHexKey(conf.SignerKey)
	} else {
		log.Warn("no signer key configured, input attestations will not survive a restart")
		err = signer.Generate()
	}
	if err != nil {
		return fmt.Errorf("signer key: %w", err)
	}

	rt, err := fhe.NewRuntime(backend, database, signer)
	if err != nil {
		return err
	}
	eng, err := engine.New(stg, rt, engine.Config{
		Admin:     conf.AdminAddress(),
		ContextID: conf.ContextAddress(),

		MaxSubscribers: conf.MaxSubscribers,
	})
	if err != nil {
		return err
	}
	log.Infow("engine ready",
		"admin", eng.Admin().Hex(),
		"context", eng.ContextID().Hex(),
		"signer", rt.Signer().Hex(),
		"runtime", conf.Runtime)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := service.NewAPI(stg, eng, rt, conf.Host, conf.Port)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Stop()

	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func newBackend(name string, database db.Database) (fhe.Backend, error) {
	switch name {
	case config.RuntimeMock:
		log.Warn("using the plaintext mock runtime, ratings are not confidential")
		return mock.New(), nil
	default:
		b, err := bgv.New(database)
		if err != nil {
			return nil, fmt.Errorf("bgv backend: %w", err)
		}
		return b, nil
	}
}
