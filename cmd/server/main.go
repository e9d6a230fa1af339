package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"mailbag/internal/api"
	"mailbag/internal/config"
	"mailbag/internal/db"
	"mailbag/internal/logging"
	"mailbag/internal/mail"
	"mailbag/internal/service"
	"mailbag/internal/store"
	"mailbag/internal/version"
)

func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before reading the environment")
	migration := flag.String("migration", "migrations/001_contacts.sql", "contacts schema migration applied at startup")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
			os.Exit(2)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(3)
	}
	defer func() { _ = log.Sync() }()

	v := version.Current()
	log.Info("Starting mailbag", zap.String("version", v.Version), zap.String("commit", v.Commit))

	sqdb, err := db.Open(cfg.ContactsDBDriver, cfg.ContactsDBDSN, db.Pool{
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("Failed to open contacts database", zap.String("driver", cfg.ContactsDBDriver), zap.Error(err))
	}
	defer sqdb.Close()
	if err := db.ApplyMigrationFile(sqdb, *migration); err != nil {
		log.Fatal("Failed to apply migration", zap.String("path", *migration), zap.Error(err))
	}

	var mailClient mail.Client = mail.NoopClient{}
	if cfg.MailConfigured() {
		mailLog := log.Named("mail")
		mailClient = mail.NewWorker(
			cfg.ServerInfo(),
			cfg.MailProfile,
			mail.NewDialer(cfg.MailDialTimeout, cfg.MailCommandTimeout, mailLog),
			mail.NewSender(cfg.MailDialTimeout, cfg.MailCommandTimeout, mailLog),
			mailLog,
		)
		log.Info("Mail account configured",
			zap.String("imap", fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort)),
			zap.String("smtp", fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)),
			zap.String("profile", string(cfg.MailProfile)))
	} else {
		log.Warn("MAIL_USERNAME/MAIL_PASSWORD not set; mail endpoints return empty results")
	}

	svc := service.New(cfg, store.New(sqdb), mailClient)
	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(cfg, svc, log.Named("http")),
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Listening", zap.String("addr", cfg.ListenAddr))
		if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := hsrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}
	if err := mailClient.CloseSelected(); err != nil {
		log.Warn("Close selected mailbox", zap.Error(err))
	}
}
