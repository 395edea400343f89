package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/app"
	"github.com/vladislavdragonenkov/qrpro/internal/version"
)

// loadDotEnv подхватывает .env из рабочего каталога; отсутствие файла не ошибка.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(format, level string) {
	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func main() {
	if err := loadDotEnv(); err != nil {
		log.WithError(err).Fatal("не удалось прочитать .env")
	}

	cfg, warnings := app.LoadConfigFromEnv(os.LookupEnv)
	setupLogger(cfg.LogFormat, cfg.LogLevel)
	for _, w := range warnings {
		log.WithField("warning", w).Warn("некорректное значение переменной окружения, используется значение по умолчанию")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"cart_store":   cfg.CartDriver,
		"auth":         cfg.AuthMode,
		"mailer":       cfg.MailDriver,
		"version":      version.GetVersion(),
	}).Info("запускаем QR Pro order service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("QR Pro order service остановлен")
}
