/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomoncle/itemsvc"
	"github.com/tomoncle/itemsvc/api"
	"github.com/tomoncle/itemsvc/config"
	"github.com/tomoncle/itemsvc/credential"
	"github.com/tomoncle/itemsvc/database"
	"github.com/tomoncle/itemsvc/metrics"
	"github.com/tomoncle/itemsvc/utils"
)

func main() {
	configPath := flag.String("config", utils.EnvDefaultString("ITEMSVC_CONFIG", ""), "path to a YAML config file")
	showEnv := flag.Bool("env", false, "print the supported environment variables and exit")
	flag.Parse()

	if *showEnv {
		fmt.Println(config.Usage())
		return
	}

	if err := run(*configPath); err != nil {
		utils.NewLogger("MAIN").WithError(err).Error("Service stopped with error")
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	utils.ConfigureLogLevel(cfg.Log.Level)
	utils.ConfigureLogFormat(cfg.Log.Format)
	log := utils.NewLogger("MAIN")

	m := metrics.New()
	tokens, err := credential.NewProvider(&cfg.Auth)
	if err != nil {
		return err
	}
	tokens = m.InstrumentTokens(tokens)

	factory, err := database.NewConnectionFactory(&cfg.Database, tokens, cfg.Auth.Resource,
		database.WithLogger(database.DefaultLogger()),
		database.WithObserver(m),
		database.WithRefreshSkew(cfg.Auth.RefreshSkew),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := factory.Close(); err != nil {
			log.WithError(err).Warn("Failed to close database pool")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schema := database.NewSchemaInitializer(factory, database.DefaultLogger())
	if err := schema.EnsureSchema(ctx); err != nil {
		log.WithError(err).Error("Schema initialization failed, serving with readiness down")
	}

	handler := api.NewRouter(api.Options{
		Items:          itemsvc.NewItemService(factory, utils.NewLogger("SERVICE")),
		Health:         factory,
		Schema:         schema.Status(),
		Metrics:        m,
		Logger:         utils.NewLogger("HTTP"),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{
			"addr": cfg.Server.Addr,
			"mode": cfg.Database.Mode,
			"type": cfg.Database.Type,
		}).Info("Item service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("Item service gracefully stopped")
	return nil
}
