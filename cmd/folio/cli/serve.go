package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/foliodesk/folio/internal/catalog"
	"github.com/foliodesk/folio/internal/config"
	"github.com/foliodesk/folio/internal/console"
	"github.com/foliodesk/folio/internal/contact"
	"github.com/foliodesk/folio/internal/server"
	"github.com/foliodesk/folio/internal/sweep"
)

const banner = `
  __       _ _
 / _| ___ | (_) ___
| |_ / _ \| | |/ _ \
|  _| (_) | | | (_) |
|_|  \___/|_|_|\___/
`

func newServeCmd() *cobra.Command {
	var noUI bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the folio HTTP server",
		Long:  "Start the HTTP server for the public site, the auth endpoints and the admin console API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			return runServe(s, noUI)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().Bool("dev", false, "Development mode (relaxed security headers, random JWT secret if unset)")
	cmd.Flags().BoolVar(&noUI, "no-ui", false, "Do not serve the embedded landing page")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	viper.BindPFlag("server.dev", cmd.Flags().Lookup("dev"))

	return cmd
}

func runServe(s *config.Settings, noUI bool) error {
	fmt.Print(banner)
	fmt.Println()

	logger := newLogger(s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Realtime hub
	hub, brokerPing, err := newHub(s, logger)
	if err != nil {
		return err
	}
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("start realtime hub: %w", err)
	}
	defer hub.Close()

	// 2. Record store, publishing inserts to the hub
	st, err := openStore(ctx, s, hub, false, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store ready", "driver", st.Dialect())

	// 3. Object storage
	objects, local, err := openObjects(ctx, s, logger)
	if err != nil {
		return err
	}

	// 4. Accounts and admin consoles
	authSvc, err := newAuthService(s, st, logger)
	if err != nil {
		return err
	}
	manager := console.NewManager(authSvc, console.Deps{
		Projects: st.Projects(),
		Messages: st.Messages(),
		Objects:  objects,
		Feed:     hub,
		Timeout:  s.Store.Timeout,
		Logger:   logger,
	})

	// 5. Background jobs
	sched := sweep.NewScheduler(logger)
	if err := sched.Add("reap-consoles", "@every 1m", 10*time.Second, func(context.Context) error {
		manager.Reap(time.Now())
		return nil
	}); err != nil {
		return err
	}
	if err := sched.Add("purge-sessions", "@hourly", time.Minute, func(ctx context.Context) error {
		n, err := st.PurgeSessions(ctx, time.Now().UTC())
		if err == nil && n > 0 {
			logger.Info("purged expired sessions", "count", n)
		}
		return err
	}); err != nil {
		return err
	}
	if s.Sweep.Schedule != "" {
		sweeper := newSweeper(s, objects, st, logger)
		if err := sched.Add("sweep-images", s.Sweep.Schedule, 10*time.Minute, func(ctx context.Context) error {
			_, err := sweeper.Run(ctx, false)
			return err
		}); err != nil {
			return err
		}
	}
	sched.Start()
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		sched.Stop(stopCtx)
	}()

	// 6. HTTP server
	checks := map[string]server.Pinger{"database": st}
	if brokerPing != nil {
		checks["broker"] = brokerPing
	}
	srvCfg := server.Config{
		Host:             s.Server.Host,
		Port:             s.Server.Port,
		ShutdownTimeout:  s.Server.ShutdownTimeout,
		CORSOrigins:      s.Server.CORSOrigins,
		EnableUI:         !noUI,
		MaxUploadBytes:   s.Server.MaxUploadBytes,
		ContactRateLimit: s.Contact.RateLimit,
		BaseURL:          s.BaseURL(),
		Dev:              s.Server.Dev,
		KeepAlive:        15 * time.Second,
	}
	srv := server.New(srvCfg, server.Deps{
		Catalog: catalog.New(st.Projects(), s.Store.Timeout, logger),
		Intake:  contact.NewIntake(st.Messages(), s.Store.Timeout, logger),
		Manager: manager,
		Auth:    authSvc,
		Files:   local,
		Checks:  checks,
	}, logger)

	base := s.BaseURL()
	fmt.Printf("→ Folio %s\n", versionString())
	fmt.Printf("→ Listening on http://%s\n", s.Addr())
	if !noUI {
		fmt.Printf("→ Site:       %s/\n", base)
	}
	fmt.Printf("→ OpenAPI:    %s/openapi.json\n", base)
	fmt.Printf("→ Health:     %s/healthz\n", base)
	fmt.Printf("→ Storage:    %s\n", s.Storage.Driver)
	fmt.Println()

	return srv.ListenAndServe()
}
