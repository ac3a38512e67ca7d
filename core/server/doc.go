// Package server runs an http.Handler with graceful shutdown and environment-driven settings.
//
//	var cfg server.Config
//	config.MustLoad(&cfg)
//
//	srv, err := server.NewFromConfig(cfg,
//		server.WithLogger(log),
//		server.WithOnShutdown(svc.CloseStreams),
//	)
//	if err != nil {
//		return err
//	}
//
//	eg, ctx := errgroup.WithContext(ctx)
//	eg.Go(srv.Run(ctx, router))
//	return eg.Wait()
//
// The write timeout is disabled by default because live streams are long-lived.
// Hooks passed to WithOnShutdown run when Stop begins; use them to end streams so
// that shutdown does not wait for the full timeout.
package server
