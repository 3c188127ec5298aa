// Package bootstrap assembles a running responder from configuration.
//
// NewApp loads the config, opens the ACL sink and the optional block
// history database, and builds the detection engine. Start launches the
// metrics listener, the expiry sweeper and the event source supervisor.
// WaitForShutdown returns on SIGINT/SIGTERM or when a source configured
// with on_exhausted=shutdown runs dry; Shutdown then stops everything in
// reverse order and is safe to call more than once.
//
//	app, err := bootstrap.NewApp(ctx, "/etc/apguard/apguard.yaml")
//	if err != nil {
//		return err
//	}
//	defer app.Shutdown()
//	if err := app.Start(ctx); err != nil {
//		return err
//	}
//	return app.WaitForShutdown()
package bootstrap
