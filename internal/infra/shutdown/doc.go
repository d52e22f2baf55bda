// Package shutdown runs cleanup hooks when the process is asked to stop.
//
// Hooks run in reverse registration order under one shared timeout, so
// components started last are stopped first.
//
//	h := shutdown.NewHandler(30*time.Second, log)
//	h.OnShutdown("redis", srv.Shutdown)
//	if err := h.Wait(ctx); err != nil { ... }
package shutdown
