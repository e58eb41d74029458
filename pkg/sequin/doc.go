// Package sequin is a client for the Sequin stream HTTP API.
//
// Every operation is one synchronous JSON request against the configured base
// URL. Failures never surface as panics: each call returns its typed result or
// a *Error carrying the HTTP status and a human readable summary.
//
// Example:
//
//	client := sequin.NewClient()
//	res, err := client.SendMessage(ctx, "orders", "orders.created", map[string]any{"id": 1})
//	if err != nil {
//	    serr := sequin.AsError(err)
//	    log.Printf("send failed: %d %s", serr.Status, serr.Summary)
//	}
//
// The base URL is taken from WithBaseURL, then the SEQUIN_URL environment
// variable, then http://localhost:7376.
package sequin
