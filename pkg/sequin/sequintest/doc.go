// Package sequintest provides an in-memory Sequin server for tests.
//
//	func TestMyCode(t *testing.T) {
//	    srv := sequintest.NewMockServer()
//	    defer srv.Close()
//
//	    client := sequin.NewClient(sequin.WithBaseURL(srv.URL()))
//	    // ...
//	}
package sequintest
