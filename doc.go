// Package ftclient implements the client side of a small two-channel file
// transfer protocol.
//
// # Overview
//
// A session uses two TCP connections:
//   - The control connection, opened by the client, carries a short handshake.
//   - The data connection, opened by the server back to the client, carries
//     the payload and is closed by the server when the payload ends.
//
// The handshake sends, in order and each as raw unterminated text: the
// command ("-l" to list the remote directory, "-g" to fetch a file), the data
// port in decimal, the client's IP address and, for "-g", the filename. Every
// message must be answered by a non-empty acknowledgment before the next is
// sent.
//
// # Basic Usage
//
// List the server's directory:
//
//	client, err := ftclient.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := client.List(ctx, "flip1.example.edu", 30021, 30020)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(len(res.Entries()), "entries")
//
// Fetch a file. If "notes.txt" already exists locally the payload is written
// to "notes.txt1", then "notes.txt2", and so on; an existing file is never
// overwritten:
//
//	res, err := client.Get(ctx, "flip1.example.edu", 30021, "notes.txt", 30020)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if res.NotFound() {
//	    fmt.Println(ftclient.NotFoundSentinel)
//	} else {
//	    fmt.Println("saved as", res.Path)
//	}
//
// # Timeouts
//
// The protocol itself has no timeouts. By default every wait is unbounded
// and only context cancellation interrupts it. WithTimeout, WithAcceptTimeout
// and WithReadTimeout add deadlines; an expired deadline is reported as a
// *TimeoutError.
//
// # Error Handling
//
// Failures are reported with typed errors that carry the failing step:
//
//	if _, err := client.Run(ctx, session); err != nil {
//	    var he *ftclient.HandshakeError
//	    if errors.As(err, &he) {
//	        fmt.Printf("server stopped answering at %s\n", he.Step)
//	    }
//	}
//
// The "File not found." reply is not an error: Run returns a Result whose
// NotFound method reports true.
package ftclient
