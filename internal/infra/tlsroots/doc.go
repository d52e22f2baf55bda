// Package tlsroots loads the certificates used for TLS on the RESP and
// admin listeners and by memkv-cli.
//
// A Watcher keeps the server key pair current: it watches the files with
// fsnotify and swaps the certificate in place, so rotating a certificate
// needs no restart. A Pool holds the CA certificates clients trust, or
// the server accepts client certificates from.
package tlsroots
