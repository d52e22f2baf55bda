// Package client is a small RESP2 client for memkv.
//
// A Client owns one connection and sends one command at a time. Pool
// keeps a bounded set of Clients for concurrent callers.
//
//	c, err := client.Dial(ctx, "127.0.0.1:6379")
//	if err != nil { ... }
//	defer c.Close()
//	reply, err := c.Do(ctx, "SET", "k", "v")
package client
