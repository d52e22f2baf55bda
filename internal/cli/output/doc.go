// Package output renders replies and admin data for memkv-cli.
//
// Formats:
//
//   - raw: redis-cli style, e.g. (integer) 3, "value", (nil)
//   - json: indented JSON
//   - yaml: YAML via gopkg.in/yaml.v3
//   - table: aligned columns for structs, maps and slices
//
// Replies are converted with ReplyValue before JSON or YAML encoding, so
// error replies appear as {"error": "..."} and nulls as null.
package output
