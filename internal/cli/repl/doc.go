// Package repl implements memkv-cli's interactive mode.
//
// Lines are split into arguments the way redis-cli does: whitespace
// separates arguments, and double or single quotes group them. Double
// quoted strings understand \n, \r, \t, \\, \" and \xHH escapes.
//
// A few meta commands are handled locally:
//
//	help [prefix]    list commands
//	connect <addr>   switch server
//	output <format>  raw, json, yaml or table
//	history [n]      show recent input
//	exit, quit       leave
package repl
