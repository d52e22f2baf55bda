// Package resp implements the multibulk wire protocol used by memkv.
//
// Requests are arrays of bulk strings:
//
//	*<N>\r\n
//	$<len>\r\n<bytes>\r\n   (repeated N times)
//
// Replies use five encodings: simple string (+), error (-), integer (:),
// bulk string ($, with $-1 as nil) and array (*). The encoder is byte-exact;
// clients compare reply bytes literally.
//
// The same framing is used for append-only log records, so a record can be
// decoded with ReadCommand exactly like a request.
package resp
