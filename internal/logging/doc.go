// Package logging writes JSON logs to a size-rotated file under
// ~/.autowriter/logs and reads them back for `autowriter logs`.
//
// Stderr mirroring is opt-in (--debug) and always off when serving MCP
// over stdio.
package logging
