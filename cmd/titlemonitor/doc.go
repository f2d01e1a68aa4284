// Command titlemonitor watches a CISIS title database and sends changed
// journals to the catalog service.
//
// "titlemonitor run" starts the poll loop; "check" performs a single pass
// (optionally as a dry run); "convert", "deps", "config", and "state" are
// maintenance helpers. Flags mirror the settings in config.toml and take
// precedence over it.
package main
