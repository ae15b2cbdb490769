// Package resources provides MCP resources for exposing gateway state.
// Resources are read-only data sources that MCP clients can fetch, such
// as the authenticated characters and the current rate-limit budgets.
package resources
