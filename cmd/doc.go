// Package cmd implements the command-line interface for evegate.
//
// This package provides the following commands:
//   - login: Authenticate an EVE character via SSO and store its tokens
//   - accounts: List, inspect and remove stored characters
//   - get: Issue a GET request against the EVE API
//   - status: Show rate-limit budgets and cache state
//   - cache: Inspect or clear the response cache
//   - serve: Start the MCP server to provide tools for AI assistants
//   - docs: Generate markdown documentation for the CLI and MCP tools
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
