// Package cli implements the meridian-admin command line tool.
//
// Commands cover operational tasks that should not go through the HTTP
// API: running migrations, minting session tokens for local development,
// seeding role templates into a company, and tailing the audit log.
package cli
