// Package api exposes the HTTP surface of the authorization service.
//
// Every tenant-scoped route is wrapped by a guard policy that authenticates
// the caller, resolves the active company, and checks permissions before the
// handler runs. Handlers read the assembled request context with
// guard.FromRequest and never re-derive identity or tenancy themselves.
//
// Routes are grouped by concern (team, companies, customers, roles, billing
// webhooks), each group registering its own routes on the shared router.
package api
