// Package storage provides the PostgreSQL connection helper, the plain-SQL
// migration runner, and driver error classification shared by the persistence
// layers.
package storage
