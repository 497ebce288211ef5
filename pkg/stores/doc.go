// Package stores persists coordinator history in SQLite: the API state
// transitions reported by the health tracker and every endpoint fetch
// attempt. The schema is managed with embedded golang-migrate migrations.
package stores
