// Package services holds the shared error taxonomy and the clients for
// external tools the daemon shells out to.
package services
