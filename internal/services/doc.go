// Package services holds the shared error taxonomy and external command
// runner used by the clients for beets, mpc, and slskd.
package services
