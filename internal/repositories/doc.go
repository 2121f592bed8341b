// package repositories provides the persistence layer for the local download
// history cache.
//
// Finished jobs eventually age out of the server's queue; recording them in a
// local sqlite database keeps history browsable offline and after the server
// forgets them.
package repositories
