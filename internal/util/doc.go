// Package util holds small helpers shared by the server, storage and HTTP
// layers: random credential generation, URL normalization and log-safe string
// truncation.
package util
