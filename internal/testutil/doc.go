// Package testutil provides fixtures, a controllable clock and small assertion
// helpers for the authorization server tests.
package testutil
