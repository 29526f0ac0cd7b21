// Package shared holds code used across packages that belongs to no
// single layer. Its testutil subpackage provides the ledger fixtures and
// the buffered slog handler the package tests share.
package shared
