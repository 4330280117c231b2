// Package search implements the Search Strategies component (F): a small
// set of independently dispatchable strategies over the store's FTS5
// virtual table, each returning results scored into [0,1].
package search
