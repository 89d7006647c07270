// Package nodes provides ready-made node and router functions for common conversational graphs.
package nodes
