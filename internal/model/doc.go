// Package model defines the core data structures for the spice application.
package model
