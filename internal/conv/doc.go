// Package conv provides checked integer conversions for values read from
// untrusted blob headers.
package conv
