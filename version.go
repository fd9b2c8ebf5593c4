// Package cpptext runs a C preprocessor over files and captures the
// processed text.
package cpptext

// Version is the cpptext release version.
const Version = "0.1.0"
