// Package format renders aggregate results as JSON, CSV, or a text table.
package format
