// Package smartthings is a small client for the parts of the SmartThings
// REST API the dashboard reads: device listing and component status.
package smartthings
