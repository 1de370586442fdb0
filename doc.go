// Package weather is the dashboard presenter: it discovers a SmartThings
// weather device, polls its status and classifies each reading into
// clothing advice, an air quality category and display grades.
package weather
