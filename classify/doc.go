// Package classify turns raw weather station readings into display data:
// clothing advice by temperature, air quality categories and color grades
// for particulates, humidity and pressure.
//
// Every function is pure and defined for all inputs, including NaN.
package classify
